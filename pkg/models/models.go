package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Session describes the active wallet connection.
type Session struct {
	Account    common.Address `json:"account"`
	HasAccount bool           `json:"has_account"`
	Connected  bool           `json:"connected"`
	ReadOnly   bool           `json:"read_only"`
	RPCURL     string         `json:"rpc_url"`
}

// PriceState holds the raw and display values of the fee and prize.
type PriceState struct {
	GuessFeeWei string `json:"guess_fee_wei"`
	PrizeWei    string `json:"prize_wei"`
	GuessFee    string `json:"guess_fee"` // "0.xxx"
	Prize       string `json:"prize"`
	EthUSDPrice string `json:"eth_usd_price"`
	GuessFeeUSD string `json:"guess_fee_usd"`
	PrizeUSD    string `json:"prize_usd"`
}

// GuessAttempt is a decoded NewGuess event.
type GuessAttempt struct {
	Guesser     common.Address `json:"guesser"`
	Value       string         `json:"value"`
	Correct     bool           `json:"correct"`
	Timestamp   int64          `json:"timestamp"`
	TxHash      common.Hash    `json:"tx_hash"`
	BlockNumber uint64         `json:"block_number"`
}

// HistoryView is the "last guesses" panel.
type HistoryView struct {
	Visible bool           `json:"visible"`
	Entries []GuessAttempt `json:"entries"`
	Err     string         `json:"error,omitempty"`
}

// StatusKind selects the status icon next to the status text.
type StatusKind string

const (
	StatusIdle    StatusKind = "idle"
	StatusPending StatusKind = "pending"
	StatusWon     StatusKind = "won"
	StatusLost    StatusKind = "lost"
	StatusFailed  StatusKind = "failed"
	StatusInvalid StatusKind = "invalid"
)

type StatusView struct {
	Kind    StatusKind `json:"kind"`
	Message string     `json:"message"`
}

// UIState is everything the display regions render.
type UIState struct {
	Session     Session     `json:"session"`
	Prices      PriceState  `json:"prices"`
	GuessCount  string      `json:"guess_count"`
	Status      StatusView  `json:"status"`
	History     HistoryView `json:"history"`
	ToggleLabel string      `json:"toggle_label"`
	LastUpdate  time.Time   `json:"last_update"`
}

// EventKind names one of the contract's emitted events.
type EventKind string

const (
	EventNewGuess    EventKind = "NewGuess"
	EventNewPrize    EventKind = "NewPrize"
	EventNewGuessFee EventKind = "NewGuessFee"
)

// ContractEvent is a decoded log from one of the watched event streams.
// Only the field matching Kind is set.
type ContractEvent struct {
	Kind  EventKind
	Guess *GuessAttempt
	Prize *big.Int
	Fee   *big.Int
}

// PricePoint is one ETH/USD observation kept for the price graph.
type PricePoint struct {
	Timestamp time.Time
	Value     float64
}

// PriceData contains the current ETH price in USD as a decimal string.
type PriceData struct {
	Price string
	Err   error
}

// RPCResult holds test results for a specific RPC URL.
type RPCResult struct {
	URL          string `json:"url"`
	Status       string `json:"status"` // "ok" or "error"
	ChainID      int64  `json:"chain_id,omitempty"`
	ContractCode bool   `json:"contract_code"`
	Error        string `json:"error,omitempty"`
}

// TestReport holds the results of the configuration test.
type TestReport struct {
	ConfigPath      string      `json:"config_path"`
	ValidStructure  bool        `json:"valid_structure"`
	StructureErrors []string    `json:"structure_errors,omitempty"`
	Network         string      `json:"network"`
	ConfigChainID   int64       `json:"config_chain_id"`
	ObservedChainID int64       `json:"observed_chain_id,omitempty"`
	RPCs            []RPCResult `json:"rpcs"`
	Inconsistent    bool        `json:"inconsistent"`
	PriceOK         bool        `json:"price_ok"`
	PriceError      string      `json:"price_error,omitempty"`
	ConfigUpdated   bool        `json:"config_updated"`
	SaveError       string      `json:"save_error,omitempty"`
	DryRun          bool        `json:"dry_run"`
}
