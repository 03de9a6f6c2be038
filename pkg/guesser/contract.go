package guesser

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"solguess/pkg/models"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoGuessEvent      = errors.New("receipt has no NewGuess event")
	ErrTransactionFailed = errors.New("transaction reverted")
)

// Backend is the subset of ethclient.Client the contract needs.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// SignerFn signs a transaction on behalf of account.
type SignerFn func(account common.Address, tx *types.Transaction) (*types.Transaction, error)

// TransactOpts carries the sender, attached payment and signer of a guess.
type TransactOpts struct {
	From   common.Address
	Value  *big.Int
	Signer SignerFn
}

// Contract is a handle to the guessing contract at a fixed address.
type Contract struct {
	address     common.Address
	abi         abi.ABI
	backend     Backend
	events      Backend
	clock       clockwork.Clock
	receiptPoll time.Duration
	receiptWait time.Duration
	logPoll     time.Duration
}

type Option func(*Contract)

// WithClock replaces the real clock used for receipt and log polling.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Contract) { c.clock = clock }
}

// WithLogPollInterval sets how often logs are polled when the endpoint
// cannot push notifications.
func WithLogPollInterval(d time.Duration) Option {
	return func(c *Contract) {
		if d > 0 {
			c.logPoll = d
		}
	}
}

// WithEventBackend routes event subscriptions through b, typically a
// websocket client, while calls and transactions keep the main backend.
func WithEventBackend(b Backend) Option {
	return func(c *Contract) {
		if b != nil {
			c.events = b
		}
	}
}

// WithReceiptTimeout bounds how long SubmitGuess waits for the receipt.
// Zero waits until the context ends.
func WithReceiptTimeout(d time.Duration) Option {
	return func(c *Contract) { c.receiptWait = d }
}

func WithReceiptPollInterval(d time.Duration) Option {
	return func(c *Contract) {
		if d > 0 {
			c.receiptPoll = d
		}
	}
}

func NewContract(address common.Address, backend Backend, opts ...Option) *Contract {
	c := &Contract{
		address:     address,
		abi:         parsedABI,
		backend:     backend,
		clock:       clockwork.NewRealClock(),
		receiptPoll: time.Second,
		logPoll:     15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.events == nil {
		c.events = backend
	}
	return c
}

func (c *Contract) Address() common.Address {
	return c.address
}

// GuessFee returns the current fee in wei.
func (c *Contract) GuessFee(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, methodGuessFee)
}

// CurrentPrize returns the current prize in wei.
func (c *Contract) CurrentPrize(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, methodCurrentPrize)
}

func (c *Contract) NumberOfGuesses(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, methodNumberOfGuesses)
}

func (c *Contract) callUint(ctx context.Context, method string) (*big.Int, error) {
	data, err := c.abi.Pack(method)
	if err != nil {
		return nil, err
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, wrapCallError(err))
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s: expected 1 output, got %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, values[0])
	}
	return v, nil
}

// SimulateGuess evaluates guess with eth_call so a contract rejection
// surfaces before a transaction is signed.
func (c *Contract) SimulateGuess(ctx context.Context, from common.Address, guess string, value *big.Int) error {
	data, err := c.abi.Pack(methodGuess, guess)
	if err != nil {
		return err
	}
	msg := ethereum.CallMsg{From: from, To: &c.address, Value: value, Data: data}
	if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
		return wrapCallError(err)
	}
	return nil
}

// SubmitGuess sends the guess transaction, waits for it to be mined and
// returns the NewGuess event it emitted.
func (c *Contract) SubmitGuess(ctx context.Context, opts TransactOpts, guess string) (*models.GuessAttempt, error) {
	if opts.Signer == nil {
		return nil, errors.New("no signer")
	}
	data, err := c.abi.Pack(methodGuess, guess)
	if err != nil {
		return nil, err
	}
	value := opts.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := c.backend.PendingNonceAt(ctx, opts.From)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: opts.From, To: &c.address, Value: value, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", wrapCallError(err))
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.address,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := opts.Signer(opts.From, tx)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", wrapCallError(err))
	}
	log.Info().Str("tx", signed.Hash().Hex()).Str("guess", guess).Msg("guess transaction sent")

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, fmt.Errorf("%w: %s", ErrTransactionFailed, signed.Hash().Hex())
	}
	return c.guessFromReceipt(receipt)
}

func (c *Contract) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if c.receiptWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.receiptWait)
		defer cancel()
	}
	ticker := c.clock.NewTicker(c.receiptPoll)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			log.Debug().Err(err).Str("tx", hash.Hex()).Msg("receipt retrieval failed")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.Chan():
		}
	}
}

func (c *Contract) guessFromReceipt(receipt *types.Receipt) (*models.GuessAttempt, error) {
	id := c.abi.Events[string(models.EventNewGuess)].ID
	for _, l := range receipt.Logs {
		if l == nil || l.Address != c.address || len(l.Topics) == 0 || l.Topics[0] != id {
			continue
		}
		return c.decodeGuess(*l)
	}
	return nil, ErrNoGuessEvent
}

// PastGuesses returns every NewGuess emitted for guesser, oldest first.
func (c *Contract) PastGuesses(ctx context.Context, guesser common.Address) ([]models.GuessAttempt, error) {
	q := ethereum.FilterQuery{
		FromBlock: big.NewInt(0),
		Addresses: []common.Address{c.address},
		Topics: [][]common.Hash{
			{c.abi.Events[string(models.EventNewGuess)].ID},
			{common.BytesToHash(guesser.Bytes())},
		},
	}
	logs, err := c.backend.FilterLogs(ctx, q)
	if err != nil {
		return nil, err
	}
	attempts := make([]models.GuessAttempt, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		a, err := c.decodeGuess(l)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, nil
}

// DecodeLog turns a raw log into one of the three contract events.
func (c *Contract) DecodeLog(l types.Log) (models.ContractEvent, error) {
	if len(l.Topics) == 0 {
		return models.ContractEvent{}, errors.New("log has no topics")
	}
	switch l.Topics[0] {
	case c.abi.Events[string(models.EventNewGuess)].ID:
		a, err := c.decodeGuess(l)
		if err != nil {
			return models.ContractEvent{}, err
		}
		return models.ContractEvent{Kind: models.EventNewGuess, Guess: a}, nil
	case c.abi.Events[string(models.EventNewPrize)].ID:
		v, err := c.decodeUint(models.EventNewPrize, l)
		if err != nil {
			return models.ContractEvent{}, err
		}
		return models.ContractEvent{Kind: models.EventNewPrize, Prize: v}, nil
	case c.abi.Events[string(models.EventNewGuessFee)].ID:
		v, err := c.decodeUint(models.EventNewGuessFee, l)
		if err != nil {
			return models.ContractEvent{}, err
		}
		return models.ContractEvent{Kind: models.EventNewGuessFee, Fee: v}, nil
	}
	return models.ContractEvent{}, fmt.Errorf("unknown event topic %s", l.Topics[0].Hex())
}

func (c *Contract) decodeGuess(l types.Log) (*models.GuessAttempt, error) {
	if len(l.Topics) < 2 {
		return nil, errors.New("NewGuess log is missing the guesser topic")
	}
	values, err := c.abi.Events[string(models.EventNewGuess)].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack NewGuess: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("NewGuess: expected 3 values, got %d", len(values))
	}
	value, ok1 := values[0].(string)
	correct, ok2 := values[1].(bool)
	date, ok3 := values[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("NewGuess: unexpected value types %T %T %T", values[0], values[1], values[2])
	}
	return &models.GuessAttempt{
		Guesser:     common.BytesToAddress(l.Topics[1].Bytes()),
		Value:       value,
		Correct:     correct,
		Timestamp:   date.Int64(),
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
	}, nil
}

func (c *Contract) decodeUint(kind models.EventKind, l types.Log) (*big.Int, error) {
	values, err := c.abi.Events[string(kind)].Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", kind, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s: expected 1 value, got %d", kind, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected value type %T", kind, values[0])
	}
	return v, nil
}
