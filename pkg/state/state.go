// Package state holds the pure update functions over models.UIState.
// Every function takes a state by value and returns the updated copy.
package state

import (
	"math/big"
	"time"

	"solguess/pkg/models"
	"solguess/pkg/utils"

	"github.com/ethereum/go-ethereum/common"
)

const (
	MaxHistoryEntries = 5

	LabelShowHistory = "View my last guesses"
	LabelHideHistory = "Hide my last guesses"
)

// Initial is the state before anything has been fetched.
func Initial(session models.Session) models.UIState {
	return models.UIState{
		Session:     session,
		Status:      models.StatusView{Kind: models.StatusIdle},
		ToggleLabel: LabelShowHistory,
	}
}

func WithAccount(s models.UIState, account common.Address) models.UIState {
	s.Session.Account = account
	s.Session.HasAccount = account != (common.Address{})
	return s
}

func WithSession(s models.UIState, session models.Session) models.UIState {
	s.Session = session
	return s
}

func WithGuessFee(s models.UIState, fee *big.Int, now time.Time) models.UIState {
	if fee == nil {
		return s
	}
	s.Prices.GuessFeeWei = fee.String()
	s.Prices.GuessFee = utils.FormatPrice(s.Prices.GuessFeeWei)
	s.LastUpdate = now
	return recomputeDollars(s)
}

func WithPrize(s models.UIState, prize *big.Int, now time.Time) models.UIState {
	if prize == nil {
		return s
	}
	s.Prices.PrizeWei = prize.String()
	s.Prices.Prize = utils.FormatPrice(s.Prices.PrizeWei)
	s.LastUpdate = now
	return recomputeDollars(s)
}

func WithGuessCount(s models.UIState, count *big.Int, now time.Time) models.UIState {
	if count == nil {
		return s
	}
	s.GuessCount = count.String()
	s.LastUpdate = now
	return s
}

func WithEthPrice(s models.UIState, price string, now time.Time) models.UIState {
	if price == "" {
		return s
	}
	s.Prices.EthUSDPrice = price
	s.LastUpdate = now
	return recomputeDollars(s)
}

// recomputeDollars derives the dollar amounts from the displayed ether
// amounts. A dollar value stays empty until both inputs are known.
func recomputeDollars(s models.UIState) models.UIState {
	s.Prices.GuessFeeUSD = dollars(s.Prices.EthUSDPrice, s.Prices.GuessFee)
	s.Prices.PrizeUSD = dollars(s.Prices.EthUSDPrice, s.Prices.Prize)
	return s
}

func dollars(price, amount string) string {
	if price == "" || amount == "" {
		return ""
	}
	v, err := utils.DollarValue(price, amount)
	if err != nil {
		return ""
	}
	return v
}

func WithStatus(s models.UIState, kind models.StatusKind, message string) models.UIState {
	s.Status = models.StatusView{Kind: kind, Message: message}
	return s
}

// ShowHistory makes the history visible with the newest entries first.
// attempts is expected oldest first, the order logs are returned in.
func ShowHistory(s models.UIState, attempts []models.GuessAttempt) models.UIState {
	n := len(attempts)
	if n > MaxHistoryEntries {
		n = MaxHistoryEntries
	}
	entries := make([]models.GuessAttempt, 0, n)
	for i := len(attempts) - 1; i >= 0 && len(entries) < n; i-- {
		entries = append(entries, attempts[i])
	}
	s.History = models.HistoryView{Visible: true, Entries: entries}
	s.ToggleLabel = LabelHideHistory
	return s
}

func HideHistory(s models.UIState) models.UIState {
	s.History = models.HistoryView{}
	s.ToggleLabel = LabelShowHistory
	return s
}

// HistoryFailed replaces the table with message. Visibility and the
// toggle label are left as they were.
func HistoryFailed(s models.UIState, message string) models.UIState {
	s.History = models.HistoryView{Visible: s.History.Visible, Err: message}
	return s
}
