package tui

import (
	"context"
	"time"

	"solguess/pkg/models"
	"solguess/pkg/utils"
	"solguess/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

const maxPricePoints = 1440

func listenForWatcher(sub watcher.Subscriber) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-sub
		if !ok {
			return nil
		}
		return ev
	}
}

func submitGuess(c Client, value string) tea.Cmd {
	return func() tea.Msg {
		return guessDoneMsg{result: c.SubmitGuess(context.Background(), value)}
	}
}

func toggleHistory(c Client) tea.Cmd {
	return func() tea.Msg {
		return historyDoneMsg{view: c.ToggleHistory(context.Background())}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

// appendPricePoint records price when it differs from the last point.
func appendPricePoint(history []models.PricePoint, price string, now time.Time) []models.PricePoint {
	if price == "" {
		return history
	}
	v := utils.RatToFloat64(price)
	if v <= 0 {
		return history
	}
	if n := len(history); n > 0 && history[n-1].Value == v {
		return history
	}
	history = append(history, models.PricePoint{Timestamp: now, Value: v})
	if len(history) > maxPricePoints {
		history = history[len(history)-maxPricePoints:]
	}
	return history
}

func priceValues(history []models.PricePoint) []float64 {
	out := make([]float64, 0, len(history))
	for _, p := range history {
		out = append(out, p.Value)
	}
	return out
}

func statusIcon(kind models.StatusKind) string {
	switch kind {
	case models.StatusWon:
		return "★"
	case models.StatusLost:
		return "✗"
	case models.StatusFailed:
		return "⚠"
	case models.StatusInvalid:
		return "!"
	}
	return ""
}

func resultLabel(correct bool) string {
	if correct {
		return "Correct guess"
	}
	return "Wrong guess"
}

// historyRows renders the entries as Date, Guess, Result rows.
func historyRows(entries []models.GuessAttempt) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{utils.FormatTimestamp(e.Timestamp), e.Value, resultLabel(e.Correct)})
	}
	return rows
}

func accountLabel(s models.Session) string {
	switch {
	case s.ReadOnly:
		return "read-only (no wallet)"
	case !s.HasAccount:
		return "no account"
	}
	return utils.ShortAddress(s.Account)
}

// withDollars renders "0.010 ETH ($18.01)", leaving out the dollar part
// until it is known.
func withDollars(eth, usd string) string {
	if eth == "" {
		return "..."
	}
	if usd == "" {
		return eth + " ETH"
	}
	return eth + " ETH ($" + utils.AddCommas(usd) + ")"
}
