package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	"solguess/pkg/models"
	"solguess/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	state    models.UIState
	guesses  []string
	toggles  int
	refreshs int
	sub      watcher.Subscriber
}

func (f *fakeClient) State() models.UIState { return f.state }

func (f *fakeClient) SubmitGuess(ctx context.Context, value string) watcher.GuessResult {
	f.guesses = append(f.guesses, value)
	return watcher.GuessResult{Status: models.StatusView{Kind: models.StatusLost, Message: watcher.MsgLost}}
}

func (f *fakeClient) ToggleHistory(ctx context.Context) models.HistoryView {
	f.toggles++
	return models.HistoryView{Visible: true}
}

func (f *fakeClient) Refresh()                          { f.refreshs++ }
func (f *fakeClient) Subscribe() watcher.Subscriber     { return f.sub }
func (f *fakeClient) Unsubscribe(ch watcher.Subscriber) {}

func newTestModel() (model, *fakeClient) {
	c := &fakeClient{
		state: models.UIState{ToggleLabel: "View my last guesses"},
		sub:   make(watcher.Subscriber, 1),
	}
	return initialModel(c, Options{NetworkName: "goerli"}), c
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestAppendPricePoint(t *testing.T) {
	now := time.Now()
	var h []models.PricePoint

	h = appendPricePoint(h, "", now)
	assert.Empty(t, h)
	h = appendPricePoint(h, "1800.5", now)
	h = appendPricePoint(h, "1800.50", now)
	require.Len(t, h, 1, "same value is not repeated")
	h = appendPricePoint(h, "1801", now)
	assert.Equal(t, []float64{1800.5, 1801}, priceValues(h))

	for i := 0; i < maxPricePoints+10; i++ {
		h = appendPricePoint(h, []string{"1", "2"}[i%2], now)
	}
	assert.Len(t, h, maxPricePoints)
}

func TestHistoryRows(t *testing.T) {
	rows := historyRows([]models.GuessAttempt{
		{Value: "1234", Correct: true, Timestamp: 1700000000},
		{Value: "9999", Correct: false, Timestamp: 1700000001},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "1234", rows[0][1])
	assert.Equal(t, "Correct guess", rows[0][2])
	assert.Equal(t, "Wrong guess", rows[1][2])
	assert.Equal(t, time.Unix(1700000000, 0).Local().Format("2006-01-02 15:04:05"), rows[0][0])
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "read-only (no wallet)", accountLabel(models.Session{ReadOnly: true}))
	assert.Equal(t, "no account", accountLabel(models.Session{}))
	addr := common.HexToAddress("0x4f39a2271B835cb5530b39e3dea57bfb9EE0484D")
	assert.Equal(t, "0x4f39...484D", accountLabel(models.Session{Account: addr, HasAccount: true}))

	assert.Equal(t, "...", withDollars("", ""))
	assert.Equal(t, "0.010 ETH", withDollars("0.010", ""))
	assert.Equal(t, "0.999 ETH ($1,798.50)", withDollars("0.999", "1798.50"))

	assert.Equal(t, "★", statusIcon(models.StatusWon))
	assert.Empty(t, statusIcon(models.StatusIdle))
}

func TestUpdate_GuessFlow(t *testing.T) {
	m, c := newTestModel()

	next, _ := m.Update(key("g"))
	m = next.(model)
	require.True(t, m.guessing)

	for _, r := range "1234" {
		next, _ = m.Update(key(string(r)))
		m = next.(model)
	}
	assert.Equal(t, "1234", m.guessInput.Value())

	next, cmd := m.Update(key("enter"))
	m = next.(model)
	assert.False(t, m.guessing)
	assert.True(t, m.submitting)
	require.NotNil(t, cmd)

	done := submitGuess(c, "1234")()
	next, _ = m.Update(done)
	m = next.(model)
	assert.False(t, m.submitting)
	assert.Equal(t, []string{"1234"}, c.guesses)
}

func TestUpdate_GuessCancel(t *testing.T) {
	m, c := newTestModel()
	next, _ := m.Update(key("g"))
	m = next.(model)
	next, _ = m.Update(key("esc"))
	m = next.(model)
	assert.False(t, m.guessing)
	assert.False(t, m.submitting)
	assert.Empty(t, c.guesses)
}

func TestUpdate_WatcherEvent(t *testing.T) {
	m, _ := newTestModel()
	state := models.UIState{
		GuessCount: "7",
		Prices:     models.PriceState{GuessFee: "0.010", EthUSDPrice: "1800.5"},
	}

	next, cmd := m.Update(watcher.Event{Type: watcher.EventPricesUpdated, State: state})
	m = next.(model)
	assert.NotNil(t, cmd)
	assert.Equal(t, "7", m.state.GuessCount)
	assert.False(t, m.loading)
	require.Len(t, m.priceHistory, 1)

	next, _ = m.Update(watcher.Event{Type: watcher.EventSyncFailed, State: state, Err: "eth price: down"})
	m = next.(model)
	assert.Equal(t, "eth price: down", m.syncErr)
	assert.Contains(t, m.View(), "Sync failed")
}

func TestUpdate_Keys(t *testing.T) {
	m, c := newTestModel()

	next, _ := m.Update(key("r"))
	m = next.(model)
	assert.Equal(t, 1, c.refreshs)
	assert.Equal(t, "Refreshing data...", m.statusMessage)

	next, cmd := m.Update(key("l"))
	m = next.(model)
	assert.True(t, m.fetchingLog)
	require.NotNil(t, cmd)
	next, _ = m.Update(toggleHistory(c)())
	m = next.(model)
	assert.False(t, m.fetchingLog)
	assert.Equal(t, 1, c.toggles)

	next, _ = m.Update(key("c"))
	m = next.(model)
	assert.Equal(t, "No account to copy", m.statusMessage)

	next, _ = m.Update(key("p"))
	m = next.(model)
	assert.True(t, m.showGraph)
	assert.Contains(t, m.View(), "Not enough data")
	next, _ = m.Update(key("esc"))
	m = next.(model)
	assert.False(t, m.showGraph)

	next, _ = m.Update(key("?"))
	m = next.(model)
	assert.True(t, m.showHelp)
	assert.Contains(t, m.View(), "View/Hide last guesses")
}

func TestView_History(t *testing.T) {
	m, _ := newTestModel()
	m.state.History = models.HistoryView{Visible: true, Entries: []models.GuessAttempt{{Value: "4321", Timestamp: 1}}}
	out := m.View()
	assert.Contains(t, out, "4321")
	assert.Contains(t, out, "Wrong guess")

	m.state.History = models.HistoryView{Err: watcher.MsgHistoryFailed}
	assert.True(t, strings.Contains(m.View(), "There was an error"))
}

func TestUpdate_GuessSentVerbatim(t *testing.T) {
	m, c := newTestModel()
	next, _ := m.Update(key("g"))
	m = next.(model)
	m.guessInput.SetValue("1234 ")

	_, cmd := m.Update(key("enter"))
	require.NotNil(t, cmd)
	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	require.NotEmpty(t, batch)

	done, ok := batch[0]().(guessDoneMsg)
	require.True(t, ok)
	assert.Equal(t, []string{"1234 "}, c.guesses)
	assert.Equal(t, models.StatusLost, done.result.Status.Kind)
}

func TestOpenExplorer_Guards(t *testing.T) {
	m, _ := newTestModel()
	assert.Equal(t, "Explorer URL not configured", m.openExplorer())

	m.opts.ExplorerURL = "https://goerli.etherscan.io/"
	assert.Equal(t, "No account to open", m.openExplorer())

	next, _ := m.Update(key("o"))
	m = next.(model)
	assert.Equal(t, "No account to open", m.statusMessage)
}
