package tui

import (
	"context"
	"time"

	"solguess/pkg/models"
	"solguess/pkg/watcher"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Version is set by Start()
var Version = "dev"

// Client is the watcher as seen by the UI.
type Client interface {
	State() models.UIState
	SubmitGuess(ctx context.Context, value string) watcher.GuessResult
	ToggleHistory(ctx context.Context) models.HistoryView
	Refresh()
	Subscribe() watcher.Subscriber
	Unsubscribe(ch watcher.Subscriber)
}

// Options carries the static display settings.
type Options struct {
	NetworkName string
	ExplorerURL string
	Version     string
}

// --- Messages ---

type clearStatusMsg struct{}
type uiTickMsg time.Time

type guessDoneMsg struct {
	result watcher.GuessResult
}

type historyDoneMsg struct {
	view models.HistoryView
}

// --- Model ---

type model struct {
	client Client
	sub    watcher.Subscriber
	opts   Options

	state         models.UIState
	width         int
	height        int
	loading       bool
	spinner       spinner.Model
	statusMessage string
	syncErr       string

	guessInput  textinput.Model
	guessing    bool
	submitting  bool
	fetchingLog bool

	showHelp     bool
	showGraph    bool
	priceHistory []models.PricePoint
	lastUpdate   time.Time
}

func initialModel(c Client, opts Options) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.Placeholder = "1234"
	ti.CharLimit = 8
	ti.Width = 10

	return model{
		client:     c,
		sub:        c.Subscribe(),
		opts:       opts,
		state:      c.State(),
		loading:    true,
		spinner:    s,
		guessInput: ti,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		listenForWatcher(m.sub),
		m.spinner.Tick,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }),
	)
}

func (m model) busy() bool {
	return m.loading || m.submitting || m.fetchingLog
}
