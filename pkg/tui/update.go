package tui

import (
	"fmt"
	"strings"
	"time"

	"solguess/pkg/watcher"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case watcher.Event:
		cmds = append(cmds, listenForWatcher(m.sub))

		m.state = msg.State
		m.lastUpdate = time.Now()
		switch msg.Type {
		case watcher.EventSyncFailed:
			m.syncErr = msg.Err
		case watcher.EventPricesUpdated:
			m.syncErr = ""
			m.priceHistory = appendPricePoint(m.priceHistory, msg.State.Prices.EthUSDPrice, m.lastUpdate)
		}
		if m.state.Prices.GuessFee != "" && m.state.GuessCount != "" {
			m.loading = false
		}

	case guessDoneMsg:
		m.submitting = false
		if msg.result.Err != "" {
			m.statusMessage = msg.result.Err
			cmds = append(cmds, clearStatusAfter(5*time.Second))
		}

	case historyDoneMsg:
		m.fetchingLog = false

	case tea.KeyMsg:
		if m.guessing {
			return m.updateGuessInput(msg)
		}
		if msg.String() == "?" {
			m.showHelp = !m.showHelp
			return m, nil
		}
		if m.showHelp {
			if msg.String() == "q" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}
		if m.showGraph {
			switch msg.String() {
			case "p", "q", "esc":
				m.showGraph = false
			}
			return m, nil
		}

		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit

		case "g", "enter":
			if m.submitting {
				m.statusMessage = "A guess is already in flight"
				cmds = append(cmds, clearStatusAfter(2*time.Second))
				break
			}
			m.guessing = true
			m.guessInput.SetValue("")
			cmds = append(cmds, m.guessInput.Focus())

		case "l":
			if !m.fetchingLog {
				m.fetchingLog = true
				cmds = append(cmds, toggleHistory(m.client), m.spinner.Tick)
			}

		case "r":
			m.client.Refresh()
			m.statusMessage = "Refreshing data..."
			cmds = append(cmds, clearStatusAfter(2*time.Second))

		case "p":
			m.showGraph = true

		case "c":
			if !m.state.Session.HasAccount {
				m.statusMessage = "No account to copy"
			} else if err := clipboard.WriteAll(m.state.Session.Account.Hex()); err != nil {
				m.statusMessage = "Failed to copy to clipboard"
			} else {
				m.statusMessage = "Account address copied to clipboard!"
			}
			cmds = append(cmds, clearStatusAfter(2*time.Second))

		case "o":
			m.statusMessage = m.openExplorer()
			cmds = append(cmds, clearStatusAfter(2*time.Second))
		}

	case uiTickMsg:
		cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))

	case clearStatusMsg:
		m.statusMessage = ""
	}

	if m.busy() {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m model) updateGuessInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.guessing = false
		m.guessInput.Blur()
		return m, nil
	case "enter":
		value := m.guessInput.Value()
		m.guessing = false
		m.guessInput.Blur()
		m.submitting = true
		return m, tea.Batch(submitGuess(m.client, value), m.spinner.Tick)
	}

	var cmd tea.Cmd
	m.guessInput, cmd = m.guessInput.Update(msg)
	return m, cmd
}

func (m model) openExplorer() string {
	if m.opts.ExplorerURL == "" {
		return "Explorer URL not configured"
	}
	if !m.state.Session.HasAccount {
		return "No account to open"
	}
	url := fmt.Sprintf("%s/address/%s", strings.TrimRight(m.opts.ExplorerURL, "/"), m.state.Session.Account.Hex())
	if err := openBrowser(url); err != nil {
		return fmt.Sprintf("Failed to open browser: %v", err)
	}
	return "Opened in browser"
}
