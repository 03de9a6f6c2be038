package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"solguess/pkg/models"
	"solguess/pkg/utils"
)

func (m model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}
	if m.showGraph {
		return m.viewPriceGraph()
	}

	title := titleStyle.Render("SolidityGuesser")
	network := subtleStyle.Render(m.opts.NetworkName)
	if m.loading {
		network = fmt.Sprintf("%s %s", m.spinner.View(), subtleStyle.Render("Loading..."))
	}

	s := m.state
	lines := []string{
		fmt.Sprintf("%-14s %s", "Guess fee:", withDollars(s.Prices.GuessFee, s.Prices.GuessFeeUSD)),
		fmt.Sprintf("%-14s %s", "Prize:", infoStyle.Render(withDollars(s.Prices.Prize, s.Prices.PrizeUSD))),
		fmt.Sprintf("%-14s %s", "Guesses:", valueOr(s.GuessCount, "...")),
		fmt.Sprintf("%-14s %s", "ETH price:", ethPrice(s.Prices.EthUSDPrice)),
		fmt.Sprintf("%-14s %s", "Account:", accountLabel(s.Session)),
	}

	sections := []string{
		lipgloss.JoinHorizontal(lipgloss.Center, title, " ", network),
		"",
		strings.Join(lines, "\n"),
		"",
		m.viewGuessPanel(),
	}
	if hist := m.viewHistory(); hist != "" {
		sections = append(sections, "", hist)
	}

	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))

	var footerLines []string
	if m.syncErr != "" {
		footerLines = append(footerLines, errStyle.Render("Sync failed: "+utils.TruncateString(m.syncErr, 70)))
	}
	if m.statusMessage != "" {
		footerLines = append(footerLines, infoStyle.Render(m.statusMessage))
	}
	keys := fmt.Sprintf("g: guess • l: %s • r: refresh • c: copy • p: price graph • ?: help • q: quit", s.ToggleLabel)
	footerLines = append(footerLines, subtleStyle.Render(keys))
	if !m.lastUpdate.IsZero() {
		footerLines = append(footerLines, subtleStyle.Render("Last update: "+m.lastUpdate.Format("15:04:05")))
	}

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", strings.Join(footerLines, "\n")),
	)
}

func (m model) viewGuessPanel() string {
	var rows []string
	if m.guessing {
		rows = append(rows, "Your guess: "+m.guessInput.View(), subtleStyle.Render("enter: submit • esc: cancel"))
	}

	status := m.state.Status
	switch {
	case m.submitting || status.Kind == models.StatusPending:
		rows = append(rows, fmt.Sprintf("%s %s", m.spinner.View(), status.Message))
	case status.Message != "":
		style := infoStyle
		if status.Kind == models.StatusFailed || status.Kind == models.StatusInvalid {
			style = errStyle
		}
		rows = append(rows, style.Render(fmt.Sprintf("%s %s", statusIcon(status.Kind), status.Message)))
	}
	if len(rows) == 0 {
		return subtleStyle.Render("Press g to guess a 4 digit number.")
	}
	return strings.Join(rows, "\n")
}

func (m model) viewHistory() string {
	h := m.state.History
	if m.fetchingLog {
		return fmt.Sprintf("%s %s", m.spinner.View(), subtleStyle.Render("Fetching your guesses..."))
	}
	if h.Err != "" {
		return errStyle.Render(h.Err)
	}
	if !h.Visible {
		return ""
	}
	if len(h.Entries) == 0 {
		return subtleStyle.Render("You have not guessed yet.")
	}

	header := tableHeaderStyle.Render(fmt.Sprintf("%-19s  %-6s  %s", "Date", "Guess", "Result"))
	var rows []string
	for _, r := range historyRows(h.Entries) {
		rows = append(rows, fmt.Sprintf(" %-19s  %-6s  %s", r[0], r[1], r[2]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, strings.Join(rows, "\n"))
}

func (m model) viewHelp() string {
	shortcuts := []string{
		"g/enter: Guess a number",
		"l: View/Hide last guesses",
		"r: Refresh Data",
		"c: Copy Account",
		"o: Open Account in Explorer",
		"p: ETH Price Graph",
		"q/esc: Quit",
		"?: Toggle Help",
	}

	header := titleStyle.Render("Help")
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(shortcuts, "\n")))
	footer := subtleStyle.Render(fmt.Sprintf("solguess %s • Press '?' or 'esc' to close", Version))

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}

func (m model) viewPriceGraph() string {
	header := titleStyle.Render("ETH/USD")

	targetBoxWidth := m.width - 4
	if targetBoxWidth < 0 {
		targetBoxWidth = 0
	}

	var graph, stats string
	values := priceValues(m.priceHistory)
	if len(values) > 1 {
		low, high := values[0], values[0]
		for _, v := range values {
			if v < low {
				low = v
			}
			if v > high {
				high = v
			}
		}
		stats = subtleStyle.Render(fmt.Sprintf("Low: %.2f • Last: %.2f • High: %.2f", low, values[len(values)-1], high))

		graphWidth := targetBoxWidth - 14
		if graphWidth < 10 {
			graphWidth = 10
		}
		graphHeight := m.height - 14
		if graphHeight < 1 {
			graphHeight = 1
		}
		graph = asciigraph.Plot(values,
			asciigraph.Height(graphHeight),
			asciigraph.Width(graphWidth),
			asciigraph.Caption("ETH price since start (USD)"),
		)
	} else {
		graph = "Not enough data to draw graph."
	}

	content := boxStyle.Width(targetBoxWidth).Align(lipgloss.Center).Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", stats, "\n", graph))
	footer := subtleStyle.Render("p/q/esc: back")

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func ethPrice(p string) string {
	if p == "" {
		return "..."
	}
	return "$" + utils.FormatFloat(utils.RatToFloat64(p), 2)
}
