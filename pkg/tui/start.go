package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the terminal UI until the user quits.
func Start(c Client, opts Options) error {
	if opts.Version != "" {
		Version = opts.Version
	}
	m := initialModel(c, opts)
	defer c.Unsubscribe(m.sub)

	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
