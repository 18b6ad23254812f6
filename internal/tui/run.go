package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Run shows m until the user quits or ctx is done, delivering sink's
// notifications into the program. Cancellation is not an error.
func Run(ctx context.Context, m Model, sink *Sink, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(m, opts...)
	if sink != nil {
		sink.Attach(p.Send)
	}

	_, err := p.Run()
	if err != nil && errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
