package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/lanes/internal/pool"
)

// App wraps the Bubbletea program
type App struct {
	program    *tea.Program
	model      *Model
	dispatcher *ProgramDispatcher
}

// New creates the watch application. The registry must have been created
// with pool.WithDispatcher(d).
func New(r *pool.Registry, d *ProgramDispatcher, opts Options) *App {
	return &App{
		model:      NewModel(r, d, opts),
		dispatcher: d,
	}
}

// Run starts the program and blocks until the user quits or ctx is done.
// The dispatcher is closed on return; shutting down the registry is left to
// the caller.
func (a *App) Run(ctx context.Context, opts ...tea.ProgramOption) error {
	a.program = tea.NewProgram(a.model, append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
	a.dispatcher.Bind(a.program)
	defer a.dispatcher.Close()

	stop := context.AfterFunc(ctx, a.program.Quit)
	defer stop()

	_, err := a.program.Run()
	return err
}
