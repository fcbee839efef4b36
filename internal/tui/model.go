package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Iron-Ham/lanes/internal/errors"
	"github.com/Iron-Ham/lanes/internal/pool"
	"github.com/Iron-Ham/lanes/internal/task"
)

// DefaultRefresh is the redraw interval used when none is configured.
const DefaultRefresh = 100 * time.Millisecond

const (
	maxRate     = 200
	recentLimit = 5
)

type tickMsg time.Time

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Options configures the watch model.
type Options struct {
	// Refresh is the redraw and submission interval.
	Refresh time.Duration
	// Rate is the number of synthetic tasks submitted per tick. Zero starts
	// the view paused.
	Rate int
	// Seed makes the synthetic load reproducible.
	Seed uint64
}

// Model is the bubbletea model for the watch view.
type Model struct {
	registry   *pool.Registry
	dispatcher *ProgramDispatcher
	generator  *generator
	spinner    spinner.Model

	refresh time.Duration
	rate    int
	paused  bool
	width   int

	stats     pool.Stats
	succeeded int
	failed    map[errors.Kind]int
	recent    []string

	quitting bool
}

// NewModel creates the watch model. The registry must use dispatcher as its
// coordinator.
func NewModel(r *pool.Registry, d *ProgramDispatcher, opts Options) *Model {
	if opts.Refresh <= 0 {
		opts.Refresh = DefaultRefresh
	}
	return &Model{
		registry:   r,
		dispatcher: d,
		generator:  newGenerator(r, opts.Seed),
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(titleStyle)),
		refresh:    opts.Refresh,
		rate:       min(max(opts.Rate, 0), maxRate),
		paused:     opts.Rate == 0,
		stats:      r.Stats(),
		failed:     make(map[errors.Kind]int),
	}
}

// Init starts the refresh ticker and the spinner.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(tick(m.refresh), m.spinner.Tick)
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case actionMsg:
		m.dispatcher.execute(msg)
		return m, nil

	case tickMsg:
		if !m.paused && !m.registry.IsShutdown() {
			m.generator.submit(m.rate, m.record)
		}
		m.stats = m.registry.Stats()
		return m, tick(m.refresh)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "p", " ":
		m.paused = !m.paused
	case "+", "=":
		m.rate = min(m.rate+1, maxRate)
		m.paused = false
	case "-", "_":
		m.rate = max(m.rate-1, 0)
	}
	return m, nil
}

// record runs on the coordinator, which is this model's Update goroutine.
func (m *Model) record(env task.Envelope[time.Duration]) {
	var line string
	if env.Success {
		m.succeeded++
		line = okStyle.Render("✓") + fmt.Sprintf(" %s %s in %s", shortID(env.TaskID), env.Lane, env.Elapsed.Round(time.Millisecond))
	} else {
		m.failed[env.Kind()]++
		line = errStyle.Render("✗") + fmt.Sprintf(" %s %s %s: %v", shortID(env.TaskID), env.Lane, env.Kind(), env.Err)
	}

	m.recent = append(m.recent, line)
	if len(m.recent) > recentLimit {
		m.recent = m.recent[len(m.recent)-recentLimit:]
	}
}

// View renders the model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	state := "running"
	if m.paused {
		state = "paused"
	}
	b.WriteString(m.spinner.View())
	b.WriteString(titleStyle.Render(" lanes watch"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %s · %d tasks/tick · every %s", state, m.rate, m.refresh)))
	b.WriteString("\n\n")

	b.WriteString(RenderStats(m.stats, m.width))
	b.WriteString("\n\n")

	b.WriteString(okStyle.Render(fmt.Sprintf("succeeded %d", m.succeeded)))
	for _, k := range []errors.Kind{errors.KindExecution, errors.KindTimeoutExceeded, errors.KindRejected, errors.KindDispatch} {
		if n := m.failed[k]; n > 0 {
			b.WriteString(errStyle.Render(fmt.Sprintf("  %s %d", k, n)))
		}
	}
	b.WriteString("\n")

	for _, line := range m.recent {
		b.WriteString(truncateLines(line, m.width))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("p pause · +/- rate · q quit"))
	return b.String()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[len(id)-8:]
}
