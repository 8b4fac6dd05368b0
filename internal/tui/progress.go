// Package tui renders pipeline progress with bubbletea. The pipeline runs
// inside a tea.Cmd and its stage events arrive through a channel-backed
// Listener; the program quits on its own once the run returns.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/cbuildbot/internal/pipeline"
)

const (
	logRefreshInterval = 500 * time.Millisecond
	logTailLines       = 8
	eventBuffer        = 16
)

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	labelStyleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	labelStyleFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	labelStyleRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	labelStyleSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	labelStylePending = lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC"))
	detailTextStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	logBoxStyle       = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#444444")).
				Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

type stageState int

const (
	statePending stageState = iota
	stateRunning
	stateSkipped
	stateOK
	stateFailed
)

func (s stageState) String() string {
	switch s {
	case stateRunning:
		return "running"
	case stateSkipped:
		return "skipped"
	case stateOK:
		return "ok"
	case stateFailed:
		return "failed"
	default:
		return "pending"
	}
}

type stageRow struct {
	stage   pipeline.Stage
	state   stageState
	started time.Time
	elapsed time.Duration
	detail  string
}

// RunFunc executes the pipeline, reporting to listener.
type RunFunc func(ctx context.Context, listener pipeline.Listener) error

// Tailer supplies the most recent journal lines.
type Tailer interface {
	Tail(maxLines int) ([]string, int)
}

type runFinishedMsg struct{ err error }

type logTickMsg struct{}

// Model is the bubbletea model for a single run.
type Model struct {
	title   string
	rows    []stageRow
	index   map[pipeline.Stage]int
	spinner spinner.Model
	journal Tailer
	clock   func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	events   chan tea.Msg
	listener Listener
	run      RunFunc

	// runMu guards started and abandoned; results receives the run's error
	// once started.
	runMu     sync.Mutex
	started   bool
	abandoned bool
	results   chan error

	logLines   []string
	logTotal   int
	retries    int
	cancelling bool
	done       bool
	err        error
	width      int
}

// NewModel builds a model that will execute run when started.
func NewModel(ctx context.Context, title string, journal Tailer, run RunFunc) *Model {
	ctx, cancel := context.WithCancel(ctx)
	events := make(chan tea.Msg, eventBuffer)
	rows := make([]stageRow, len(pipeline.Stages))
	index := make(map[pipeline.Stage]int, len(pipeline.Stages))
	for i, stage := range pipeline.Stages {
		rows[i] = stageRow{stage: stage}
		index[stage] = i
	}
	return &Model{
		title:    title,
		rows:     rows,
		index:    index,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(labelStyleRunning)),
		journal:  journal,
		clock:    time.Now,
		ctx:      ctx,
		cancel:   cancel,
		events:   events,
		listener: newListener(ctx, events),
		run:      run,
		results:  make(chan error, 1),
	}
}

// Err returns the pipeline's error once the run has finished.
func (m *Model) Err() error {
	return m.err
}

// Done reports whether the pipeline has returned.
func (m *Model) Done() bool {
	return m.done
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startRun(), m.waitForEvent(), m.scheduleLogRefresh())
}

func (m *Model) startRun() tea.Cmd {
	return func() tea.Msg {
		if m.run == nil {
			return runFinishedMsg{err: errors.New("tui: nothing to run")}
		}
		m.runMu.Lock()
		if m.abandoned {
			m.runMu.Unlock()
			return nil
		}
		m.started = true
		m.runMu.Unlock()
		err := m.run(m.ctx, m.listener)
		m.results <- err
		return runFinishedMsg{err: err}
	}
}

// awaitRun cancels the run and blocks until it returns. started is false
// when the run never began; it is then prevented from starting.
func (m *Model) awaitRun() (started bool, err error) {
	m.cancel()
	m.runMu.Lock()
	if !m.started {
		m.abandoned = true
		m.runMu.Unlock()
		return false, nil
	}
	m.runMu.Unlock()
	return true, <-m.results
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.events
	ctx := m.ctx
	return func() tea.Msg {
		select {
		case msg := <-events:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Model) scheduleLogRefresh() tea.Cmd {
	return tea.Tick(logRefreshInterval, func(time.Time) tea.Msg {
		return logTickMsg{}
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// Keys are ignored while cancelling; only the run's result quits.
			if m.done {
				return m, tea.Quit
			}
			if !m.cancelling {
				m.cancelling = true
				m.cancel()
			}
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case logTickMsg:
		m.refreshLog()
		if m.done {
			return m, nil
		}
		return m, m.scheduleLogRefresh()

	case runFinishedMsg:
		m.drainEvents()
		m.done = true
		m.err = msg.err
		m.refreshLog()
		m.cancel()
		return m, tea.Quit

	case stageStartedMsg, stageSkippedMsg, stageFinishedMsg, syncFailedMsg:
		m.apply(msg)
		return m, m.waitForEvent()
	}
	return m, nil
}

func (m *Model) drainEvents() {
	for {
		select {
		case msg := <-m.events:
			m.apply(msg)
		default:
			return
		}
	}
}

func (m *Model) apply(msg tea.Msg) {
	switch msg := msg.(type) {
	case stageStartedMsg:
		if row := m.row(msg.stage); row != nil {
			row.state = stateRunning
			row.started = m.clock()
		}
	case stageSkippedMsg:
		if row := m.row(msg.stage); row != nil {
			row.state = stateSkipped
			row.detail = msg.reason
		}
	case stageFinishedMsg:
		if row := m.row(msg.stage); row != nil {
			row.elapsed = msg.elapsed
			row.state = stateOK
			if msg.err != nil {
				row.state = stateFailed
				row.detail = firstLine(msg.err.Error())
			}
		}
	case syncFailedMsg:
		m.retries++
		if row := m.row(pipeline.StageCheckout); row != nil {
			row.detail = fmt.Sprintf("sync attempt %d failed, %d left", msg.attempt, msg.remaining)
		}
	}
}

func (m *Model) row(stage pipeline.Stage) *stageRow {
	i, ok := m.index[stage]
	if !ok {
		return nil
	}
	return &m.rows[i]
}

func (m *Model) refreshLog() {
	if m.journal == nil {
		return
	}
	m.logLines, m.logTotal = m.journal.Tail(logTailLines)
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")
	for _, row := range m.rows {
		b.WriteString(m.renderRow(row))
		b.WriteString("\n")
	}
	if m.retries > 0 {
		b.WriteString(detailTextStyle.Render(fmt.Sprintf("sync retries: %d", m.retries)))
		b.WriteString("\n")
	}
	if len(m.logLines) > 0 {
		width := m.width - 4
		if width < 20 {
			width = 76
		}
		header := detailTextStyle.Render(fmt.Sprintf("journal (%d of %d)", len(m.logLines), m.logTotal))
		b.WriteString("\n")
		b.WriteString(logBoxStyle.Width(width).Render(header + "\n" + strings.Join(m.logLines, "\n")))
		b.WriteString("\n")
	}
	b.WriteString(footerStyle.Render(m.footer()))
	return b.String()
}

func (m *Model) renderRow(row stageRow) string {
	var marker, label string
	switch row.state {
	case stateRunning:
		marker = m.spinner.View()
		label = labelStyleRunning.Render(row.state.String())
	case stateOK:
		marker = labelStyleOK.Render("✓")
		label = labelStyleOK.Render(row.state.String())
	case stateFailed:
		marker = labelStyleFailed.Render("✗")
		label = labelStyleFailed.Render(row.state.String())
	case stateSkipped:
		marker = labelStyleSkipped.Render("-")
		label = labelStyleSkipped.Render(row.state.String())
	default:
		marker = labelStylePending.Render("·")
		label = labelStylePending.Render(row.state.String())
	}
	line := fmt.Sprintf("%s %-14s %s", marker, row.stage, label)
	switch {
	case row.state == stateRunning && !row.started.IsZero():
		line += " " + detailTextStyle.Render(m.clock().Sub(row.started).Round(time.Second).String())
	case row.elapsed > 0:
		line += " " + detailTextStyle.Render(row.elapsed.Round(time.Millisecond).String())
	}
	if row.detail != "" {
		line += "  " + detailTextStyle.Render(row.detail)
	}
	return line
}

func (m *Model) footer() string {
	switch {
	case m.done && m.err != nil:
		return "Run failed: " + firstLine(m.err.Error())
	case m.done:
		return "Run complete"
	case m.cancelling:
		return "Cancelling... waiting for the current stage to stop"
	default:
		return "q: cancel run"
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Options configures Run.
type Options struct {
	Title   string
	Journal Tailer
	Input   io.Reader
	Output  io.Writer
}

// Run drives run under a progress view and returns the pipeline's error.
func Run(ctx context.Context, opts Options, run RunFunc) error {
	model := NewModel(ctx, opts.Title, opts.Journal, run)
	var programOpts []tea.ProgramOption
	if opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Output))
	}
	_, progErr := tea.NewProgram(model, programOpts...).Run()
	if model.Done() {
		return model.Err()
	}
	// The program ended before the run reported back, e.g. on SIGINT. Wait
	// for the pipeline so its cleanup finishes before the caller closes
	// the logs and history.
	if started, runErr := model.awaitRun(); started {
		return runErr
	}
	if progErr != nil {
		return fmt.Errorf("tui: %w", progErr)
	}
	return context.Canceled
}
