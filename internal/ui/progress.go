package ui

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/datenknoten/restic-orchestrator/internal/lifecycle"
	"github.com/datenknoten/restic-orchestrator/internal/remote"
)

// SpinnerFrames is the step spinner animation.
var SpinnerFrames = spinner.Spinner{
	Frames: []string{"◐", "◓", "◑", "◒"},
	FPS:    time.Second / 10,
}

type stepDoneMsg struct {
	result  remote.Result
	err     error
	elapsed time.Duration
}

// stepModel shows a spinner while one remote command runs and a status
// line once it's done.
type stepModel struct {
	spinner spinner.Model
	label   string
	done    *stepDoneMsg
}

func newStepModel(label string) stepModel {
	sp := spinner.New()
	sp.Spinner = SpinnerFrames
	sp.Style = fg(ColorSecondary)
	return stepModel{spinner: sp, label: label}
}

func (m stepModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m stepModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stepDoneMsg:
		m.done = &msg
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m stepModel) View() string {
	if m.done == nil {
		return m.spinner.View() + " " + m.label + "..."
	}

	timing := fg(ColorMuted).Render(FormatDuration(m.done.elapsed))
	switch {
	case m.done.err != nil:
		return statusLine(SymbolFail, ColorError, m.label) + " " + fg(ColorError).Render("error") + "\n"
	case m.done.result.Failed():
		return statusLine(SymbolFail, ColorError, m.label) + " " +
			fg(ColorError).Render("exit "+strconv.Itoa(m.done.result.ReturnCode)) + " " + timing + "\n"
	default:
		return statusLine(SymbolSuccess, ColorSuccess, m.label) + " " + timing + "\n"
	}
}

func statusLine(symbol string, color lipgloss.Color, label string) string {
	return fg(color).Render(symbol) + " " + label
}

// Progress wraps an Executor and animates a spinner on out while each
// command runs. Use it only when out is a terminal.
type Progress struct {
	inner lifecycle.Executor
	out   io.Writer
}

// NewProgress returns a Progress around inner.
func NewProgress(inner lifecycle.Executor, out io.Writer) *Progress {
	return &Progress{inner: inner, out: out}
}

// Run implements lifecycle.Executor.
func (p *Progress) Run(ctx context.Context, host, cmd, user string) (remote.Result, error) {
	label := host
	if info, ok := lifecycle.StepFromContext(ctx); ok {
		label = info.Host + " " + info.Name
	}

	prog := tea.NewProgram(newStepModel(label),
		tea.WithOutput(p.out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	var (
		res remote.Result
		err error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		start := time.Now()
		res, err = p.inner.Run(ctx, host, cmd, user)
		prog.Send(stepDoneMsg{result: res, err: err, elapsed: time.Since(start)})
	}()

	// A broken display doesn't stop the command.
	_, _ = prog.Run()
	<-done
	return res, err
}
