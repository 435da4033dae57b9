// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/Thermoquad/crema/pkg/session"
)

// operation is a long-running session call. It must report through
// report and return once ctx is cancelled.
type operation func(ctx context.Context, report session.ProgressFunc) error

// plainReportInterval throttles progress lines when stdout is not a terminal
const plainReportInterval = time.Second

//////////////////////////////////////////////////////////////
// Styles
//////////////////////////////////////////////////////////////

var (
	opTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	opInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	opValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	opErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	opWarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))
)

//////////////////////////////////////////////////////////////
// Model
//////////////////////////////////////////////////////////////

type progressMsg session.Progress

type opDoneMsg struct {
	err error
}

// opModel shows a spinner, an optional progress bar and the last status
// while an operation runs in its own goroutine.
type opModel struct {
	title    string
	connInfo string
	showBar  bool
	cancel   context.CancelFunc

	spinner spinner.Model
	bar     progress.Model

	last        session.Progress
	hasProgress bool
	stopping    bool
	done        bool
	err         error
}

func newOpModel(title, connInfo string, showBar bool, cancel context.CancelFunc) opModel {
	return opModel{
		title:    title,
		connInfo: connInfo,
		showBar:  showBar,
		cancel:   cancel,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		bar:      progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

func (m opModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m opModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc", " ":
			// The operation owns the pump; wait for it to send the stop
			if !m.stopping {
				m.stopping = true
				m.cancel()
			}
		}
		return m, nil

	case progressMsg:
		m.last = session.Progress(msg)
		m.hasProgress = true
		return m, nil

	case opDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m opModel) View() string {
	var b strings.Builder

	b.WriteString(opTitleStyle.Render("Crema - "+m.title) + "\n")
	b.WriteString(opInfoStyle.Render(m.connInfo) + "\n\n")

	switch {
	case m.done && m.err == nil:
		b.WriteString(opValueStyle.Render("Done") + "\n")
	case m.done && errors.Is(m.err, session.ErrCancelled):
		b.WriteString(opWarningStyle.Render("Aborted, pump stopped") + "\n")
	case m.done:
		b.WriteString(opErrorStyle.Render("Failed: "+m.err.Error()) + "\n")
	case m.stopping:
		b.WriteString(m.spinner.View() + " Stopping pump...\n")
	default:
		line := "Starting..."
		if m.hasProgress {
			line = formatProgress(m.last)
		}
		b.WriteString(m.spinner.View() + " " + line + "\n")
	}

	if m.showBar && m.hasProgress && m.last.Target > 0 {
		b.WriteString("\n" + m.bar.ViewAs(m.last.Fraction()) + "\n")
	}
	if !m.done {
		b.WriteString("\n" + opInfoStyle.Render("Press Ctrl+C or q to stop") + "\n")
	}
	return b.String()
}

//////////////////////////////////////////////////////////////
// Runner
//////////////////////////////////////////////////////////////

// formatProgress renders one progress report as a single line
func formatProgress(p session.Progress) string {
	var b strings.Builder
	if p.Cycles > 1 {
		fmt.Fprintf(&b, "Cycle %d/%d  ", p.Cycle, p.Cycles)
	}
	fmt.Fprintf(&b, "%-9s %5.1fs", p.Phase, p.Elapsed.Seconds())
	if p.Target > 0 {
		fmt.Fprintf(&b, " / %.1fs", p.Target.Seconds())
	}
	if p.Phase == session.PhaseBrew {
		fmt.Fprintf(&b, "  %.1f°C  pump %.1fs", p.Status.Temp, p.Status.PumpRemaining().Seconds())
	}
	return b.String()
}

// runOperation runs op under a bubbletea view, or with plain progress
// lines when stdout is not a terminal. Ctrl+C cancels op in both modes.
func runOperation(out io.Writer, title, connInfo string, showBar bool, op operation) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if f, ok := out.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return runPlain(ctx, out, title, connInfo, op)
	}

	p := tea.NewProgram(newOpModel(title, connInfo, showBar, cancel))
	return superviseOperation(ctx, cancel, op, p.Send, func() error {
		_, err := p.Run()
		return err
	})
}

// superviseOperation runs op in the background while view runs in the
// foreground. It returns only after op has returned, so the caller may
// close the link once it gets control back. If view fails, op is
// cancelled first and its error is joined with the view error.
func superviseOperation(ctx context.Context, cancel context.CancelFunc, op operation, send func(tea.Msg), view func() error) error {
	done := make(chan error, 1)
	go func() {
		err := op(ctx, func(pr session.Progress) { send(progressMsg(pr)) })
		send(opDoneMsg{err: err})
		done <- err
	}()

	if err := view(); err != nil {
		cancel()
		return errors.Join(fmt.Errorf("TUI error: %w", err), <-done)
	}
	return <-done
}

func runPlain(ctx context.Context, out io.Writer, title, connInfo string, op operation) error {
	fmt.Fprintf(out, "Crema - %s\n", title)
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Press Ctrl+C to stop\n\n")

	var lastLine time.Time
	var lastPhase session.Phase = -1
	err := op(ctx, func(p session.Progress) {
		if p.Phase == lastPhase && time.Since(lastLine) < plainReportInterval {
			return
		}
		lastLine = time.Now()
		lastPhase = p.Phase
		fmt.Fprintln(out, formatProgress(p))
	})

	switch {
	case err == nil:
		fmt.Fprintln(out, "Done")
	case errors.Is(err, session.ErrCancelled):
		fmt.Fprintln(out, "Aborted, pump stopped")
	}
	return err
}
