// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/crema/pkg/session"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for warnings
}

// statusModel is the live status view
type statusModel struct {
	link     *link
	interval time.Duration

	status    session.Status
	hasStatus bool
	prev      *session.Status

	eventLog      []eventLogEntry
	maxLogEntries int

	width    int
	height   int
	quitting bool

	reads *readGate
}

// readGate tracks status reads running on bubbletea goroutines. Once
// closed, commands that have not started yet skip the read.
type readGate struct {
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func (g *readGate) enter() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.inflight.Add(1)
	return true
}

func (g *readGate) leave() {
	g.inflight.Done()
}

// close stops new reads and waits for running ones
func (g *readGate) close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.inflight.Wait()
}

type statusTickMsg time.Time

type statusReadMsg struct {
	status session.Status
	err    error
}

func newStatusModel(l *link, interval time.Duration) statusModel {
	return statusModel{
		link:          l,
		interval:      interval,
		maxLogEntries: 100,
		width:         80,
		height:        24,
		reads:         &readGate{},
	}
}

func (m statusModel) Init() tea.Cmd {
	return m.readStatus()
}

// readStatus returns a command that reads the status on a bubbletea
// goroutine. Only one read is in flight at a time because the next tick is
// scheduled after the result arrives.
func (m statusModel) readStatus() tea.Cmd {
	return func() tea.Msg {
		if !m.reads.enter() {
			return nil
		}
		defer m.reads.leave()
		st, err := m.link.session.GetStatus()
		return statusReadMsg{status: st, err: err}
	}
}

// wait blocks until no status read is using the link
func (m statusModel) wait() {
	m.reads.close()
}

func (m statusModel) scheduleTick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

func (m *statusModel) addLogEntry(message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[1:]
	}
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.link.stats.Reset()
			m.eventLog = nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case statusTickMsg:
		if m.quitting {
			return m, nil
		}
		return m, m.readStatus()

	case statusReadMsg:
		if msg.err != nil {
			m.addLogEntry(msg.err.Error(), true)
		} else {
			for _, a := range session.ValidateStatus(msg.status, m.prev) {
				m.addLogEntry(a.Message, false)
			}
			m.status = msg.status
			m.hasStatus = true
			st := msg.status
			m.prev = &st
		}
		if m.quitting {
			return m, nil
		}
		return m, m.scheduleTick()
	}
	return m, nil
}

func (m statusModel) View() string {
	if m.quitting {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Crema - Status") + "\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s | every %s", m.link.info, m.interval)) + "\n\n")

	// Status box
	var sb strings.Builder
	if !m.hasStatus {
		sb.WriteString("Waiting for first status...")
	} else {
		st := m.status
		row := func(label, value string) {
			sb.WriteString(labelStyle.Render(fmt.Sprintf("%-13s", label)) + valueStyle.Render(value) + "\n")
		}
		row("Temperature", fmt.Sprintf("%.2f°C", st.Temp))
		row("Power", fmt.Sprintf("%.3f", st.Power))
		row("Pump", fmt.Sprintf("%s, %.1fs left", onOff(st.PumpOn), st.PumpRemaining().Seconds()))
		row("Heater", fmt.Sprintf("%s, on %d ms / off %d ms", onOff(st.HeaterOn), st.HeaterOnCycle, st.HeaterOffCycle))
		row("Period", fmt.Sprintf("%d ms", st.DT))
		row("Read at", st.ReadAt.Format("15:04:05.000"))
	}
	b.WriteString(boxStyle.Render(strings.TrimRight(sb.String(), "\n")) + "\n")

	// Statistics box
	b.WriteString(boxStyle.Render(strings.TrimRight(m.link.stats.String(), "\n")) + "\n")

	// Event log, newest last, trimmed to the window
	b.WriteString(labelStyle.Render("Events") + "\n")
	available := m.height - strings.Count(b.String(), "\n") - 2
	if available < 1 {
		available = 1
	}
	start := 0
	if len(m.eventLog) > available {
		start = len(m.eventLog) - available
	}
	if len(m.eventLog) == 0 {
		b.WriteString(headerStyle.Render("  none") + "\n")
	}
	for _, e := range m.eventLog[start:] {
		line := fmt.Sprintf("  [%s] %s", e.timestamp.Format("15:04:05"), e.message)
		if e.isError {
			b.WriteString(errorStyle.Render(line) + "\n")
		} else {
			b.WriteString(warningStyle.Render(line) + "\n")
		}
	}

	b.WriteString("\n" + headerStyle.Render("q: quit | r: reset statistics"))
	return b.String()
}
