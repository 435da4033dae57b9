// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Thermoquad/crema/pkg/session"
)

var statusWatch time.Duration

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Read the controller status",
	Long: `Read STATUS1, STATUS2 and STATUS3 and print the merged controller status.

With --watch the status is polled on the given interval and shown in a live
view together with dispatch statistics and any implausible readings.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().DurationVarP(&statusWatch, "watch", "w", 0, "Poll interval for a live view (e.g. 500ms); 0 reads once")
}

func runStatus(cmd *cobra.Command, args []string) error {
	l, err := openLink()
	if err != nil {
		return err
	}
	defer l.Close()

	out := cmd.OutOrStdout()
	if statusWatch <= 0 {
		st, err := l.session.GetStatus()
		if err != nil {
			return err
		}
		fmt.Fprint(out, formatStatus(st))
		for _, a := range session.ValidateStatus(st, nil) {
			fmt.Fprintf(out, "WARNING: %s\n", a.Message)
		}
		return nil
	}

	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		m := newStatusModel(l, statusWatch)
		p := tea.NewProgram(m, tea.WithAltScreen())
		_, err := p.Run()
		// A read started before quit may still be on the link
		m.wait()
		return err
	}
	return watchPlain(out, l.session, statusWatch)
}

// formatStatus renders a status as aligned lines
func formatStatus(st session.Status) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Temperature:  %.2f°C\n", st.Temp)
	fmt.Fprintf(&b, "Power:        %.3f\n", st.Power)
	fmt.Fprintf(&b, "Pump:         %s (%d ms remaining)\n", onOff(st.PumpOn), st.PumpOnCycle)
	fmt.Fprintf(&b, "Heater:       %s (on %d ms, off %d ms, period %d ms)\n",
		onOff(st.HeaterOn), st.HeaterOnCycle, st.HeaterOffCycle, st.DT)
	return b.String()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func watchPlain(out io.Writer, s *session.Session, interval time.Duration) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var prev *session.Status
	for {
		st, err := s.GetStatus()
		if err != nil {
			fmt.Fprintf(out, "[%s] ERROR: %v\n", time.Now().Format("15:04:05.000"), err)
		} else {
			fmt.Fprintf(out, "[%s] temp=%.2f power=%.3f pump=%s/%dms heater=%s\n",
				st.ReadAt.Format("15:04:05.000"), st.Temp, st.Power,
				onOff(st.PumpOn), st.PumpOnCycle, onOff(st.HeaterOn))
			for _, a := range session.ValidateStatus(st, prev) {
				fmt.Fprintf(out, "  WARNING: %s\n", a.Message)
			}
			prev = &st
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
