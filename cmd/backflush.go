// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/crema/pkg/session"
)

var (
	backflushInterval float64
	backflushPause    float64
)

var backflushCmd = &cobra.Command{
	Use:   "backflush CYCLES",
	Short: "Run a backflush cleaning sequence",
	Long: `Run CYCLES timed brews of --interval seconds, pausing --pause seconds
between consecutive cycles. Defaults come from the backflush section of the
config file (12s brew, 6s pause).

Ctrl+C stops the pump and abandons the remaining cycles.`,
	Args: cobra.ExactArgs(1),
	RunE: runBackflush,
}

func init() {
	rootCmd.AddCommand(backflushCmd)
	backflushCmd.Flags().Float64Var(&backflushInterval, "interval", 0, "Brew time per cycle in seconds (default from config)")
	backflushCmd.Flags().Float64Var(&backflushPause, "pause", 0, "Pause between cycles in seconds (default from config)")
}

func runBackflush(cmd *cobra.Command, args []string) error {
	cycles, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid cycle count %q: %w", args[0], err)
	}

	interval := cfg.Backflush.Interval
	if cmd.Flags().Changed("interval") {
		interval = backflushInterval
	}
	pause := cfg.Backflush.Pause
	if cmd.Flags().Changed("pause") {
		pause = backflushPause
	}

	l, err := openLink()
	if err != nil {
		return err
	}
	defer l.Close()

	title := fmt.Sprintf("Backflush %d x %.0fs", cycles, interval)
	return runOperation(cmd.OutOrStdout(), title, l.info, true,
		func(ctx context.Context, report session.ProgressFunc) error {
			return l.session.Backflush(ctx, cycles, interval, pause, report)
		})
}
