// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/crema/pkg/session"
)

var pumpCmd = &cobra.Command{
	Use:   "pump",
	Short: "Run the pump manually until stopped",
	Long: `Run the pump until Ctrl+C. The controller stops the pump by itself when
its countdown expires, so the countdown is re-armed every pump_refresh
(default 1s). The pump is always stopped on exit.`,
	Args: cobra.NoArgs,
	RunE: runPump,
}

func init() {
	rootCmd.AddCommand(pumpCmd)
}

func runPump(cmd *cobra.Command, args []string) error {
	l, err := openLink()
	if err != nil {
		return err
	}
	defer l.Close()

	err = runOperation(cmd.OutOrStdout(), "Manual Pump", l.info, false,
		func(ctx context.Context, report session.ProgressFunc) error {
			return l.session.RunPump(ctx, report)
		})
	// Stopping is the only way out of manual mode
	if errors.Is(err, session.ErrCancelled) {
		return nil
	}
	return err
}
