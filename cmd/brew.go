// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/crema/internal/shotlog"
	"github.com/Thermoquad/crema/pkg/session"
)

var (
	brewPreinfuse float64
	brewChart     string
)

var brewCmd = &cobra.Command{
	Use:   "brew SECONDS",
	Short: "Pull a timed shot",
	Long: fmt.Sprintf(`Run the pump for SECONDS (%d < SECONDS < %d) and follow the controller's
own pump countdown until it reaches zero.

With --preinfuse the puck is wetted first: the pump runs for the given time,
then waits for the controller to stop and lets the puck settle.

With --chart a PNG of boiler temperature and pump countdown over the shot is
written once the brew completes.

Ctrl+C stops the pump immediately.`, session.MinBrewSeconds, session.MaxBrewSeconds),
	Args: cobra.ExactArgs(1),
	RunE: runBrew,
}

func init() {
	rootCmd.AddCommand(brewCmd)
	brewCmd.Flags().Float64Var(&brewPreinfuse, "preinfuse", 0, "Preinfusion time in seconds before the shot (0 disables)")
	brewCmd.Flags().StringVar(&brewChart, "chart", "", "Write a PNG shot chart to this file")
}

func runBrew(cmd *cobra.Command, args []string) error {
	seconds, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid brew time %q: %w", args[0], err)
	}

	l, err := openLink()
	if err != nil {
		return err
	}
	defer l.Close()

	shot := shotlog.New(fmt.Sprintf("Shot %.1fs", seconds))
	var result *session.BrewResult

	err = runOperation(cmd.OutOrStdout(), "Brew", l.info, true,
		func(ctx context.Context, report session.ProgressFunc) error {
			if brewPreinfuse > 0 {
				if err := l.session.Preinfuse(ctx, brewPreinfuse, report); err != nil {
					return fmt.Errorf("preinfuse: %w", err)
				}
			}
			var err error
			result, err = l.session.Brew(ctx, seconds, func(p session.Progress) {
				shot.Observe(p)
				report(p)
			})
			return err
		})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Brewed %.1fs (target %.1fs, %d polls), %.1f°C -> %.1f°C\n",
		result.Elapsed.Seconds(), result.Target.Seconds(), result.Polls,
		result.StartTemp, result.Final.Temp)

	if brewChart != "" {
		if err := shot.WriteFile(brewChart); err != nil {
			return err
		}
		fmt.Fprintf(out, "Shot chart written to %s\n", brewChart)
	}
	return nil
}
