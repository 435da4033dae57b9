// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/crema/pkg/crema"
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Display a frame capture in human-readable format",
	Long: `Decode a capture written with --capture and print every exchange with
its timestamp, command name and decoded reply fields.

No connection is opened.`,
	Args: cobra.ExactArgs(1),
	// Replay needs no config or connection
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	records, readErr := crema.ReadCapture(f)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Crema - Capture Replay\n")
	fmt.Fprintf(out, "File: %s (%d exchanges)\n\n", args[0], len(records))

	failed := 0
	for _, rec := range records {
		fmt.Fprint(out, rec.String())
		if rec.Error != "" {
			failed++
		}
	}
	fmt.Fprintf(out, "\n%d exchanges, %d failed\n", len(records), failed)

	// A truncated trailing record is reported after what could be decoded
	return readErr
}
