// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the pump",
	Long: `Send a pump stop unconditionally. Useful when a previous client died
while the pump was armed.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	l, err := openLink()
	if err != nil {
		return err
	}
	defer l.Close()

	if err := l.session.StopPump(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Pump stopped")
	return nil
}
