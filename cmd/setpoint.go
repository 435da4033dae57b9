// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var setpointCmd = &cobra.Command{
	Use:   "setpoint VALUE",
	Short: "Change the boiler temperature setpoint",
	Long: `Send a SETPOINT command and print the previous and new setpoint as
reported by the controller. VALUE is in °C and must lie in [0, 256).`,
	Args: cobra.ExactArgs(1),
	RunE: runSetpoint,
}

func init() {
	rootCmd.AddCommand(setpointCmd)
}

func runSetpoint(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid setpoint %q: %w", args[0], err)
	}

	l, err := openLink()
	if err != nil {
		return err
	}
	defer l.Close()

	change, err := l.session.SetSetpoint(value)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Setpoint changed %.2f -> %.2f\n", change.Previous, change.Current)
	return nil
}
