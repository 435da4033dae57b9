// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/crema/internal/config"
	"github.com/Thermoquad/crema/internal/logging"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Session flags
	simulate    bool
	capturePath string
	configPath  string
	logLevel    string

	// cfg is the merged configuration, loaded before every command
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "crema",
	Short: "Espresso machine controller client",
	Long: `Crema - A CLI tool for driving an espresso machine controller over its
8-byte request/response serial protocol.

Reads boiler status, changes the temperature setpoint, runs the pump
manually, pulls timed shots and runs backflush cycles. Every pump operation
can be aborted with Ctrl+C, which always sends a pump stop.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 9600]
  WebSocket: --url ws://host/path [--username user]
  Simulated: --simulate

The serial port falls back to the CREMA_SERIAL_PORT environment variable.
For WebSocket authentication, the password is read from the CREMA_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.

Defaults are read from $XDG_CONFIG_HOME/crema/config.yaml when present.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Talk to a simulated controller instead of hardware")
	rootCmd.PersistentFlags().StringVar(&capturePath, "capture", "", "Append every exchanged frame pair to a CBOR capture file")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/crema/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); logs go to stderr")
}

// loadConfig layers the config file, the environment and the flags that
// were set explicitly, then starts logging.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Serial.Port = portName
	}
	if flags.Changed("baud") {
		c.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		c.Bridge.URL = wsURL
	}
	if flags.Changed("username") {
		c.Bridge.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		c.Bridge.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	cfg = c

	return logging.Initialize(cfg.LogLevel)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
