// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/crema/internal/discovery"
)

var discoverTimeout int

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find serial bridges on the local network",
	Long: fmt.Sprintf(`Browse mDNS for %s services and list the serial-to-WebSocket
bridges that answer, with the URL to pass to --url.

Exit codes:
  0 - At least one bridge found
  1 - No bridges found or browse failed`, discovery.ServiceType),
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().IntVar(&discoverTimeout, "timeout", 5, "Timeout in seconds for discovery")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Crema - Bridge Discovery\n")
	fmt.Fprintf(out, "Browsing %s for %d seconds...\n\n", discovery.ServiceType, discoverTimeout)

	scanner := discovery.NewScanner()
	scanner.Timeout = time.Duration(discoverTimeout) * time.Second

	bridges, err := scanner.Scan(context.Background())
	if err != nil {
		return err
	}
	if len(bridges) == 0 {
		return fmt.Errorf("no bridges found")
	}

	for _, b := range bridges {
		fmt.Fprintf(out, "%s\n", b)
		fmt.Fprintf(out, "  URL: %s\n", b.URL())
		for k, v := range b.Metadata {
			if k == "path" || k == "tls" {
				continue
			}
			fmt.Fprintf(out, "  %s: %s\n", k, v)
		}
	}
	fmt.Fprintf(out, "\n%d bridge(s) found\n", len(bridges))
	return nil
}
