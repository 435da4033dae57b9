// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Crema - Espresso Machine Controller Client
//
// A CLI tool for reading status from and driving the pump of an espresso
// machine controller over its 8-byte serial protocol.

package main

import (
	"os"

	"github.com/Thermoquad/crema/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
