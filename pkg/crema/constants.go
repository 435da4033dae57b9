// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package crema implements the host side of the Crema controller protocol.
//
// Crema is a fixed-frame binary protocol spoken between a host and the espresso
// heater/pump controller. Every exchange is one 8-byte request followed by one
// 8-byte reply. Byte 0 carries the command id (echoed by the device) and bytes
// 1-7 carry a command-specific payload, zero-padded, big-endian.
//
// This package provides the frame codec, the command registry and the
// synchronous Channel used to dispatch messages over a byte transport.
package crema

import "fmt"

// Frame geometry
const (
	FrameSize   = 8
	PayloadSize = FrameSize - 1
)

// CommandID identifies a protocol opcode
type CommandID uint8

// Command ids understood by the controller firmware
const (
	CmdStatus1   CommandID = 1
	CmdStatus2   CommandID = 2
	CmdStatus3   CommandID = 3
	CmdSetpoint  CommandID = 10
	CmdStartPump CommandID = 20
	CmdStopPump  CommandID = 21
)

// Response field names
const (
	FieldHeaterOnCycle  = "heater_on_cycle"
	FieldHeaterOffCycle = "heater_off_cycle"
	FieldDT             = "dt"
	FieldHeaterOn       = "heater_on"
	FieldPumpOnCycle    = "pump_on_cycle"
	FieldTemp           = "temp"
	FieldPumpOn         = "pump_on"
	FieldPower          = "power"
	FieldSetpoint       = "setpoint"
	FieldPrevious       = "previous"
	FieldEmpty          = "empty"
)

// StopEncoding selects how a stop-pump request is put on the wire.
//
// Early host tools sent StartPump (20) with a zero duration. Current
// firmware also accepts a dedicated StopPump (21). Both clear the pump
// countdown.
type StopEncoding int

const (
	// StopDistinct sends CmdStopPump with an all-zero payload
	StopDistinct StopEncoding = iota
	// StopLegacy sends CmdStartPump with a zero duration
	StopLegacy
)

// String returns the config spelling of the encoding
func (e StopEncoding) String() string {
	switch e {
	case StopDistinct:
		return "distinct"
	case StopLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// ParseStopEncoding parses the config spelling of a StopEncoding
func ParseStopEncoding(s string) (StopEncoding, error) {
	switch s {
	case "", "distinct":
		return StopDistinct, nil
	case "legacy":
		return StopLegacy, nil
	}
	return StopDistinct, &ConfigError{Message: fmt.Sprintf("unknown stop encoding %q (use distinct or legacy)", s)}
}
