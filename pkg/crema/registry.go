// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crema

import (
	"fmt"
	"sort"
)

// Descriptor describes the request and response layout of one command
type Descriptor struct {
	ID       CommandID
	Name     string
	Output   []Kind
	Response FieldSpec
}

// NewDescriptor builds a descriptor and checks that both layouts fit a frame.
// The output layout must be exactly 7 bytes; the response may be shorter.
func NewDescriptor(id CommandID, name string, output []Kind, response FieldSpec) (*Descriptor, error) {
	if w := layoutWidth(output); w != PayloadSize {
		return nil, &ConfigError{Command: id, Message: fmt.Sprintf("output layout is %d bytes (want %d)", w, PayloadSize)}
	}
	if err := response.Validate(); err != nil {
		if ce, ok := err.(*ConfigError); ok {
			ce.Command = id
		}
		return nil, err
	}
	return &Descriptor{ID: id, Name: name, Output: output, Response: response}, nil
}

func mustDescriptor(id CommandID, name string, output []Kind, response FieldSpec) *Descriptor {
	d, err := NewDescriptor(id, name, output, response)
	if err != nil {
		panic(fmt.Sprintf("crema: %v", err))
	}
	return d
}

// sevenBytes is the output layout of commands that carry no arguments
var sevenBytes = []Kind{KindByte, KindByte, KindByte, KindByte, KindByte, KindByte, KindByte}

var emptyResponse = FieldSpec{{KindByte, FieldEmpty}}

// registry is the closed set of commands. Built once at package init;
// a layout that does not fit panics here rather than on dispatch.
var registry = map[CommandID]*Descriptor{}

func init() {
	for _, d := range []*Descriptor{
		mustDescriptor(CmdStatus1, "STATUS1", sevenBytes, FieldSpec{
			{KindHalf, FieldHeaterOnCycle},
			{KindHalf, FieldHeaterOffCycle},
			{KindHalf, FieldDT},
			{KindBool, FieldHeaterOn},
		}),
		mustDescriptor(CmdStatus2, "STATUS2", sevenBytes, FieldSpec{
			{KindLong, FieldPumpOnCycle},
			{KindFixed, FieldTemp},
			{KindBool, FieldPumpOn},
		}),
		mustDescriptor(CmdStatus3, "STATUS3", sevenBytes, FieldSpec{
			{KindFixed, FieldPower},
		}),
		mustDescriptor(CmdSetpoint, "SETPOINT",
			[]Kind{KindFixed, KindByte, KindByte, KindByte, KindByte, KindByte},
			FieldSpec{
				{KindFixed, FieldSetpoint},
				{KindFixed, FieldPrevious},
			}),
		mustDescriptor(CmdStartPump, "START_PUMP",
			[]Kind{KindHalf, KindByte, KindByte, KindByte, KindByte, KindByte},
			emptyResponse),
		mustDescriptor(CmdStopPump, "STOP_PUMP", sevenBytes, emptyResponse),
	} {
		registry[d.ID] = d
	}
}

// Lookup returns the descriptor for a command id
func Lookup(id CommandID) (*Descriptor, bool) {
	d, ok := registry[id]
	return d, ok
}

// Commands returns all registered command ids in ascending order
func Commands() []CommandID {
	ids := make([]CommandID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CommandName returns the human-readable name for a command id
func CommandName(id CommandID) string {
	if d, ok := registry[id]; ok {
		return d.Name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", uint8(id))
}
