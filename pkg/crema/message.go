// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crema

import "fmt"

// Message is a ready-to-send request together with the layout of its reply.
// Building a message never touches the transport.
type Message struct {
	ID       CommandID
	Payload  [PayloadSize]byte
	Response FieldSpec
}

// NewMessage encodes args against the registered output layout of id
func NewMessage(id CommandID, args ...Arg) (Message, error) {
	d, ok := Lookup(id)
	if !ok {
		return Message{}, fmt.Errorf("%w: 0x%02X", ErrUnknownCmd, uint8(id))
	}
	if len(args) != len(d.Output) {
		return Message{}, &ConfigError{Command: id, Message: fmt.Sprintf("got %d arguments, layout has %d", len(args), len(d.Output))}
	}
	for i, a := range args {
		if a.Kind != d.Output[i] {
			return Message{}, &ConfigError{Command: id, Message: fmt.Sprintf("argument %d is %v, layout wants %v", i, a.Kind, d.Output[i])}
		}
	}

	payload, err := EncodePayload(args...)
	if err != nil {
		return Message{}, err
	}
	return Message{ID: id, Payload: payload, Response: d.Response}, nil
}

// Frame returns the 8-byte wire form of the message
func (m Message) Frame() [FrameSize]byte {
	var frame [FrameSize]byte
	frame[0] = byte(m.ID)
	copy(frame[1:], m.Payload[:])
	return frame
}

// Message builder functions for each command.
// The argument-free builders cannot fail because the registry is validated
// at init; they panic if that invariant is ever broken.

func mustMessage(id CommandID, args ...Arg) Message {
	m, err := NewMessage(id, args...)
	if err != nil {
		panic(fmt.Sprintf("crema: %v", err))
	}
	return m
}

// NewStatus1 requests heater cycle timers, loop period and heater state
func NewStatus1() Message {
	return mustMessage(CmdStatus1, Zeros(PayloadSize)...)
}

// NewStatus2 requests the pump countdown, temperature and pump state
func NewStatus2() Message {
	return mustMessage(CmdStatus2, Zeros(PayloadSize)...)
}

// NewStatus3 requests the heater duty ratio
func NewStatus3() Message {
	return mustMessage(CmdStatus3, Zeros(PayloadSize)...)
}

// NewSetpoint changes the target temperature.
// Fails if setpoint cannot be represented in fixed point.
func NewSetpoint(setpoint float64) (Message, error) {
	return NewMessage(CmdSetpoint, append([]Arg{Fixed(setpoint)}, Zeros(5)...)...)
}

// NewStartPump starts (or refreshes) the device pump countdown
func NewStartPump(durationMs uint16) Message {
	return mustMessage(CmdStartPump, append([]Arg{Half(durationMs)}, Zeros(5)...)...)
}

// NewStopPump clears the device pump countdown using the given encoding
func NewStopPump(enc StopEncoding) Message {
	if enc == StopLegacy {
		return NewStartPump(0)
	}
	return mustMessage(CmdStopPump, Zeros(PayloadSize)...)
}
