// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simdevice provides an in-memory espresso controller that speaks
// the crema frame protocol. It stands in for the serial port in tests and
// in --simulate mode.
package simdevice

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/crema/pkg/crema"
)

// ErrNoReply is returned by Read when no frame has been answered yet
var ErrNoReply = errors.New("simulated device has no pending reply")

// UnknownCommandError reports a frame whose command byte the device does
// not implement. No reply is queued for it.
type UnknownCommandError struct {
	Command crema.CommandID
	Frame   [crema.FrameSize]byte
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("simulated device: unknown command 0x%02X (frame % X)", uint8(e.Command), e.Frame)
}

// State is the simulated controller state
type State struct {
	HeaterOnCycle  uint16
	HeaterOffCycle uint16
	DT             uint16
	HeaterOn       bool
	PumpOnCycle    uint32 // ms remaining
	Temp           float64
	PumpOn         bool
	Power          float64
}

// DefaultState is a cold machine with the pump off
func DefaultState() State {
	return State{
		Temp:  21.25,
		Power: 0.42,
	}
}

// Device is a simulated controller. It implements io.ReadWriter: every
// complete 8-byte frame written is answered by one 8-byte reply that the
// next Read returns. Each Device owns its state, so independent devices
// may run concurrently.
type Device struct {
	mu       sync.Mutex
	clock    Clock
	logger   *zap.Logger
	state    State
	lastCall time.Time
	inbuf    []byte
	reply    []byte
	frames   [][crema.FrameSize]byte
}

// Option configures a Device
type Option func(*Device)

// WithClock sets the clock used for the pump countdown
func WithClock(c Clock) Option {
	return func(d *Device) { d.clock = c }
}

// WithState sets the initial state
func WithState(s State) Option {
	return func(d *Device) { d.state = s }
}

// WithLogger sets the logger for frame traces
func WithLogger(l *zap.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a simulated device
func New(opts ...Option) *Device {
	d := &Device{
		clock:  SystemClock(),
		logger: zap.NewNop(),
		state:  DefaultState(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.lastCall = d.clock.Now()
	return d
}

// Write consumes request bytes. Partial frames are buffered until the
// remaining bytes arrive.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.inbuf = append(d.inbuf, p...)
	for len(d.inbuf) >= crema.FrameSize {
		var frame [crema.FrameSize]byte
		copy(frame[:], d.inbuf[:crema.FrameSize])
		d.inbuf = d.inbuf[crema.FrameSize:]

		reply, err := d.handle(frame)
		if err != nil {
			d.logger.Warn("rejected frame", zap.String("rx", hex.EncodeToString(frame[:])), zap.Error(err))
			return len(p), err
		}
		d.logger.Debug("frame",
			zap.String("rx", hex.EncodeToString(frame[:])),
			zap.String("tx", hex.EncodeToString(reply[:])),
		)
		d.reply = append(d.reply, reply[:]...)
	}
	return len(p), nil
}

// Read returns pending reply bytes
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.reply) == 0 {
		return 0, ErrNoReply
	}
	n := copy(p, d.reply)
	d.reply = d.reply[n:]
	return n, nil
}

// Frames returns every frame received so far, in order
func (d *Device) Frames() [][crema.FrameSize]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][crema.FrameSize]byte(nil), d.frames...)
}

// Snapshot returns the current state without running the countdown
func (d *Device) Snapshot() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Close satisfies io.Closer so the device can stand in for a port
func (d *Device) Close() error {
	return nil
}

func (d *Device) tick() {
	now := d.clock.Now()
	elapsed := now.Sub(d.lastCall).Milliseconds()
	d.lastCall = now

	switch {
	case elapsed <= 0:
	case elapsed >= int64(d.state.PumpOnCycle):
		d.state.PumpOnCycle = 0
	default:
		d.state.PumpOnCycle -= uint32(elapsed)
	}
	d.state.PumpOn = d.state.PumpOnCycle > 0
}

func (d *Device) handle(frame [crema.FrameSize]byte) ([crema.FrameSize]byte, error) {
	id := crema.CommandID(frame[0])
	if _, ok := crema.Lookup(id); !ok {
		return frame, &UnknownCommandError{Command: id, Frame: frame}
	}
	d.frames = append(d.frames, frame)
	d.tick()

	s := &d.state
	var args []crema.Arg
	switch id {
	case crema.CmdStatus1:
		args = []crema.Arg{
			crema.Half(s.HeaterOnCycle),
			crema.Half(s.HeaterOffCycle),
			crema.Half(s.DT),
			crema.Bool(s.HeaterOn),
		}
	case crema.CmdStatus2:
		args = []crema.Arg{
			crema.Long(s.PumpOnCycle),
			crema.Fixed(s.Temp),
			crema.Bool(s.PumpOn),
		}
	case crema.CmdStatus3:
		args = append([]crema.Arg{crema.Fixed(s.Power)}, crema.Zeros(5)...)
	case crema.CmdSetpoint:
		previous := s.Temp
		s.Temp = crema.DecodeFloat(frame[1], frame[2])
		args = append([]crema.Arg{crema.Fixed(s.Temp), crema.Fixed(previous)}, crema.Zeros(3)...)
	case crema.CmdStartPump:
		s.PumpOnCycle = uint32(binary.BigEndian.Uint16(frame[1:3]))
		s.PumpOn = s.PumpOnCycle > 0
		args = crema.Zeros(crema.PayloadSize)
	case crema.CmdStopPump:
		s.PumpOnCycle = 0
		s.PumpOn = false
		args = crema.Zeros(crema.PayloadSize)
	}

	return crema.EncodeFrame(id, args...)
}
