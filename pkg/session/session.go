// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package session implements the controller operations built on top of
// the crema Channel: status reads, setpoint changes, pump control and the
// timed brew and backflush sequences.
//
// The device's own pump countdown is authoritative. Timed operations poll
// it rather than trusting host timers, and every cancellation or failure
// path dispatches a stop before returning.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/crema/pkg/crema"
)

// Sentinel errors
var (
	ErrCancelled       = errors.New("operation cancelled")
	ErrInvalidDuration = errors.New("duration outside the allowed range")
	ErrInvalidCycles   = errors.New("backflush needs at least one cycle")
	ErrDeviceStalled   = errors.New("device pump countdown did not reach zero")
)

// Timing defaults
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultPumpRefresh  = time.Second
	DefaultBrewGrace    = 5 * time.Second

	// PumpKeepAliveMs is the countdown re-armed by each manual-mode refresh
	PumpKeepAliveMs = 5000

	// Brew durations are exclusive bounds, in seconds
	MinBrewSeconds = 2
	MaxBrewSeconds = 40

	preinfuseOverrun = 2 * time.Second
	preinfuseSettle  = 500 * time.Millisecond
)

// Dispatcher sends one message and returns the decoded reply.
// *crema.Channel satisfies it.
type Dispatcher interface {
	Dispatch(msg crema.Message) (crema.Fields, error)
}

// Clock is the time source used for polling sleeps
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Session owns the channel to one controller. It is not safe for
// concurrent use; operations must be serialized by the caller.
type Session struct {
	ch           Dispatcher
	clock        Clock
	pollInterval time.Duration
	pumpRefresh  time.Duration
	stopEncoding crema.StopEncoding
	brewGrace    time.Duration
	logger       *zap.Logger
}

// Option configures a Session
type Option func(*Session)

// WithClock sets the time source
func WithClock(c Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithPollInterval sets the sleep between status polls
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithPumpRefresh sets how often manual mode re-arms the pump
func WithPumpRefresh(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pumpRefresh = d
		}
	}
}

// WithStopEncoding selects the stop-pump wire form
func WithStopEncoding(e crema.StopEncoding) Option {
	return func(s *Session) { s.stopEncoding = e }
}

// WithBrewGrace sets how long past the target a brew may run before the
// device is considered stalled.
func WithBrewGrace(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.brewGrace = d
		}
	}
}

// WithLogger sets the session logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a session over ch
func New(ch Dispatcher, opts ...Option) *Session {
	s := &Session{
		ch:           ch,
		clock:        systemClock{},
		pollInterval: DefaultPollInterval,
		pumpRefresh:  DefaultPumpRefresh,
		stopEncoding: crema.StopDistinct,
		brewGrace:    DefaultBrewGrace,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status is the merged reply of the three status commands. The three
// reads are separate round-trips, so the record is approximate.
type Status struct {
	HeaterOnCycle  uint16
	HeaterOffCycle uint16
	DT             uint16
	HeaterOn       bool
	PumpOnCycle    uint32
	Temp           float64
	PumpOn         bool
	Power          float64
	ReadAt         time.Time
}

// PumpRemaining returns the device countdown as a duration
func (st Status) PumpRemaining() time.Duration {
	return time.Duration(st.PumpOnCycle) * time.Millisecond
}

func statusFromFields(f crema.Fields) Status {
	var st Status
	if v, ok := crema.GetUint(f, crema.FieldHeaterOnCycle); ok {
		st.HeaterOnCycle = uint16(v)
	}
	if v, ok := crema.GetUint(f, crema.FieldHeaterOffCycle); ok {
		st.HeaterOffCycle = uint16(v)
	}
	if v, ok := crema.GetUint(f, crema.FieldDT); ok {
		st.DT = uint16(v)
	}
	if v, ok := crema.GetUint(f, crema.FieldPumpOnCycle); ok {
		st.PumpOnCycle = uint32(v)
	}
	st.HeaterOn, _ = crema.GetBool(f, crema.FieldHeaterOn)
	st.PumpOn, _ = crema.GetBool(f, crema.FieldPumpOn)
	st.Temp, _ = crema.GetFloat(f, crema.FieldTemp)
	st.Power, _ = crema.GetFloat(f, crema.FieldPower)
	return st
}

// GetStatus dispatches STATUS1, STATUS2 and STATUS3 in order and merges
// the replies. Any failed read aborts the whole status.
func (s *Session) GetStatus() (Status, error) {
	merged := crema.Fields{}
	for _, msg := range []crema.Message{crema.NewStatus1(), crema.NewStatus2(), crema.NewStatus3()} {
		fields, err := s.ch.Dispatch(msg)
		if err != nil {
			return Status{}, fmt.Errorf("status read failed: %w", err)
		}
		merged.Merge(fields)
	}

	st := statusFromFields(merged)
	st.ReadAt = s.clock.Now()
	return st, nil
}

// SetpointChange reports the device setpoint before and after a change
type SetpointChange struct {
	Previous float64
	Current  float64
}

// SetSetpoint changes the heater setpoint. Values outside the fixed-point
// range are rejected before any I/O.
func (s *Session) SetSetpoint(v float64) (SetpointChange, error) {
	msg, err := crema.NewSetpoint(v)
	if err != nil {
		return SetpointChange{}, err
	}
	fields, err := s.ch.Dispatch(msg)
	if err != nil {
		return SetpointChange{}, fmt.Errorf("setpoint failed: %w", err)
	}

	var change SetpointChange
	change.Current, _ = crema.GetFloat(fields, crema.FieldSetpoint)
	change.Previous, _ = crema.GetFloat(fields, crema.FieldPrevious)
	s.logger.Info("setpoint changed", zap.Float64("previous", change.Previous), zap.Float64("current", change.Current))
	return change, nil
}

// StartPump arms the device pump countdown
func (s *Session) StartPump(durationMs uint16) error {
	if _, err := s.ch.Dispatch(crema.NewStartPump(durationMs)); err != nil {
		return fmt.Errorf("start pump failed: %w", err)
	}
	return nil
}

// StopPump stops the pump unconditionally
func (s *Session) StopPump() error {
	if _, err := s.ch.Dispatch(crema.NewStopPump(s.stopEncoding)); err != nil {
		return fmt.Errorf("stop pump failed: %w", err)
	}
	return nil
}

// stopAfter dispatches a best-effort stop and folds any stop failure into
// cause.
func (s *Session) stopAfter(cause error) error {
	if err := s.StopPump(); err != nil {
		s.logger.Error("pump stop after abort failed", zap.Error(err), zap.NamedError("cause", cause))
		return errors.Join(cause, err)
	}
	s.logger.Info("pump stopped", zap.NamedError("cause", cause))
	return cause
}

func cancelled(ctxErr error) error {
	return errors.Join(ErrCancelled, ctxErr)
}

// sleep waits d on the session clock. A context that is already done wins
// over a timer that has already fired.
func (s *Session) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	select {
	case <-ctx.Done():
		return cancelled(ctx.Err())
	case <-s.clock.After(d):
		return nil
	}
}
