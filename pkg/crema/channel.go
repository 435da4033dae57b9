// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crema

import (
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// DefaultReadTimeout bounds how long Dispatch waits for a full reply
const DefaultReadTimeout = 2 * time.Second

// DispatchEvent describes one completed (or failed) round-trip
type DispatchEvent struct {
	Command  CommandID
	Tx       [FrameSize]byte
	Rx       [FrameSize]byte
	RxLen    int
	Time     time.Time
	Duration time.Duration
	Err      error
}

// Observer is notified after every dispatch
type Observer func(DispatchEvent)

// Channel performs synchronous request/response exchanges over a byte
// transport. It is owned by a single caller; dispatches must not overlap.
type Channel struct {
	transport   io.ReadWriter
	readTimeout time.Duration
	logger      *zap.Logger
	observers   []Observer
}

// ChannelOption configures a Channel
type ChannelOption func(*Channel)

// WithReadTimeout sets the reply deadline. Zero waits forever.
func WithReadTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) { c.readTimeout = d }
}

// WithLogger sets the logger used for frame dumps
func WithLogger(l *zap.Logger) ChannelOption {
	return func(c *Channel) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers a dispatch observer
func WithObserver(o Observer) ChannelOption {
	return func(c *Channel) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// NewChannel creates a Channel over transport
func NewChannel(transport io.ReadWriter, opts ...ChannelOption) *Channel {
	c := &Channel{
		transport:   transport,
		readTimeout: DefaultReadTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dispatch writes the message frame, reads exactly one 8-byte reply and
// decodes it against the message's response layout.
func (c *Channel) Dispatch(msg Message) (Fields, error) {
	ev := DispatchEvent{
		Command: msg.ID,
		Tx:      msg.Frame(),
		Time:    time.Now(),
	}

	fields, err := c.roundTrip(msg, &ev)
	ev.Duration = time.Since(ev.Time)
	ev.Err = err

	if err != nil {
		c.logger.Debug("dispatch failed",
			zap.String("command", CommandName(msg.ID)),
			zap.String("tx", hex.EncodeToString(ev.Tx[:])),
			zap.Error(err),
		)
	} else {
		c.logger.Debug("dispatch",
			zap.String("command", CommandName(msg.ID)),
			zap.String("tx", hex.EncodeToString(ev.Tx[:])),
			zap.String("rx", hex.EncodeToString(ev.Rx[:])),
			zap.Duration("rtt", ev.Duration),
		)
	}

	for _, o := range c.observers {
		o(ev)
	}
	return fields, err
}

func (c *Channel) roundTrip(msg Message, ev *DispatchEvent) (Fields, error) {
	n, err := c.transport.Write(ev.Tx[:])
	if err != nil {
		return nil, &TransportError{Op: "write", Command: msg.ID, Err: err}
	}
	if n != FrameSize {
		return nil, &TransportError{Op: "write", Command: msg.ID, Err: fmt.Errorf("%w: wrote %d", ErrShortWrite, n)}
	}

	ev.RxLen, err = c.readFrame(ev.Rx[:])
	if err != nil {
		return nil, &TransportError{Op: "read", Command: msg.ID, Err: err}
	}
	if ev.Rx[0] != byte(msg.ID) {
		return nil, &TransportError{Op: "read", Command: msg.ID, Err: fmt.Errorf("%w: got 0x%02X", ErrEchoMismatch, ev.Rx[0])}
	}

	fields, err := DecodeFields(msg.Response, ev.Rx[1:])
	if err != nil {
		return nil, err
	}
	return fields, nil
}

// readFrame fills buf from the transport. Serial ports report a read
// timeout as (0, nil), so the loop is bounded by the channel deadline.
func (c *Channel) readFrame(buf []byte) (int, error) {
	var deadline time.Time
	if c.readTimeout > 0 {
		deadline = time.Now().Add(c.readTimeout)
	}

	got := 0
	for got < len(buf) {
		n, err := c.transport.Read(buf[got:])
		got += n
		if got >= len(buf) {
			break
		}
		if err != nil {
			return got, fmt.Errorf("%w: got %d bytes: %w", ErrShortRead, got, err)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return got, fmt.Errorf("%w: got %d bytes before %v timeout", ErrShortRead, got, c.readTimeout)
		}
	}
	return got, nil
}
