// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crema

import (
	"errors"
	"fmt"
)

var (
	ErrShortRead    = errors.New("short read: fewer than 8 bytes received")
	ErrShortWrite   = errors.New("short write: fewer than 8 bytes sent")
	ErrEchoMismatch = errors.New("reply does not echo the command id")
	ErrFloatRange   = errors.New("value outside fixed-point range [0, 256)")
	ErrUnknownCmd   = errors.New("unknown command")
)

// ConfigError reports a message layout that can never fit a frame.
// These are detected when a descriptor is built, not per dispatch.
type ConfigError struct {
	Command CommandID
	Message string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Command != 0 {
		return fmt.Sprintf("configuration error (command %d): %s", e.Command, e.Message)
	}
	return "configuration error: " + e.Message
}

// TransportError reports a failed round-trip on the transport
type TransportError struct {
	Op      string // "write" or "read"
	Command CommandID
	Err     error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, CommandName(e.Command), e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}
