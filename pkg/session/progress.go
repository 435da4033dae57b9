// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"fmt"
	"time"
)

// Phase identifies which part of an operation a Progress report belongs to
type Phase int

const (
	PhaseBrew Phase = iota
	PhasePause
	PhasePreinfuse
	PhasePump
)

func (p Phase) String() string {
	switch p {
	case PhaseBrew:
		return "brew"
	case PhasePause:
		return "pause"
	case PhasePreinfuse:
		return "preinfuse"
	case PhasePump:
		return "pump"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Progress is reported after every poll of a running operation.
// Status is the zero value for phases that do not poll the device.
type Progress struct {
	Phase   Phase
	Cycle   int
	Cycles  int
	Elapsed time.Duration
	Target  time.Duration
	Status  Status
}

// Fraction returns Elapsed/Target clamped to [0, 1]
func (p Progress) Fraction() float64 {
	if p.Target <= 0 {
		return 0
	}
	f := float64(p.Elapsed) / float64(p.Target)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// ProgressFunc receives progress reports. It runs on the operation's
// goroutine and may cancel the operation's context.
type ProgressFunc func(Progress)

func (f ProgressFunc) report(p Progress) {
	if f != nil {
		f(p)
	}
}
