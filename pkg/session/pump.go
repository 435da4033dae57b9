// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"time"
)

// PeriodicTask runs Run on the first Poll and then whenever Interval has
// passed since the previous run.
type PeriodicTask struct {
	Interval time.Duration
	Run      func() error

	last    time.Time
	started bool
	runs    int
}

// Due reports whether the next Poll at now would run the task
func (t *PeriodicTask) Due(now time.Time) bool {
	return !t.started || now.Sub(t.last) >= t.Interval
}

// Poll runs the task if it is due
func (t *PeriodicTask) Poll(now time.Time) error {
	if !t.Due(now) {
		return nil
	}
	t.last = now
	t.started = true
	t.runs++
	return t.Run()
}

// RunPump runs the pump until ctx is cancelled. The device stops the pump
// on its own once the countdown expires, so the countdown is re-armed
// with PumpKeepAliveMs every refresh interval. onTick is called every poll
// interval with the host time spent pumping.
//
// RunPump always ends with a stop dispatch and returns an error satisfying
// errors.Is(err, ErrCancelled) on a normal operator stop.
func (s *Session) RunPump(ctx context.Context, onTick ProgressFunc) error {
	refresh := &PeriodicTask{
		Interval: s.pumpRefresh,
		Run:      func() error { return s.StartPump(PumpKeepAliveMs) },
	}

	began := s.clock.Now()
	for {
		now := s.clock.Now()
		if err := refresh.Poll(now); err != nil {
			return s.stopAfter(err)
		}
		onTick.report(Progress{Phase: PhasePump, Elapsed: now.Sub(began)})

		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return s.stopAfter(err)
		}
	}
}
