// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// BrewResult summarizes a completed brew
type BrewResult struct {
	Target    time.Duration
	Elapsed   time.Duration // host time from pump start to the final poll
	Polls     int
	StartTemp float64
	Final     Status
}

// Brew runs the pump for seconds and waits for the device countdown to
// reach zero. seconds must lie strictly between MinBrewSeconds and
// MaxBrewSeconds.
//
// If ctx is cancelled between polls the pump is stopped and the returned
// error satisfies errors.Is(err, ErrCancelled). A failed poll also stops
// the pump.
func (s *Session) Brew(ctx context.Context, seconds float64, progress ProgressFunc) (*BrewResult, error) {
	return s.brew(ctx, seconds, 1, 1, progress)
}

func (s *Session) brew(ctx context.Context, seconds float64, cycle, cycles int, progress ProgressFunc) (*BrewResult, error) {
	if !(seconds > MinBrewSeconds && seconds < MaxBrewSeconds) {
		return nil, fmt.Errorf("%w: brew of %gs (want %d < s < %d)", ErrInvalidDuration, seconds, MinBrewSeconds, MaxBrewSeconds)
	}
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	start, err := s.GetStatus()
	if err != nil {
		return nil, err
	}

	targetMs := uint16(seconds * 1000)
	target := time.Duration(targetMs) * time.Millisecond
	result := &BrewResult{Target: target, StartTemp: start.Temp}

	s.logger.Info("brew started",
		zap.Duration("target", target),
		zap.Float64("temp", start.Temp),
		zap.Int("cycle", cycle),
		zap.Int("cycles", cycles),
	)

	if err := s.StartPump(targetMs); err != nil {
		return nil, s.stopAfter(err)
	}
	began := s.clock.Now()

	for {
		st, err := s.GetStatus()
		if err != nil {
			return nil, s.stopAfter(fmt.Errorf("brew aborted: %w", err))
		}
		result.Polls++

		elapsed := target - st.PumpRemaining()
		if elapsed < 0 {
			elapsed = 0
		}
		progress.report(Progress{
			Phase:   PhaseBrew,
			Cycle:   cycle,
			Cycles:  cycles,
			Elapsed: elapsed,
			Target:  target,
			Status:  st,
		})

		if st.PumpOnCycle == 0 {
			result.Final = st
			result.Elapsed = s.clock.Now().Sub(began)
			s.logger.Info("brew finished", zap.Int("polls", result.Polls), zap.Duration("elapsed", result.Elapsed))
			return result, nil
		}

		if host := s.clock.Now().Sub(began); host > target+s.brewGrace {
			return nil, s.stopAfter(fmt.Errorf("%w: %v remaining after %v", ErrDeviceStalled, st.PumpRemaining(), host))
		}

		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return nil, s.stopAfter(err)
		}
	}
}

// Preinfuse wets the puck before a brew: the pump runs for seconds, then
// the host waits a further two seconds for the device to stop on its own
// and lets the puck settle for half a second. Progress reports host time
// only; the device is not polled.
func (s *Session) Preinfuse(ctx context.Context, seconds float64, progress ProgressFunc) error {
	if !(seconds > 0 && seconds < MaxBrewSeconds) {
		return fmt.Errorf("%w: preinfuse of %gs (want 0 < s < %d)", ErrInvalidDuration, seconds, MaxBrewSeconds)
	}
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	durationMs := uint16(seconds * 1000)
	if err := s.StartPump(durationMs); err != nil {
		return s.stopAfter(err)
	}

	target := time.Duration(durationMs)*time.Millisecond + preinfuseOverrun
	began := s.clock.Now()
	for {
		elapsed := s.clock.Now().Sub(began)
		progress.report(Progress{Phase: PhasePreinfuse, Cycle: 1, Cycles: 1, Elapsed: elapsed, Target: target})
		if elapsed >= target {
			break
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return s.stopAfter(err)
		}
	}

	if err := s.sleep(ctx, preinfuseSettle); err != nil {
		return s.stopAfter(err)
	}
	return nil
}

// Backflush runs cycles brews of brewSeconds separated by pauses of
// pauseSeconds. A cancellation or failure in any brew or pause aborts the
// whole sequence; later cycles are not attempted.
func (s *Session) Backflush(ctx context.Context, cycles int, brewSeconds, pauseSeconds float64, progress ProgressFunc) error {
	if cycles < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidCycles, cycles)
	}
	if pauseSeconds < 0 {
		return fmt.Errorf("%w: pause of %gs", ErrInvalidDuration, pauseSeconds)
	}

	pause := time.Duration(pauseSeconds * float64(time.Second))
	for cycle := 1; cycle <= cycles; cycle++ {
		if _, err := s.brew(ctx, brewSeconds, cycle, cycles, progress); err != nil {
			return fmt.Errorf("backflush cycle %d/%d: %w", cycle, cycles, err)
		}
		if cycle == cycles {
			break
		}
		if err := s.pause(ctx, pause, cycle, cycles, progress); err != nil {
			return fmt.Errorf("backflush pause %d/%d: %w", cycle, cycles, s.stopAfter(err))
		}
	}

	s.logger.Info("backflush finished", zap.Int("cycles", cycles))
	return nil
}

func (s *Session) pause(ctx context.Context, d time.Duration, cycle, cycles int, progress ProgressFunc) error {
	began := s.clock.Now()
	for {
		elapsed := s.clock.Now().Sub(began)
		progress.report(Progress{Phase: PhasePause, Cycle: cycle, Cycles: cycles, Elapsed: elapsed, Target: d})
		if elapsed >= d {
			return nil
		}
		step := s.pollInterval
		if rest := d - elapsed; rest < step {
			step = rest
		}
		if err := s.sleep(ctx, step); err != nil {
			return err
		}
	}
}
