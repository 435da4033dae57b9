// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/crema/pkg/crema"
	"github.com/Thermoquad/crema/pkg/simdevice"
)

func TestBrew_Completes(t *testing.T) {
	s, dev, clock := newSimSession(t, simdevice.DefaultState())

	var reports []Progress
	result, err := s.Brew(context.Background(), 5, func(p Progress) { reports = append(reports, p) })
	if err != nil {
		t.Fatalf("Brew error: %v", err)
	}

	if result.Target != 5*time.Second || result.Elapsed != 5*time.Second {
		t.Errorf("result target/elapsed = %v/%v, want 5s/5s", result.Target, result.Elapsed)
	}
	if result.Polls != 51 {
		t.Errorf("Polls = %d, want 51", result.Polls)
	}
	if result.Final.PumpOnCycle != 0 || result.Final.PumpOn {
		t.Errorf("final status = %+v", result.Final)
	}
	if result.StartTemp < 21 || result.StartTemp > 21.5 {
		t.Errorf("StartTemp = %v", result.StartTemp)
	}
	if got := clock.Now().Sub(epoch); got != 5*time.Second {
		t.Errorf("brew took %v of device time, want 5s", got)
	}

	ids := commandLog(dev)
	if n := count(ids, crema.CmdStartPump); n != 1 {
		t.Errorf("StartPump dispatched %d times, want 1", n)
	}
	if n := count(ids, crema.CmdStopPump); n != 0 {
		t.Errorf("StopPump dispatched %d times on normal completion", n)
	}
	if last(ids) != crema.CmdStatus3 {
		t.Errorf("last frame = %v, want a status read", last(ids))
	}

	if len(reports) != result.Polls {
		t.Fatalf("got %d progress reports, want %d", len(reports), result.Polls)
	}
	if first := reports[0]; first.Elapsed != 0 || first.Phase != PhaseBrew || first.Cycles != 1 {
		t.Errorf("first report = %+v", first)
	}
	if final := reports[len(reports)-1]; final.Fraction() != 1 {
		t.Errorf("final report fraction = %v", final.Fraction())
	}
	for i := 1; i < len(reports); i++ {
		if reports[i].Elapsed < reports[i-1].Elapsed {
			t.Fatalf("progress went backwards at report %d", i)
		}
	}
}

func TestBrew_InvalidDuration(t *testing.T) {
	for _, seconds := range []float64{0, 1, 2, 40, 45, -3} {
		s, dev, _ := newSimSession(t, simdevice.DefaultState())
		if _, err := s.Brew(context.Background(), seconds, nil); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("Brew(%v) error = %v, want ErrInvalidDuration", seconds, err)
		}
		if len(dev.Frames()) != 0 {
			t.Errorf("Brew(%v) touched the device", seconds)
		}
	}
}

func TestBrew_Cancel(t *testing.T) {
	tests := []struct {
		name     string
		encoding crema.StopEncoding
		wantStop [crema.FrameSize]byte
	}{
		{"distinct stop", crema.StopDistinct, [crema.FrameSize]byte{21}},
		{"legacy stop", crema.StopLegacy, [crema.FrameSize]byte{20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dev, _ := newSimSession(t, simdevice.DefaultState(), WithStopEncoding(tt.encoding))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			polls := 0
			result, err := s.Brew(ctx, 5, func(p Progress) {
				polls++
				if p.Elapsed >= 2*time.Second {
					cancel()
				}
			})

			if result != nil {
				t.Errorf("cancelled brew returned a result: %+v", result)
			}
			if !errors.Is(err, ErrCancelled) || !errors.Is(err, context.Canceled) {
				t.Fatalf("Brew error = %v, want ErrCancelled and context.Canceled", err)
			}
			if polls != 21 {
				t.Errorf("progress called %d times, want 21", polls)
			}

			frames := dev.Frames()
			stops := 0
			for _, f := range frames {
				if f == tt.wantStop {
					stops++
				}
			}
			if stops != 1 {
				t.Errorf("stop frame sent %d times, want exactly 1", stops)
			}
			if frames[len(frames)-1] != tt.wantStop {
				t.Errorf("last frame = % X, want the stop (no polling after cancel)", frames[len(frames)-1])
			}
			if snap := dev.Snapshot(); snap.PumpOn || snap.PumpOnCycle != 0 {
				t.Errorf("pump left running: %+v", snap)
			}
		})
	}
}

func TestBrew_AlreadyCancelled(t *testing.T) {
	s, dev, _ := newSimSession(t, simdevice.DefaultState())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Brew(ctx, 5, nil); !errors.Is(err, ErrCancelled) {
		t.Fatalf("Brew error = %v, want ErrCancelled", err)
	}
	if len(dev.Frames()) != 0 {
		t.Errorf("cancelled brew sent %d frames", len(dev.Frames()))
	}
}

func TestBrew_Stalled(t *testing.T) {
	// The device clock never moves, so its countdown never runs down
	dev := simdevice.New(simdevice.WithClock(simdevice.NewManualClock(epoch)))
	s := New(crema.NewChannel(dev),
		WithClock(simdevice.NewManualClock(epoch)),
		WithBrewGrace(time.Second),
	)

	_, err := s.Brew(context.Background(), 3, nil)
	if !errors.Is(err, ErrDeviceStalled) {
		t.Fatalf("Brew error = %v, want ErrDeviceStalled", err)
	}
	if errors.Is(err, ErrCancelled) {
		t.Error("stall reported as cancellation")
	}
	if last(commandLog(dev)) != crema.CmdStopPump {
		t.Error("stalled brew did not stop the pump")
	}
}

func TestBrew_DispatchFailure(t *testing.T) {
	tests := []struct {
		name         string
		failStop     bool
		wantStopText bool
	}{
		{"stop succeeds", false, false},
		{"stop fails too", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, dev, clock := newSimSession(t, simdevice.DefaultState())
			fd := &faultyDispatcher{
				inner: crema.NewChannel(dev),
				fail: func(n int, id crema.CommandID) error {
					if n <= 20 {
						return nil
					}
					if id == crema.CmdStopPump && !tt.failStop {
						return nil
					}
					return errLinkDown
				},
			}
			s := New(fd, WithClock(clock))

			_, err := s.Brew(context.Background(), 5, nil)
			if !errors.Is(err, errLinkDown) {
				t.Fatalf("Brew error = %v, want errLinkDown", err)
			}
			if errors.Is(err, ErrCancelled) {
				t.Error("dispatch failure reported as cancellation")
			}
			if last(fd.sent) != crema.CmdStopPump {
				t.Errorf("last dispatch = %v, want STOP_PUMP", last(fd.sent))
			}
			if got := strings.Contains(err.Error(), "stop pump failed"); got != tt.wantStopText {
				t.Errorf("error %q mentions stop failure = %v, want %v", err, got, tt.wantStopText)
			}
		})
	}
}

func TestRunPump_KeepAlive(t *testing.T) {
	s, dev, _ := newSimSession(t, simdevice.DefaultState(),
		WithPumpRefresh(time.Second),
		WithPollInterval(100*time.Millisecond),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := 0
	err := s.RunPump(ctx, func(p Progress) {
		ticks++
		if p.Phase != PhasePump {
			t.Errorf("phase = %v, want pump", p.Phase)
		}
		if p.Elapsed >= 3*time.Second {
			cancel()
		}
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("RunPump error = %v, want ErrCancelled", err)
	}
	if ticks != 31 {
		t.Errorf("ticks = %d, want 31", ticks)
	}

	frames := dev.Frames()
	keepAlive := crema.NewStartPump(PumpKeepAliveMs).Frame()
	refreshes := 0
	for _, f := range frames {
		if f == keepAlive {
			refreshes++
		}
	}
	if refreshes != 4 {
		t.Errorf("keep-alive sent %d times over 3s, want 4", refreshes)
	}
	if len(frames) != 5 || crema.CommandID(frames[4][0]) != crema.CmdStopPump {
		t.Errorf("frames = %v, want 4 refreshes then a stop", frames)
	}
	if snap := dev.Snapshot(); snap.PumpOn {
		t.Errorf("pump left running: %+v", snap)
	}
}

func TestRunPump_RefreshFailure(t *testing.T) {
	_, dev, clock := newSimSession(t, simdevice.DefaultState())
	starts := 0
	fd := &faultyDispatcher{
		inner: crema.NewChannel(dev),
		fail: func(n int, id crema.CommandID) error {
			if id == crema.CmdStartPump {
				starts++
				if starts == 3 {
					return errLinkDown
				}
			}
			return nil
		},
	}
	s := New(fd, WithClock(clock))

	err := s.RunPump(context.Background(), nil)
	if !errors.Is(err, errLinkDown) || errors.Is(err, ErrCancelled) {
		t.Fatalf("RunPump error = %v, want errLinkDown", err)
	}
	if last(fd.sent) != crema.CmdStopPump {
		t.Errorf("last dispatch = %v, want STOP_PUMP", last(fd.sent))
	}
}

func TestPreinfuse(t *testing.T) {
	s, dev, clock := newSimSession(t, simdevice.DefaultState())

	var final Progress
	if err := s.Preinfuse(context.Background(), 1.5, func(p Progress) { final = p }); err != nil {
		t.Fatalf("Preinfuse error: %v", err)
	}

	if final.Phase != PhasePreinfuse || final.Target != 3500*time.Millisecond || final.Elapsed != final.Target {
		t.Errorf("final progress = %+v", final)
	}
	if got := clock.Now().Sub(epoch); got != 4*time.Second {
		t.Errorf("preinfuse took %v, want 4s (run, overrun and settle)", got)
	}

	frames := dev.Frames()
	if len(frames) != 1 || frames[0] != crema.NewStartPump(1500).Frame() {
		t.Errorf("frames = %v, want a single 1500ms start", frames)
	}
}

func TestPreinfuse_Cancel(t *testing.T) {
	s, dev, _ := newSimSession(t, simdevice.DefaultState())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := s.Preinfuse(ctx, 3, func(p Progress) {
		if p.Elapsed >= time.Second {
			cancel()
		}
	})
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Preinfuse error = %v, want ErrCancelled", err)
	}
	if last(commandLog(dev)) != crema.CmdStopPump {
		t.Error("cancelled preinfuse did not stop the pump")
	}
	if err := s.Preinfuse(context.Background(), 0, nil); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("Preinfuse(0) error = %v, want ErrInvalidDuration", err)
	}
}

func TestBackflush(t *testing.T) {
	s, dev, clock := newSimSession(t, simdevice.DefaultState())

	pauses := map[int]bool{}
	brews := map[int]bool{}
	err := s.Backflush(context.Background(), 3, 3, 2, func(p Progress) {
		if p.Cycles != 3 {
			t.Errorf("Cycles = %d, want 3", p.Cycles)
		}
		switch p.Phase {
		case PhaseBrew:
			brews[p.Cycle] = true
		case PhasePause:
			pauses[p.Cycle] = true
		}
	})
	if err != nil {
		t.Fatalf("Backflush error: %v", err)
	}

	if len(brews) != 3 || !pauses[1] || !pauses[2] || pauses[3] {
		t.Errorf("brews = %v, pauses = %v, want 3 brews and pauses after cycles 1 and 2", brews, pauses)
	}
	if got := clock.Now().Sub(epoch); got != 13*time.Second {
		t.Errorf("backflush took %v, want 13s (3x3s brew + 2x2s pause)", got)
	}

	start := crema.NewStartPump(3000).Frame()
	n := 0
	for _, f := range dev.Frames() {
		if f == start {
			n++
		}
	}
	if n != 3 {
		t.Errorf("StartPump(3000) sent %d times, want 3", n)
	}
	if count(commandLog(dev), crema.CmdStopPump) != 0 {
		t.Error("completed backflush sent a stop")
	}
}

func TestBackflush_Cancel(t *testing.T) {
	tests := []struct {
		name       string
		cancelAt   func(Progress) bool
		wantStarts int
	}{
		{
			name:       "during first pause",
			cancelAt:   func(p Progress) bool { return p.Phase == PhasePause && p.Cycle == 1 && p.Elapsed >= time.Second },
			wantStarts: 1,
		},
		{
			name:       "during second brew",
			cancelAt:   func(p Progress) bool { return p.Phase == PhaseBrew && p.Cycle == 2 && p.Elapsed >= time.Second },
			wantStarts: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dev, _ := newSimSession(t, simdevice.DefaultState())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := s.Backflush(ctx, 4, 3, 2, func(p Progress) {
				if tt.cancelAt(p) {
					cancel()
				}
			})
			if !errors.Is(err, ErrCancelled) {
				t.Fatalf("Backflush error = %v, want ErrCancelled", err)
			}

			ids := commandLog(dev)
			if n := count(ids, crema.CmdStartPump); n != tt.wantStarts {
				t.Errorf("StartPump sent %d times, want %d (no later cycles)", n, tt.wantStarts)
			}
			if n := count(ids, crema.CmdStopPump); n != 1 || last(ids) != crema.CmdStopPump {
				t.Errorf("stop count = %d, last = %v, want one final stop", n, last(ids))
			}
		})
	}
}

func TestBackflush_InvalidArguments(t *testing.T) {
	tests := []struct {
		name    string
		cycles  int
		brew    float64
		pause   float64
		wantErr error
	}{
		{"no cycles", 0, 12, 6, ErrInvalidCycles},
		{"negative pause", 2, 12, -1, ErrInvalidDuration},
		{"brew too long", 2, 50, 6, ErrInvalidDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, dev, _ := newSimSession(t, simdevice.DefaultState())
			err := s.Backflush(context.Background(), tt.cycles, tt.brew, tt.pause, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Backflush error = %v, want %v", err, tt.wantErr)
			}
			if len(dev.Frames()) != 0 {
				t.Error("invalid backflush touched the device")
			}
		})
	}
}
