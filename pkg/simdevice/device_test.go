// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simdevice

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/crema/pkg/crema"
)

var epoch = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func newTestDevice(t *testing.T, s State) (*Device, *ManualClock, *crema.Channel) {
	t.Helper()
	clock := NewManualClock(epoch)
	dev := New(WithClock(clock), WithState(s))
	return dev, clock, crema.NewChannel(dev)
}

func pumpStatus(t *testing.T, ch *crema.Channel) (uint64, bool) {
	t.Helper()
	fields, err := ch.Dispatch(crema.NewStatus2())
	if err != nil {
		t.Fatalf("Dispatch(STATUS2) error: %v", err)
	}
	cycle, _ := crema.GetUint(fields, crema.FieldPumpOnCycle)
	on, _ := crema.GetBool(fields, crema.FieldPumpOn)
	return cycle, on
}

func TestPumpCountdown(t *testing.T) {
	s := DefaultState()
	s.PumpOnCycle = 5000
	_, clock, ch := newTestDevice(t, s)

	tests := []struct {
		name      string
		advance   time.Duration
		wantCycle uint64
		wantOn    bool
	}{
		{"immediate", 0, 5000, true},
		{"partial", 1200 * time.Millisecond, 3800, true},
		{"sub-millisecond is ignored", 400 * time.Microsecond, 3800, true},
		{"expired", 3800 * time.Millisecond, 0, false},
		{"stays clamped", 10 * time.Second, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Advance(tt.advance)
			cycle, on := pumpStatus(t, ch)
			if cycle != tt.wantCycle || on != tt.wantOn {
				t.Errorf("pump = (%d, %v), want (%d, %v)", cycle, on, tt.wantCycle, tt.wantOn)
			}
		})
	}
}

func TestStartAndStopPump(t *testing.T) {
	tests := []struct {
		name string
		stop crema.Message
	}{
		{"distinct stop", crema.NewStopPump(crema.StopDistinct)},
		{"legacy stop", crema.NewStopPump(crema.StopLegacy)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, clock, ch := newTestDevice(t, DefaultState())

			if _, err := ch.Dispatch(crema.NewStartPump(3000)); err != nil {
				t.Fatalf("StartPump error: %v", err)
			}
			clock.Advance(500 * time.Millisecond)
			if cycle, on := pumpStatus(t, ch); cycle != 2500 || !on {
				t.Errorf("after start = (%d, %v), want (2500, true)", cycle, on)
			}

			if _, err := ch.Dispatch(tt.stop); err != nil {
				t.Fatalf("StopPump error: %v", err)
			}
			if s := dev.Snapshot(); s.PumpOnCycle != 0 || s.PumpOn {
				t.Errorf("after stop snapshot = %+v", s)
			}
			if cycle, on := pumpStatus(t, ch); cycle != 0 || on {
				t.Errorf("after stop = (%d, %v), want (0, false)", cycle, on)
			}
		})
	}
}

func TestSetpoint(t *testing.T) {
	_, _, ch := newTestDevice(t, DefaultState())

	msg, err := crema.NewSetpoint(100)
	if err != nil {
		t.Fatal(err)
	}
	fields, err := ch.Dispatch(msg)
	if err != nil {
		t.Fatalf("Dispatch(SETPOINT) error: %v", err)
	}
	if v, _ := crema.GetFloat(fields, crema.FieldSetpoint); math.Abs(v-100) > crema.FixedResolution {
		t.Errorf("setpoint = %v, want 100", v)
	}
	if v, _ := crema.GetFloat(fields, crema.FieldPrevious); math.Abs(v-21.25) > crema.FixedResolution {
		t.Errorf("previous = %v, want 21.25", v)
	}

	fields, err = ch.Dispatch(crema.NewStatus2())
	if err != nil {
		t.Fatalf("Dispatch(STATUS2) error: %v", err)
	}
	if v, _ := crema.GetFloat(fields, crema.FieldTemp); math.Abs(v-100) > crema.FixedResolution {
		t.Errorf("temp = %v, want 100", v)
	}
}

func TestStatusReplies(t *testing.T) {
	s := State{
		HeaterOnCycle:  120,
		HeaterOffCycle: 880,
		DT:             1000,
		HeaterOn:       true,
		Temp:           93.5,
		Power:          0.42,
	}
	_, _, ch := newTestDevice(t, s)

	f1, err := ch.Dispatch(crema.NewStatus1())
	if err != nil {
		t.Fatalf("Dispatch(STATUS1) error: %v", err)
	}
	want := crema.Fields{
		crema.FieldHeaterOnCycle:  uint64(120),
		crema.FieldHeaterOffCycle: uint64(880),
		crema.FieldDT:             uint64(1000),
		crema.FieldHeaterOn:       true,
	}
	for k, v := range want {
		if f1[k] != v {
			t.Errorf("%s = %v, want %v", k, f1[k], v)
		}
	}

	f3, err := ch.Dispatch(crema.NewStatus3())
	if err != nil {
		t.Fatalf("Dispatch(STATUS3) error: %v", err)
	}
	if v, _ := crema.GetFloat(f3, crema.FieldPower); math.Abs(v-0.42) > crema.FixedResolution {
		t.Errorf("power = %v, want 0.42", v)
	}
}

func TestUnknownCommand(t *testing.T) {
	dev := New(WithClock(NewManualClock(epoch)))

	frame := []byte{99, 1, 2, 3, 4, 5, 6, 7}
	_, err := dev.Write(frame)
	var uce *UnknownCommandError
	if !errors.As(err, &uce) {
		t.Fatalf("Write error = %v, want *UnknownCommandError", err)
	}
	if uce.Command != 99 || uce.Frame[7] != 7 {
		t.Errorf("UnknownCommandError = %+v", uce)
	}

	buf := make([]byte, crema.FrameSize)
	if _, err := dev.Read(buf); !errors.Is(err, ErrNoReply) {
		t.Errorf("Read error = %v, want ErrNoReply", err)
	}
	if len(dev.Frames()) != 0 {
		t.Errorf("Frames() = %v, want none", dev.Frames())
	}
}

func TestPartialWrites(t *testing.T) {
	dev := New(WithClock(NewManualClock(epoch)))
	frame := crema.NewStatus3().Frame()

	if _, err := dev.Write(frame[:3]); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, crema.FrameSize)
	if _, err := dev.Read(buf); !errors.Is(err, ErrNoReply) {
		t.Fatalf("Read after partial frame error = %v, want ErrNoReply", err)
	}
	if _, err := dev.Write(frame[3:]); err != nil {
		t.Fatal(err)
	}

	n, err := dev.Read(buf)
	if err != nil || n != crema.FrameSize {
		t.Fatalf("Read = %d, %v", n, err)
	}
	if buf[0] != byte(crema.CmdStatus3) {
		t.Errorf("reply echo = 0x%02X", buf[0])
	}
	if got := dev.Frames(); len(got) != 1 || got[0] != frame {
		t.Errorf("Frames() = %v", got)
	}
}

func TestIndependentDevices(t *testing.T) {
	var wg sync.WaitGroup
	results := make([]uint64, 4)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			clock := NewManualClock(epoch)
			ch := crema.NewChannel(New(WithClock(clock)))
			if _, err := ch.Dispatch(crema.NewStartPump(uint16(1000 * (i + 1)))); err != nil {
				return
			}
			clock.Advance(500 * time.Millisecond)
			fields, err := ch.Dispatch(crema.NewStatus2())
			if err != nil {
				return
			}
			results[i], _ = crema.GetUint(fields, crema.FieldPumpOnCycle)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		if want := uint64(1000*(i+1) - 500); got != want {
			t.Errorf("device %d pump_on_cycle = %d, want %d", i, got, want)
		}
	}
}

func TestManualClockAfter(t *testing.T) {
	clock := NewManualClock(epoch)
	got := <-clock.After(250 * time.Millisecond)
	if want := epoch.Add(250 * time.Millisecond); !got.Equal(want) || !clock.Now().Equal(want) {
		t.Errorf("After fired at %v, clock at %v, want %v", got, clock.Now(), want)
	}
}
