// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crema

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistryLayouts(t *testing.T) {
	ids := Commands()
	if len(ids) != 6 {
		t.Fatalf("registry has %d commands, want 6", len(ids))
	}
	for _, id := range ids {
		d, _ := Lookup(id)
		if w := layoutWidth(d.Output); w != PayloadSize {
			t.Errorf("%s output is %d bytes, want %d", d.Name, w, PayloadSize)
		}
		if w := d.Response.NaturalWidth(); w > PayloadSize {
			t.Errorf("%s response is %d bytes, max %d", d.Name, w, PayloadSize)
		}
	}
}

func TestCommandName(t *testing.T) {
	tests := []struct {
		id   CommandID
		want string
	}{
		{CmdStatus1, "STATUS1"},
		{CmdStatus2, "STATUS2"},
		{CmdStatus3, "STATUS3"},
		{CmdSetpoint, "SETPOINT"},
		{CmdStartPump, "START_PUMP"},
		{CmdStopPump, "STOP_PUMP"},
		{CommandID(0x7F), "UNKNOWN(0x7F)"},
	}
	for _, tt := range tests {
		if got := CommandName(tt.id); got != tt.want {
			t.Errorf("CommandName(%d) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestNewDescriptor(t *testing.T) {
	tests := []struct {
		name     string
		output   []Kind
		response FieldSpec
		wantErr  bool
	}{
		{
			name:     "valid",
			output:   sevenBytes,
			response: FieldSpec{{KindHalf, "a"}, {KindFixed, "b"}},
		},
		{
			name:     "short output",
			output:   []Kind{KindHalf, KindHalf},
			response: emptyResponse,
			wantErr:  true,
		},
		{
			name:     "long output",
			output:   []Kind{KindLong, KindLong},
			response: emptyResponse,
			wantErr:  true,
		},
		{
			name:   "response too wide",
			output: sevenBytes,
			response: FieldSpec{
				{KindHalf, "label1"},
				{KindHalf, "label2"},
				{KindHalf, "label3"},
				{KindFixed, "label4"},
				{KindLong, "label5"},
			},
			wantErr: true,
		},
		{
			name:     "duplicate field",
			output:   sevenBytes,
			response: FieldSpec{{KindByte, "a"}, {KindByte, "a"}},
			wantErr:  true,
		},
		{
			name:     "invalid kind",
			output:   sevenBytes,
			response: FieldSpec{{Kind(99), "a"}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDescriptor(CommandID(16), "TEST", tt.output, tt.response)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("NewDescriptor error: %v", err)
				}
				if d.ID != 16 || d.Name != "TEST" {
					t.Errorf("descriptor = %+v", d)
				}
				return
			}
			var ce *ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("NewDescriptor error = %v, want *ConfigError", err)
			}
			if ce.Command != 16 {
				t.Errorf("ConfigError.Command = %d, want 16", ce.Command)
			}
		})
	}
}

func TestMessageFrames(t *testing.T) {
	setpoint, err := NewSetpoint(93.5)
	if err != nil {
		t.Fatalf("NewSetpoint error: %v", err)
	}

	tests := []struct {
		name string
		msg  Message
		want [FrameSize]byte
	}{
		{"status1", NewStatus1(), [FrameSize]byte{1, 0, 0, 0, 0, 0, 0, 0}},
		{"status2", NewStatus2(), [FrameSize]byte{2, 0, 0, 0, 0, 0, 0, 0}},
		{"status3", NewStatus3(), [FrameSize]byte{3, 0, 0, 0, 0, 0, 0, 0}},
		{"setpoint", setpoint, [FrameSize]byte{10, 93, 127, 0, 0, 0, 0, 0}},
		{"start pump", NewStartPump(5000), [FrameSize]byte{20, 0x13, 0x88, 0, 0, 0, 0, 0}},
		{"stop pump", NewStopPump(StopDistinct), [FrameSize]byte{21, 0, 0, 0, 0, 0, 0, 0}},
		{"stop pump legacy", NewStopPump(StopLegacy), [FrameSize]byte{20, 0, 0, 0, 0, 0, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.msg.Frame(); got != tt.want {
				t.Errorf("Frame() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestNewSetpoint_OutOfRange(t *testing.T) {
	if _, err := NewSetpoint(300); !errors.Is(err, ErrFloatRange) {
		t.Errorf("NewSetpoint(300) error = %v, want ErrFloatRange", err)
	}
	if _, err := NewSetpoint(-1); !errors.Is(err, ErrFloatRange) {
		t.Errorf("NewSetpoint(-1) error = %v, want ErrFloatRange", err)
	}
}

func TestNewMessage_Errors(t *testing.T) {
	if _, err := NewMessage(CommandID(99), Zeros(PayloadSize)...); !errors.Is(err, ErrUnknownCmd) {
		t.Errorf("unregistered id error = %v, want ErrUnknownCmd", err)
	}

	var ce *ConfigError
	if _, err := NewMessage(CmdStartPump, Zeros(PayloadSize)...); !errors.As(err, &ce) {
		t.Errorf("wrong argument count error = %v, want *ConfigError", err)
	}

	args := append([]Arg{Byte(1), Byte(2)}, Zeros(4)...)
	_, err := NewMessage(CmdStartPump, args...)
	if !errors.As(err, &ce) || !strings.Contains(err.Error(), "argument 0") {
		t.Errorf("wrong argument kind error = %v", err)
	}
}

func TestParseStopEncoding(t *testing.T) {
	tests := []struct {
		in      string
		want    StopEncoding
		wantErr bool
	}{
		{"", StopDistinct, false},
		{"distinct", StopDistinct, false},
		{"legacy", StopLegacy, false},
		{"bogus", StopDistinct, true},
	}
	for _, tt := range tests {
		got, err := ParseStopEncoding(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStopEncoding(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseStopEncoding(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if StopLegacy.String() != "legacy" || StopDistinct.String() != "distinct" {
		t.Errorf("String() = %q / %q", StopLegacy, StopDistinct)
	}
}
