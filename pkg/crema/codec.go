// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crema

import (
	"encoding/binary"
	"fmt"
)

// Fields holds decoded response values keyed by field name.
// Integer kinds decode to uint64, bool to bool and fixed to float64.
type Fields map[string]interface{}

// EncodeFrame builds a complete outbound frame for the given command.
// The arguments must fill the 7 payload bytes exactly.
func EncodeFrame(id CommandID, args ...Arg) ([FrameSize]byte, error) {
	var frame [FrameSize]byte
	payload, err := EncodePayload(args...)
	if err != nil {
		return frame, err
	}
	frame[0] = byte(id)
	copy(frame[1:], payload[:])
	return frame, nil
}

// EncodePayload serializes arguments into a 7-byte payload
func EncodePayload(args ...Arg) ([PayloadSize]byte, error) {
	var payload [PayloadSize]byte

	width := 0
	for _, a := range args {
		width += a.Kind.Width()
	}
	if width != PayloadSize {
		return payload, &ConfigError{Message: fmt.Sprintf("output arguments need %d bytes (want %d)", width, PayloadSize)}
	}

	offset := 0
	for _, a := range args {
		switch a.Kind {
		case KindByte:
			payload[offset] = uint8(a.uval)
		case KindHalf:
			binary.BigEndian.PutUint16(payload[offset:], uint16(a.uval))
		case KindLong:
			binary.BigEndian.PutUint32(payload[offset:], a.uval)
		case KindBool:
			if a.bval {
				payload[offset] = 1
			}
		case KindFixed:
			i, f, err := EncodeFloat(a.fval)
			if err != nil {
				return payload, err
			}
			payload[offset] = i
			payload[offset+1] = f
		}
		offset += a.Kind.Width()
	}

	return payload, nil
}

// DecodeFields walks spec over payload and returns the named values.
// Bytes beyond the spec's natural width are ignored.
func DecodeFields(spec FieldSpec, payload []byte) (Fields, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if len(payload) < PayloadSize {
		return nil, fmt.Errorf("payload too short: %d bytes (want %d)", len(payload), PayloadSize)
	}

	fields := make(Fields, len(spec))
	offset := 0
	for _, f := range spec {
		switch f.Kind {
		case KindByte:
			fields[f.Name] = uint64(payload[offset])
		case KindHalf:
			fields[f.Name] = uint64(binary.BigEndian.Uint16(payload[offset:]))
		case KindLong:
			fields[f.Name] = uint64(binary.BigEndian.Uint32(payload[offset:]))
		case KindBool:
			fields[f.Name] = payload[offset] != 0
		case KindFixed:
			fields[f.Name] = DecodeFloat(payload[offset], payload[offset+1])
		}
		offset += f.Kind.Width()
	}

	return fields, nil
}

// Merge copies all entries of other into f, overwriting duplicates
func (f Fields) Merge(other Fields) {
	for k, v := range other {
		f[k] = v
	}
}

// Field value extraction helpers

// GetUint extracts an unsigned integer field by name
func GetUint(f Fields, name string) (uint64, bool) {
	if f == nil {
		return 0, false
	}
	v, ok := f[name].(uint64)
	return v, ok
}

// GetFloat extracts a fixed-point field by name
func GetFloat(f Fields, name string) (float64, bool) {
	if f == nil {
		return 0, false
	}
	switch v := f[name].(type) {
	case float64:
		return v, true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

// GetBool extracts a boolean field by name
func GetBool(f Fields, name string) (bool, bool) {
	if f == nil {
		return false, false
	}
	v, ok := f[name].(bool)
	return v, ok
}
