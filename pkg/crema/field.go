// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crema

import "fmt"

// Kind is the wire representation of a single payload value
type Kind int

// Payload value kinds
const (
	KindByte  Kind = iota // 1 byte unsigned
	KindHalf              // 2 bytes unsigned, big-endian
	KindLong              // 4 bytes unsigned, big-endian
	KindBool              // 1 byte, non-zero is true
	KindFixed             // 2 bytes: integer part, fraction*255
)

// Width returns the number of payload bytes a value of this kind occupies
func (k Kind) Width() int {
	switch k {
	case KindByte, KindBool:
		return 1
	case KindHalf, KindFixed:
		return 2
	case KindLong:
		return 4
	}
	return 0
}

// String returns the short name of the kind
func (k Kind) String() string {
	switch k {
	case KindByte:
		return "byte"
	case KindHalf:
		return "half"
	case KindLong:
		return "long"
	case KindBool:
		return "bool"
	case KindFixed:
		return "fixed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Field names one value of a response payload
type Field struct {
	Kind Kind
	Name string
}

// FieldSpec describes how to interpret the 7 payload bytes of a reply.
// Fields are consumed in order; bytes past the natural width are padding.
type FieldSpec []Field

// NaturalWidth returns the number of bytes the fields occupy before padding
func (s FieldSpec) NaturalWidth() int {
	w := 0
	for _, f := range s {
		w += f.Kind.Width()
	}
	return w
}

// Validate reports whether the spec fits in a frame payload
func (s FieldSpec) Validate() error {
	seen := make(map[string]bool, len(s))
	for _, f := range s {
		if f.Kind.Width() == 0 {
			return &ConfigError{Message: fmt.Sprintf("field %q has invalid kind %v", f.Name, f.Kind)}
		}
		if seen[f.Name] {
			return &ConfigError{Message: fmt.Sprintf("duplicate field %q", f.Name)}
		}
		seen[f.Name] = true
	}
	if w := s.NaturalWidth(); w > PayloadSize {
		return &ConfigError{Message: fmt.Sprintf("response fields need %d bytes (max %d)", w, PayloadSize)}
	}
	return nil
}

// layoutWidth returns the byte width of an output layout
func layoutWidth(kinds []Kind) int {
	w := 0
	for _, k := range kinds {
		w += k.Width()
	}
	return w
}

// Arg is one typed output value to be serialized into a request payload
type Arg struct {
	Kind Kind
	uval uint32
	bval bool
	fval float64
}

// Byte returns a 1-byte unsigned argument
func Byte(v uint8) Arg { return Arg{Kind: KindByte, uval: uint32(v)} }

// Half returns a 2-byte unsigned argument
func Half(v uint16) Arg { return Arg{Kind: KindHalf, uval: uint32(v)} }

// Long returns a 4-byte unsigned argument
func Long(v uint32) Arg { return Arg{Kind: KindLong, uval: v} }

// Bool returns a 1-byte boolean argument
func Bool(v bool) Arg { return Arg{Kind: KindBool, bval: v} }

// Fixed returns a 2-byte fixed-point argument
func Fixed(v float64) Arg { return Arg{Kind: KindFixed, fval: v} }

// Zeros returns n zero bytes of padding
func Zeros(n int) []Arg {
	args := make([]Arg, n)
	for i := range args {
		args[i] = Byte(0)
	}
	return args
}
