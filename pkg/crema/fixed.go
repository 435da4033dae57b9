// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crema

import (
	"fmt"
	"math"
)

// FixedResolution is the smallest step the fixed-point encoding can represent
const FixedResolution = 1.0 / 255.0

// EncodeFloat splits v into an integer byte and a fraction byte.
// Both parts are truncated toward zero, so the decoded value never exceeds v.
// The fraction is the largest one whose decoded value is still <= v, which
// makes decoded values re-encode to the same bytes.
func EncodeFloat(v float64) (integer, fraction uint8, err error) {
	if math.IsNaN(v) || v < 0 || v >= 256 {
		return 0, 0, fmt.Errorf("%w: %v", ErrFloatRange, v)
	}
	integer = uint8(math.Trunc(v))
	frac := math.Trunc(255 * (v - float64(integer)))
	if frac > 254 {
		frac = 254
	}
	fraction = uint8(frac)

	// Settle binary rounding of the product against the decoder
	for fraction > 0 && DecodeFloat(integer, fraction) > v {
		fraction--
	}
	if fraction < 254 && DecodeFloat(integer, fraction+1) <= v {
		fraction++
	}
	return integer, fraction, nil
}

// DecodeFloat reassembles a fixed-point value
func DecodeFloat(integer, fraction uint8) float64 {
	return float64(integer) + float64(fraction)/255.0
}
