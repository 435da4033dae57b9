// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crema

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"time"
)

// FormatExchange formats one request/reply pair into a human-readable string
func FormatExchange(ts time.Time, tx, rx []byte, errText string) string {
	var b strings.Builder

	id := CommandID(0)
	if len(tx) > 0 {
		id = CommandID(tx[0])
	}
	fmt.Fprintf(&b, "[%s] %s (0x%02X)\n", ts.Format("15:04:05.000"), CommandName(id), uint8(id))
	fmt.Fprintf(&b, "  TX: % X\n", tx)
	if len(tx) == FrameSize {
		b.WriteString(FormatRequest(id, tx[1:]))
	}

	if errText != "" {
		fmt.Fprintf(&b, "  ERROR: %s\n", errText)
		return b.String()
	}

	fmt.Fprintf(&b, "  RX: % X\n", rx)
	if d, ok := Lookup(id); ok && len(rx) == FrameSize {
		fields, err := DecodeFields(d.Response, rx[1:])
		if err != nil {
			fmt.Fprintf(&b, "  (decode error: %v)\n", err)
		} else {
			b.WriteString(FormatFields(fields))
		}
	}
	return b.String()
}

// FormatRequest describes the arguments of an outbound payload
func FormatRequest(id CommandID, payload []byte) string {
	if len(payload) < PayloadSize {
		return ""
	}
	switch id {
	case CmdSetpoint:
		return fmt.Sprintf("  Setpoint: %.2f°C\n", DecodeFloat(payload[0], payload[1]))
	case CmdStartPump:
		ms := binary.BigEndian.Uint16(payload)
		if ms == 0 {
			return "  Duration: 0 ms (stop)\n"
		}
		return fmt.Sprintf("  Duration: %d ms\n", ms)
	}
	return ""
}

// FormatFields formats decoded fields one per line, sorted by name
func FormatFields(f Fields) string {
	names := make([]string, 0, len(f))
	for name := range f {
		if name == FieldEmpty {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		switch v := f[name].(type) {
		case float64:
			fmt.Fprintf(&b, "  %s: %.3f\n", name, v)
		case bool:
			fmt.Fprintf(&b, "  %s: %t\n", name, v)
		default:
			fmt.Fprintf(&b, "  %s: %v\n", name, v)
		}
	}
	return b.String()
}
