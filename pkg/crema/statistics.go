// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crema

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks dispatch counts, failures and round-trip times.
// It is safe to read from a UI goroutine while the channel updates it.
type Statistics struct {
	mu sync.Mutex

	StartTime time.Time

	// Counters
	TotalDispatches uint64
	Successful      uint64
	ShortReads      uint64
	EchoMismatches  uint64
	WriteErrors     uint64
	OtherErrors     uint64
	PerCommand      map[CommandID]uint64

	// Round-trip times
	LastRTT time.Duration
	MaxRTT  time.Duration
	sumRTT  time.Duration

	// Rates (calculated)
	DispatchRate float64 // dispatches/sec
	ErrorRate    float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{
		StartTime:  time.Now(),
		PerCommand: make(map[CommandID]uint64),
	}
}

// Observe records one dispatch. Pass it to WithObserver.
func (s *Statistics) Observe(ev DispatchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalDispatches++
	s.PerCommand[ev.Command]++

	var te *TransportError
	switch {
	case ev.Err == nil:
		s.Successful++
		s.LastRTT = ev.Duration
		s.sumRTT += ev.Duration
		if ev.Duration > s.MaxRTT {
			s.MaxRTT = ev.Duration
		}
	case errors.Is(ev.Err, ErrShortRead):
		s.ShortReads++
	case errors.Is(ev.Err, ErrEchoMismatch):
		s.EchoMismatches++
	case errors.As(ev.Err, &te) && te.Op == "write":
		s.WriteErrors++
	default:
		s.OtherErrors++
	}
}

// Totals returns the number of dispatches and how many succeeded
func (s *Statistics) Totals() (total, successful uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TotalDispatches, s.Successful
}

// Count returns how many times a command was dispatched
func (s *Statistics) Count(id CommandID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PerCommand[id]
}

// Errors returns the total number of failed dispatches
func (s *Statistics) Errors() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errors()
}

func (s *Statistics) errors() uint64 {
	return s.ShortReads + s.EchoMismatches + s.WriteErrors + s.OtherErrors
}

// MeanRTT returns the mean round-trip time of successful dispatches
func (s *Statistics) MeanRTT() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Successful == 0 {
		return 0
	}
	return s.sumRTT / time.Duration(s.Successful)
}

// CalculateRates calculates dispatch and error rates
func (s *Statistics) CalculateRates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.DispatchRate = float64(s.TotalDispatches) / elapsed
		s.ErrorRate = float64(s.errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()
	mean := s.MeanRTT()

	s.mu.Lock()
	defer s.mu.Unlock()

	var okPercent float64
	if s.TotalDispatches > 0 {
		okPercent = float64(s.Successful) * 100.0 / float64(s.TotalDispatches)
	}

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", time.Since(s.StartTime).Seconds())
	result += fmt.Sprintf("Dispatches:      %8d\n", s.TotalDispatches)
	result += fmt.Sprintf("Successful:      %8d (%.1f%%)\n", s.Successful, okPercent)
	if s.ShortReads > 0 {
		result += fmt.Sprintf("Short Reads:     %8d\n", s.ShortReads)
	}
	if s.EchoMismatches > 0 {
		result += fmt.Sprintf("Echo Mismatch:   %8d\n", s.EchoMismatches)
	}
	if s.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d\n", s.WriteErrors)
	}
	if s.OtherErrors > 0 {
		result += fmt.Sprintf("Other Errors:    %8d\n", s.OtherErrors)
	}
	result += fmt.Sprintf("Mean RTT:        %8s\n", mean.Round(time.Microsecond))
	result += fmt.Sprintf("Max RTT:         %8s\n", s.MaxRTT.Round(time.Microsecond))
	result += fmt.Sprintf("Dispatch Rate:   %8.1f /sec\n", s.DispatchRate)
	result += fmt.Sprintf("Error Rate:      %8.1f /sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartTime = time.Now()
	s.TotalDispatches = 0
	s.Successful = 0
	s.ShortReads = 0
	s.EchoMismatches = 0
	s.WriteErrors = 0
	s.OtherErrors = 0
	s.PerCommand = make(map[CommandID]uint64)
	s.LastRTT = 0
	s.MaxRTT = 0
	s.sumRTT = 0
	s.DispatchRate = 0
	s.ErrorRate = 0
}
