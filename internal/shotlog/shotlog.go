// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package shotlog records the progress of a brew and renders it as a PNG
// chart of boiler temperature and pump time remaining.
package shotlog

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/Thermoquad/crema/pkg/session"
)

// ErrNotEnoughSamples is returned when fewer than two samples were recorded
var ErrNotEnoughSamples = errors.New("shot chart needs at least two samples")

// Sample is one point of a shot
type Sample struct {
	Elapsed   time.Duration
	Temp      float64
	Remaining time.Duration
}

// Log accumulates samples from session progress reports. Only brew phases
// are kept; pauses and preinfusion have no pump countdown to plot.
type Log struct {
	mu      sync.Mutex
	title   string
	samples []Sample
}

// New creates an empty log
func New(title string) *Log {
	return &Log{title: title}
}

// Observe is a session.ProgressFunc
func (l *Log) Observe(p session.Progress) {
	if p.Phase != session.PhaseBrew {
		return
	}
	l.Add(Sample{
		Elapsed:   p.Elapsed,
		Temp:      p.Status.Temp,
		Remaining: p.Status.PumpRemaining(),
	})
}

// Add appends a sample
func (l *Log) Add(s Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.samples = append(l.samples, s)
}

// Samples returns a copy of the recorded samples
func (l *Log) Samples() []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Sample(nil), l.samples...)
}

// paddedRange returns an axis range around values that is never empty
func paddedRange(values []float64, pad float64) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

// Render writes the chart as PNG
func (l *Log) Render(w io.Writer) error {
	samples := l.Samples()
	if len(samples) < 2 {
		return ErrNotEnoughSamples
	}

	xs := make([]float64, len(samples))
	temps := make([]float64, len(samples))
	remaining := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.Elapsed.Seconds()
		temps[i] = s.Temp
		remaining[i] = s.Remaining.Seconds()
	}

	graph := chart.Chart{
		Title: l.title,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 10, Right: 10, Bottom: 10},
		},
		XAxis: chart.XAxis{
			Name:  "Elapsed (s)",
			Range: paddedRange(xs, 0),
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.1f", v.(float64))
			},
		},
		YAxis: chart.YAxis{
			Name:  "Temperature (°C)",
			Range: paddedRange(temps, 1),
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.1f", v.(float64))
			},
		},
		YAxisSecondary: chart.YAxis{
			Name:  "Pump remaining (s)",
			Range: paddedRange(remaining, 0.5),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Temperature",
				XValues: xs,
				YValues: temps,
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex("cc3300"),
					StrokeWidth: 2,
				},
			},
			chart.ContinuousSeries{
				Name:    "Pump remaining",
				YAxis:   chart.YAxisSecondary,
				XValues: xs,
				YValues: remaining,
				Style: chart.Style{
					StrokeColor: drawing.ColorFromHex("0066cc"),
					FillColor:   drawing.ColorFromHex("cce0ff"),
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("failed to render shot chart: %w", err)
	}
	return nil
}

// WriteFile renders the chart to path
func (l *Log) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	if err := l.Render(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
