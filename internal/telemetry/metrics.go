// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package telemetry exports controller status as Prometheus metrics and
// fans it out over Redis.
package telemetry

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/crema/pkg/crema"
	"github.com/Thermoquad/crema/pkg/session"
)

const namespace = "crema"

// Metrics holds the exporter collectors. Each Metrics owns its registry so
// several can coexist in tests.
type Metrics struct {
	Registry *prometheus.Registry

	// Status gauges
	Temp           prometheus.Gauge
	Power          prometheus.Gauge
	PumpRemaining  prometheus.Gauge
	PumpOn         prometheus.Gauge
	HeaterOn       prometheus.Gauge
	HeaterOnCycle  prometheus.Gauge
	HeaterOffCycle prometheus.Gauge
	ControlPeriod  prometheus.Gauge
	LastPoll       prometheus.Gauge

	// Poll counters
	Polls      prometheus.Counter
	PollErrors prometheus.Counter
	Anomalies  *prometheus.CounterVec

	// Channel metrics
	Dispatches       *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
}

// NewMetrics creates and registers the collectors
func NewMetrics() *Metrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	m := &Metrics{
		Registry:       prometheus.NewRegistry(),
		Temp:           gauge("temperature_celsius", "Boiler temperature reported by STATUS2"),
		Power:          gauge("heater_power_ratio", "Heater duty ratio reported by STATUS3"),
		PumpRemaining:  gauge("pump_remaining_seconds", "Device pump countdown"),
		PumpOn:         gauge("pump_on", "1 while the pump runs"),
		HeaterOn:       gauge("heater_on", "1 while the heater is energised"),
		HeaterOnCycle:  gauge("heater_on_cycle_seconds", "Time left in the heater on phase"),
		HeaterOffCycle: gauge("heater_off_cycle_seconds", "Time left in the heater off phase"),
		ControlPeriod:  gauge("control_period_seconds", "Controller loop period"),
		LastPoll:       gauge("last_poll_timestamp_seconds", "Host time of the last successful status read"),
		Polls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_polls_total",
			Help:      "Successful status reads",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_poll_errors_total",
			Help:      "Failed status reads",
		}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_anomalies_total",
			Help:      "Implausible status readings by kind",
		}, []string{"type"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Frame round-trips by command and result",
		}, []string{"command", "result"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Round-trip time of successful dispatches",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		}),
	}

	m.Registry.MustRegister(
		m.Temp, m.Power, m.PumpRemaining, m.PumpOn, m.HeaterOn,
		m.HeaterOnCycle, m.HeaterOffCycle, m.ControlPeriod, m.LastPoll,
		m.Polls, m.PollErrors, m.Anomalies,
		m.Dispatches, m.DispatchDuration,
	)

	// Every command shows up at zero before its first dispatch
	for _, id := range crema.Commands() {
		m.Dispatches.WithLabelValues(crema.CommandName(id), "ok")
	}
	return m
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ObserveStatus updates the status gauges
func (m *Metrics) ObserveStatus(st session.Status) {
	m.Polls.Inc()
	m.Temp.Set(st.Temp)
	m.Power.Set(st.Power)
	m.PumpRemaining.Set(st.PumpRemaining().Seconds())
	m.PumpOn.Set(boolGauge(st.PumpOn))
	m.HeaterOn.Set(boolGauge(st.HeaterOn))
	m.HeaterOnCycle.Set(float64(st.HeaterOnCycle) / 1000)
	m.HeaterOffCycle.Set(float64(st.HeaterOffCycle) / 1000)
	m.ControlPeriod.Set(float64(st.DT) / 1000)
	if !st.ReadAt.IsZero() {
		m.LastPoll.Set(float64(st.ReadAt.UnixNano()) / 1e9)
	}
}

// ObserveAnomalies counts validation findings
func (m *Metrics) ObserveAnomalies(anomalies []session.ValidationError) {
	for _, a := range anomalies {
		m.Anomalies.WithLabelValues(a.Type.String()).Inc()
	}
}

// ObserveDispatch records one channel round-trip. Pass it to
// crema.WithObserver.
func (m *Metrics) ObserveDispatch(ev crema.DispatchEvent) {
	m.Dispatches.WithLabelValues(crema.CommandName(ev.Command), dispatchResult(ev.Err)).Inc()
	if ev.Err == nil {
		m.DispatchDuration.Observe(ev.Duration.Seconds())
	}
}

func dispatchResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, crema.ErrShortRead):
		return "short_read"
	case errors.Is(err, crema.ErrEchoMismatch):
		return "echo_mismatch"
	default:
		return "error"
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
