// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/crema/pkg/session"
)

// StatusReader is the part of a session the exporter needs
type StatusReader interface {
	GetStatus() (session.Status, error)
}

// Exporter polls the controller on a fixed interval and feeds the results
// to the metrics and, when configured, the Redis publisher.
type Exporter struct {
	reader    StatusReader
	metrics   *Metrics
	publisher *Publisher
	interval  time.Duration
	logger    *zap.Logger

	prev *session.Status

	mu      sync.Mutex
	polled  bool
	lastErr error
}

// ErrNoPollYet is reported by Healthy before the first poll completes
var ErrNoPollYet = errors.New("no status read yet")

// NewExporter creates an exporter. publisher may be nil.
func NewExporter(reader StatusReader, metrics *Metrics, publisher *Publisher, interval time.Duration, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		reader:    reader,
		metrics:   metrics,
		publisher: publisher,
		interval:  interval,
		logger:    logger,
	}
}

// PollOnce reads one status and publishes it. Read failures are counted
// and returned; publish failures are logged only.
func (e *Exporter) PollOnce(ctx context.Context) (session.Status, error) {
	st, err := e.reader.GetStatus()
	e.mu.Lock()
	e.polled = true
	e.lastErr = err
	e.mu.Unlock()
	if err != nil {
		e.metrics.PollErrors.Inc()
		return session.Status{}, err
	}

	anomalies := session.ValidateStatus(st, e.prev)
	e.prev = &st

	e.metrics.ObserveStatus(st)
	e.metrics.ObserveAnomalies(anomalies)
	for _, a := range anomalies {
		e.logger.Warn("status anomaly", zap.String("type", a.Type.String()), zap.String("detail", a.Message))
	}

	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, NewStatusRecord(st, anomalies)); err != nil {
			e.logger.Warn("status publish failed", zap.Error(err))
		}
	}
	return st, nil
}

// Healthy returns the error of the most recent poll, or ErrNoPollYet
func (e *Exporter) Healthy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.polled {
		return ErrNoPollYet
	}
	return e.lastErr
}

// Run polls until ctx is done. Individual read failures do not stop the
// loop; the controller may be power-cycled while the exporter runs.
func (e *Exporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		if _, err := e.PollOnce(ctx); err != nil {
			e.logger.Error("status poll failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
