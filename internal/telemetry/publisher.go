// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Thermoquad/crema/pkg/session"
)

// StatusRecord is the JSON form of a status published to Redis
type StatusRecord struct {
	Time           time.Time `json:"time"`
	Temp           float64   `json:"temp"`
	Power          float64   `json:"power"`
	PumpOnCycle    uint32    `json:"pump_on_cycle"`
	PumpOn         bool      `json:"pump_on"`
	HeaterOnCycle  uint16    `json:"heater_on_cycle"`
	HeaterOffCycle uint16    `json:"heater_off_cycle"`
	DT             uint16    `json:"dt"`
	HeaterOn       bool      `json:"heater_on"`
	Anomalies      []string  `json:"anomalies,omitempty"`
}

// NewStatusRecord converts a session status
func NewStatusRecord(st session.Status, anomalies []session.ValidationError) StatusRecord {
	rec := StatusRecord{
		Time:           st.ReadAt,
		Temp:           st.Temp,
		Power:          st.Power,
		PumpOnCycle:    st.PumpOnCycle,
		PumpOn:         st.PumpOn,
		HeaterOnCycle:  st.HeaterOnCycle,
		HeaterOffCycle: st.HeaterOffCycle,
		DT:             st.DT,
		HeaterOn:       st.HeaterOn,
	}
	for _, a := range anomalies {
		rec.Anomalies = append(rec.Anomalies, a.Message)
	}
	return rec
}

// PublisherOptions configures a Publisher
type PublisherOptions struct {
	Addr       string
	Password   string
	DB         int
	Channel    string
	HistoryKey string
	HistoryLen int64
	Logger     *zap.Logger
}

// Publisher sends status records to a Redis channel and keeps a capped
// history list.
type Publisher struct {
	client     *redis.Client
	channel    string
	historyKey string
	historyLen int64
	logger     *zap.Logger
}

// NewPublisher connects to Redis and checks the connection
func NewPublisher(ctx context.Context, opts PublisherOptions) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("redis connected", zap.String("addr", opts.Addr), zap.String("channel", opts.Channel))

	return &Publisher{
		client:     client,
		channel:    opts.Channel,
		historyKey: opts.HistoryKey,
		historyLen: opts.HistoryLen,
		logger:     logger,
	}, nil
}

// Publish sends one record. A failure to update the history list is
// logged but does not fail the publish.
func (p *Publisher) Publish(ctx context.Context, rec StatusRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish status: %w", err)
	}

	if p.historyKey == "" {
		return nil
	}
	if err := p.client.LPush(ctx, p.historyKey, data).Err(); err != nil {
		p.logger.Warn("failed to append status history", zap.Error(err))
		return nil
	}
	if p.historyLen > 0 {
		if err := p.client.LTrim(ctx, p.historyKey, 0, p.historyLen-1).Err(); err != nil {
			p.logger.Warn("failed to trim status history", zap.Error(err))
		}
	}
	return nil
}

// History returns up to n of the most recent records, newest first
func (p *Publisher) History(ctx context.Context, n int64) ([]StatusRecord, error) {
	raw, err := p.client.LRange(ctx, p.historyKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read status history: %w", err)
	}

	records := make([]StatusRecord, 0, len(raw))
	for _, item := range raw {
		var rec StatusRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return records, fmt.Errorf("failed to decode status history entry: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// defaultHistoryLimit caps /history responses without an n parameter
const defaultHistoryLimit = 100

// HistoryHandler serves the most recent records as a JSON array, newest
// first. The optional n query parameter sets how many.
func (p *Publisher) HistoryHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int64(defaultHistoryLimit)
		if s := r.URL.Query().Get("n"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil || v <= 0 {
				http.Error(w, "n must be a positive integer", http.StatusBadRequest)
				return
			}
			n = v
		}

		records, err := p.History(r.Context(), n)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			p.logger.Warn("failed to write status history", zap.Error(err))
		}
	})
}

// Close closes the Redis connection
func (p *Publisher) Close() error {
	return p.client.Close()
}
