// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package crema

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Record is one captured exchange. A capture file is a plain sequence of
// CBOR-encoded records, appended as dispatches complete.
type Record struct {
	TimeNs int64  `cbor:"0,keyasint"`
	Tx     []byte `cbor:"1,keyasint"`
	Rx     []byte `cbor:"2,keyasint,omitempty"`
	Error  string `cbor:"3,keyasint,omitempty"`
}

// Time returns the record timestamp
func (r Record) Time() time.Time {
	return time.Unix(0, r.TimeNs)
}

// String formats the record like the live frame log
func (r Record) String() string {
	return FormatExchange(r.Time(), r.Tx, r.Rx, r.Error)
}

// Recorder appends dispatch events to a capture stream
type Recorder struct {
	mu  sync.Mutex
	enc *cbor.Encoder
	err error
}

// NewRecorder creates a recorder writing to w
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: cbor.NewEncoder(w)}
}

// Observe records one dispatch. Pass it to WithObserver.
// Write failures are kept and reported by Err; capture never aborts a dispatch.
func (r *Recorder) Observe(ev DispatchEvent) {
	rec := Record{
		TimeNs: ev.Time.UnixNano(),
		Tx:     append([]byte(nil), ev.Tx[:]...),
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	} else {
		rec.Rx = append([]byte(nil), ev.Rx[:]...)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	if err := r.enc.Encode(rec); err != nil {
		r.err = fmt.Errorf("capture write failed: %w", err)
	}
}

// Err returns the first write error, if any
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// ReadCapture decodes every record in a capture stream
func ReadCapture(rd io.Reader) ([]Record, error) {
	dec := cbor.NewDecoder(rd)
	var records []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, fmt.Errorf("failed to decode capture record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
}
