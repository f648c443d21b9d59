// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package publish provides sinks for sensor data records.
package publish

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kortschak/h10"
)

// Record is a sensor data record.
type Record struct {
	Session uuid.UUID `json:"session"`
	Kind    string    `json:"kind"`

	// Time is the sample times of ECG and accelerometer records,
	// in nanoseconds since the Unix epoch offset by the local zone.
	Time  []int64 `json:"time,omitempty"`
	Lead1 []int32 `json:"lead1,omitempty"` // µV
	X     []int32 `json:"x,omitempty"`     // mG
	Y     []int32 `json:"y,omitempty"`     // mG
	Z     []int32 `json:"z,omitempty"`     // mG

	HeartRate      uint16  `json:"heart_rate,omitempty"`
	RR             []int64 `json:"rr_interval,omitempty"` // ms
	SensorContact  *bool   `json:"sensor_contact,omitempty"`
	EnergyExpended *int    `json:"energy_expended,omitempty"`

	BatteryLevel *int `json:"battery_level,omitempty"`
}

// NewRecord returns the record for d in the given recording session.
func NewRecord(session uuid.UUID, d h10.Data) Record {
	r := Record{Session: session, Kind: strings.ToLower(d.Kind().String())}
	switch d := d.(type) {
	case h10.ECG:
		r.Time = d.Time
		r.Lead1 = d.Lead1
	case h10.Acc:
		r.Time = d.Time
		r.X, r.Y, r.Z = d.X, d.Y, d.Z
	case h10.HeartRate:
		r.HeartRate = d.HR
		if d.ContactSupported {
			r.SensorContact = &d.Contact
		}
		if d.EnergyExpended {
			r.EnergyExpended = &d.Energy
		}
		if len(d.RR) != 0 {
			r.RR = make([]int64, len(d.RR))
			for i, v := range d.RR {
				r.RR[i] = v.Milliseconds()
			}
		}
	case h10.BatteryLevel:
		r.BatteryLevel = &d.Percent
	}
	return r
}

// Sink is a destination for records.
type Sink interface {
	Publish(ctx context.Context, r Record) error
	Close() error
}

// Multi is a Sink that publishes to all its sinks.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Publish(ctx, r))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// ErrClosed is returned when publishing to a closed Async.
var ErrClosed = errors.New("publish: sink closed")

// Async is a Sink that publishes records to another Sink from a separate
// goroutine so that callers are not blocked by slow sinks. Records
// published while the queue is full are dropped.
type Async struct {
	sink    Sink
	timeout time.Duration
	log     *zap.Logger

	mu      sync.Mutex
	closed  bool
	queue   chan Record
	dropped int

	done chan struct{}
}

// NewAsync returns an Async publishing to sink with a queue of n records.
// Each record is published with the given timeout.
func NewAsync(sink Sink, n int, timeout time.Duration, log *zap.Logger) *Async {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Async{
		sink:    sink,
		timeout: timeout,
		log:     log,
		queue:   make(chan Record, n),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for r := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.sink.Publish(ctx, r)
		cancel()
		if err != nil {
			a.log.Warn("failed to publish record", zap.String("kind", r.Kind), zap.Error(err))
		}
	}
}

// Publish queues r for publication. The context is not used.
func (a *Async) Publish(_ context.Context, r Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- r:
	default:
		a.dropped++
		a.log.Warn("dropped record", zap.String("kind", r.Kind), zap.Int("total_dropped", a.dropped))
	}
	return nil
}

// Dropped returns the number of records dropped because the queue was full.
func (a *Async) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close publishes all queued records and closes the underlying sink.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
	return a.sink.Close()
}
