// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kortschak/h10/gatt"
)

// DefaultTimeout is the default time to wait for a control point response.
const DefaultTimeout = 5 * time.Second

// Status is a PMD control point response status.
type Status uint8

//go:generate go tool golang.org/x/tools/cmd/stringer -type Status -trimprefix Status
const (
	StatusSuccess                 Status = 0
	StatusInvalidOpCode           Status = 1
	StatusInvalidMeasurementType  Status = 2
	StatusNotSupported            Status = 3
	StatusInvalidLength           Status = 4
	StatusInvalidParameter        Status = 5
	StatusAlreadyInState          Status = 6
	StatusInvalidResolution       Status = 7
	StatusInvalidSampleRate       Status = 8
	StatusInvalidRange            Status = 9
	StatusInvalidMTU              Status = 10
	StatusInvalidNumberOfChannels Status = 11
	StatusInvalidState            Status = 12
	StatusDeviceInCharger         Status = 13
)

// Control point response offsets.
const (
	responseCommandOffset  = 1
	responseMeasureOffset  = 2
	responseStatusOffset   = 3
	responseMoreOffset     = 4
	responseSettingsOffset = 5
)

// requestHeaderSize is the size of the command and measurement type
// prefix of a control point request.
const requestHeaderSize = 2

// Response is a PMD control point response.
type Response struct {
	Command Command
	Measure MeasureType
	Status  Status
	// More indicates that the sensor has more data to send.
	More bool
	// Settings holds the response parameters. It is only
	// populated for successful responses.
	Settings Settings
}

// UnmarshalBinary decodes a control point response.
func (r *Response) UnmarshalBinary(data []byte) error {
	if len(data) <= responseStatusOffset {
		return fmt.Errorf("short response: %#x", data)
	}
	*r = Response{
		Command: Command(data[responseCommandOffset]),
		Measure: MeasureType(data[responseMeasureOffset]),
		Status:  Status(data[responseStatusOffset]),
		More:    len(data) > responseMoreOffset && data[responseMoreOffset] != 0,
	}
	if r.Status == StatusSuccess && len(data) > responseSettingsOffset {
		r.Settings = ParseSettings(data[responseSettingsOffset:])
	}
	return nil
}

// matches returns whether r is the response to a request with the given
// command and measurement type.
func (r Response) matches(com Command, measure MeasureType) bool {
	return r.Command == com && r.Measure == measure
}

// ControlPoint executes PMD control point transactions. Only one
// transaction is in flight at a time; concurrent calls to Execute wait
// for earlier transactions to complete.
type ControlPoint struct {
	tr      gatt.Transport
	timeout time.Duration
	log     *zap.Logger

	// mu is held for the whole of a transaction.
	mu sync.Mutex

	pmu     sync.Mutex
	pending *transaction
}

// Option is a ControlPoint option.
type Option func(*ControlPoint)

// WithTimeout sets the time to wait for a response. Non-positive values
// are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *ControlPoint) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used by the control point.
func WithLogger(log *zap.Logger) Option {
	return func(c *ControlPoint) {
		if log != nil {
			c.log = log
		}
	}
}

// NewControlPoint returns a ControlPoint using the provided transport.
func NewControlPoint(tr gatt.Transport, opts ...Option) *ControlPoint {
	c := &ControlPoint{
		tr:      tr,
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// transaction is a single in flight control point request.
type transaction struct {
	com     Command
	measure MeasureType

	once sync.Once
	done chan struct{}
	resp Response
	err  error
}

func newTransaction(com Command, measure MeasureType) *transaction {
	return &transaction{com: com, measure: measure, done: make(chan struct{})}
}

// resolve completes the transaction if it is still pending, reporting
// whether it did so.
func (t *transaction) resolve(resp Response, err error) bool {
	var ok bool
	t.once.Do(func() {
		t.resp, t.err = resp, err
		close(t.done)
		ok = true
	})
	return ok
}

// fail completes the transaction with an invalid state status.
func (t *transaction) fail(err error) bool {
	return t.resolve(Response{Command: t.com, Measure: t.measure, Status: StatusInvalidState}, err)
}

// Execute sends a command for the measurement type with the provided
// settings to the control point and waits for the matching response.
//
// Notifications that do not echo the command and measurement type are
// ignored. If no matching response arrives before the timeout, Execute
// returns a response with StatusInvalidState and ErrResponseTimeout. A
// response with a status other than StatusSuccess is not an error.
func (c *ControlPoint) Execute(ctx context.Context, com Command, measure MeasureType, settings Settings) (Response, error) {
	msg := make([]byte, requestHeaderSize+settings.Size())
	msg[0] = byte(com)
	msg[1] = byte(measure)
	_, err := settings.write(msg[requestHeaderSize:])
	if err != nil {
		return Response{Command: com, Measure: measure, Status: StatusInvalidState}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx := newTransaction(com, measure)
	c.setPending(tx)
	defer c.setPending(nil)

	err = c.tr.Subscribe(ControlPointID, c.handleResponse)
	defer func() {
		if err := c.tr.Unsubscribe(ControlPointID); err != nil {
			c.log.Warn("failed to unsubscribe from pmd control point", zap.Error(err))
		}
	}()
	if err != nil {
		return Response{Command: com, Measure: measure, Status: StatusInvalidState},
			fmt.Errorf("failed to subscribe to pmd control point: %w", err)
	}

	c.log.Debug("sending pmd control point request",
		zap.Stringer("command", com),
		zap.Stringer("measurement", measure),
		zap.Binary("payload", msg),
	)
	err = c.tr.Write(ControlPointID, msg, true)
	if err != nil {
		return Response{Command: com, Measure: measure, Status: StatusInvalidState},
			fmt.Errorf("failed to write pmd control point request: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-tx.done:
	case <-timer.C:
		if tx.fail(ErrResponseTimeout) {
			c.log.Error("pmd control point response timeout",
				zap.Stringer("command", com),
				zap.Stringer("measurement", measure),
				zap.Duration("timeout", c.timeout),
			)
		}
	case <-ctx.Done():
		tx.fail(ctx.Err())
	}
	<-tx.done
	return tx.resp, tx.err
}

// Abort fails any in flight transaction with ErrDisconnected.
func (c *ControlPoint) Abort() {
	c.pmu.Lock()
	tx := c.pending
	c.pmu.Unlock()
	if tx != nil && tx.fail(ErrDisconnected) {
		c.log.Warn("aborted pmd control point request",
			zap.Stringer("command", tx.com),
			zap.Stringer("measurement", tx.measure),
		)
	}
}

func (c *ControlPoint) setPending(tx *transaction) {
	c.pmu.Lock()
	c.pending = tx
	c.pmu.Unlock()
}

func (c *ControlPoint) handleResponse(buf []byte) {
	var resp Response
	err := resp.UnmarshalBinary(buf)
	if err != nil {
		c.log.Debug("ignoring pmd control point notification", zap.Error(err))
		return
	}
	c.pmu.Lock()
	tx := c.pending
	c.pmu.Unlock()
	if tx == nil || !resp.matches(tx.com, tx.measure) {
		c.log.Debug("ignoring unmatched pmd control point response",
			zap.Stringer("command", resp.Command),
			zap.Stringer("measurement", resp.Measure),
		)
		return
	}
	if tx.resolve(resp, nil) {
		c.log.Debug("received pmd control point response",
			zap.Stringer("command", resp.Command),
			zap.Stringer("measurement", resp.Measure),
			zap.Stringer("status", resp.Status),
		)
	}
}
