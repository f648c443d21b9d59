// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package heart implements handling of the standard 180d Bluetooth
// heart rate service notifications.
package heart

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/kortschak/h10/gatt"
)

const (
	RateServiceID     = "180d"
	RateMeasurementID = "2a37"
)

// RateMeasurement is the heart rate measurement characteristic.
var RateMeasurement = gatt.NewID(RateServiceID, RateMeasurementID)

var (
	// ErrEmpty is returned when a notification is too short to hold
	// a heart rate.
	ErrEmpty = errors.New("heart: empty measurement")
	// ErrTruncated is returned when a notification ends part way through
	// the energy expended or an RR interval field.
	ErrTruncated = errors.New("heart: truncated measurement")
)

// RateListener implements handling of heart rate notifications.
type RateListener struct {
	tr gatt.Transport
}

// NewRateListener returns a new RateListener for the provided transport.
// The h function is called with received heart rate notifications.
func NewRateListener(tr gatt.Transport, h func(Rate, error)) (*RateListener, error) {
	err := tr.Subscribe(RateMeasurement, func(buf []byte) {
		var m Rate
		err := m.UnmarshalBinary(buf)
		h(m, err)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to heart rate measurement: %w", err)
	}
	return &RateListener{tr: tr}, nil
}

// Close disables heart rate notifications from the connected sensor.
func (l *RateListener) Close() error { return l.tr.Unsubscribe(RateMeasurement) }

// Rate is a heart rate measurement.
type Rate struct {
	HR uint16
	// RR holds the RR intervals in the measurement
	// truncated to millisecond precision.
	RR               []time.Duration
	Energy           int // kJ, -1 if not present.
	EnergyExpended   bool
	Contact          bool
	ContactSupported bool
}

func (m *Rate) UnmarshalBinary(data []byte) error {
	// https://www.bluetooth.com/specifications/specs/heart-rate-service-1-0/

	if len(data) < 2 {
		*m = Rate{}
		return ErrEmpty
	}

	// 3.1.1.1. Flags Field
	// | 0x10 | 0x8 | 0x4  0x2 | 0x1 |
	// |  rr  | nrg | scs  cnt | fmt |
	wide := data[0]&0x01 != 0
	contactSupported := data[0]&0x4 != 0
	contact := contactSupported && data[0]&0x2 != 0
	energyExpended := data[0]&0x8 != 0
	rrPresent := data[0]&0x10 != 0
	offset := 1

	// A 16-bit rate may be sent with only its low byte.
	hrValue := uint16(data[offset])
	offset++
	if wide && len(data) > offset {
		hrValue |= uint16(data[offset]) << 8
		offset++
	}

	energy := -1
	if energyExpended {
		if len(data) < offset+2 {
			*m = Rate{}
			return fmt.Errorf("%w: energy expended", ErrTruncated)
		}
		energy = int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
	}

	var rr []time.Duration
	if rrPresent {
		rrData := data[offset:]
		if len(rrData)%2 != 0 {
			*m = Rate{}
			return fmt.Errorf("%w: rr interval", ErrTruncated)
		}
		rr = make([]time.Duration, 0, len(rrData)/2)
		for i := 0; i < len(rrData); i += 2 {
			v := int64(binary.LittleEndian.Uint16(rrData[i:]))
			rr = append(rr, time.Duration(v*1000/1024)*time.Millisecond)
		}
	}

	*m = Rate{
		HR:               hrValue,
		RR:               rr,
		Energy:           energy,
		EnergyExpended:   energyExpended,
		Contact:          contact,
		ContactSupported: contactSupported,
	}
	return nil
}
