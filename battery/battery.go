// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package battery implements reading of the standard 180f Bluetooth
// battery service characteristic.
package battery

import (
	"errors"
	"fmt"

	"github.com/kortschak/h10/gatt"
)

const (
	ServiceID             = "180f"
	LevelCharacteristicID = "2a19"
)

// LevelID is the battery level characteristic.
var LevelID = gatt.NewID(ServiceID, LevelCharacteristicID)

// ErrEmpty is returned when a battery level value holds no data.
var ErrEmpty = errors.New("battery: empty level")

// Level returns the battery level percentage read from the provided
// transport.
func Level(tr gatt.Transport) (int, error) {
	// https://www.bluetooth.com/specifications/specs/battery-service/

	resp, err := tr.Read(LevelID)
	if err != nil {
		return 0, fmt.Errorf("failed read battery characteristic: %w", err)
	}
	return parseLevel(resp)
}

func parseLevel(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, ErrEmpty
	}
	return int(data[0]), nil
}

// LevelListener implements handling of battery level notifications.
type LevelListener struct {
	tr gatt.Transport
}

// NewLevelListener returns a new LevelListener for the provided transport.
// The h function is called with received battery level notifications.
func NewLevelListener(tr gatt.Transport, h func(int, error)) (*LevelListener, error) {
	err := tr.Subscribe(LevelID, func(buf []byte) {
		h(parseLevel(buf))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to battery level: %w", err)
	}
	return &LevelListener{tr: tr}, nil
}

// Close disables battery level notifications from the connected sensor.
func (l *LevelListener) Close() error { return l.tr.Unsubscribe(LevelID) }
