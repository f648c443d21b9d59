// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package forkbeard provides a tinygo Bluetooth implementation of
// gatt.Transport and helper functions for interacting with Bluetooth
// devices.
package forkbeard

import (
	"errors"
	"fmt"
	"io"

	"tinygo.org/x/bluetooth"

	"github.com/kortschak/h10/gatt"
)

// ErrNoCharacteristic is returned when a device does not provide a
// requested characteristic.
var ErrNoCharacteristic = errors.New("forkbeard: characteristic not found")

// maxAttributeSize is the largest attribute value allowed by the
// Bluetooth core specification. It is used as the read buffer size
// when the platform cannot report the link MTU.
const maxAttributeSize = 512

// DeviceCharacteristic returns the bluetooth.DeviceCharacteristic
// identified by id.
func DeviceCharacteristic(dev *bluetooth.Device, id gatt.ID) (bluetooth.DeviceCharacteristic, error) {
	srv, err := dev.DiscoverServices([]bluetooth.UUID{id.Service})
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, fmt.Errorf("failed to discover service %s: %w", id.Service, err)
	}
	for _, s := range srv {
		char, err := s.DiscoverCharacteristics([]bluetooth.UUID{id.Characteristic})
		if err != nil {
			return bluetooth.DeviceCharacteristic{}, fmt.Errorf("failed to discover characteristic %s: %w", id.Characteristic, err)
		}
		if len(char) != 0 {
			return char[0], nil
		}
	}
	return bluetooth.DeviceCharacteristic{}, fmt.Errorf("%w: %s", ErrNoCharacteristic, id)
}

// ReadCharacteristic reads the value of a Bluetooth characteristic.
func ReadCharacteristic(char bluetooth.DeviceCharacteristic) ([]byte, error) {
	size := maxAttributeSize
	mtu, err := char.GetMTU()
	if err == nil && mtu != 0 {
		size = int(mtu)
	}
	buf := make([]byte, size)
	n, err := char.Read(buf)
	if err != nil && err != io.EOF {
		return buf[:n], fmt.Errorf("failed to read characteristic: %w", err)
	}
	return buf[:n], nil
}

// charWriter is a characteristic that accepts unacknowledged writes.
// All platforms provide this.
type charWriter interface {
	WriteWithoutResponse(p []byte) (int, error)
}

// ackWriter is a characteristic that accepts acknowledged writes. Only
// some platforms provide this.
type ackWriter interface {
	Write(p []byte) (int, error)
}

// writeCharacteristic writes p to char. The write is acknowledged if
// withResponse is true and the platform supports acknowledged writes.
// It reports whether the write was acknowledged.
func writeCharacteristic(char charWriter, p []byte, withResponse bool) (acked bool, err error) {
	if withResponse {
		if w, ok := char.(ackWriter); ok {
			_, err = w.Write(p)
			return true, err
		}
	}
	_, err = char.WriteWithoutResponse(p)
	return false, err
}
