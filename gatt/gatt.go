// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gatt defines the Bluetooth GATT transport used by the sensor
// service packages, and the identifiers of the generic access and device
// information characteristics.
package gatt

import (
	"context"
	"fmt"

	"tinygo.org/x/bluetooth"
)

// ID identifies a characteristic within a GATT service.
type ID struct {
	Service        bluetooth.UUID
	Characteristic bluetooth.UUID
}

// NewID returns the ID for the provided service and characteristic UUID
// strings. It panics if either is not a valid UUID.
func NewID(service, characteristic string) ID {
	return ID{
		Service:        must(bluetooth.ParseUUID(service)),
		Characteristic: must(bluetooth.ParseUUID(characteristic)),
	}
}

func (id ID) String() string {
	return fmt.Sprintf("%s/%s", id.Service, id.Characteristic)
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// Transport is a connection to a single Bluetooth LE peripheral.
//
// Notification handlers passed to Subscribe are called sequentially
// for each characteristic, and the slice passed to a handler must not
// be retained after it returns.
type Transport interface {
	// Connect establishes the link to the peripheral.
	Connect(ctx context.Context) error
	// Disconnect closes the link to the peripheral.
	Disconnect() error
	// Connected returns whether the link is established.
	Connected() bool
	// OnDisconnect sets a function to be called when the
	// link is closed, either by Disconnect or by the peer.
	OnDisconnect(func())

	// Read reads the value of a characteristic.
	Read(id ID) ([]byte, error)
	// Write writes p to a characteristic. If withResponse
	// is true, the write is acknowledged by the peer.
	Write(id ID, p []byte, withResponse bool) error
	// Subscribe enables notifications from a characteristic,
	// calling h with each notification value.
	Subscribe(id ID, h func([]byte)) error
	// Unsubscribe disables notifications from a characteristic.
	Unsubscribe(id ID) error
}

// Generic access and device information service identifiers.
const (
	GenericAccessServiceID = "1800"
	DeviceNameID           = "2a00"

	DeviceInformationServiceID = "180a"
	SystemIDID                 = "2a23"
	ModelNumberID              = "2a24"
	SerialNumberID             = "2a25"
	FirmwareRevisionID         = "2a26"
	HardwareRevisionID         = "2a27"
	SoftwareRevisionID         = "2a28"
	ManufacturerNameID         = "2a29"
)

var (
	DeviceName = NewID(GenericAccessServiceID, DeviceNameID)

	SystemID         = NewID(DeviceInformationServiceID, SystemIDID)
	ModelNumber      = NewID(DeviceInformationServiceID, ModelNumberID)
	SerialNumber     = NewID(DeviceInformationServiceID, SerialNumberID)
	FirmwareRevision = NewID(DeviceInformationServiceID, FirmwareRevisionID)
	HardwareRevision = NewID(DeviceInformationServiceID, HardwareRevisionID)
	SoftwareRevision = NewID(DeviceInformationServiceID, SoftwareRevisionID)
	ManufacturerName = NewID(DeviceInformationServiceID, ManufacturerNameID)
)
