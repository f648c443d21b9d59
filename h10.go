// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package h10 implements a client for the Polar H10 heart rate sensor.
//
// A Sensor connects to the device over a gatt.Transport, discovers the
// measurement settings it supports and manages the streams of ECG,
// accelerometer, heart rate and battery data delivered to registered
// handlers.
package h10

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kortschak/h10/heart"
	"github.com/kortschak/h10/pmd"
)

// Kind is a class of data delivered by a Sensor.
type Kind uint8

//go:generate go tool golang.org/x/tools/cmd/stringer -type Kind -trimprefix Kind
const (
	KindECG        Kind = 0
	KindAcc        Kind = 1
	KindHeartRate  Kind = 2
	KindBattery    Kind = 3
	KindDisconnect Kind = 4
)

const numKinds = 5

// PMD returns the PMD measurement type of k and whether k is a PMD
// measurement stream.
func (k Kind) PMD() (pmd.MeasureType, bool) {
	switch k {
	case KindECG:
		return pmd.ECGType, true
	case KindAcc:
		return pmd.AccType, true
	default:
		return 0, false
	}
}

// kindOf returns the Kind for the PMD measurement type m.
func kindOf(m pmd.MeasureType) (Kind, bool) {
	switch m {
	case pmd.ECGType:
		return KindECG, true
	case pmd.AccType:
		return KindAcc, true
	default:
		return 0, false
	}
}

// ParseKind returns the Kind with the given name, ignoring case.
func ParseKind(name string) (Kind, error) {
	for k := range Kind(numKinds) {
		if strings.EqualFold(k.String(), name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown kind: %q", name)
}

// Data is a value delivered to a Handler.
type Data interface {
	Kind() Kind
}

// Handler is called with data from a Sensor. Handlers are called
// synchronously in the transport's notification context and should
// hand off long running work.
type Handler func(Data)

// ECG is a frame of electrocardiogram samples.
type ECG struct {
	// Time is the host time of each sample in nanoseconds
	// since the Unix epoch, offset by the local zone.
	Time []int64
	// Lead1 is the lead I potential in µV.
	Lead1 []int32
}

func (ECG) Kind() Kind { return KindECG }

// Acc is a frame of accelerometer samples.
type Acc struct {
	// Time is the host time of each sample in nanoseconds
	// since the Unix epoch, offset by the local zone.
	Time []int64
	// X, Y and Z are the acceleration components in mG.
	X, Y, Z []int32
}

func (Acc) Kind() Kind { return KindAcc }

// HeartRate is a heart rate measurement.
type HeartRate struct {
	heart.Rate
}

func (HeartRate) Kind() Kind { return KindHeartRate }

// BatteryLevel is a battery level notification.
type BatteryLevel struct {
	Percent int
}

func (BatteryLevel) Kind() Kind { return KindBattery }

// Disconnected is delivered when the link to the sensor is lost
// without a call to Disconnect.
type Disconnected struct{}

func (Disconnected) Kind() Kind { return KindDisconnect }

var (
	// ErrConnectionFailure is returned when the transport fails to
	// connect or the connected device is not a supported sensor.
	ErrConnectionFailure = errors.New("h10: connection failure")
	// ErrUnsupportedMeasurement is returned when the sensor does not
	// provide the requested kind of data.
	ErrUnsupportedMeasurement = errors.New("h10: unsupported measurement")
	// ErrAlreadyRegistered is returned when registering a handler for
	// a kind that already has one.
	ErrAlreadyRegistered = errors.New("h10: handler already registered")
	// ErrNotRegistered is returned when removing a handler for a kind
	// that does not have one.
	ErrNotRegistered = errors.New("h10: handler not registered")
	// ErrInvalidParameter is returned when a requested setting or value
	// is not supported by the sensor.
	ErrInvalidParameter = errors.New("h10: invalid parameter")
	// ErrCommandFailed is matched by a CommandError.
	ErrCommandFailed = errors.New("h10: pmd command failed")
)

// CommandError is returned when the sensor rejects a PMD command.
type CommandError struct {
	Command pmd.Command
	Kind    Kind
	Status  pmd.Status
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("h10: %v %v failed: %v", e.Kind, e.Command, e.Status)
}

// Is returns whether target is ErrCommandFailed.
func (e *CommandError) Is(target error) bool { return target == ErrCommandFailed }
