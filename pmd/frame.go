// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Packet offsets.
const (
	sampleTypeOffset = 0
	timeStampOffset  = 1
	frameTypeOffset  = 9
	dataOffset       = 10
)

// Frame is a PMD data characteristic notification.
type Frame struct {
	Measure MeasureType
	// Timestamp is the sensor clock time of the last
	// sample in the frame, in nanoseconds.
	Timestamp uint64
	Type      FrameType
	// Samples is the undecoded sample data.
	Samples []byte
}

// UnmarshalBinary decodes the frame header. Samples refers to data.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < dataOffset {
		return fmt.Errorf("%w: %#x", ErrShortFrame, data)
	}
	*f = Frame{
		Measure:   MeasureType(data[sampleTypeOffset]),
		Timestamp: binary.LittleEndian.Uint64(data[timeStampOffset:]),
		Type:      FrameType(data[frameTypeOffset]),
		Samples:   data[dataOffset:],
	}
	return nil
}

// Time returns the frame timestamp as a time, assuming the sensor
// clock counts from the PMD epoch.
func (f Frame) Time() time.Time {
	return time.Unix(int64(f.Timestamp)/1e9+epoch, int64(f.Timestamp)%1e9)
}
