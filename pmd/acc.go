// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import "fmt"

// AccSampleFreq is an accelerometer sample rate in Hz.
type AccSampleFreq uint16

const (
	AccSampleFreq25  AccSampleFreq = 25
	AccSampleFreq50  AccSampleFreq = 50
	AccSampleFreq100 AccSampleFreq = 100
	AccSampleFreq200 AccSampleFreq = 200
)

// Valid returns whether f is an accelerometer sample rate of the H10.
func (f AccSampleFreq) Valid() bool {
	switch f {
	case AccSampleFreq25, AccSampleFreq50, AccSampleFreq100, AccSampleFreq200:
		return true
	}
	return false
}

// Setting returns f as a sample rate setting.
func (f AccSampleFreq) Setting() Setting {
	return Setting{Type: SampleRateSetting, Val: []uint64{uint64(f)}}
}

// AccRange is an accelerometer full scale range in G.
type AccRange uint16

const (
	AccRange2G AccRange = 2
	AccRange4G AccRange = 4
	AccRange8G AccRange = 8
)

// Valid returns whether r is an accelerometer range of the H10.
func (r AccRange) Valid() bool {
	switch r {
	case AccRange2G, AccRange4G, AccRange8G:
		return true
	}
	return false
}

// Setting returns r as a range setting.
func (r AccRange) Setting() Setting {
	return Setting{Type: RangeUnitSetting, Val: []uint64{uint64(r)}}
}

// Acc is a frame of acceleration samples.
type Acc struct {
	X, Y, Z []int32 // mG
}

// Len returns the number of samples in the frame.
func (m Acc) Len() int { return len(m.X) }

// DecodeAcc decodes the samples of an acceleration frame. The frame type
// determines the per-axis sample width: one byte for frame type 0, two for
// frame type 1 and three for frame type 2.
func DecodeAcc(typ FrameType, data []byte) (Acc, error) {
	var (
		width  int
		decode func([]byte) int32
	)
	switch typ {
	case AccFrameType0:
		width, decode = uint8Size, func(b []byte) int32 { return int32(int8(b[0])) }
	case AccFrameType1:
		width, decode = uint16Size, leInt16
	case AccFrameType2:
		width, decode = int24Size, leInt24
	default:
		return Acc{}, fmt.Errorf("%w: acc frame type %d", ErrUnsupportedFrameType, typ)
	}
	stride := 3 * width
	if len(data)%stride != 0 {
		return Acc{}, fmt.Errorf("%w: %d trailing acc bytes", ErrPartialSample, len(data)%stride)
	}
	n := len(data) / stride
	m := Acc{
		X: make([]int32, 0, n),
		Y: make([]int32, 0, n),
		Z: make([]int32, 0, n),
	}
	for i := 0; i < len(data); i += stride {
		m.X = append(m.X, decode(data[i:]))
		m.Y = append(m.Y, decode(data[i+width:]))
		m.Z = append(m.Z, decode(data[i+2*width:]))
	}
	return m, nil
}
