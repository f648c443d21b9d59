// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// leBytes returns the width byte little-endian two's complement
// encoding of v.
func leBytes(v int32, width int) []byte {
	b := make([]byte, width)
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func samples(start, stop, step int32) []int32 {
	var s []int32
	for v := start; v < stop; v += step {
		s = append(s, v)
	}
	return s
}

func TestFrameUnmarshalBinary(t *testing.T) {
	data := []byte{0x02, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01, 0x01, 0xaa, 0xbb}
	var f Frame
	require.NoError(t, f.UnmarshalBinary(data))
	assert.Equal(t, Frame{
		Measure:   AccType,
		Timestamp: 0x0102030405060708,
		Type:      AccFrameType1,
		Samples:   []byte{0xaa, 0xbb},
	}, f)

	err := f.UnmarshalBinary(data[:9])
	assert.ErrorIs(t, err, ErrShortFrame)

	require.NoError(t, f.UnmarshalBinary(data[:10]))
	assert.Empty(t, f.Samples)
}

func TestFrameTime(t *testing.T) {
	f := Frame{Timestamp: uint64(2 * time.Second)}
	want := time.Date(2000, 1, 1, 0, 0, 2, 0, time.UTC)
	assert.True(t, f.Time().Equal(want), "got %v want %v", f.Time(), want)
}

func TestDecodeECG(t *testing.T) {
	want := samples(-1000, 1000, 100)
	want = append(want, -1<<23, 1<<23-1)
	var frame []byte
	for _, v := range want {
		frame = append(frame, leBytes(v, 3)...)
	}
	got, err := DecodeECG(ECGFrameType0, frame)
	require.NoError(t, err)
	assert.Equal(t, want, got.Lead1)
	assert.Equal(t, len(want), got.Len())
}

func TestDecodeECGErrors(t *testing.T) {
	for typ := FrameType(1); typ < 10; typ++ {
		_, err := DecodeECG(typ, []byte{0, 0, 0})
		assert.ErrorIs(t, err, ErrUnsupportedFrameType, "frame type %d", typ)
	}
	_, err := DecodeECG(ECGFrameType0, []byte{0, 0, 0, 1})
	assert.ErrorIs(t, err, ErrPartialSample)

	got, err := DecodeECG(ECGFrameType0, nil)
	require.NoError(t, err)
	assert.Zero(t, got.Len())
}

func TestDecodeAcc(t *testing.T) {
	for _, test := range []struct {
		typ     FrameType
		x, y, z []int32
	}{
		{
			typ: AccFrameType0,
			x:   samples(-100, 100, 10),
			y:   samples(-101, 99, 10),
			z:   samples(-102, 98, 10),
		},
		{
			typ: AccFrameType1,
			x:   samples(-1000, 1000, 100),
			y:   samples(-1010, 990, 100),
			z:   samples(-1020, 980, 100),
		},
		{
			typ: AccFrameType2,
			x:   samples(-1000, 1000, 100),
			y:   samples(-1010, 990, 100),
			z:   samples(-1020, 980, 100),
		},
		{
			typ: AccFrameType2,
			x:   []int32{-1 << 23},
			y:   []int32{1<<23 - 1},
			z:   []int32{0},
		},
	} {
		width := int(test.typ) + 1
		var frame []byte
		for i := range test.x {
			frame = append(frame, leBytes(test.x[i], width)...)
			frame = append(frame, leBytes(test.y[i], width)...)
			frame = append(frame, leBytes(test.z[i], width)...)
		}
		got, err := DecodeAcc(test.typ, frame)
		require.NoError(t, err, "frame type %d", test.typ)
		assert.Equal(t, Acc{X: test.x, Y: test.y, Z: test.z}, got, "frame type %d", test.typ)
		assert.Equal(t, len(test.x), got.Len())
	}
}

func TestDecodeAccErrors(t *testing.T) {
	for _, typ := range []FrameType{3, 4, 128, 255} {
		_, err := DecodeAcc(typ, make([]byte, 12))
		assert.ErrorIs(t, err, ErrUnsupportedFrameType, "frame type %d", typ)
	}
	for typ, n := range map[FrameType]int{AccFrameType0: 4, AccFrameType1: 7, AccFrameType2: 10} {
		_, err := DecodeAcc(typ, make([]byte, n))
		assert.ErrorIs(t, err, ErrPartialSample, "frame type %d", typ)
	}
}

func TestDecodeFrame(t *testing.T) {
	data := make([]byte, dataOffset)
	data[sampleTypeOffset] = byte(ECGType)
	binary.LittleEndian.PutUint64(data[timeStampOffset:], 599618407160470000)
	data = append(data, leBytes(-3, 3)...)
	data = append(data, leBytes(42, 3)...)

	var f Frame
	require.NoError(t, f.UnmarshalBinary(data))
	ecg, err := DecodeECG(f.Type, f.Samples)
	require.NoError(t, err)
	assert.Equal(t, []int32{-3, 42}, ecg.Lead1)
	assert.Equal(t, uint64(599618407160470000), f.Timestamp)
}

func TestAccSettings(t *testing.T) {
	for _, f := range []AccSampleFreq{AccSampleFreq25, AccSampleFreq50, AccSampleFreq100, AccSampleFreq200} {
		assert.True(t, f.Valid(), "sample rate %d", f)
	}
	for _, f := range []AccSampleFreq{0, 10, 52, 400} {
		assert.False(t, f.Valid(), "sample rate %d", f)
	}
	for _, r := range []AccRange{AccRange2G, AccRange4G, AccRange8G} {
		assert.True(t, r.Valid(), "range %d", r)
	}
	for _, r := range []AccRange{0, 1, 16} {
		assert.False(t, r.Valid(), "range %d", r)
	}

	got, err := Settings{AccSampleFreq200.Setting(), AccRange8G.Setting()}.MarshalBinary()
	assert.NoError(t, err)
	assert.Equal(t, []byte{
		byte(SampleRateSetting), 1, 200, 0,
		byte(RangeUnitSetting), 1, 8, 0,
	}, got)
}
