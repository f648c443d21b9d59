// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ecgIdeal = int64(time.Second) / ECGSampleFreq

var timestampsTests = []struct {
	name      string
	n, rate   int
	ts, prev  int64
	delta     int64
	wantStart int64 // time of the sample before the first, excluding delta
	wantStep  int64
	wantLast  int64
}{
	{
		name: "steady",
		n:    73, rate: ECGSampleFreq,
		prev:      10e9,
		ts:        10e9 + 73*7_700_000,
		wantStart: 10e9,
		wantStep:  7_700_000,
		wantLast:  10e9 + 73*7_700_000,
	},
	{
		name: "steady_with_delta",
		n:    73, rate: ECGSampleFreq,
		prev:      10e9,
		ts:        10e9 + 73*7_000_000,
		delta:     -3e9,
		wantStart: 10e9,
		wantStep:  7_000_000,
		wantLast:  10e9 + 73*7_000_000,
	},
	{
		name: "gap",
		n:    73, rate: ECGSampleFreq,
		prev:      10e9,
		ts:        10e9 + 2*73*ecgIdeal,
		delta:     5,
		wantStart: 10e9 + 73*ecgIdeal,
		wantStep:  ecgIdeal,
		wantLast:  10e9 + 2*73*ecgIdeal,
	},
	{
		name: "buffered",
		n:    36, rate: 200,
		prev:      10e9,
		ts:        10e9 + 36*4_000_000,
		wantStart: 10e9 + 36*4_000_000 - 36*5_000_000,
		wantStep:  5_000_000,
		wantLast:  10e9 + 36*4_000_000,
	},
	{
		name: "first_frame",
		n:    10, rate: 100,
		prev:      0,
		ts:        599618407160470000,
		wantStart: 599618407160470000 - 10*10_000_000,
		wantStep:  10_000_000,
		wantLast:  599618407160470000,
	},
}

func TestTimestamps(t *testing.T) {
	for _, test := range timestampsTests {
		t.Run(test.name, func(t *testing.T) {
			got, last, err := Timestamps(test.n, test.rate, test.ts, test.prev, test.delta)
			require.NoError(t, err)
			require.Len(t, got, test.n)
			for i, v := range got {
				assert.Equal(t, test.wantStart+test.wantStep*int64(i+1)+test.delta, v, "sample %d", i)
			}
			for i := 1; i < len(got); i++ {
				assert.Greater(t, got[i], got[i-1])
			}
			assert.Equal(t, test.wantLast, last)
			assert.Equal(t, test.wantLast+test.delta, got[len(got)-1])
		})
	}
}

func TestTimestampsInvalidInput(t *testing.T) {
	for _, test := range []struct {
		name     string
		n, rate  int
		ts, prev int64
	}{
		{name: "zero_samples", n: 0, rate: 130, ts: 2, prev: 1},
		{name: "negative_samples", n: -1, rate: 130, ts: 2, prev: 1},
		{name: "zero_rate", n: 1, rate: 0, ts: 2, prev: 1},
		{name: "negative_rate", n: 1, rate: -130, ts: 2, prev: 1},
		{name: "backwards", n: 1, rate: 130, ts: 1, prev: 2},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, last, err := Timestamps(test.n, test.rate, test.ts, test.prev, 0)
			assert.ErrorIs(t, err, ErrInvalidTimestampInput)
			assert.Equal(t, test.prev, last)
		})
	}
}

func TestClockSync(t *testing.T) {
	var c Clock
	diff, ok := c.Sync(5e9, 1e9)
	assert.True(t, ok)
	assert.Equal(t, int64(4e9), diff)
	assert.Equal(t, 4*time.Second, c.Delta())

	// Jitter within a second is tolerated.
	diff, ok = c.Sync(5.5e9, 1.2e9)
	assert.False(t, ok)
	assert.Equal(t, int64(0.3e9), diff)
	assert.Equal(t, 4*time.Second, c.Delta())

	_, ok = c.Sync(6e9, 1e9)
	assert.False(t, ok, "difference of exactly one second")

	// Drift beyond a second resynchronises.
	diff, ok = c.Sync(7e9, 1.5e9)
	assert.True(t, ok)
	assert.Equal(t, int64(1.5e9), diff)
	assert.Equal(t, 5500*time.Millisecond, c.Delta())

	_, ok = c.Sync(0, 1e9)
	assert.True(t, ok)
	assert.Equal(t, -time.Second, c.Delta())
}

func TestClockTimestamps(t *testing.T) {
	var c Clock
	c.Sync(100e9, 10e9)

	first, err := c.Timestamps(ECGType, 2, 100, 10e9)
	require.NoError(t, err)
	assert.Equal(t, []int64{100e9 - 10e6, 100e9}, first)

	next, err := c.Timestamps(ECGType, 2, 100, 10e9+20e6)
	require.NoError(t, err)
	assert.Equal(t, []int64{100e9 + 10e6, 100e9 + 20e6}, next)

	// Measurement types are independent.
	acc, err := c.Timestamps(AccType, 1, 100, 5e9)
	require.NoError(t, err)
	assert.Equal(t, []int64{95e9}, acc)

	_, err = c.Timestamps(ECGType, 2, 100, 10e9)
	assert.ErrorIs(t, err, ErrInvalidTimestampInput)

	c.Reset(ECGType)
	again, err := c.Timestamps(ECGType, 2, 100, 10e9)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = c.Timestamps(MeasureType(200), 1, 100, 10e9)
	assert.ErrorIs(t, err, ErrInvalidTimestampInput)
}

func TestHostTime(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.FixedZone("test", 2*60*60))
	assert.Equal(t, ts.UnixNano()+int64(2*time.Hour), HostTime(ts))
	assert.Equal(t, ts.UnixNano(), HostTime(ts.UTC()))
}
