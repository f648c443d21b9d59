// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"fmt"
	"math"
	"time"
)

const (
	// syncThreshold is the largest difference between host time
	// and corrected sensor time before the correction is reset.
	syncThreshold = int64(time.Second)

	// lossTolerance is the largest relative deviation of the
	// observed sample interval from the nominal interval that is
	// accepted without rebasing the frame's sample times.
	lossTolerance = 0.1
)

// Clock reconstructs host sample times from sensor frame timestamps. The
// zero value is ready to use. A Clock is not safe for concurrent use.
type Clock struct {
	// delta is the host minus sensor clock offset in nanoseconds.
	delta int64
	// prev is the sensor time of the last sample of the
	// previous frame for each measurement type.
	prev [measurementTypes]int64
}

// HostTime returns t as nanoseconds since the Unix epoch, offset by the
// local zone of t.
func HostTime(t time.Time) int64 {
	_, off := t.Zone()
	return t.UnixNano() + int64(off)*int64(time.Second)
}

// Delta returns the current host minus sensor clock offset.
func (c *Clock) Delta() time.Duration { return time.Duration(c.delta) }

// Sync compares the host time with the sensor time corrected by the
// current offset, and resets the offset if they differ by more than one
// second. It returns the difference and whether the offset was reset.
func (c *Clock) Sync(host, sensor int64) (diff int64, resynced bool) {
	diff = host - sensor - c.delta
	if diff <= syncThreshold && diff >= -syncThreshold {
		return diff, false
	}
	c.delta += diff
	return diff, true
}

// Reset forgets the previous frame time for the measurement type.
func (c *Clock) Reset(m MeasureType) {
	if uint(m) < uint(len(c.prev)) {
		c.prev[m] = 0
	}
}

// Timestamps returns the host times of n samples at the nominal rate in a
// frame of measurement type m ending at sensor time ts, and records the
// frame for the next call.
func (c *Clock) Timestamps(m MeasureType, n, rate int, ts int64) ([]int64, error) {
	if uint(m) >= uint(len(c.prev)) {
		return nil, fmt.Errorf("%w: measurement type %d", ErrInvalidTimestampInput, m)
	}
	times, last, err := Timestamps(n, rate, ts, c.prev[m], c.delta)
	if err != nil {
		return nil, err
	}
	c.prev[m] = last
	return times, nil
}

// Timestamps returns the times of n samples in a frame ending at sensor
// time ts following a frame ending at prev, with delta added to each. It
// also returns the sensor time of the last sample.
//
// Samples are spaced evenly over the interval since prev unless that
// spacing differs from the nominal 1/rate interval by more than 10%,
// indicating lost or buffered samples. In that case the samples are
// placed at the nominal interval ending at ts.
func Timestamps(n, rate int, ts, prev, delta int64) (times []int64, last int64, err error) {
	if n <= 0 {
		return nil, prev, fmt.Errorf("%w: sample count %d", ErrInvalidTimestampInput, n)
	}
	if rate <= 0 {
		return nil, prev, fmt.Errorf("%w: sample rate %d", ErrInvalidTimestampInput, rate)
	}
	if ts < prev {
		return nil, prev, fmt.Errorf("%w: timestamp %d before previous %d", ErrInvalidTimestampInput, ts, prev)
	}

	ideal := int64(time.Second) / int64(rate)
	step := (ts - prev) / int64(n)
	if math.Abs(float64(step-ideal)/float64(ideal)) > lossTolerance {
		prev = ts - int64(n)*ideal
		step = ideal
	}

	times = make([]int64, n)
	for i := range times {
		times[i] = prev + step*int64(i+1) + delta
	}
	return times, prev + step*int64(n), nil
}
