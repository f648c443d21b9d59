// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ring

import (
	"reflect"
	"testing"
)

var bufferTests = []struct {
	name string
	ops  func() any
	want any
}{
	{
		name: "new_4",
		ops: func() any {
			return NewBuffer[uint16](4)
		},
		want: &Buffer[uint16]{data: make([]uint16, 4)},
	},
	{
		name: "write_2_1",
		ops: func() any {
			r := NewBuffer[uint16](4)
			r.Write([]uint16{60, 61})
			r.Write([]uint16{62})
			return []any{r, r.Len()}
		},
		want: []any{&Buffer[uint16]{data: []uint16{60, 61, 62, 0}, head: 0, n: 3}, 3},
	},
	{
		name: "write_3_2_wrapped_full",
		ops: func() any {
			r := NewBuffer[uint16](4)
			r.Write([]uint16{60, 61, 62})
			r.Write([]uint16{63, 64})
			var buf [4]uint16
			n := r.CopyTo(buf[:])
			return []any{r, r.Len(), buf[:n]}
		},
		want: []any{
			&Buffer[uint16]{data: []uint16{64, 61, 62, 63}, head: 1, n: 4},
			4,
			[]uint16{61, 62, 63, 64},
		},
	},
	{
		name: "write_longer_than_size",
		ops: func() any {
			r := NewBuffer[int32](4)
			r.Write([]int32{-1, -2})
			r.Write([]int32{1, 2, 3, 4, 5})
			return r
		},
		want: &Buffer[int32]{data: []int32{2, 3, 4, 5}, head: 0, n: 4},
	},
	{
		name: "read_after_wrap",
		ops: func() any {
			r := NewBuffer[uint16](4)
			r.Write([]uint16{1, 2, 3, 4})
			r.Advance(2)
			r.Write([]uint16{5})
			var buf [4]uint16
			n := r.Read(buf[:])
			return []any{r, buf[:n]}
		},
		want: []any{
			&Buffer[uint16]{data: []uint16{5, 2, 3, 4}, head: 1, n: 0},
			[]uint16{3, 4, 5},
		},
	},
	{
		name: "advance_past_end",
		ops: func() any {
			r := NewBuffer[uint16](4)
			r.Write([]uint16{1, 2})
			r.Advance(10)
			return []any{r, r.Len()}
		},
		want: []any{&Buffer[uint16]{data: []uint16{1, 2, 0, 0}, head: 2, n: 0}, 0},
	},
	{
		name: "reset_write",
		ops: func() any {
			r := NewBuffer[int32](4)
			r.Write([]int32{-1, -2, -3, -4, -5})
			r.Reset()
			r.Write([]int32{4, 5})
			var buf [4]int32
			n := r.CopyTo(buf[:])
			return []any{r, buf[:n]}
		},
		want: []any{
			&Buffer[int32]{data: []int32{4, 5, 0, 0}, head: 0, n: 2},
			[]int32{4, 5},
		},
	},
}

func TestBuffer(t *testing.T) {
	for _, test := range bufferTests {
		t.Run(test.name, func(t *testing.T) {
			got := test.ops()
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("expected result:\ngot: %#v\nwant:%#v", got, test.want)
			}
		})
	}
}

// TestECGWindow writes ECG sized frames into a plot window and checks that
// the window remains full and holds the most recent samples in order.
func TestECGWindow(t *testing.T) {
	const (
		window = 3 * 130
		frame  = 73
	)
	r := NewBuffer[int32](window)
	var next int32
	for range 20 {
		samples := make([]int32, frame)
		for i := range samples {
			samples[i] = next
			next++
		}
		r.Write(samples)
	}
	if r.Len() != window {
		t.Fatalf("unexpected length of full window: got:%d want:%d", r.Len(), window)
	}
	buf := make([]int32, window)
	n := r.CopyTo(buf)
	if n != window {
		t.Fatalf("unexpected number of copied samples: got:%d want:%d", n, window)
	}
	for i, v := range buf {
		want := next - window + int32(i)
		if v != want {
			t.Fatalf("unexpected sample at %d: got:%d want:%d", i, v, want)
		}
	}
}
