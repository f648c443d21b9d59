// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubDrawImage(t *testing.T) {
	card := image.NewGray(image.Rect(0, 0, 8, 4))
	sub := subDrawImage(card, image.Rect(4, 2, 8, 4))
	assert.Equal(t, image.Rect(0, 0, 4, 2), sub.Bounds())

	blank(sub)
	sub.Set(1, 1, color.Black)
	assert.Equal(t, color.Gray{Y: 0}, card.At(5, 3))
	assert.Equal(t, color.Gray{Y: 0xff}, card.At(4, 2))
	assert.Equal(t, color.Gray{Y: 0}, card.At(0, 0), "pixel outside sub image changed")
	assert.Equal(t, card.At(5, 3), sub.At(1, 1))
}

func TestScale(t *testing.T) {
	for _, test := range []struct {
		v, min, max, minRange int32
		height                int
		want                  int
	}{
		{v: 0, min: 0, max: 100, minRange: 10, height: 50, want: 0},
		{v: 100, min: 0, max: 100, minRange: 10, height: 50, want: 50},
		{v: 50, min: 0, max: 100, minRange: 10, height: 50, want: 25},
		{v: 5, min: 5, max: 5, minRange: 10, height: 10, want: 5},
	} {
		got := scale(test.v, test.min, test.max, test.minRange, test.height)
		assert.Equal(t, test.want, got, "scale(%d, %d, %d, %d, %d)", test.v, test.min, test.max, test.minRange, test.height)
	}
}

func TestLine(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	blank(img)
	line(img, 0, 0, 3, 3, color.Black)
	for i := range 4 {
		assert.Equal(t, color.Gray{Y: 0}, img.At(i, i), "missing diagonal pixel %d", i)
	}
	assert.Equal(t, color.Gray{Y: 0xff}, img.At(3, 0))

	line(img, 0, 3, 3, 3, color.Black)
	for x := range 4 {
		assert.Equal(t, color.Gray{Y: 0}, img.At(x, 3), "missing horizontal pixel %d", x)
	}
}

func TestStatus(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 48, 64))
	s := newStatus(img)
	assert.Equal(t, "-", s.battery)
	s.setBattery(87)
	s.setContact(true, false)
	assert.Equal(t, "87%", s.battery)
	assert.Equal(t, "off", s.contact)
	s.setContact(true, true)
	assert.Equal(t, "on", s.contact)
	s.setDisconnected()
	assert.Equal(t, "lost", s.contact)
}

func TestPlotTrace(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 4, 10))
	plotTrace(img, []int32{0, 0, 0, 0}, ecgMinRange)
	for x := range 4 {
		assert.Equal(t, color.Gray{Y: 0}, img.At(x, 5), "flat ecg trace not centred at column %d", x)
	}

	img = image.NewGray(image.Rect(0, 0, 2, 10))
	plotTrace(img, []uint16{60, 80}, rateMinRange)
	assert.Equal(t, color.Gray{Y: 0}, img.At(0, 9), "lower rate not at bottom")
	assert.Equal(t, color.Gray{Y: 0xff}, img.At(0, 0))
	assert.Equal(t, color.Gray{Y: 0}, img.At(1, 0), "higher rate not at top")

	img = image.NewGray(image.Rect(0, 0, 2, 2))
	plotTrace[int32](img, nil, ecgMinRange)
	assert.Equal(t, color.Gray{Y: 0xff}, img.At(0, 0), "empty trace not blanked")
}
