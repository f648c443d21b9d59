// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package forkbeard

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"tinygo.org/x/bluetooth"

	"github.com/kortschak/h10/gatt"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name   string
		opts   []Option
		addr   string
		local  string
		wantOK bool
	}{
		{name: "any", addr: "A0:9E:1A:00:00:01", local: "", wantOK: true},
		{name: "prefix", opts: []Option{WithNamePrefix("Polar H10")}, addr: "A0:9E:1A:00:00:01", local: "Polar H10 12345678", wantOK: true},
		{name: "wrong_prefix", opts: []Option{WithNamePrefix("Polar H10")}, addr: "A0:9E:1A:00:00:01", local: "Polar OH1 12345678", wantOK: false},
		{name: "address_case", opts: []Option{WithAddress("a0:9e:1a:00:00:01")}, addr: "A0:9E:1A:00:00:01", local: "Polar H10 12345678", wantOK: true},
		{name: "wrong_address", opts: []Option{WithAddress("a0:9e:1a:00:00:02")}, addr: "A0:9E:1A:00:00:01", local: "Polar H10 12345678", wantOK: false},
		{name: "address_and_prefix", opts: []Option{WithAddress("A0:9E:1A:00:00:01"), WithNamePrefix("Polar H10")}, addr: "A0:9E:1A:00:00:01", local: "Polar OH1", wantOK: false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			d := NewDevice(nil, test.opts...)
			assert.Equal(t, test.wantOK, d.matches(test.addr, test.local))
		})
	}
}

func TestOptions(t *testing.T) {
	d := NewDevice(nil)
	assert.Equal(t, DefaultScanTimeout, d.scanTimeout)
	assert.NotNil(t, d.log)

	d = NewDevice(nil, WithScanTimeout(time.Second), WithScanTimeout(-1), WithLogger(nil))
	assert.Equal(t, time.Second, d.scanTimeout)
	assert.NotNil(t, d.log)
}

func TestNotConnected(t *testing.T) {
	d := NewDevice(nil)
	id := gatt.DeviceName
	assert.False(t, d.Connected())
	_, err := d.Read(id)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.ErrorIs(t, d.Write(id, []byte{0}, true), ErrNotConnected)
	assert.ErrorIs(t, d.Subscribe(id, func([]byte) {}), ErrNotConnected)
	assert.ErrorIs(t, d.Unsubscribe(id), ErrNotConnected)
	assert.ErrorIs(t, d.Disconnect(), ErrNotConnected)
}

// DeviceCharacteristic must be writable on every platform.
var _ charWriter = bluetooth.DeviceCharacteristic{}

type unackedChar struct {
	unacked [][]byte
	err     error
}

func (c *unackedChar) WriteWithoutResponse(p []byte) (int, error) {
	c.unacked = append(c.unacked, p)
	return len(p), c.err
}

type ackedChar struct {
	unackedChar
	acked [][]byte
}

func (c *ackedChar) Write(p []byte) (int, error) {
	c.acked = append(c.acked, p)
	return len(p), c.err
}

func TestWriteCharacteristic(t *testing.T) {
	msg := []byte{0x02, 0x00}

	var plain unackedChar
	acked, err := writeCharacteristic(&plain, msg, true)
	assert.NoError(t, err)
	assert.False(t, acked, "write without acknowledged write support reported as acknowledged")
	assert.Equal(t, [][]byte{msg}, plain.unacked)

	var both ackedChar
	acked, err = writeCharacteristic(&both, msg, true)
	assert.NoError(t, err)
	assert.True(t, acked)
	assert.Equal(t, [][]byte{msg}, both.acked)
	assert.Empty(t, both.unacked)

	acked, err = writeCharacteristic(&both, msg, false)
	assert.NoError(t, err)
	assert.False(t, acked)
	assert.Equal(t, [][]byte{msg}, both.unacked)

	failing := unackedChar{err: errors.New("link lost")}
	_, err = writeCharacteristic(&failing, msg, true)
	assert.EqualError(t, err, "link lost")
}
