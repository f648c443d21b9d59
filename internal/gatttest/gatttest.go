// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gatttest provides an in-memory gatt.Transport for testing.
package gatttest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kortschak/h10/gatt"
)

// ErrNotConnected is returned by operations on a disconnected Transport.
var ErrNotConnected = errors.New("gatttest: not connected")

// Write is a recorded characteristic write.
type Write struct {
	ID           gatt.ID
	Data         []byte
	WithResponse bool
}

// Transport is a scripted gatt.Transport. The zero value is not usable;
// use New.
type Transport struct {
	// ConnectErr is returned by Connect when not nil.
	ConnectErr error

	// Respond, if not nil, is called after each successful write,
	// outside the Transport's lock, so it may call Notify.
	Respond func(t *Transport, w Write)

	mu         sync.Mutex
	connected  bool
	values     map[gatt.ID][]byte
	readErrs   map[gatt.ID]error
	writeErrs  map[gatt.ID]error
	subs       map[gatt.ID]func([]byte)
	subscribes map[gatt.ID]int
	unsubs     map[gatt.ID]int
	writes     []Write
	onDisc     func()
}

// New returns a new disconnected Transport.
func New() *Transport {
	return &Transport{
		values:     make(map[gatt.ID][]byte),
		readErrs:   make(map[gatt.ID]error),
		writeErrs:  make(map[gatt.ID]error),
		subs:       make(map[gatt.ID]func([]byte)),
		subscribes: make(map[gatt.ID]int),
		unsubs:     make(map[gatt.ID]int),
	}
}

// SetValue sets the value returned by reads of id.
func (t *Transport) SetValue(id gatt.ID, v []byte) {
	t.mu.Lock()
	t.values[id] = bytes.Clone(v)
	t.mu.Unlock()
}

// SetReadError sets the error returned by reads of id.
func (t *Transport) SetReadError(id gatt.ID, err error) {
	t.mu.Lock()
	t.readErrs[id] = err
	t.mu.Unlock()
}

// SetWriteError sets the error returned by writes to id.
func (t *Transport) SetWriteError(id gatt.ID, err error) {
	t.mu.Lock()
	t.writeErrs[id] = err
	t.mu.Unlock()
}

func (t *Transport) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.mu.Lock()
	t.connected = true
	t.mu.Unlock()
	return nil
}

func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	t.connected = false
	clear(t.subs)
	f := t.onDisc
	t.mu.Unlock()
	if f != nil {
		f()
	}
	return nil
}

// Drop simulates loss of the link by the peer.
func (t *Transport) Drop() {
	t.Disconnect()
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) OnDisconnect(f func()) {
	t.mu.Lock()
	t.onDisc = f
	t.mu.Unlock()
}

func (t *Transport) Read(id gatt.ID) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil, ErrNotConnected
	}
	if err := t.readErrs[id]; err != nil {
		return nil, err
	}
	v, ok := t.values[id]
	if !ok {
		return nil, fmt.Errorf("gatttest: no characteristic %s", id)
	}
	return bytes.Clone(v), nil
}

func (t *Transport) Write(id gatt.ID, p []byte, withResponse bool) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	if err := t.writeErrs[id]; err != nil {
		t.mu.Unlock()
		return err
	}
	w := Write{ID: id, Data: bytes.Clone(p), WithResponse: withResponse}
	t.writes = append(t.writes, w)
	respond := t.Respond
	t.mu.Unlock()
	if respond != nil {
		respond(t, w)
	}
	return nil
}

func (t *Transport) Subscribe(id gatt.ID, h func([]byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return ErrNotConnected
	}
	t.subs[id] = h
	t.subscribes[id]++
	return nil
}

func (t *Transport) Unsubscribe(id gatt.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.unsubs[id]++
	if !t.connected {
		return ErrNotConnected
	}
	delete(t.subs, id)
	return nil
}

// Notify delivers p to the subscriber of id, reporting whether there was
// a subscriber.
func (t *Transport) Notify(id gatt.ID, p []byte) bool {
	t.mu.Lock()
	h := t.subs[id]
	t.mu.Unlock()
	if h == nil {
		return false
	}
	h(bytes.Clone(p))
	return true
}

// Subscribed returns whether id currently has a subscriber.
func (t *Transport) Subscribed(id gatt.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subs[id] != nil
}

// Subscriptions returns the number of Subscribe and Unsubscribe calls
// made for id.
func (t *Transport) Subscriptions(id gatt.ID) (subscribe, unsubscribe int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.subscribes[id], t.unsubs[id]
}

// Writes returns the writes made to the transport.
func (t *Transport) Writes() []Write {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Write(nil), t.writes...)
}
