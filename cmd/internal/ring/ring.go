// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ring implements a simple ring buffer.
package ring

// Buffer is a fixed size ring buffer of sample values. Writes that
// exceed the buffer's size overwrite the oldest values, so a full buffer
// holds the most recent Size samples.
type Buffer[T any] struct {
	data []T
	head int // index of the oldest unread value
	n    int // number of unread values
}

// NewBuffer returns a Buffer holding up to n values.
func NewBuffer[T any](n int) *Buffer[T] {
	return &Buffer[T]{data: make([]T, n)}
}

// Len returns the number of unread values in the buffer.
func (r *Buffer[T]) Len() int {
	return r.n
}

// Size returns the capacity of the buffer.
func (r *Buffer[T]) Size() int {
	return len(r.data)
}

// Write writes src to the buffer.
func (r *Buffer[T]) Write(src []T) {
	size := len(r.data)
	if size == 0 {
		return
	}
	if len(src) >= size {
		copy(r.data, src[len(src)-size:])
		r.head, r.n = 0, size
		return
	}
	tail := (r.head + r.n) % size
	c := copy(r.data[tail:], src)
	copy(r.data, src[c:])
	r.n += len(src)
	if r.n > size {
		r.head = (r.head + r.n - size) % size
		r.n = size
	}
}

// Read copies unread values to dst and consumes them.
func (r *Buffer[T]) Read(dst []T) int {
	n := r.CopyTo(dst)
	r.Advance(n)
	return n
}

// CopyTo copies unread values to dst, oldest first, without consuming
// them.
func (r *Buffer[T]) CopyTo(dst []T) int {
	end := r.head + r.n
	if end <= len(r.data) {
		return copy(dst, r.data[r.head:end])
	}
	c := copy(dst, r.data[r.head:])
	return c + copy(dst[c:], r.data[:end-len(r.data)])
}

// Advance consumes up to n unread values.
func (r *Buffer[T]) Advance(n int) {
	n = min(n, r.n)
	if n <= 0 {
		return
	}
	r.head = (r.head + n) % len(r.data)
	r.n -= n
}

// Reset discards all values in the buffer.
func (r *Buffer[T]) Reset() {
	clear(r.data)
	r.head = 0
	r.n = 0
}
