// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

// RingBuffer is a fixed-size circular buffer.
//
// # Description
//
// Provides O(1) push and bounded memory. When full, the oldest item is
// overwritten. The session history keeps its last N turns in one.
//
// # Thread Safety
//
// NOT safe for concurrent use; caller must synchronize.
type RingBuffer[T any] struct {
	data  []T
	head  int  // Next write position
	tail  int  // First element position
	count int  // Current number of elements
	cap   int  // Maximum capacity
	full  bool // Whether buffer has wrapped
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = HistoryDepth
	}
	return &RingBuffer[T]{
		data: make([]T, capacity),
		cap:  capacity,
	}
}

// Push adds an item, overwriting the oldest when full.
func (r *RingBuffer[T]) Push(item T) {
	r.data[r.head] = item
	r.head = (r.head + 1) % r.cap

	if r.full {
		r.tail = (r.tail + 1) % r.cap
	} else {
		r.count++
		if r.count == r.cap {
			r.full = true
		}
	}
}

// UpdateNewest applies fn to the newest item in place.
//
// # Outputs
//
//   - bool: False if the buffer is empty.
func (r *RingBuffer[T]) UpdateNewest(fn func(*T)) bool {
	if r.count == 0 {
		return false
	}

	// head points to next write, so newest is at head-1
	idx := r.head - 1
	if idx < 0 {
		idx = r.cap - 1
	}
	fn(&r.data[idx])
	return true
}

// Slice returns all items from oldest to newest.
//
// # Description
//
// The returned slice is a copy; modifications don't affect the buffer.
func (r *RingBuffer[T]) Slice() []T {
	if r.count == 0 {
		return nil
	}

	result := make([]T, r.count)

	if r.full {
		// Buffer has wrapped
		n := copy(result, r.data[r.tail:])
		copy(result[n:], r.data[:r.head])
	} else {
		copy(result, r.data[r.tail:r.tail+r.count])
	}

	return result
}

// Last returns the last n items, newest first.
func (r *RingBuffer[T]) Last(n int) []T {
	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}

	result := make([]T, n)
	for i := 0; i < n; i++ {
		idx := r.head - 1 - i
		if idx < 0 {
			idx += r.cap
		}
		result[i] = r.data[idx]
	}
	return result
}

// Len returns the current number of elements.
func (r *RingBuffer[T]) Len() int {
	return r.count
}

// Cap returns the maximum capacity.
func (r *RingBuffer[T]) Cap() int {
	return r.cap
}

// IsEmpty returns true if the buffer has no elements.
func (r *RingBuffer[T]) IsEmpty() bool {
	return r.count == 0
}

// Clear removes all elements.
func (r *RingBuffer[T]) Clear() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.head = 0
	r.tail = 0
	r.count = 0
	r.full = false
}
