// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package discovery

import (
	"errors"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// ErrStackFull is returned when a range is pushed onto a full stack.
var ErrStackFull = errors.New("range stack full")

// RangeStack is a bounded LIFO of UID ranges awaiting search.
type RangeStack struct {
	ranges   []rdm.Range
	capacity int
}

// NewRangeStack creates an empty stack holding at most capacity ranges.
func NewRangeStack(capacity int) *RangeStack {
	return &RangeStack{
		ranges:   make([]rdm.Range, 0, capacity),
		capacity: capacity,
	}
}

// Push adds r on top of the stack.
func (s *RangeStack) Push(r rdm.Range) error {
	if len(s.ranges) >= s.capacity {
		return ErrStackFull
	}
	s.ranges = append(s.ranges, r)
	return nil
}

// Pop removes and returns the range on top of the stack.
func (s *RangeStack) Pop() (rdm.Range, bool) {
	if len(s.ranges) == 0 {
		return rdm.Range{}, false
	}
	r := s.ranges[len(s.ranges)-1]
	s.ranges = s.ranges[:len(s.ranges)-1]
	return r, true
}

// Len returns the number of ranges on the stack.
func (s *RangeStack) Len() int {
	return len(s.ranges)
}

// Reset empties the stack.
func (s *RangeStack) Reset() {
	s.ranges = s.ranges[:0]
}
