// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package discovery

import (
	"errors"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// ErrTableFull is returned when a device is added to a full table.
var ErrTableFull = errors.New("device table full")

// Table is a bounded set of UIDs kept in insertion order.
type Table struct {
	uids     []rdm.UID
	capacity int
}

// NewTable creates an empty table holding at most capacity UIDs.
func NewTable(capacity int) *Table {
	return &Table{
		uids:     make([]rdm.UID, 0, capacity),
		capacity: capacity,
	}
}

// Add appends u unless it is already present. It reports whether the table
// changed.
func (t *Table) Add(u rdm.UID) (bool, error) {
	if t.Contains(u) {
		return false, nil
	}
	if len(t.uids) >= t.capacity {
		return false, ErrTableFull
	}
	t.uids = append(t.uids, u)
	return true, nil
}

// Index returns the position of u, or -1.
func (t *Table) Index(u rdm.UID) int {
	for i, v := range t.uids {
		if v.Compare(u) == 0 {
			return i
		}
	}
	return -1
}

// Contains reports whether u is in the table.
func (t *Table) Contains(u rdm.UID) bool {
	return t.Index(u) >= 0
}

// At returns the UID at position i.
func (t *Table) At(i int) (rdm.UID, bool) {
	if i < 0 || i >= len(t.uids) {
		return rdm.UID{}, false
	}
	return t.uids[i], true
}

// RemoveAt deletes the UID at position i. Later entries move down by one.
func (t *Table) RemoveAt(i int) bool {
	if i < 0 || i >= len(t.uids) {
		return false
	}
	t.uids = append(t.uids[:i], t.uids[i+1:]...)
	return true
}

// Len returns the number of UIDs in the table.
func (t *Table) Len() int {
	return len(t.uids)
}

// Cap returns the table capacity.
func (t *Table) Cap() int {
	return t.capacity
}

// All returns a copy of the table in insertion order.
func (t *Table) All() []rdm.UID {
	return append([]rdm.UID(nil), t.uids...)
}
