// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package discovery enumerates RDM responders with a binary search over the
// UID space.
//
// The engine alternates between two states. TABLE-CHECK re-confirms every
// known device with a directed mute and drops the ones that stay silent.
// SEARCH pops ranges off a stack, probes them with DISC_UNIQUE_BRANCH and
// bisects every range that answers until single UIDs are left, which are
// confirmed with a mute and added to the table. Each call to Step does one
// unit of work, so the caller keeps control between transactions.
package discovery

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// Transport carries the RDM transactions discovery needs. *dmx.Engine
// implements it.
type Transport interface {
	SendDiscovery(lower, upper rdm.UID) (rdm.UID, error)
	SendMute(target rdm.UID, pid uint16) error
	SendGet(target rdm.UID, pid uint16, buf []byte) (int, error)
	SendSet(target rdm.UID, pid uint16, data []byte) error
}

// State is the top-level discovery state.
type State int

const (
	StateTableCheck State = iota
	StateSearch
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateTableCheck:
		return "table-check"
	case StateSearch:
		return "search"
	default:
		return "unknown"
	}
}

// Config holds the discovery parameters.
type Config struct {
	// MuteAttempts is the number of directed mutes sent before a UID is
	// considered absent.
	MuteAttempts int
	// RangeAttempts is the number of DISC_UNIQUE_BRANCH requests sent
	// before a range is considered empty.
	RangeAttempts int
	// Seeds are pushed at the start of every search, last one searched
	// first.
	Seeds []rdm.Range

	TableCapacity int
	StackCapacity int

	// IdentifyPause is how long a device keeps identifying during the
	// identify sweep.
	IdentifyPause time.Duration
	// ReassignAddress, when non-zero, is a DMX start address that the
	// identify sweep rewrites to ReassignTo before identifying the device.
	ReassignAddress uint16
	ReassignTo      uint16
}

// DefaultManufacturer is the manufacturer ID of the extra default seed.
// Some of its devices only answer DISC_UNIQUE_BRANCH for the full space or
// for their own manufacturer range.
const DefaultManufacturer = 0x6574

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		MuteAttempts:  3,
		RangeAttempts: 2,
		Seeds:         []rdm.Range{rdm.FullRange, rdm.ManufacturerRange(DefaultManufacturer)},
		TableCapacity: 256,
		StackCapacity: 512,
		IdentifyPause: 2 * time.Second,
	}
}

// Discovery is the step-driven enumeration engine. It is not safe for
// concurrent use; Step and the accessors belong to the goroutine that drives
// the transport.
type Discovery struct {
	transport Transport
	cfg       Config
	logger    *slog.Logger

	state   State
	table   *Table
	stack   *RangeStack
	index   int
	unmuted bool

	changed    bool
	identify   bool
	incomplete bool
	cycles     uint64

	onChange func([]rdm.UID)
}

// New creates a discovery engine starting in TABLE-CHECK with an empty
// table. A nil logger discards log output.
func New(transport Transport, cfg Config, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.MuteAttempts < 1 {
		cfg.MuteAttempts = 1
	}
	if cfg.RangeAttempts < 1 {
		cfg.RangeAttempts = 1
	}
	return &Discovery{
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		state:     StateTableCheck,
		table:     NewTable(cfg.TableCapacity),
		stack:     NewRangeStack(cfg.StackCapacity),
	}
}

// State returns the current state.
func (d *Discovery) State() State {
	return d.state
}

// Devices returns the device table in discovery order.
func (d *Discovery) Devices() []rdm.UID {
	return d.table.All()
}

// Cycles returns the number of completed table checks.
func (d *Discovery) Cycles() uint64 {
	return d.cycles
}

// Incomplete reports whether the table or the range stack ran out of room
// since the last search started, so devices may have been missed.
func (d *Discovery) Incomplete() bool {
	return d.incomplete
}

// SetIdentify requests an identify sweep at the end of the next table
// check. The request clears once the sweep has run.
func (d *Discovery) SetIdentify(on bool) {
	d.identify = on
}

// OnTableChanged registers fn to receive the table after a table check
// that follows a change.
func (d *Discovery) OnTableChanged(fn func([]rdm.UID)) {
	d.onChange = fn
}

// Step advances discovery by one unit of work. It returns true when a table
// check has just completed and the table changed since the previous one.
func (d *Discovery) Step() bool {
	if d.state == StateTableCheck {
		return d.checkTable()
	}
	d.search()
	return false
}

// checkTable confirms the device at the current index.
func (d *Discovery) checkTable() bool {
	if d.index == 0 && !d.unmuted {
		// Broadcast requests expect no reply.
		if err := d.transport.SendMute(rdm.BroadcastAll, rdm.PIDDiscUnMute); err != nil {
			d.logger.Debug("un-mute all failed", "error", err)
		}
		d.unmuted = true
	}

	uid, ok := d.table.At(d.index)
	if !ok {
		return d.finishTableCheck()
	}
	if d.confirm(uid) {
		d.index++
		return false
	}

	d.table.RemoveAt(d.index)
	d.changed = true
	d.logger.Info("device lost", "uid", uid, "devices", d.table.Len())
	return false
}

func (d *Discovery) finishTableCheck() bool {
	if d.identify {
		d.identifyAll()
		d.identify = false
	}

	d.cycles++
	changed := d.changed
	d.changed = false
	if changed {
		devices := d.table.All()
		d.logger.Info("device table changed", "devices", len(devices), "cycle", d.cycles)
		if d.onChange != nil {
			d.onChange(devices)
		}
	}

	d.incomplete = false
	d.stack.Reset()
	for _, r := range d.cfg.Seeds {
		d.push(r)
	}
	d.state = StateSearch
	return changed
}

// search handles one range from the stack.
func (d *Discovery) search() {
	r, ok := d.stack.Pop()
	if !ok {
		d.state = StateTableCheck
		d.index = 0
		d.unmuted = false
		return
	}

	if r.IsLeaf() {
		d.probe(r.Lower)
		return
	}
	if !d.rangeResponds(r) {
		return
	}

	lower, upper, ok := r.Split()
	if !ok {
		d.probe(r.Lower)
		d.probe(r.Upper)
		return
	}
	d.push(lower)
	d.push(upper)
}

// rangeResponds reports whether anything answered DISC_UNIQUE_BRANCH for r.
// A garbled reply counts: it is how overlapping responses look.
func (d *Discovery) rangeResponds(r rdm.Range) bool {
	for i := 0; i < d.cfg.RangeAttempts; i++ {
		uid, err := d.transport.SendDiscovery(r.Lower, r.Upper)
		switch {
		case err == nil:
			d.logger.Debug("range answered", "range", r, "uid", uid)
			return true
		case errors.Is(err, rdm.ErrMalformed):
			d.logger.Debug("range answered", "range", r, "error", err)
			return true
		}
	}
	return false
}

// probe confirms a single UID and adds it to the table.
func (d *Discovery) probe(uid rdm.UID) {
	// A directed mute to a broadcast address has no reply to confirm.
	if uid.IsBroadcast() {
		return
	}
	if !d.confirm(uid) {
		return
	}
	added, err := d.table.Add(uid)
	if err != nil {
		d.exhausted(err, "uid", uid)
		return
	}
	if added {
		d.changed = true
		d.logger.Info("device found", "uid", uid, "devices", d.table.Len())
	}
}

// confirm sends directed mutes until one is acknowledged.
func (d *Discovery) confirm(uid rdm.UID) bool {
	for i := 0; i < d.cfg.MuteAttempts; i++ {
		err := d.transport.SendMute(uid, rdm.PIDDiscMute)
		if err == nil || errors.Is(err, rdm.ErrNack) {
			return true
		}
		d.logger.Debug("mute not acknowledged", "uid", uid, "attempt", i+1, "error", err)
	}
	return false
}

func (d *Discovery) push(r rdm.Range) {
	if err := d.stack.Push(r); err != nil {
		d.exhausted(err, "range", r)
	}
}

func (d *Discovery) exhausted(err error, args ...any) {
	if !d.incomplete {
		d.logger.Warn("discovery incomplete", append([]any{"error", err}, args...)...)
	}
	d.incomplete = true
}
