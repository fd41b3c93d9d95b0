// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package discovery_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/rdmctl/pkg/discovery"
	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

// maxSteps bounds every enumeration in these tests.
const maxSteps = 200000

type fakeDevice struct {
	present      bool
	muted        bool
	identify     bool
	identifyOn   int
	startAddress uint16
}

// fakeTransport answers transactions from a device map without any wire
// timing. Overlapping discovery replies come back as malformed.
type fakeTransport struct {
	devices map[rdm.UID]*fakeDevice

	discoveries int
	mutes       int
	// dropDiscovery silences the next n DISC_UNIQUE_BRANCH requests.
	dropDiscovery int
}

func newFakeTransport(uids ...rdm.UID) *fakeTransport {
	f := &fakeTransport{devices: make(map[rdm.UID]*fakeDevice)}
	for i, u := range uids {
		f.devices[u] = &fakeDevice{present: true, startAddress: uint16(i + 1)}
	}
	return f
}

func (f *fakeTransport) SendDiscovery(lower, upper rdm.UID) (rdm.UID, error) {
	f.discoveries++
	if f.dropDiscovery > 0 {
		f.dropDiscovery--
		return rdm.UID{}, rdm.ErrNoReply
	}
	r := rdm.Range{Lower: lower, Upper: upper}
	var found []rdm.UID
	for u, d := range f.devices {
		if d.present && !d.muted && r.Contains(u) {
			found = append(found, u)
		}
	}
	switch len(found) {
	case 0:
		return rdm.UID{}, rdm.ErrNoReply
	case 1:
		return found[0], nil
	default:
		return rdm.UID{}, fmt.Errorf("%w: %d responders", rdm.ErrMalformed, len(found))
	}
}

func (f *fakeTransport) SendMute(target rdm.UID, pid uint16) error {
	f.mutes++
	muted := pid == rdm.PIDDiscMute
	if target.IsBroadcast() {
		for u, d := range f.devices {
			if d.present && u.Matches(target) {
				d.muted = muted
			}
		}
		return nil
	}
	d, ok := f.devices[target]
	if !ok || !d.present {
		return rdm.ErrNoReply
	}
	d.muted = muted
	return nil
}

func (f *fakeTransport) SendGet(target rdm.UID, pid uint16, buf []byte) (int, error) {
	d, ok := f.devices[target]
	if !ok || !d.present || pid != rdm.PIDDMXStartAddress {
		return 0, rdm.ErrNoReply
	}
	return copy(buf, rdm.EncodeStartAddress(d.startAddress)), nil
}

func (f *fakeTransport) SendSet(target rdm.UID, pid uint16, data []byte) error {
	d, ok := f.devices[target]
	if !ok || !d.present || pid != rdm.PIDIdentifyDevice || len(data) != 1 {
		return rdm.ErrNoReply
	}
	d.identify = data[0] == 1
	if d.identify {
		d.identifyOn++
	}
	return nil
}

// randomUIDs returns n distinct UIDs, a third of them in the default
// manufacturer range.
func randomUIDs(n int, seed int64) []rdm.UID {
	rng := rand.New(rand.NewSource(seed))
	seen := make(map[rdm.UID]bool)
	var uids []rdm.UID
	for len(uids) < n {
		m := uint16(rng.Intn(0x7FFF) + 1)
		if rng.Intn(3) == 0 {
			m = discovery.DefaultManufacturer
		}
		u := rdm.NewUID(m, rng.Uint32()&0xFFFFFFFE)
		if seen[u] {
			continue
		}
		seen[u] = true
		uids = append(uids, u)
	}
	return uids
}

func testConfig() discovery.Config {
	cfg := discovery.DefaultConfig()
	cfg.IdentifyPause = 0
	return cfg
}

// runCycles steps d until n table checks have completed and returns how
// many steps reported a change.
func runCycles(t *testing.T, d *discovery.Discovery, n uint64) int {
	t.Helper()
	changes := 0
	for i := 0; d.Cycles() < n; i++ {
		require.Less(t, i, maxSteps, "discovery did not converge")
		if d.Step() {
			changes++
		}
	}
	return changes
}

func TestDiscovery_Converges(t *testing.T) {
	reversed := testConfig()
	reversed.Seeds = []rdm.Range{reversed.Seeds[1], reversed.Seeds[0]}
	fullOnly := testConfig()
	fullOnly.Seeds = []rdm.Range{rdm.FullRange}

	configs := map[string]discovery.Config{
		"default":   testConfig(),
		"reversed":  reversed,
		"full only": fullOnly,
	}

	for _, k := range []int{0, 1, 3, 16} {
		for name, cfg := range configs {
			t.Run(fmt.Sprintf("K=%d/%s", k, name), func(t *testing.T) {
				uids := randomUIDs(k, int64(k)+1)
				d := discovery.New(newFakeTransport(uids...), cfg, nil)

				// The first check runs on an empty table; the second one
				// follows the first full search.
				runCycles(t, d, 2)

				assert.ElementsMatch(t, uids, d.Devices())
				assert.False(t, d.Incomplete())
			})
		}
	}
}

func TestDiscovery_Boundaries(t *testing.T) {
	uids := []rdm.UID{
		rdm.ZeroUID,
		rdm.NewUID(0, 1),
		rdm.NewUID(0xFFFF, 0xFFFFFFFE),
		rdm.NewUID(discovery.DefaultManufacturer, 0),
		rdm.NewUID(discovery.DefaultManufacturer, 0xFFFFFFFE),
	}
	d := discovery.New(newFakeTransport(uids...), testConfig(), nil)

	runCycles(t, d, 2)
	assert.ElementsMatch(t, uids, d.Devices())
}

func TestDiscovery_StableTableRaisesNoChange(t *testing.T) {
	uids := randomUIDs(3, 11)
	d := discovery.New(newFakeTransport(uids...), testConfig(), nil)

	assert.Equal(t, 1, runCycles(t, d, 2), "found devices are reported once")
	assert.Zero(t, runCycles(t, d, 5))
	assert.Len(t, d.Devices(), 3)
}

func TestDiscovery_RemovesSilentDevice(t *testing.T) {
	uids := randomUIDs(3, 21)
	transport := newFakeTransport(uids...)
	d := discovery.New(transport, testConfig(), nil)
	runCycles(t, d, 2)
	require.Len(t, d.Devices(), 3)

	transport.devices[uids[1]].present = false

	assert.Equal(t, 1, runCycles(t, d, 3))
	assert.ElementsMatch(t, []rdm.UID{uids[0], uids[2]}, d.Devices())
	assert.Zero(t, runCycles(t, d, 5))

	// Back on the line, found by the next search.
	transport.devices[uids[1]].present = true
	assert.Equal(t, 1, runCycles(t, d, 7))
	assert.ElementsMatch(t, uids, d.Devices())
}

func TestDiscovery_ReconfirmKeepsSingleEntry(t *testing.T) {
	uid := rdm.NewUID(0x1234, 0x5678)
	transport := newFakeTransport(uid)
	d := discovery.New(transport, testConfig(), nil)
	runCycles(t, d, 2)

	// Muted devices still acknowledge a mute.
	transport.devices[uid].muted = true
	runCycles(t, d, 4)

	assert.Equal(t, []rdm.UID{uid}, d.Devices())
}

func TestDiscovery_OnTableChanged(t *testing.T) {
	uids := randomUIDs(2, 31)
	d := discovery.New(newFakeTransport(uids...), testConfig(), nil)

	var calls [][]rdm.UID
	d.OnTableChanged(func(devices []rdm.UID) { calls = append(calls, devices) })
	runCycles(t, d, 4)

	require.Len(t, calls, 1)
	assert.ElementsMatch(t, uids, calls[0])
}

func TestDiscovery_StatesAlternate(t *testing.T) {
	d := discovery.New(newFakeTransport(), testConfig(), nil)
	require.Equal(t, discovery.StateTableCheck, d.State())

	// Empty table: one step un-mutes everything and seeds the search.
	assert.False(t, d.Step())
	assert.Equal(t, discovery.StateSearch, d.State())
	assert.Equal(t, uint64(1), d.Cycles())

	// Two empty seed ranges, then the empty stack ends the search.
	d.Step()
	d.Step()
	d.Step()
	assert.Equal(t, discovery.StateTableCheck, d.State())
}

func TestDiscovery_RangeRetry(t *testing.T) {
	uid := rdm.NewUID(0x0100, 0x42)
	cfg := testConfig()
	cfg.Seeds = []rdm.Range{rdm.FullRange}

	t.Run("second attempt answers", func(t *testing.T) {
		transport := newFakeTransport(uid)
		transport.dropDiscovery = 1
		d := discovery.New(transport, cfg, nil)
		runCycles(t, d, 2)
		assert.Equal(t, []rdm.UID{uid}, d.Devices())
	})

	t.Run("range abandoned after two silent attempts", func(t *testing.T) {
		transport := newFakeTransport(uid)
		transport.dropDiscovery = 2
		d := discovery.New(transport, cfg, nil)
		runCycles(t, d, 2)
		assert.Empty(t, d.Devices())
		assert.Equal(t, 2, transport.discoveries)
	})
}

func TestDiscovery_LeafSeed(t *testing.T) {
	uid := rdm.NewUID(0x0100, 0x42)
	transport := newFakeTransport(uid)
	cfg := testConfig()
	cfg.Seeds = []rdm.Range{{Lower: uid, Upper: uid}}
	d := discovery.New(transport, cfg, nil)

	runCycles(t, d, 2)
	assert.Equal(t, []rdm.UID{uid}, d.Devices())
	assert.Zero(t, transport.discoveries, "a single UID is probed with a mute")
}

func TestDiscovery_TableFull(t *testing.T) {
	uids := randomUIDs(5, 41)
	cfg := testConfig()
	cfg.TableCapacity = 2
	d := discovery.New(newFakeTransport(uids...), cfg, nil)

	runCycles(t, d, 2)
	assert.Len(t, d.Devices(), 2)
	for _, u := range d.Devices() {
		assert.Contains(t, uids, u)
	}

	for d.State() == discovery.StateTableCheck {
		d.Step()
	}
	for i := 0; d.State() == discovery.StateSearch; i++ {
		require.Less(t, i, maxSteps)
		d.Step()
	}
	assert.True(t, d.Incomplete())
}

func TestDiscovery_StackFull(t *testing.T) {
	uids := randomUIDs(3, 51)
	cfg := testConfig()
	cfg.Seeds = []rdm.Range{rdm.FullRange}
	cfg.StackCapacity = 1
	d := discovery.New(newFakeTransport(uids...), cfg, nil)

	runCycles(t, d, 1)
	for i := 0; d.State() == discovery.StateSearch; i++ {
		require.Less(t, i, maxSteps)
		d.Step()
	}
	assert.True(t, d.Incomplete())

	// The next search starts clean.
	runCycles(t, d, 2)
	assert.False(t, d.Incomplete())
}

func TestDiscovery_Identify(t *testing.T) {
	uids := randomUIDs(3, 61)
	transport := newFakeTransport(uids...)
	d := discovery.New(transport, testConfig(), nil)
	runCycles(t, d, 2)

	d.SetIdentify(true)
	runCycles(t, d, 3)
	for _, u := range uids {
		dev := transport.devices[u]
		assert.Equal(t, 1, dev.identifyOn, "device %s", u)
		assert.False(t, dev.identify, "device %s left identifying", u)
	}

	// The request is consumed by one sweep.
	runCycles(t, d, 4)
	for _, u := range uids {
		assert.Equal(t, 1, transport.devices[u].identifyOn)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "table-check", discovery.StateTableCheck.String())
	assert.Equal(t, "search", discovery.StateSearch.String())
	assert.Equal(t, "unknown", discovery.State(9).String())
}
