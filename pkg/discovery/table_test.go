// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package discovery_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/rdmctl/pkg/discovery"
	"github.com/Thermoquad/rdmctl/pkg/rdm"
)

func TestTable_AddRemove(t *testing.T) {
	table := discovery.NewTable(4)
	a := rdm.NewUID(1, 1)
	b := rdm.NewUID(1, 2)

	added, err := table.Add(a)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = table.Add(b)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = table.Add(a)
	require.NoError(t, err)
	assert.False(t, added, "duplicate must not be added")
	assert.Equal(t, 2, table.Len())

	assert.Equal(t, 1, table.Index(b))
	require.True(t, table.RemoveAt(0))
	assert.False(t, table.Contains(a))
	got, ok := table.At(0)
	require.True(t, ok)
	assert.Equal(t, b, got)

	assert.False(t, table.RemoveAt(1))
	assert.False(t, table.RemoveAt(-1))
	_, ok = table.At(5)
	assert.False(t, ok)
}

func TestTable_Full(t *testing.T) {
	table := discovery.NewTable(2)
	_, err := table.Add(rdm.NewUID(1, 1))
	require.NoError(t, err)
	_, err = table.Add(rdm.NewUID(1, 2))
	require.NoError(t, err)

	_, err = table.Add(rdm.NewUID(1, 3))
	assert.ErrorIs(t, err, discovery.ErrTableFull)
	assert.Equal(t, 2, table.Len())

	// A present UID is not an insertion.
	added, err := table.Add(rdm.NewUID(1, 2))
	assert.NoError(t, err)
	assert.False(t, added)
}

func TestTable_NoDuplicatesUnderRandomOps(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	table := discovery.NewTable(32)

	for i := 0; i < 10000; i++ {
		if rng.Intn(3) == 0 && table.Len() > 0 {
			table.RemoveAt(rng.Intn(table.Len()))
			continue
		}
		_, err := table.Add(rdm.NewUID(0x10, uint32(rng.Intn(40))))
		if err != nil {
			require.ErrorIs(t, err, discovery.ErrTableFull)
		}
	}

	seen := make(map[rdm.UID]bool)
	for _, u := range table.All() {
		require.False(t, seen[u], "duplicate %s", u)
		seen[u] = true
	}
	assert.LessOrEqual(t, table.Len(), table.Cap())
}

func TestTable_AllIsACopy(t *testing.T) {
	table := discovery.NewTable(2)
	_, _ = table.Add(rdm.NewUID(1, 1))

	all := table.All()
	all[0] = rdm.NewUID(9, 9)

	got, _ := table.At(0)
	assert.Equal(t, rdm.NewUID(1, 1), got)
}

func TestRangeStack(t *testing.T) {
	stack := discovery.NewRangeStack(2)
	a := rdm.Range{Lower: rdm.NewUID(0, 0), Upper: rdm.NewUID(0, 10)}
	b := rdm.Range{Lower: rdm.NewUID(0, 10), Upper: rdm.NewUID(0, 20)}

	require.NoError(t, stack.Push(a))
	require.NoError(t, stack.Push(b))
	assert.ErrorIs(t, stack.Push(a), discovery.ErrStackFull)
	assert.Equal(t, 2, stack.Len())

	got, ok := stack.Pop()
	require.True(t, ok)
	assert.Equal(t, b, got)
	got, ok = stack.Pop()
	require.True(t, ok)
	assert.Equal(t, a, got)

	_, ok = stack.Pop()
	assert.False(t, ok)

	require.NoError(t, stack.Push(a))
	stack.Reset()
	assert.Zero(t, stack.Len())
}
