package pager_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"uvmpager/pager"
	"uvmpager/policy/clock"
	"uvmpager/policy/fifo"
)

func newTestPager(t *testing.T, numPages, maxResident int, policy pager.Policy) *pager.Pager {
	t.Helper()
	p, err := pager.New(numPages, maxResident, policy, pager.WithSwapDir(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p
}

func pageAddr(p *pager.Pager, page pager.Page) uintptr {
	return p.PageToAddr(page)
}

// TestReadThenWritePromotesPermissions is scenario 1 from spec.md §8: the
// first read of a fresh page takes two faults (not-mapped, then
// access-forbidden for read) and one load; a following write takes one
// more fault and sets dirty.
func TestReadThenWritePromotesPermissions(t *testing.T) {
	p := newTestPager(t, 4, 4, fifo.New())

	addr0 := pageAddr(p, 0)

	require.NoError(t, p.HandleFault(addr0, pager.FaultNotMapped))
	require.NoError(t, p.HandleFault(addr0, pager.FaultForbidden))

	stats := p.Stats()
	require.Equal(t, uint64(2), stats.Faults)
	require.Equal(t, uint64(1), stats.Loads)
	require.Equal(t, pager.PermRead, p.Permission(0))
	require.False(t, p.Dirty(0))

	require.NoError(t, p.HandleFault(addr0, pager.FaultForbidden))

	stats = p.Stats()
	require.Equal(t, uint64(3), stats.Faults)
	require.Equal(t, uint64(1), stats.Loads)
	require.True(t, p.Dirty(0))
	require.Equal(t, pager.PermRDWR, p.Permission(0))
}

// TestCleanEvictionReloadsFromSwap is scenario 2: with max_resident=1,
// reading page 0 then page 1 evicts page 0 without a write-back (it was
// never dirtied); reading page 0 again reloads it.
func TestCleanEvictionReloadsFromSwap(t *testing.T) {
	p := newTestPager(t, 4, 1, fifo.New())

	touch := func(page pager.Page) {
		addr := pageAddr(p, page)
		require.NoError(t, p.HandleFault(addr, pager.FaultNotMapped))
		require.NoError(t, p.HandleFault(addr, pager.FaultForbidden))
	}

	touch(0)
	touch(1)
	require.False(t, p.Resident(0))
	require.True(t, p.Resident(1))

	touch(0)

	require.Equal(t, uint64(3), p.Stats().Loads)
}

// TestDirtyEvictionWritesBack is the bookkeeping half of scenario 3: a
// dirty page is evicted and reloaded. That its contents survive the round
// trip is checked by notify's TestAccessRoundTripSurvivesEviction.
func TestDirtyEvictionWritesBack(t *testing.T) {
	p := newTestPager(t, 4, 1, fifo.New())

	addr0 := pageAddr(p, 0)
	require.NoError(t, p.HandleFault(addr0, pager.FaultNotMapped))
	require.NoError(t, p.HandleFault(addr0, pager.FaultForbidden)) // -> READ
	require.NoError(t, p.HandleFault(addr0, pager.FaultForbidden)) // -> RDWR
	require.True(t, p.Dirty(0))

	// Touch page 1, forcing page 0's eviction under max_resident=1.
	addr1 := pageAddr(p, 1)
	require.NoError(t, p.HandleFault(addr1, pager.FaultNotMapped))
	require.False(t, p.Resident(0))

	// Reload page 0. Verifying the written byte requires touching real
	// memory, which this package-level test leaves to notify's tests; here
	// we assert only that the page is resident again with a clean PTE.
	require.NoError(t, p.HandleFault(addr0, pager.FaultNotMapped))
	require.True(t, p.Resident(0))
	require.False(t, p.Dirty(0))
}

// TestFIFOVictimOrder is scenario 4.
func TestFIFOVictimOrder(t *testing.T) {
	p := newTestPager(t, 8, 3, fifo.New())

	for _, page := range []pager.Page{0, 1, 2, 3} {
		addr := pageAddr(p, page)
		require.NoError(t, p.HandleFault(addr, pager.FaultNotMapped))
	}
	require.False(t, p.Resident(0))
	require.True(t, p.Resident(1))
	require.True(t, p.Resident(2))
	require.True(t, p.Resident(3))

	require.NoError(t, p.HandleFault(pageAddr(p, 4), pager.FaultNotMapped))
	require.False(t, p.Resident(1))
	require.True(t, p.Resident(4))
}

// TestClockKeepsRecentlyUsedPages is scenario 5.
func TestClockKeepsRecentlyUsedPages(t *testing.T) {
	p := newTestPager(t, 8, 3, clock.New())

	touchRead := func(page pager.Page) {
		addr := pageAddr(p, page)
		require.NoError(t, p.HandleFault(addr, pager.FaultNotMapped))
		require.NoError(t, p.HandleFault(addr, pager.FaultForbidden))
	}

	touchRead(0)
	touchRead(1)
	touchRead(2)

	// First tick: all three were just read, so all three get demoted back
	// to NONE (accessed cleared) and moved to the tail in the same
	// relative order.
	p.Tick()

	// Re-touch 0 and 1 only: each is a single access-forbidden fault
	// (permission is NONE after the tick), which re-sets their accessed
	// bit. Page 2 is left alone.
	require.NoError(t, p.HandleFault(pageAddr(p, 0), pager.FaultForbidden))
	require.NoError(t, p.HandleFault(pageAddr(p, 1), pager.FaultForbidden))

	// Second tick: 0 and 1 are accessed and move to the tail again; page
	// 2, never re-touched, is left at the front.
	p.Tick()

	require.NoError(t, p.HandleFault(pageAddr(p, 3), pager.FaultNotMapped))
	require.False(t, p.Resident(2), "page 2 was the only one not recently accessed")
	require.True(t, p.Resident(0))
	require.True(t, p.Resident(1))
	require.True(t, p.Resident(3))
}

// TestCounterMonotonicity is scenario 6.
func TestCounterMonotonicity(t *testing.T) {
	p := newTestPager(t, 4, 2, fifo.New())

	var lastFaults, lastLoads uint64
	ops := []struct {
		addr uintptr
		kind pager.FaultKind
	}{
		{pageAddr(p, 0), pager.FaultNotMapped},
		{pageAddr(p, 0), pager.FaultForbidden},
		{pageAddr(p, 1), pager.FaultNotMapped},
		{pageAddr(p, 1), pager.FaultForbidden},
		{pageAddr(p, 2), pager.FaultNotMapped},
	}
	for _, op := range ops {
		require.NoError(t, p.HandleFault(op.addr, op.kind))
		stats := p.Stats()
		require.GreaterOrEqual(t, stats.Faults, lastFaults)
		require.GreaterOrEqual(t, stats.Loads, lastLoads)
		require.LessOrEqual(t, stats.Loads, stats.Faults)
		lastFaults, lastLoads = stats.Faults, stats.Loads
	}
}

// TestOutOfBoundsFaultPanics is the boundary behavior "accessing
// vmem_start-1 or vmem_end terminates the process with a genuine
// segmentation fault diagnostic": HandleFault panics rather than
// returning an error for an out-of-range address.
func TestOutOfBoundsFaultPanics(t *testing.T) {
	p := newTestPager(t, 4, 2, fifo.New())

	require.Panics(t, func() {
		_ = p.HandleFault(p.Start()-1, pager.FaultNotMapped)
	})
	require.Panics(t, func() {
		_ = p.HandleFault(p.End(), pager.FaultNotMapped)
	})
}

// TestMaxResidentZeroRejected is the "max_resident = 0" open question
// (§9): this implementation rejects it as unsupported at construction.
func TestMaxResidentZeroRejected(t *testing.T) {
	_, err := pager.New(4, 0, fifo.New(), pager.WithSwapDir(t.TempDir()))
	require.ErrorIs(t, err, pager.ErrUnsupportedConfig)
}
