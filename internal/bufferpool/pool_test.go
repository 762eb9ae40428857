package bufferpool_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/pagestore/internal/bufferpool"
	"github.com/tuannm99/pagestore/internal/pagefile"
)

func newTestFile(t *testing.T, pages int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.pf")
	f, err := pagefile.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.EnsureCapacity(pages))
	require.NoError(t, f.Close())
	return path
}

func snapshotPins(t *testing.T, pool *bufferpool.Pool, pages ...int) {
	t.Helper()
	for _, pg := range pages {
		h, err := pool.PinPage(pg)
		require.NoError(t, err)
		require.Equal(t, pg, h.PageNum)
		require.NoError(t, pool.UnpinPage(pg))
	}
}

func TestPool_FIFO_ScenarioS1(t *testing.T) {
	path := newTestFile(t, 6)
	pool, err := bufferpool.New(path, 3, bufferpool.FIFO, nil)
	require.NoError(t, err)

	snapshotPins(t, pool, 0, 1, 2, 3, 4, 5)

	snap := pool.Snapshot()
	got := []int{snap[0].PageNum, snap[1].PageNum, snap[2].PageNum}
	require.Equal(t, []int{3, 4, 5}, got)
	require.EqualValues(t, 6, pool.ReadIO())
	require.EqualValues(t, 0, pool.WriteIO())
}

func TestPool_LFU_ScenarioS2(t *testing.T) {
	path := newTestFile(t, 6)
	pool, err := bufferpool.New(path, 3, bufferpool.LFU, nil)
	require.NoError(t, err)

	snapshotPins(t, pool, 0, 1, 2)
	// 0 and 1 get extra hits, making page 2 the least-frequently-used.
	snapshotPins(t, pool, 0, 1, 0, 1)
	snapshotPins(t, pool, 3)

	snap := pool.Snapshot()
	got := map[int]bool{}
	for _, s := range snap {
		got[s.PageNum] = true
	}
	require.True(t, got[0])
	require.True(t, got[1])
	require.True(t, got[3])

	snapshotPins(t, pool, 4)
	snap = pool.Snapshot()
	got = map[int]bool{}
	for _, s := range snap {
		got[s.PageNum] = true
	}
	require.True(t, got[0])
	require.True(t, got[1])
	require.True(t, got[4])
	require.EqualValues(t, 5, pool.ReadIO())
}

func TestPool_ShutdownFailsWhenPinned_ScenarioS8(t *testing.T) {
	path := newTestFile(t, 3)
	pool, err := bufferpool.New(path, 3, bufferpool.LRU, nil)
	require.NoError(t, err)

	_, err = pool.PinPage(0)
	require.NoError(t, err)

	err = pool.Shutdown()
	require.ErrorIs(t, err, bufferpool.ErrPinnedPagesInBuffer)

	require.NoError(t, pool.UnpinPage(0))
	require.NoError(t, pool.Shutdown())
}

func TestPool_CLOCK_ExhaustionReturnsPinnedError_ScenarioS9(t *testing.T) {
	path := newTestFile(t, 3)
	pool, err := bufferpool.New(path, 2, bufferpool.CLOCK, nil)
	require.NoError(t, err)

	_, err = pool.PinPage(0)
	require.NoError(t, err)
	_, err = pool.PinPage(1)
	require.NoError(t, err)

	_, err = pool.PinPage(2)
	require.ErrorIs(t, err, bufferpool.ErrPinnedPagesInBuffer)
}

func TestPool_LRUK_PrefersOldestWithinWindow(t *testing.T) {
	path := newTestFile(t, 6)
	pool, err := bufferpool.New(path, 3, bufferpool.LRUK, &bufferpool.StrategyData{K: 2})
	require.NoError(t, err)

	snapshotPins(t, pool, 0, 1, 2)
	// Touch 0 and 1 again so each has 2 recorded accesses (K=2); 2 still
	// has only one. A frame with >=K accesses is victimized before any
	// frame with fewer, so the candidate set is {0, 1}, and among those
	// page 0's K-th-most-recent access (stamp 1) is older than page 1's
	// (stamp 2) — page 0 is evicted, not page 2.
	snapshotPins(t, pool, 0, 1)

	h, err := pool.PinPage(3)
	require.NoError(t, err)
	require.NoError(t, pool.UnpinPage(3))

	snap := pool.Snapshot()
	pages := map[int]bool{}
	for _, s := range snap {
		pages[s.PageNum] = true
	}
	require.False(t, pages[0])
	require.True(t, pages[1])
	require.True(t, pages[2])
	require.True(t, pages[h.PageNum])
}

func TestPool_MarkDirtyAndFlushPersistsBytes(t *testing.T) {
	path := newTestFile(t, 2)
	pool, err := bufferpool.New(path, 2, bufferpool.LRU, nil)
	require.NoError(t, err)

	h, err := pool.PinPage(0)
	require.NoError(t, err)
	copy(h.Data, []byte("hello"))
	require.NoError(t, pool.MarkDirty(0))
	require.NoError(t, pool.UnpinPage(0))
	require.NoError(t, pool.ForceFlushPool())
	require.NoError(t, pool.Shutdown())

	reopened, err := bufferpool.New(path, 2, bufferpool.LRU, nil)
	require.NoError(t, err)
	h2, err := reopened.PinPage(0)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), h2.Data[:5])
	require.NoError(t, reopened.UnpinPage(0))
	require.NoError(t, reopened.Shutdown())
}
