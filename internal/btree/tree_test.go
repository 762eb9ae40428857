package btree_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/pagestore/internal/btree"
)

func TestBtree_InsertAndFind_ScenarioS5(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.bt")
	require.NoError(t, btree.CreateBtree(path, 0, 4))

	tr, err := btree.OpenBtree(path)
	require.NoError(t, err)

	inserts := []struct {
		key int64
		rid btree.RID
	}{
		{10, btree.RID{Page: 1, Slot: 0}},
		{5, btree.RID{Page: 1, Slot: 1}},
		{20, btree.RID{Page: 1, Slot: 2}},
		{15, btree.RID{Page: 1, Slot: 3}},
		{8, btree.RID{Page: 1, Slot: 4}},
	}
	for _, in := range inserts {
		require.NoError(t, tr.InsertKey(in.key, in.rid))
	}

	rid, err := tr.FindKey(15)
	require.NoError(t, err)
	require.Equal(t, btree.RID{Page: 1, Slot: 3}, rid)

	_, err = tr.FindKey(99)
	require.ErrorIs(t, err, btree.ErrKeyNotFound)

	require.NoError(t, tr.CloseBtree())
}

func TestBtree_OrderedScan_ScenarioS6(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx.bt")
	require.NoError(t, btree.CreateBtree(path, 0, 4))

	tr, err := btree.OpenBtree(path)
	require.NoError(t, err)

	for _, kv := range []struct {
		key int64
		rid btree.RID
	}{
		{10, btree.RID{Page: 1, Slot: 0}},
		{5, btree.RID{Page: 1, Slot: 1}},
		{20, btree.RID{Page: 1, Slot: 2}},
		{15, btree.RID{Page: 1, Slot: 3}},
		{8, btree.RID{Page: 1, Slot: 4}},
	} {
		require.NoError(t, tr.InsertKey(kv.key, kv.rid))
	}

	scan, err := tr.OpenTreeScan()
	require.NoError(t, err)

	var rids []btree.RID
	for {
		rid, err := scan.NextEntry()
		if err != nil {
			require.ErrorIs(t, err, btree.ErrNoMoreEntries)
			break
		}
		rids = append(rids, rid)
	}
	require.NoError(t, scan.CloseTreeScan())

	require.Equal(t, []btree.RID{
		{Page: 1, Slot: 1}, // key 5
		{Page: 1, Slot: 4}, // key 8
		{Page: 1, Slot: 0}, // key 10
		{Page: 1, Slot: 3}, // key 15
		{Page: 1, Slot: 2}, // key 20
	}, rids)

	require.NoError(t, tr.CloseBtree())
}

func TestBtree_DeepSplitPropagation_ScenarioS7(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx2.bt")
	require.NoError(t, btree.CreateBtree(path, 0, 4))

	tr, err := btree.OpenBtree(path)
	require.NoError(t, err)

	// With order 4, ascending inserts build a root whose separator count
	// grows by one per leaf split: the root itself only overflows (and
	// must split, growing the tree to 3 levels) once it already holds 4
	// keys and a 5th leaf split promotes one more — which happens on the
	// 17th insert. 20 keys gives margin past that threshold, so this
	// actually exercises insertAt's propagate-up-the-path/new-root
	// allocation path instead of stopping at a 2-level tree.
	const n = 20
	for k := int64(1); k <= n; k++ {
		require.NoError(t, tr.InsertKey(k, btree.RID{Page: int(k), Slot: 0}))
	}

	for k := int64(1); k <= n; k++ {
		rid, err := tr.FindKey(k)
		require.NoError(t, err)
		require.Equal(t, int(k), rid.Page)
	}

	scan, err := tr.OpenTreeScan()
	require.NoError(t, err)
	var keys []int64
	for {
		rid, err := scan.NextEntry()
		if err != nil {
			require.ErrorIs(t, err, btree.ErrNoMoreEntries)
			break
		}
		keys = append(keys, int64(rid.Page))
	}
	require.NoError(t, scan.CloseTreeScan())

	want := make([]int64, n)
	for i := range want {
		want[i] = int64(i + 1)
	}
	require.Equal(t, want, keys)

	require.NoError(t, tr.CloseBtree())
}

func TestBtree_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx3.bt")
	require.NoError(t, btree.CreateBtree(path, 0, 4))

	tr, err := btree.OpenBtree(path)
	require.NoError(t, err)

	require.NoError(t, tr.InsertKey(1, btree.RID{Page: 1, Slot: 0}))
	require.NoError(t, tr.InsertKey(2, btree.RID{Page: 1, Slot: 1}))

	require.NoError(t, tr.DeleteKey(1))
	_, err = tr.FindKey(1)
	require.ErrorIs(t, err, btree.ErrKeyNotFound)

	require.ErrorIs(t, tr.DeleteKey(1), btree.ErrKeyNotFound)

	rid, err := tr.FindKey(2)
	require.NoError(t, err)
	require.Equal(t, btree.RID{Page: 1, Slot: 1}, rid)

	require.NoError(t, tr.CloseBtree())
}
