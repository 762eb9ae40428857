package btree

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tuannm99/pagestore/internal/bufferpool"
	"github.com/tuannm99/pagestore/internal/pagefile"
)

const metaPageNum = 0
const rootInitialPage = 1

// treePoolFrames mirrors the record manager's fixed small pool: an index's
// working set (root plus the current descent path) is always small.
const treePoolFrames = 4

// Tree is an open disk-backed B+ tree index.
type Tree struct {
	mu sync.Mutex

	name string
	bp   *bufferpool.Pool

	keyType    int
	order      int
	rootPage   int
	numNodes   int
	numEntries int

	log    *slog.Logger
	closed atomic.Bool
}

// CreateBtree creates a new index file named name with the given key type
// (an opaque tag carried in the metadata page; this implementation only
// ever encodes keys as int64) and order n, and writes its metadata page
// plus an empty leaf root at page 1.
func CreateBtree(name string, keyType int, order int) error {
	if order < 3 {
		return ErrUnsupportedOrder
	}
	if order > maxLeafOrder(pagefile.PageSize) || order > maxInternalOrder(pagefile.PageSize) {
		return ErrOrderTooLarge
	}

	pf, err := pagefile.Create(name)
	if err != nil {
		return err
	}
	if err := pf.Close(); err != nil {
		return err
	}

	bp, err := bufferpool.New(name, treePoolFrames, bufferpool.LRU, nil)
	if err != nil {
		return err
	}

	mh, err := bp.PinPage(metaPageNum)
	if err != nil {
		_ = bp.Shutdown()
		return err
	}
	copy(mh.Data, encodeTreeMeta(treeMeta{KeyType: keyType, Order: order, RootPage: rootInitialPage, NumNodes: 1, NumEntries: 0}))
	if err := bp.MarkDirty(metaPageNum); err != nil {
		_ = bp.Shutdown()
		return err
	}
	if err := bp.UnpinPage(metaPageNum); err != nil {
		_ = bp.Shutdown()
		return err
	}

	rh, err := bp.PinPage(rootInitialPage)
	if err != nil {
		_ = bp.Shutdown()
		return err
	}
	writeLeafNode(rh.Data, nil, pagefile.NoPage)
	if err := bp.MarkDirty(rootInitialPage); err != nil {
		_ = bp.Shutdown()
		return err
	}
	if err := bp.UnpinPage(rootInitialPage); err != nil {
		_ = bp.Shutdown()
		return err
	}

	if err := bp.ForceFlushPool(); err != nil {
		_ = bp.Shutdown()
		return err
	}
	return bp.Shutdown()
}

// DeleteBtree removes the index file from disk entirely.
func DeleteBtree(name string) error {
	return pagefile.Destroy(name)
}

// OpenBtree opens an existing index file, reading its metadata page.
func OpenBtree(name string) (*Tree, error) {
	bp, err := bufferpool.New(name, treePoolFrames, bufferpool.LRU, nil)
	if err != nil {
		return nil, err
	}

	mh, err := bp.PinPage(metaPageNum)
	if err != nil {
		_ = bp.Shutdown()
		return nil, err
	}
	meta, err := decodeTreeMeta(mh.Data)
	if err != nil {
		_ = bp.Shutdown()
		return nil, err
	}
	if err := bp.UnpinPage(metaPageNum); err != nil {
		_ = bp.Shutdown()
		return nil, err
	}

	t := &Tree{
		name:       name,
		bp:         bp,
		keyType:    meta.KeyType,
		order:      meta.Order,
		rootPage:   meta.RootPage,
		numNodes:   meta.NumNodes,
		numEntries: meta.NumEntries,
		log:        slog.Default().With("index", name),
	}
	return t, nil
}

func (t *Tree) ensureOpen() error {
	if t.closed.Load() {
		return ErrTreeClosed
	}
	return nil
}

func (t *Tree) persistMetaLocked() error {
	h, err := t.bp.PinPage(metaPageNum)
	if err != nil {
		return err
	}
	copy(h.Data, encodeTreeMeta(treeMeta{
		KeyType:    t.keyType,
		Order:      t.order,
		RootPage:   t.rootPage,
		NumNodes:   t.numNodes,
		NumEntries: t.numEntries,
	}))
	if err := t.bp.MarkDirty(metaPageNum); err != nil {
		return err
	}
	return t.bp.UnpinPage(metaPageNum)
}

// CloseBtree persists metadata, flushes, and shuts down the index's buffer
// pool. It fails, leaving the index open, if any page is still pinned. A
// TreeScan holds no page pinned, so an open scan does not block it.
func (t *Tree) CloseBtree() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if err := t.persistMetaLocked(); err != nil {
		return err
	}
	if err := t.bp.ForceFlushPool(); err != nil {
		return err
	}
	if err := t.bp.Shutdown(); err != nil {
		return err
	}
	t.closed.Store(true)
	return nil
}

// NumEntries returns the number of keys currently indexed.
func (t *Tree) NumEntries() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numEntries
}

func (t *Tree) allocPage() int {
	t.numNodes++
	return t.numNodes
}

// childIndexFor picks the first child index i such that key < keys[i], or
// len(keys) (the last child) if no such key exists.
func childIndexFor(key KeyType, keys []KeyType) int {
	for i, k := range keys {
		if key < k {
			return i
		}
	}
	return len(keys)
}

// findLeftmostLeaf descends via child 0 at every internal level.
func (t *Tree) findLeftmostLeaf() (int, error) {
	page := t.rootPage
	for {
		h, err := t.bp.PinPage(page)
		if err != nil {
			return 0, err
		}
		tag := nodeTag(h.Data)
		if tag == leafTag {
			if err := t.bp.UnpinPage(page); err != nil {
				return 0, err
			}
			return page, nil
		}
		_, children, err := readInternalNode(h.Data)
		if err != nil {
			_ = t.bp.UnpinPage(page)
			return 0, err
		}
		if err := t.bp.UnpinPage(page); err != nil {
			return 0, err
		}
		page = children[0]
	}
}

// descendToLeaf walks from the root to the leaf that would hold key.
func (t *Tree) descendToLeaf(key KeyType) (int, error) {
	page := t.rootPage
	for {
		h, err := t.bp.PinPage(page)
		if err != nil {
			return 0, err
		}
		tag := nodeTag(h.Data)
		if tag == leafTag {
			if err := t.bp.UnpinPage(page); err != nil {
				return 0, err
			}
			return page, nil
		}
		keys, children, err := readInternalNode(h.Data)
		if err != nil {
			_ = t.bp.UnpinPage(page)
			return 0, err
		}
		if err := t.bp.UnpinPage(page); err != nil {
			return 0, err
		}
		page = children[childIndexFor(key, keys)]
	}
}

// FindKey returns the RID stored under key, or ErrKeyNotFound.
func (t *Tree) FindKey(key KeyType) (RID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureOpen(); err != nil {
		return RID{}, err
	}

	leafPage, err := t.descendToLeaf(key)
	if err != nil {
		return RID{}, err
	}
	h, err := t.bp.PinPage(leafPage)
	if err != nil {
		return RID{}, err
	}
	entries, _, err := readLeafNode(h.Data)
	if err != nil {
		_ = t.bp.UnpinPage(leafPage)
		return RID{}, err
	}
	if err := t.bp.UnpinPage(leafPage); err != nil {
		return RID{}, err
	}

	for _, e := range entries {
		if e.key == key {
			return e.rid, nil
		}
	}
	return RID{}, ErrKeyNotFound
}

func (t *Tree) leafNext(page int) (int, error) {
	h, err := t.bp.PinPage(page)
	if err != nil {
		return 0, err
	}
	_, next, err := readLeafNode(h.Data)
	if err != nil {
		_ = t.bp.UnpinPage(page)
		return 0, err
	}
	if err := t.bp.UnpinPage(page); err != nil {
		return 0, err
	}
	return next, nil
}

func (t *Tree) leafFirstKey(page int) (KeyType, error) {
	h, err := t.bp.PinPage(page)
	if err != nil {
		return 0, err
	}
	entries, _, err := readLeafNode(h.Data)
	if err != nil {
		_ = t.bp.UnpinPage(page)
		return 0, err
	}
	if err := t.bp.UnpinPage(page); err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, fmt.Errorf("%w: leaf %d has no entries", ErrMalformedNode, page)
	}
	return entries[0].key, nil
}

func (t *Tree) setLeafNext(page int, next int) error {
	h, err := t.bp.PinPage(page)
	if err != nil {
		return err
	}
	entries, _, err := readLeafNode(h.Data)
	if err != nil {
		_ = t.bp.UnpinPage(page)
		return err
	}
	writeLeafNode(h.Data, entries, next)
	if err := t.bp.MarkDirty(page); err != nil {
		_ = t.bp.UnpinPage(page)
		return err
	}
	return t.bp.UnpinPage(page)
}

// spliceLeafSibling links newLeaf into the sibling chain after oldLeaf,
// preserving ascending order along the chain.
func (t *Tree) spliceLeafSibling(oldLeaf, newLeaf int, newLeafFirstKey KeyType) error {
	oldNext, err := t.leafNext(oldLeaf)
	if err != nil {
		return err
	}

	if oldNext == pagefile.NoPage {
		if err := t.setLeafNext(oldLeaf, newLeaf); err != nil {
			return err
		}
		return t.setLeafNext(newLeaf, pagefile.NoPage)
	}

	oldNextFirst, err := t.leafFirstKey(oldNext)
	if err != nil {
		return err
	}

	if newLeafFirstKey < oldNextFirst {
		if err := t.setLeafNext(oldLeaf, newLeaf); err != nil {
			return err
		}
		return t.setLeafNext(newLeaf, oldNext)
	}

	if err := t.setLeafNext(newLeaf, pagefile.NoPage); err != nil {
		return err
	}
	tail, err := t.findLeftmostLeaf()
	if err != nil {
		return err
	}
	for {
		next, err := t.leafNext(tail)
		if err != nil {
			return err
		}
		if next == pagefile.NoPage {
			break
		}
		tail = next
	}
	return t.setLeafNext(tail, newLeaf)
}

func insertLeafSorted(entries []leafEntry, e leafEntry) []leafEntry {
	out := make([]leafEntry, 0, len(entries)+1)
	inserted := false
	for _, cur := range entries {
		if !inserted && e.key < cur.key {
			out = append(out, e)
			inserted = true
		}
		out = append(out, cur)
	}
	if !inserted {
		out = append(out, e)
	}
	return out
}

// insertIntoLeaf inserts (key, rid) into the leaf at pageNum, splitting it
// if it overflows order. Returns whether a split occurred and, if so, the
// promoted key and the new right sibling's page.
func (t *Tree) insertIntoLeaf(pageNum int, key KeyType, rid RID) (split bool, promotedKey KeyType, rightPage int, err error) {
	h, err := t.bp.PinPage(pageNum)
	if err != nil {
		return false, 0, 0, err
	}
	entries, nextLeaf, err := readLeafNode(h.Data)
	if err != nil {
		_ = t.bp.UnpinPage(pageNum)
		return false, 0, 0, err
	}
	entries = insertLeafSorted(entries, leafEntry{key: key, rid: rid})

	if len(entries) <= t.order {
		writeLeafNode(h.Data, entries, nextLeaf)
		if err := t.bp.MarkDirty(pageNum); err != nil {
			_ = t.bp.UnpinPage(pageNum)
			return false, 0, 0, err
		}
		if err := t.bp.UnpinPage(pageNum); err != nil {
			return false, 0, 0, err
		}
		return false, 0, 0, nil
	}

	total := len(entries)
	splitPoint := (total + 1) / 2
	left := entries[:splitPoint]
	right := entries[splitPoint:]

	writeLeafNode(h.Data, left, nextLeaf)
	if err := t.bp.MarkDirty(pageNum); err != nil {
		_ = t.bp.UnpinPage(pageNum)
		return false, 0, 0, err
	}
	if err := t.bp.UnpinPage(pageNum); err != nil {
		return false, 0, 0, err
	}

	newPage := t.allocPage()
	rh, err := t.bp.PinPage(newPage)
	if err != nil {
		return false, 0, 0, err
	}
	writeLeafNode(rh.Data, right, pagefile.NoPage)
	if err := t.bp.MarkDirty(newPage); err != nil {
		_ = t.bp.UnpinPage(newPage)
		return false, 0, 0, err
	}
	if err := t.bp.UnpinPage(newPage); err != nil {
		return false, 0, 0, err
	}

	promoted := right[0].key
	if err := t.spliceLeafSibling(pageNum, newPage, promoted); err != nil {
		return false, 0, 0, err
	}
	return true, promoted, newPage, nil
}

func insertKeyChild(keys []KeyType, children []int, idx int, key KeyType, child int) ([]KeyType, []int) {
	newKeys := make([]KeyType, 0, len(keys)+1)
	newKeys = append(newKeys, keys[:idx]...)
	newKeys = append(newKeys, key)
	newKeys = append(newKeys, keys[idx:]...)

	newChildren := make([]int, 0, len(children)+1)
	newChildren = append(newChildren, children[:idx+1]...)
	newChildren = append(newChildren, child)
	newChildren = append(newChildren, children[idx+1:]...)

	return newKeys, newChildren
}

// insertIntoInternal inserts (key, rightChild) as a new separator after the
// existing child at idx, splitting the internal node at pageNum if it
// overflows order.
func (t *Tree) insertIntoInternal(pageNum int, idx int, key KeyType, rightChild int) (split bool, promotedKey KeyType, rightPage int, err error) {
	h, err := t.bp.PinPage(pageNum)
	if err != nil {
		return false, 0, 0, err
	}
	keys, children, err := readInternalNode(h.Data)
	if err != nil {
		_ = t.bp.UnpinPage(pageNum)
		return false, 0, 0, err
	}

	keys, children = insertKeyChild(keys, children, idx, key, rightChild)

	if len(keys) <= t.order {
		writeInternalNode(h.Data, keys, children)
		if err := t.bp.MarkDirty(pageNum); err != nil {
			_ = t.bp.UnpinPage(pageNum)
			return false, 0, 0, err
		}
		if err := t.bp.UnpinPage(pageNum); err != nil {
			return false, 0, 0, err
		}
		return false, 0, 0, nil
	}

	total := len(keys)
	splitPoint := (total + 1) / 2
	promoted := keys[splitPoint]
	leftKeys, leftChildren := keys[:splitPoint], children[:splitPoint+1]
	rightKeys, rightChildren := keys[splitPoint+1:], children[splitPoint+1:]

	writeInternalNode(h.Data, leftKeys, leftChildren)
	if err := t.bp.MarkDirty(pageNum); err != nil {
		_ = t.bp.UnpinPage(pageNum)
		return false, 0, 0, err
	}
	if err := t.bp.UnpinPage(pageNum); err != nil {
		return false, 0, 0, err
	}

	newPage := t.allocPage()
	rh, err := t.bp.PinPage(newPage)
	if err != nil {
		return false, 0, 0, err
	}
	writeInternalNode(rh.Data, rightKeys, rightChildren)
	if err := t.bp.MarkDirty(newPage); err != nil {
		_ = t.bp.UnpinPage(newPage)
		return false, 0, 0, err
	}
	if err := t.bp.UnpinPage(newPage); err != nil {
		return false, 0, 0, err
	}

	return true, promoted, newPage, nil
}

// insertAt recurses down the tree along the path leading to key, inserting
// (key, rid) at the leaf and propagating any split back up one level at a
// time, generalizing the single-level reference algorithm to arbitrary
// depth.
func (t *Tree) insertAt(pageNum int, key KeyType, rid RID) (split bool, promotedKey KeyType, rightPage int, err error) {
	h, err := t.bp.PinPage(pageNum)
	if err != nil {
		return false, 0, 0, err
	}
	tag := nodeTag(h.Data)

	if tag == leafTag {
		if err := t.bp.UnpinPage(pageNum); err != nil {
			return false, 0, 0, err
		}
		return t.insertIntoLeaf(pageNum, key, rid)
	}

	keys, children, err := readInternalNode(h.Data)
	if err != nil {
		_ = t.bp.UnpinPage(pageNum)
		return false, 0, 0, err
	}
	if err := t.bp.UnpinPage(pageNum); err != nil {
		return false, 0, 0, err
	}

	idx := childIndexFor(key, keys)
	childSplit, childPromoted, childRight, err := t.insertAt(children[idx], key, rid)
	if err != nil {
		return false, 0, 0, err
	}
	if !childSplit {
		return false, 0, 0, nil
	}

	return t.insertIntoInternal(pageNum, idx, childPromoted, childRight)
}

// InsertKey inserts (key, rid) into the tree, splitting nodes and growing
// the tree's height as needed.
func (t *Tree) InsertKey(key KeyType, rid RID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureOpen(); err != nil {
		return err
	}

	split, promoted, rightPage, err := t.insertAt(t.rootPage, key, rid)
	if err != nil {
		return err
	}
	t.numEntries++

	if split {
		newRoot := t.allocPage()
		rh, err := t.bp.PinPage(newRoot)
		if err != nil {
			return err
		}
		writeInternalNode(rh.Data, []KeyType{promoted}, []int{t.rootPage, rightPage})
		if err := t.bp.MarkDirty(newRoot); err != nil {
			_ = t.bp.UnpinPage(newRoot)
			return err
		}
		if err := t.bp.UnpinPage(newRoot); err != nil {
			return err
		}
		t.rootPage = newRoot
	}

	return t.persistMetaLocked()
}

// DeleteKey removes key from the tree. No merging or redistribution is ever
// performed: this is a permanent design choice (see the design notes), not
// deferred work.
func (t *Tree) DeleteKey(key KeyType) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureOpen(); err != nil {
		return err
	}

	leafPage, err := t.descendToLeaf(key)
	if err != nil {
		return err
	}
	h, err := t.bp.PinPage(leafPage)
	if err != nil {
		return err
	}
	entries, nextLeaf, err := readLeafNode(h.Data)
	if err != nil {
		_ = t.bp.UnpinPage(leafPage)
		return err
	}

	idx := -1
	for i, e := range entries {
		if e.key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		if err := t.bp.UnpinPage(leafPage); err != nil {
			return err
		}
		return ErrKeyNotFound
	}

	entries = append(entries[:idx], entries[idx+1:]...)
	writeLeafNode(h.Data, entries, nextLeaf)
	if err := t.bp.MarkDirty(leafPage); err != nil {
		_ = t.bp.UnpinPage(leafPage)
		return err
	}
	if err := t.bp.UnpinPage(leafPage); err != nil {
		return err
	}

	t.numEntries--
	return t.persistMetaLocked()
}
