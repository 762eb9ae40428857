package btree

import "github.com/tuannm99/pagestore/internal/pagefile"

// TreeScan is a sequential in-order cursor over an index's leaf chain.
type TreeScan struct {
	t *Tree

	leafPage int
	nextLeaf int
	entries  []leafEntry
	keyIndex int

	done bool
}

// OpenTreeScan descends to the leftmost leaf and positions the cursor
// before its first entry.
func (t *Tree) OpenTreeScan() (*TreeScan, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}

	leftmost, err := t.findLeftmostLeaf()
	if err != nil {
		return nil, err
	}
	s := &TreeScan{t: t, leafPage: leftmost, keyIndex: -1}
	if err := s.loadLeaf(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *TreeScan) loadLeaf() error {
	h, err := s.t.bp.PinPage(s.leafPage)
	if err != nil {
		return err
	}
	entries, next, err := readLeafNode(h.Data)
	if err != nil {
		_ = s.t.bp.UnpinPage(s.leafPage)
		return err
	}
	if err := s.t.bp.UnpinPage(s.leafPage); err != nil {
		return err
	}
	s.entries = entries
	s.nextLeaf = next
	return nil
}

// NextEntry returns the RID of the next key in ascending order, or
// ErrNoMoreEntries once the leaf chain is exhausted. Leaves left empty by
// DeleteKey are simply skipped over.
func (s *TreeScan) NextEntry() (RID, error) {
	if s.done {
		return RID{}, ErrNoMoreEntries
	}

	for {
		s.keyIndex++
		if s.keyIndex < len(s.entries) {
			return s.entries[s.keyIndex].rid, nil
		}

		if s.nextLeaf == pagefile.NoPage {
			s.done = true
			return RID{}, ErrNoMoreEntries
		}
		s.leafPage = s.nextLeaf
		s.keyIndex = -1
		if err := s.loadLeaf(); err != nil {
			return RID{}, err
		}
	}
}

// CloseTreeScan releases the scan's state. The scan holds no page pinned
// between NextEntry calls, so there is nothing to unpin here.
func (s *TreeScan) CloseTreeScan() error {
	s.done = true
	return nil
}
