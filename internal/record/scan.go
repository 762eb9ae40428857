package record

import "github.com/tuannm99/pagestore/internal/bufferpool"

// Predicate decides whether a scanned record should be returned. A nil
// predicate matches every record.
type Predicate func(rec *Record, schema Schema) (bool, error)

// Scan is a sequential, predicate-filtered cursor over a table's live
// records. It holds at most one page pinned at a time, released at every
// page boundary and on Close.
type Scan struct {
	table *Table
	pred  Predicate

	page *bufferpool.PageHandle
	next int // next slot to examine on the pinned page

	done bool
}

// StartScan begins a new scan of t, returning records for which pred
// returns true (or every record, if pred is nil).
func (t *Table) StartScan(pred Predicate) *Scan {
	return &Scan{table: t, pred: pred, next: 0}
}

func (s *Scan) releasePage() error {
	if s.page == nil {
		return nil
	}
	pg := s.page.PageNum
	s.page = nil
	return s.table.bp.UnpinPage(pg)
}

// Next returns the next matching record, or ErrNoMoreTuples once the heap
// file is exhausted.
func (s *Scan) Next() (*Record, error) {
	if s.done {
		return nil, ErrNoMoreTuples
	}
	t := s.table

	pageNum := 1
	if s.page != nil {
		pageNum = s.page.PageNum
	}

	for {
		// The page bound comes from the tuple count: pages 1 through
		// tupleCount/recordsPerPage + 2 are visited. Pinning a page past the
		// end of the file extends it with zeroed pages, and live records on
		// pages beyond the bound (possible after deletes) are not visited.
		maxPage := 1 + t.tupleCount/t.recordsPerPage + 1
		if pageNum > maxPage {
			if err := s.releasePage(); err != nil {
				return nil, err
			}
			s.done = true
			return nil, ErrNoMoreTuples
		}

		if s.page == nil {
			h, err := t.bp.PinPage(pageNum)
			if err != nil {
				return nil, err
			}
			s.page = h
			s.next = 0
		}

		for s.next < t.recordsPerPage {
			off := s.next * t.slotSize
			tag := s.page.Data[off]
			slot := s.next
			s.next++
			if tag != '1' {
				continue
			}

			rec := NewRecord(t.schema)
			copy(rec.Data, s.page.Data[off+1:off+t.slotSize])
			rec.ID = RecordID{Page: pageNum, Slot: slot}

			if s.pred == nil {
				return rec, nil
			}
			ok, err := s.pred(rec, t.schema)
			if err != nil {
				return nil, err
			}
			if ok {
				return rec, nil
			}
		}

		if err := s.releasePage(); err != nil {
			return nil, err
		}
		pageNum++
	}
}

// Close releases any page the scan is still holding pinned.
func (s *Scan) Close() error {
	s.done = true
	return s.releasePage()
}
