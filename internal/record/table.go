package record

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tuannm99/pagestore/internal/bufferpool"
	"github.com/tuannm99/pagestore/internal/pagefile"
)

const metaPageNum = 0

// tablePoolFrames is the fixed buffer pool size every open table uses unless
// overridden by a PoolConfig. The heap file's working set is small and
// LRU-friendly, so this is also the default policy.
const tablePoolFrames = 3

// DefaultPolicy marks a PoolConfig.Policy field as unset, since bufferpool.FIFO
// is itself a valid zero value and can't double as the sentinel. Callers
// building a PoolConfig by hand without a specific policy in mind should set
// Policy to DefaultPolicy.
const DefaultPolicy bufferpool.Policy = -1

const noPolicy = DefaultPolicy

// Table is an open heap file: a page-file-backed buffer pool holding a
// metadata page 0 followed by slotted data pages.
type Table struct {
	mu sync.Mutex

	name   string
	schema Schema
	bp     *bufferpool.Pool

	tupleCount    int
	firstFreePage int

	slotSize       int
	recordsPerPage int

	log    *slog.Logger
	closed atomic.Bool
}

func slotSizeFor(schema Schema) int {
	return 1 + schema.RecordWidth()
}

// PoolConfig overrides the buffer pool a table is opened or created with. A
// NumFrames of zero or less selects the default frame count, and a Policy of
// DefaultPolicy selects LRU. Since bufferpool.FIFO is Policy's zero value, the
// zero PoolConfig gives a default-sized FIFO pool; defaultPoolConfig gives
// the default-sized LRU pool.
type PoolConfig struct {
	NumFrames int
	Policy    bufferpool.Policy
	Strategy  *bufferpool.StrategyData
}

func (c PoolConfig) frames() int {
	if c.NumFrames > 0 {
		return c.NumFrames
	}
	return tablePoolFrames
}

func (c PoolConfig) policy() bufferpool.Policy {
	if c.Policy == noPolicy {
		return bufferpool.LRU
	}
	return c.Policy
}

// defaultPoolConfig is what CreateTable and OpenTable use in the absence of
// an explicit PoolConfig.
func defaultPoolConfig() PoolConfig {
	return PoolConfig{Policy: DefaultPolicy}
}

// CreateTable creates a new heap file named name with the given schema and
// writes its metadata page. It does not open the table for use.
func CreateTable(name string, schema Schema) error {
	return CreateTableWithPool(name, schema, defaultPoolConfig())
}

// CreateTableWithPool is CreateTable with an explicit buffer pool
// configuration, for callers driven by a loaded Config.
func CreateTableWithPool(name string, schema Schema, pc PoolConfig) error {
	pf, err := pagefile.Create(name)
	if err != nil {
		return err
	}
	if err := pf.Close(); err != nil {
		return err
	}

	bp, err := bufferpool.New(name, pc.frames(), pc.policy(), pc.Strategy)
	if err != nil {
		return err
	}

	h, err := bp.PinPage(metaPageNum)
	if err != nil {
		_ = bp.Shutdown()
		return err
	}
	copy(h.Data, encodeMetaPage(metaPage{TupleCount: 0, FirstFreePage: -1, Schema: schema}))
	if err := bp.MarkDirty(metaPageNum); err != nil {
		_ = bp.Shutdown()
		return err
	}
	if err := bp.UnpinPage(metaPageNum); err != nil {
		_ = bp.Shutdown()
		return err
	}
	if err := bp.ForceFlushPool(); err != nil {
		_ = bp.Shutdown()
		return err
	}
	return bp.Shutdown()
}

// DeleteTable removes the heap file named name from disk entirely.
func DeleteTable(name string) error {
	return pagefile.Destroy(name)
}

// OpenTable opens an existing heap file, reading its metadata page.
func OpenTable(name string) (*Table, error) {
	return OpenTableWithPool(name, defaultPoolConfig())
}

// OpenTableWithPool is OpenTable with an explicit buffer pool configuration,
// for callers driven by a loaded Config.
func OpenTableWithPool(name string, pc PoolConfig) (*Table, error) {
	bp, err := bufferpool.New(name, pc.frames(), pc.policy(), pc.Strategy)
	if err != nil {
		return nil, err
	}

	h, err := bp.PinPage(metaPageNum)
	if err != nil {
		_ = bp.Shutdown()
		return nil, err
	}
	meta, err := decodeMetaPage(h.Data)
	if err != nil {
		_ = bp.Shutdown()
		return nil, err
	}
	if err := bp.UnpinPage(metaPageNum); err != nil {
		_ = bp.Shutdown()
		return nil, err
	}

	slotSize := slotSizeFor(meta.Schema)
	t := &Table{
		name:           name,
		schema:         meta.Schema,
		bp:             bp,
		tupleCount:     meta.TupleCount,
		firstFreePage:  meta.FirstFreePage,
		slotSize:       slotSize,
		recordsPerPage: pagefile.PageSize / slotSize,
		log:            slog.Default().With("table", name),
	}
	return t, nil
}

// Schema returns the table's schema.
func (t *Table) Schema() Schema { return t.schema }

// GetNumTuples returns the number of live records in the table.
func (t *Table) GetNumTuples() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tupleCount
}

func (t *Table) ensureOpen() error {
	if t.closed.Load() {
		return ErrTableHandleClosed
	}
	return nil
}

// persistMetaLocked rewrites page 0 with the current in-memory tuple count
// and free-page pointer. Called on close so a reopened table sees an
// accurate count; the hot insert/delete/update path only updates the
// in-memory counters to avoid a metadata-page write on every call.
func (t *Table) persistMetaLocked() error {
	h, err := t.bp.PinPage(metaPageNum)
	if err != nil {
		return err
	}
	copy(h.Data, encodeMetaPage(metaPage{
		TupleCount:    t.tupleCount,
		FirstFreePage: t.firstFreePage,
		Schema:        t.schema,
	}))
	if err := t.bp.MarkDirty(metaPageNum); err != nil {
		return err
	}
	return t.bp.UnpinPage(metaPageNum)
}

// CloseTable persists metadata, flushes, and shuts down the table's buffer
// pool. It fails, leaving the table open, if any page is still pinned (for
// example by a live Scan).
func (t *Table) CloseTable() error {
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

// isFreeTag reports whether a slot tag byte marks the slot as free. A slot
// may be free either because its tag is '0' (stamped free, or deleted) or
// because its page has not been stamped yet (tag still the raw zero byte
// from extension).
func isFreeTag(tag byte) bool {
	return tag == '0' || tag == 0
}

// InsertRecord finds the first free slot starting from page 1 (page 0 is
// metadata), extending the file if every existing page is full, and writes
// rec into it. rec.ID is set to the slot it was written to.
func (t *Table) InsertRecord(rec *Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if len(rec.Data) != t.schema.RecordWidth() {
		return fmt.Errorf("%w: record is %d bytes, schema wants %d", ErrUnknownDataType, len(rec.Data), t.schema.RecordWidth())
	}

	pageNum := 1
	for {
		h, err := t.bp.PinPage(pageNum)
		if err != nil {
			return err
		}

		// A page added by extension still has binary-zero tags; stamp every
		// slot's tag as free ('0') the first time an insert uses it.
		if h.Data[0] == 0 {
			for s := 0; s < t.recordsPerPage; s++ {
				h.Data[s*t.slotSize] = '0'
			}
		}

		slot := -1
		for s := 0; s < t.recordsPerPage; s++ {
			if isFreeTag(h.Data[s*t.slotSize]) {
				slot = s
				break
			}
		}
		if slot < 0 {
			if err := t.bp.UnpinPage(pageNum); err != nil {
				return err
			}
			pageNum++
			continue
		}

		off := slot * t.slotSize
		h.Data[off] = '1'
		copy(h.Data[off+1:off+t.slotSize], rec.Data)
		if err := t.bp.MarkDirty(pageNum); err != nil {
			_ = t.bp.UnpinPage(pageNum)
			return err
		}
		if err := t.bp.UnpinPage(pageNum); err != nil {
			return err
		}

		rec.ID = RecordID{Page: pageNum, Slot: slot}
		t.tupleCount++
		return nil
	}
}

func (t *Table) slotOffset(id RecordID) (int, error) {
	if id.Slot < 0 || id.Slot >= t.recordsPerPage {
		return 0, fmt.Errorf("%w: slot %d out of range", ErrRecordNotFound, id.Slot)
	}
	return id.Slot * t.slotSize, nil
}

// GetRecord returns a copy of the record at id, or ErrRecordNotFound if the
// slot is not occupied.
func (t *Table) GetRecord(id RecordID) (*Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}

	off, err := t.slotOffset(id)
	if err != nil {
		return nil, err
	}
	h, err := t.bp.PinPage(id.Page)
	if err != nil {
		return nil, err
	}

	if h.Data[off] != '1' {
		_ = t.bp.UnpinPage(id.Page)
		return nil, ErrRecordNotFound
	}
	rec := NewRecord(t.schema)
	copy(rec.Data, h.Data[off+1:off+t.slotSize])
	rec.ID = id

	if err := t.bp.UnpinPage(id.Page); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateRecord overwrites the record at rec.ID with rec's bytes. The slot
// must already be occupied.
func (t *Table) UpdateRecord(rec *Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureOpen(); err != nil {
		return err
	}
	if len(rec.Data) != t.schema.RecordWidth() {
		return fmt.Errorf("%w: record is %d bytes, schema wants %d", ErrUnknownDataType, len(rec.Data), t.schema.RecordWidth())
	}

	off, err := t.slotOffset(rec.ID)
	if err != nil {
		return err
	}
	h, err := t.bp.PinPage(rec.ID.Page)
	if err != nil {
		return err
	}
	if h.Data[off] != '1' {
		_ = t.bp.UnpinPage(rec.ID.Page)
		return ErrRecordNotFound
	}

	copy(h.Data[off+1:off+t.slotSize], rec.Data)
	if err := t.bp.MarkDirty(rec.ID.Page); err != nil {
		_ = t.bp.UnpinPage(rec.ID.Page)
		return err
	}
	return t.bp.UnpinPage(rec.ID.Page)
}

// DeleteRecord frees the slot at id, zeroing its payload bytes and resetting
// its tag to free.
func (t *Table) DeleteRecord(id RecordID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ensureOpen(); err != nil {
		return err
	}

	off, err := t.slotOffset(id)
	if err != nil {
		return err
	}
	h, err := t.bp.PinPage(id.Page)
	if err != nil {
		return err
	}
	if h.Data[off] != '1' {
		_ = t.bp.UnpinPage(id.Page)
		return ErrRecordNotFound
	}

	h.Data[off] = '0'
	for i := 0; i < t.slotSize-1; i++ {
		h.Data[off+1+i] = 0
	}
	if err := t.bp.MarkDirty(id.Page); err != nil {
		_ = t.bp.UnpinPage(id.Page)
		return err
	}
	if err := t.bp.UnpinPage(id.Page); err != nil {
		return err
	}
	t.tupleCount--
	return nil
}
