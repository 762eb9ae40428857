// Package pagefile implements the lowest layer of the storage stack: a file
// on disk partitioned into fixed-size pages. Page 0 is a reserved header
// holding the total page count; user pages are numbered from 0 externally
// but physically offset one page further in (the header occupies slot 0).
package pagefile

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/tuannm99/pagestore/internal/alias/bx"
)

const (
	// PageSize is the fixed size, in bytes, of every page including the header.
	PageSize = 4096

	// NoPage is the sentinel page number meaning "no page bound".
	NoPage = -1

	fileMode = 0o664
)

// File is an open page file handle. It owns the underlying os.File and the
// authoritative total-page-count, which it keeps persisted in the header
// page on every mutation (see Open Question (c) in the design notes: this
// implementation always persists rather than deferring to close).
type File struct {
	mu sync.Mutex

	file *os.File
	name string

	totalNumPages int
	curPagePos    int

	log    *slog.Logger
	closed atomic.Bool
}

// Create creates a brand-new page file: a header page (first 4 bytes encode
// total-page-count = 1) followed by one zeroed data page.
func Create(name string) (*File, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, fileMode)
	if err != nil {
		return nil, fmt.Errorf("pagefile: create %q: %w", name, err)
	}

	header := make([]byte, PageSize)
	bx.PutU32(header[0:4], 1)
	if _, err := f.WriteAt(header, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("pagefile: write header %q: %w", name, ErrWriteFailed)
	}

	data := make([]byte, PageSize)
	if _, err := f.WriteAt(data, PageSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("pagefile: write first page %q: %w", name, ErrWriteFailed)
	}

	pf := &File{
		file:          f,
		name:          name,
		totalNumPages: 1,
		log:           slog.Default(),
	}
	pf.log.Debug("pagefile: created", "name", name)
	return pf, nil
}

// Open opens an existing page file and reads its header.
func Open(name string) (*File, error) {
	f, err := os.OpenFile(name, os.O_RDWR, fileMode)
	if err != nil {
		return nil, fmt.Errorf("pagefile: open %q: %w", name, ErrFileNotFound)
	}

	header := make([]byte, PageSize)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("pagefile: read header %q: %w", name, ErrReadNonExistingPage)
	}

	pf := &File{
		file:          f,
		name:          name,
		totalNumPages: int(bx.U32(header[0:4])),
		log:           slog.Default(),
	}
	pf.log.Debug("pagefile: opened", "name", name, "totalNumPages", pf.totalNumPages)
	return pf, nil
}

// Destroy removes a page file from disk. The file must not be open.
func Destroy(name string) error {
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("pagefile: destroy %q: %w", name, err)
	}
	return nil
}

// Close persists the header one last time and closes the underlying file.
// Both failures, if any, are aggregated rather than the second being
// silently discarded.
func (f *File) Close() error {
	if f == nil {
		return nil
	}
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	if perr := f.persistHeaderLocked(); perr != nil {
		err = multierr.Append(err, perr)
	}
	if cerr := f.file.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("pagefile: close %q: %w", f.name, cerr))
	}
	return err
}

func (f *File) ensureOpen() error {
	if f == nil || f.closed.Load() {
		return ErrHandleNotInit
	}
	return nil
}

func (f *File) persistHeaderLocked() error {
	header := make([]byte, PageSize)
	bx.PutU32(header[0:4], uint32(f.totalNumPages))
	if _, err := f.file.WriteAt(header[:4], 0); err != nil {
		return fmt.Errorf("pagefile: persist header %q: %w", f.name, ErrWriteFailed)
	}
	return nil
}

// ReadBlock reads the page numbered n (0-based, user-visible numbering) into
// buf, which must be exactly PageSize bytes.
func (f *File) ReadBlock(n int, buf []byte) error {
	if err := f.ensureOpen(); err != nil {
		return err
	}
	if len(buf) != PageSize {
		return fmt.Errorf("pagefile: buffer must be %d bytes", PageSize)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if n < 0 || n >= f.totalNumPages {
		return fmt.Errorf("pagefile: page %d: %w", n, ErrReadNonExistingPage)
	}

	offset := int64(n+1) * PageSize
	if _, err := f.file.ReadAt(buf, offset); err != nil {
		return fmt.Errorf("pagefile: read page %d: %w", n, ErrReadNonExistingPage)
	}
	f.curPagePos = n
	f.log.Debug("pagefile: read block", "name", f.name, "page", n)
	return nil
}

// WriteBlock writes buf (exactly PageSize bytes) to the page numbered n,
// extending totalNumPages (and persisting the header) if n is beyond the
// current end of the file.
func (f *File) WriteBlock(n int, buf []byte) error {
	if err := f.ensureOpen(); err != nil {
		return err
	}
	if len(buf) != PageSize {
		return fmt.Errorf("pagefile: buffer must be %d bytes", PageSize)
	}
	if n < 0 {
		return fmt.Errorf("pagefile: negative page number %d: %w", n, ErrReadNonExistingPage)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	offset := int64(n+1) * PageSize
	if _, err := f.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("pagefile: write page %d: %w", n, ErrWriteFailed)
	}

	if n >= f.totalNumPages {
		f.totalNumPages = n + 1
		if err := f.persistHeaderLocked(); err != nil {
			return err
		}
	}
	f.curPagePos = n
	f.log.Debug("pagefile: write block", "name", f.name, "page", n)
	return nil
}

// ReadFirst reads page 0.
func (f *File) ReadFirst(buf []byte) error { return f.ReadBlock(0, buf) }

// ReadLast reads the last page in the file.
func (f *File) ReadLast(buf []byte) error {
	f.mu.Lock()
	last := f.totalNumPages - 1
	f.mu.Unlock()
	return f.ReadBlock(last, buf)
}

// ReadNext reads the page after the current position.
func (f *File) ReadNext(buf []byte) error {
	f.mu.Lock()
	next := f.curPagePos + 1
	f.mu.Unlock()
	return f.ReadBlock(next, buf)
}

// ReadPrevious reads the page before the current position.
func (f *File) ReadPrevious(buf []byte) error {
	f.mu.Lock()
	prev := f.curPagePos - 1
	f.mu.Unlock()
	return f.ReadBlock(prev, buf)
}

// ReadCurrent reads the page at the current position.
func (f *File) ReadCurrent(buf []byte) error {
	f.mu.Lock()
	cur := f.curPagePos
	f.mu.Unlock()
	return f.ReadBlock(cur, buf)
}

// AppendEmptyBlock writes one zeroed page past the current end of the file
// and persists the new total-page-count.
func (f *File) AppendEmptyBlock() error {
	if err := f.ensureOpen(); err != nil {
		return err
	}
	f.mu.Lock()
	n := f.totalNumPages
	f.mu.Unlock()

	return f.WriteBlock(n, make([]byte, PageSize))
}

// EnsureCapacity appends empty blocks until the file holds at least k pages.
func (f *File) EnsureCapacity(k int) error {
	for {
		f.mu.Lock()
		n := f.totalNumPages
		f.mu.Unlock()
		if n >= k {
			return nil
		}
		if err := f.AppendEmptyBlock(); err != nil {
			return err
		}
	}
}

// TotalNumPages returns the number of user pages currently in the file.
func (f *File) TotalNumPages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalNumPages
}

// Name returns the underlying file name.
func (f *File) Name() string { return f.name }
