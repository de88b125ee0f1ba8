package pager

import (
	"fmt"
	"io"
	"os"
)

// swapFile is the subset of *os.File the swap store needs: positioned
// reads and writes plus a way to size and release the backing store. The
// interface shape mirrors RichardKnop-minisql's DBFile (io.ReaderAt +
// io.WriterAt + io.Closer), which lets swapStore be exercised in tests
// against an in-memory fake instead of a real temp file.
type swapFile interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	Truncate(size int64) error
}

// swapStore is the backing store for every page's authoritative contents
// when that page is non-resident or resident-and-clean (§4.2, §3 "Swap
// slot"). Slot p occupies bytes [p*pageSize, (p+1)*pageSize) of the file.
// There is no header and no metadata.
type swapStore struct {
	file     swapFile
	pageSize int
}

// openSwapStore creates a private backing file sized to hold numPages
// slots of pageSize bytes each, and unlinks it immediately so it
// disappears with the process (§3, §4.2). dir may be empty to use the
// default temp directory.
func openSwapStore(dir string, numPages, pageSize int) (*swapStore, error) {
	f, err := os.CreateTemp(dir, "uvmpager-swap-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create swap file: %v", ErrSwapIO, err)
	}
	size := int64(numPages) * int64(pageSize)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: extend swap file to %d bytes: %v", ErrSwapIO, size, err)
	}
	// Unlink-while-open: the descriptor stays valid and the directory
	// entry disappears immediately, matching the original's
	// open()+unlink() of /tmp/cs24_pagedev_<pid>.
	if err := os.Remove(f.Name()); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: unlink swap file: %v", ErrSwapIO, err)
	}
	return &swapStore{file: f, pageSize: pageSize}, nil
}

func (s *swapStore) offset(p Page) int64 {
	return int64(p) * int64(s.pageSize)
}

// readPage reads exactly pageSize bytes from page p's slot into dst. A
// short read is fatal: the pager has no way to honor the faulting access
// without the data.
func (s *swapStore) readPage(p Page, dst []byte) error {
	if len(dst) != s.pageSize {
		panic("pager: readPage destination is not one page")
	}
	n, err := s.file.ReadAt(dst, s.offset(p))
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: read page %d: %v", ErrSwapIO, p, err)
	}
	if n != s.pageSize {
		return fmt.Errorf("%w: short read for page %d (%d of %d bytes)", ErrSwapIO, p, n, s.pageSize)
	}
	return nil
}

// writePage writes exactly pageSize bytes from src into page p's slot.
func (s *swapStore) writePage(p Page, src []byte) error {
	if len(src) != s.pageSize {
		panic("pager: writePage source is not one page")
	}
	n, err := s.file.WriteAt(src, s.offset(p))
	if err != nil {
		return fmt.Errorf("%w: write page %d: %v", ErrSwapIO, p, err)
	}
	if n != s.pageSize {
		return fmt.Errorf("%w: short write for page %d (%d of %d bytes)", ErrSwapIO, p, n, s.pageSize)
	}
	return nil
}

func (s *swapStore) close() error {
	return s.file.Close()
}
