// Package disk emulates a block-addressable disk over a backing store.
//
// A Disk is the unit the filesystem engine talks to: a fixed number of
// fixed-size blocks, readable and writable only in whole blocks. The backing
// store is any backend.Storage, normally an image file on the host.
package disk

import (
	"errors"
	"fmt"
	"io"

	"github.com/diskfs/go-sfs/backend"
	"github.com/diskfs/go-sfs/backend/file"
)

var (
	// ErrSizeMismatch is returned when an existing image does not have the
	// geometry the caller asked to attach with.
	ErrSizeMismatch = errors.New("image size does not match requested geometry")
)

// Disk is a reference to a single block-addressable disk image that has been
// created with InitFresh() or attached with OpenExisting().
type Disk struct {
	// BlockSize is the size of a single block, in bytes. All I/O happens in
	// integer multiples of this size.
	BlockSize int
	// NumBlocks is the total number of blocks on the disk, addressed
	// 0..NumBlocks-1.
	NumBlocks int

	backend  backend.Storage
	writable backend.WritableFile
}

// New wraps an already-open backing store as a Disk with the given geometry.
// The store's actual size is not checked; tests use this to substitute fakes.
func New(b backend.Storage, blockSize, numBlocks int) (*Disk, error) {
	if blockSize <= 0 || numBlocks <= 0 {
		return nil, fmt.Errorf("invalid geometry %d x %d", numBlocks, blockSize)
	}
	return &Disk{
		BlockSize: blockSize,
		NumBlocks: numBlocks,
		backend:   b,
	}, nil
}

// InitFresh creates a new zero-filled image file of exactly
// blockSize*numBlocks bytes and returns a Disk over it. The file must not
// already exist.
func InitFresh(path string, blockSize, numBlocks int) (*Disk, error) {
	if blockSize <= 0 || numBlocks <= 0 {
		return nil, fmt.Errorf("invalid geometry %d x %d", numBlocks, blockSize)
	}
	b, err := file.CreateFromPath(path, int64(blockSize)*int64(numBlocks))
	if err != nil {
		return nil, err
	}
	return New(b, blockSize, numBlocks)
}

// OpenExisting attaches to an image file created earlier with InitFresh. The
// file size must match the requested geometry exactly.
func OpenExisting(path string, blockSize, numBlocks int) (*Disk, error) {
	if blockSize <= 0 || numBlocks <= 0 {
		return nil, fmt.Errorf("invalid geometry %d x %d", numBlocks, blockSize)
	}
	b, err := file.OpenFromPath(path, false)
	if err != nil {
		return nil, err
	}
	info, err := b.Stat()
	if err != nil {
		return nil, fmt.Errorf("could not stat image %s: %w", path, err)
	}
	if info.Size() != int64(blockSize)*int64(numBlocks) {
		return nil, fmt.Errorf("image %s is %d bytes, want %d: %w",
			path, info.Size(), int64(blockSize)*int64(numBlocks), ErrSizeMismatch)
	}
	return New(b, blockSize, numBlocks)
}

func (d *Disk) checkBounds(start, count, bufLen int) error {
	if count <= 0 {
		return fmt.Errorf("block count %d must be positive", count)
	}
	if start < 0 || start+count > d.NumBlocks {
		return fmt.Errorf("blocks [%d, %d) not in range [0, %d)", start, start+count, d.NumBlocks)
	}
	if bufLen < count*d.BlockSize {
		return fmt.Errorf("buffer of %d bytes cannot hold %d blocks of %d bytes", bufLen, count, d.BlockSize)
	}
	return nil
}

// ReadBlocks fills buf with the contents of count whole blocks beginning at
// start. buf must be at least count*BlockSize bytes.
func (d *Disk) ReadBlocks(start, count int, buf []byte) error {
	if err := d.checkBounds(start, count, len(buf)); err != nil {
		return err
	}
	n, err := d.backend.ReadAt(buf[:count*d.BlockSize], int64(start)*int64(d.BlockSize))
	if err != nil && err != io.EOF {
		return fmt.Errorf("could not read blocks [%d, %d): %w", start, start+count, err)
	}
	if n < count*d.BlockSize {
		return fmt.Errorf("short read of blocks [%d, %d): %d bytes", start, start+count, n)
	}
	return nil
}

// WriteBlocks writes count whole blocks from buf beginning at block start.
func (d *Disk) WriteBlocks(start, count int, buf []byte) error {
	if err := d.checkBounds(start, count, len(buf)); err != nil {
		return err
	}
	w, err := d.writableBackend()
	if err != nil {
		return err
	}
	n, err := w.WriteAt(buf[:count*d.BlockSize], int64(start)*int64(d.BlockSize))
	if err != nil {
		return fmt.Errorf("could not write blocks [%d, %d): %w", start, start+count, err)
	}
	if n < count*d.BlockSize {
		return fmt.Errorf("short write of blocks [%d, %d): %d bytes", start, start+count, n)
	}
	return nil
}

func (d *Disk) writableBackend() (backend.WritableFile, error) {
	if d.writable == nil {
		w, err := d.backend.Writable()
		if err != nil {
			return nil, err
		}
		d.writable = w
	}
	return d.writable, nil
}

// Close releases the backing store.
func (d *Disk) Close() error {
	return d.backend.Close()
}
