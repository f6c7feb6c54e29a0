// Package testhelper provides fakes for the storage layer so filesystem
// tests can run against memory or inject failures without a real image file.
package testhelper

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/diskfs/go-sfs/backend"
)

type reader func(b []byte, offset int64) (int, error)
type writer func(b []byte, offset int64) (int, error)

// FileImpl implements backend.Storage with caller-supplied read and write
// hooks, used for testing to stub out files and inject I/O failures.
type FileImpl struct {
	Reader reader
	Writer writer
}

var _ backend.Storage = (*FileImpl)(nil)

func (f *FileImpl) Stat() (fs.FileInfo, error) {
	return nil, nil
}

func (f *FileImpl) Read(b []byte) (int, error) {
	return f.Reader(b, 0)
}

func (f *FileImpl) Close() error {
	return nil
}

// ReadAt read at a particular offset
func (f *FileImpl) ReadAt(b []byte, offset int64) (int, error) {
	return f.Reader(b, offset)
}

// WriteAt write at a particular offset
func (f *FileImpl) WriteAt(b []byte, offset int64) (int, error) {
	return f.Writer(b, offset)
}

// Seek seek a particular offset - does not actually work
//
//nolint:unused,revive // to implement the interface
func (f *FileImpl) Seek(offset int64, whence int) (int64, error) {
	return 0, fmt.Errorf("FileImpl does not implement Seek()")
}

// Writable returns the fake itself; FileImpl is always writable.
func (f *FileImpl) Writable() (backend.WritableFile, error) {
	return f, nil
}

// NewMemory returns a FileImpl backed by a zero-filled in-memory buffer of
// the given size, behaving like a fresh image file.
func NewMemory(size int64) *FileImpl {
	buf := make([]byte, size)
	return &FileImpl{
		Reader: func(b []byte, offset int64) (int, error) {
			if offset >= int64(len(buf)) {
				return 0, io.EOF
			}
			n := copy(b, buf[offset:])
			if n < len(b) {
				return n, io.EOF
			}
			return n, nil
		},
		Writer: func(b []byte, offset int64) (int, error) {
			if offset+int64(len(b)) > int64(len(buf)) {
				return 0, fmt.Errorf("write of %d bytes at %d past end of %d byte image", len(b), offset, len(buf))
			}
			return copy(buf[offset:], b), nil
		},
	}
}
