package sfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/diskfs/go-sfs/filesystem"
)

// File wraps an open descriptor as a filesystem.File so the engine plugs
// into io.Copy and generic tooling. The descriptor's read/write pointer is
// the only position state; a File adds nothing of its own.
type File struct {
	fs     *FileSystem
	fd     int
	name   string
	closed bool
}

var _ filesystem.File = (*File)(nil)

// OpenFile opens a handle to the named file. os.O_CREATE is required for a
// file that does not exist yet; os.O_TRUNC discards existing contents by
// recreating the file; without os.O_APPEND the position starts at offset 0
// rather than the end.
func (fs *FileSystem) OpenFile(pathname string, flag int) (filesystem.File, error) {
	exists := fs.findEntry(pathname) >= 0
	if !exists && flag&os.O_CREATE == 0 {
		return nil, fmt.Errorf("%s: %w", pathname, ErrNotFound)
	}
	if exists && flag&os.O_TRUNC != 0 {
		if _, err := fs.removeFile(pathname); err != nil {
			return nil, err
		}
	}
	fd, err := fs.Open(pathname)
	if err != nil {
		return nil, err
	}
	if flag&os.O_APPEND == 0 {
		if err := fs.Seek(fd, 0); err != nil {
			_ = fs.Close(fd)
			return nil, err
		}
	}
	return &File{fs: fs, fd: fd, name: pathname}, nil
}

// Read reads up to len(p) bytes at the current position. At end of file it
// returns 0, io.EOF.
func (fl *File) Read(p []byte) (int, error) {
	if fl.closed {
		return 0, os.ErrClosed
	}
	n, err := fl.fs.Read(fl.fd, p)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write writes len(p) bytes at the current position, extending the file. A
// short write caused by a full disk reports io.ErrShortWrite.
func (fl *File) Write(p []byte) (int, error) {
	if fl.closed {
		return 0, os.ErrClosed
	}
	n, err := fl.fs.Write(fl.fd, p)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Seek sets the position for the next read or write. The filesystem does
// not allow positioning past the end of the file.
func (fl *File) Seek(offset int64, whence int) (int64, error) {
	if fl.closed {
		return 0, os.ErrClosed
	}
	if err := fl.fs.checkFD(fl.fd); err != nil {
		return 0, err
	}
	size := int64(fl.fs.inodes[fl.fs.fds[fl.fd].inode].size)
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = fl.fs.fds[fl.fd].rwptr + offset
	case io.SeekEnd:
		abs = size + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if err := fl.fs.Seek(fl.fd, abs); err != nil {
		return fl.fs.fds[fl.fd].rwptr, err
	}
	return abs, nil
}

// Close releases the descriptor.
func (fl *File) Close() error {
	if fl.closed {
		return os.ErrClosed
	}
	fl.closed = true
	return fl.fs.Close(fl.fd)
}

// Stat returns information about the file.
func (fl *File) Stat() (fs.FileInfo, error) {
	if fl.closed {
		return nil, os.ErrClosed
	}
	if err := fl.fs.checkFD(fl.fd); err != nil {
		return nil, err
	}
	return fileInfo{
		name: fl.name,
		size: int64(fl.fs.inodes[fl.fs.fds[fl.fd].inode].size),
	}, nil
}

// ReadDir implements fs.ReadDirFile. Regular files are the only thing a
// File can reference, so it always fails.
func (fl *File) ReadDir(_ int) ([]fs.DirEntry, error) {
	return nil, fmt.Errorf("%s is not a directory", fl.name)
}
