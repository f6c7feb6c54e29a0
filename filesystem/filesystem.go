// Package filesystem provides the interface filesystem implementations serve
// to generic tooling. The interesting implementation is in the sfs subpackage.
package filesystem

import (
	"errors"
	"os"
)

var (
	ErrNotSupported       = errors.New("method not supported by this filesystem")
	ErrReadonlyFilesystem = errors.New("read-only filesystem")
)

// FileSystem is a reference to a single filesystem on a disk
type FileSystem interface {
	// Type return the type of filesystem
	Type() Type
	// OpenFile open a handle to read or write to a file
	OpenFile(pathname string, flag int) (File, error)
	// ReadDir read the contents of a directory
	ReadDir(pathname string) ([]os.FileInfo, error)
	// Remove removes the named file.
	Remove(pathname string) error
	// Label get the label for the filesystem, or "" if none.
	Label() string
}

// Type represents the type of filesystem this is
type Type int

const (
	// TypeSfs is a simple flat filesystem
	TypeSfs Type = iota
)
