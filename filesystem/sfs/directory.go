package sfs

import (
	"bytes"
	"encoding/binary"
	"os"
	"time"
)

// dirEntry is one slot of the root directory table. Slot i is permanently
// bound to inode i+1.
//
// On-disk layout, little-endian, 64 bytes: the name occupies the first 60
// bytes, NUL-terminated and NUL-padded, followed by the mode word mirroring
// the owning inode's in-use flag.
type dirEntry struct {
	name string
	mode uint32
}

func (de *dirEntry) inUse() bool {
	return de.mode == 1
}

// toBytes serializes the entry into b, which must be at least
// dirEntryRecordSize bytes.
func (de *dirEntry) toBytes(b []byte) {
	for i := 0; i < MaxFilename; i++ {
		b[i] = 0
	}
	copy(b[:MaxFilename-1], de.name)
	binary.LittleEndian.PutUint32(b[MaxFilename:MaxFilename+4], de.mode)
}

func dirEntryFromBytes(b []byte) dirEntry {
	name := b[:MaxFilename]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return dirEntry{
		name: string(name),
		mode: binary.LittleEndian.Uint32(b[MaxFilename : MaxFilename+4]),
	}
}

// fileInfo is the os.FileInfo served for directory listings and Stat. The
// filesystem stores no timestamps or permissions, so ModTime is the zero
// time and Mode is synthesized.
type fileInfo struct {
	name  string
	size  int64
	isDir bool
}

func (fi fileInfo) Name() string { return fi.name }
func (fi fileInfo) Size() int64  { return fi.size }
func (fi fileInfo) Mode() os.FileMode {
	if fi.isDir {
		return os.ModeDir | 0o755
	}
	return 0o644
}
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return fi.isDir }
func (fi fileInfo) Sys() interface{}   { return nil }
