// Package sfs implements a simple flat filesystem over a block-addressable
// disk image.
//
// The filesystem holds up to 127 files in a single root directory. Each file
// is described by one inode carrying 12 direct block pointers and one single
// indirect index block, for a maximum file size of 268 blocks of 1024 bytes.
// All metadata regions (superblock, inode table, directory table, free-space
// map) are mirrored in memory while mounted and rewritten to the image
// whole whenever a call mutates them, so a crash between calls never leaves
// the image inconsistent.
//
// A FileSystem value is not safe for concurrent use; the caller owns
// exclusion.
package sfs

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/diskfs/go-sfs/disk"
	"github.com/diskfs/go-sfs/filesystem"
	"github.com/diskfs/go-sfs/util/bytemap"
)

// filesystem.FileSystem interface guard
var _ filesystem.FileSystem = (*FileSystem)(nil)

// FileSystem is a mounted sfs instance: the in-memory mirror of every
// metadata region plus the descriptor table and directory cursor.
type FileSystem struct {
	super    superblock
	inodes   []inode
	dir      []dirEntry
	freemap  *bytemap.Map
	fds      []descriptor
	dirNext  int
	numFiles int
	dev      *disk.Disk
}

func checkGeometry(d *disk.Disk) error {
	if d.BlockSize != BlockSize || d.NumBlocks != NumTotalBlocks {
		return fmt.Errorf("disk geometry %d x %d, want %d x %d",
			d.NumBlocks, d.BlockSize, NumTotalBlocks, BlockSize)
	}
	return nil
}

// Create formats a fresh filesystem onto d and returns it mounted. Every
// metadata region is initialized and written out; the data region is left
// as the zeroed blocks InitFresh produced.
func Create(d *disk.Disk) (*FileSystem, error) {
	if err := checkGeometry(d); err != nil {
		return nil, err
	}
	fs := &FileSystem{
		super:   newSuperblock(),
		inodes:  make([]inode, NumInodes),
		dir:     make([]dirEntry, NumFileInodes),
		freemap: bytemap.New(NumDataBlocks),
		fds:     newDescriptorTable(),
		dev:     d,
	}
	// inode 0 holds the root directory and is allocated for the life of
	// the image
	fs.inodes[0].linkCount = 1

	if err := d.WriteBlocks(superblockBlock, 1, fs.super.toBytes()); err != nil {
		return nil, fmt.Errorf("could not write superblock: %w", err)
	}
	if err := fs.writeInodeTable(); err != nil {
		return nil, err
	}
	if err := fs.writeDirectory(); err != nil {
		return nil, err
	}
	if err := fs.writeBitmap(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Read mounts an existing filesystem from d, loading every metadata region
// into memory. The descriptor table and the directory cursor start fresh.
func Read(d *disk.Disk) (*FileSystem, error) {
	if err := checkGeometry(d); err != nil {
		return nil, err
	}
	buf := make([]byte, BlockSize)
	if err := d.ReadBlocks(superblockBlock, 1, buf); err != nil {
		return nil, fmt.Errorf("could not read superblock: %w", err)
	}
	super, err := superblockFromBytes(buf)
	if err != nil {
		return nil, fmt.Errorf("invalid superblock: %w", err)
	}

	fs := &FileSystem{
		super: super,
		fds:   newDescriptorTable(),
		dev:   d,
	}

	buf = make([]byte, numInodeBlocks*BlockSize)
	if err := d.ReadBlocks(inodeTableStart, numInodeBlocks, buf); err != nil {
		return nil, fmt.Errorf("could not read inode table: %w", err)
	}
	fs.inodes = make([]inode, NumInodes)
	for i := range fs.inodes {
		fs.inodes[i] = inodeFromBytes(buf[i*inodeRecordSize:])
	}

	buf = make([]byte, numDirBlocks*BlockSize)
	if err := d.ReadBlocks(dirTableStart, numDirBlocks, buf); err != nil {
		return nil, fmt.Errorf("could not read directory table: %w", err)
	}
	fs.dir = make([]dirEntry, NumFileInodes)
	for i := range fs.dir {
		fs.dir[i] = dirEntryFromBytes(buf[i*dirEntryRecordSize:])
	}

	buf = make([]byte, numBitmapBlocks*BlockSize)
	if err := d.ReadBlocks(bitmapStart, numBitmapBlocks, buf); err != nil {
		return nil, fmt.Errorf("could not read free-space map: %w", err)
	}
	fs.freemap = bytemap.FromBytes(buf[:NumDataBlocks])

	for i := 1; i < NumInodes; i++ {
		if fs.inodes[i].linkCount == 1 {
			fs.numFiles++
		}
	}
	return fs, nil
}

// Mount creates or attaches a file-backed image at path and returns the
// mounted filesystem. With fresh true the image is created from scratch;
// otherwise it must already exist with the expected geometry.
func Mount(path string, fresh bool) (*FileSystem, error) {
	var (
		d   *disk.Disk
		err error
	)
	if fresh {
		d, err = disk.InitFresh(path, BlockSize, NumTotalBlocks)
	} else {
		d, err = disk.OpenExisting(path, BlockSize, NumTotalBlocks)
	}
	if err != nil {
		return nil, err
	}
	var fs *FileSystem
	if fresh {
		fs, err = Create(d)
	} else {
		fs, err = Read(d)
	}
	if err != nil {
		_ = d.Close()
		return nil, err
	}
	return fs, nil
}

// Unmount releases the underlying disk. The FileSystem must not be used
// afterwards. Descriptors are not flushed because they carry no on-disk
// state.
func (fs *FileSystem) Unmount() error {
	return fs.dev.Close()
}

////////////////////////////////////////////////////////////////////////////////
// metadata persistence

func (fs *FileSystem) writeInodeTable() error {
	buf := make([]byte, numInodeBlocks*BlockSize)
	for i := range fs.inodes {
		fs.inodes[i].toBytes(buf[i*inodeRecordSize:])
	}
	if err := fs.dev.WriteBlocks(inodeTableStart, numInodeBlocks, buf); err != nil {
		return fmt.Errorf("could not write inode table: %w", err)
	}
	return nil
}

func (fs *FileSystem) writeDirectory() error {
	buf := make([]byte, numDirBlocks*BlockSize)
	for i := range fs.dir {
		fs.dir[i].toBytes(buf[i*dirEntryRecordSize:])
	}
	if err := fs.dev.WriteBlocks(dirTableStart, numDirBlocks, buf); err != nil {
		return fmt.Errorf("could not write directory table: %w", err)
	}
	return nil
}

func (fs *FileSystem) writeBitmap() error {
	buf := make([]byte, numBitmapBlocks*BlockSize)
	copy(buf, fs.freemap.ToBytes())
	if err := fs.dev.WriteBlocks(bitmapStart, numBitmapBlocks, buf); err != nil {
		return fmt.Errorf("could not write free-space map: %w", err)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// name and descriptor resolution

// findEntry returns the directory slot holding name, or -1.
func (fs *FileSystem) findEntry(name string) int {
	for i := range fs.dir {
		if fs.dir[i].inUse() && fs.dir[i].name == name {
			return i
		}
	}
	return -1
}

// descriptorFor returns the open descriptor referencing ino, or -1.
func (fs *FileSystem) descriptorFor(ino int) int {
	for fd := 1; fd < len(fs.fds); fd++ {
		if fs.fds[fd].inode == ino {
			return fd
		}
	}
	return -1
}

func (fs *FileSystem) checkFD(fd int) error {
	if fd <= 0 || fd >= len(fs.fds) || fs.fds[fd].inode < 0 {
		return ErrBadDescriptor
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// directory enumeration and size query

// NextFilename returns the name of the next in-use directory entry. When the
// walk is exhausted it returns ok false and resets, so the following call
// starts over from the first entry. Mutating the directory mid-walk leaves
// the cursor where it was.
func (fs *FileSystem) NextFilename() (name string, ok bool) {
	seen := 0
	for i := range fs.dir {
		if !fs.dir[i].inUse() {
			continue
		}
		if seen == fs.dirNext {
			fs.dirNext++
			return fs.dir[i].name, true
		}
		seen++
	}
	fs.dirNext = 0
	return "", false
}

// FileSize returns the size in bytes of the named file.
func (fs *FileSystem) FileSize(name string) (int64, error) {
	idx := fs.findEntry(name)
	if idx < 0 {
		return -1, ErrNotFound
	}
	return int64(fs.inodes[idx+1].size), nil
}

////////////////////////////////////////////////////////////////////////////////
// open / close / seek

// Open opens the named file, creating it if it does not exist, and returns
// its descriptor. The read/write position of a reopened file starts at the
// end of the file. A file can have at most one open descriptor.
func (fs *FileSystem) Open(name string) (int, error) {
	if name == "" {
		return -1, ErrNameInvalid
	}
	if len(name) >= MaxFilename {
		return -1, ErrNameTooLong
	}

	if idx := fs.findEntry(name); idx >= 0 {
		ino := idx + 1
		if fs.descriptorFor(ino) >= 0 {
			return -1, ErrAlreadyOpen
		}
		fd := fs.freeDescriptor()
		if fd < 0 {
			return -1, ErrNoSpace
		}
		// reassert the in-use flags
		fs.dir[idx].mode = 1
		fs.inodes[ino].mode = 1
		fs.fds[fd] = descriptor{inode: ino, rwptr: int64(fs.inodes[ino].size)}
		return fd, nil
	}

	ino := -1
	for i := 1; i < NumInodes; i++ {
		if fs.inodes[i].linkCount == 0 {
			ino = i
			break
		}
	}
	if ino < 0 {
		return -1, ErrNoSpace
	}
	fd := fs.freeDescriptor()
	if fd < 0 {
		return -1, ErrNoSpace
	}

	fs.dir[ino-1] = dirEntry{name: name, mode: 1}
	fs.inodes[ino] = inode{mode: 1, linkCount: 1}
	fs.fds[fd] = descriptor{inode: ino, rwptr: 0}
	fs.numFiles++

	if err := fs.writeInodeTable(); err != nil {
		return -1, err
	}
	if err := fs.writeDirectory(); err != nil {
		return -1, err
	}
	return fd, nil
}

func (fs *FileSystem) freeDescriptor() int {
	for fd := 1; fd < len(fs.fds); fd++ {
		if fs.fds[fd].inode < 0 {
			return fd
		}
	}
	return -1
}

// Close releases a descriptor. Closing an already-closed or reserved
// descriptor returns ErrBadDescriptor. No disk I/O happens: descriptors are
// memory-only and every write already persisted its metadata.
func (fs *FileSystem) Close(fd int) error {
	if err := fs.checkFD(fd); err != nil {
		return err
	}
	fs.fds[fd] = descriptor{inode: -1, rwptr: 0}
	return nil
}

// Seek positions the descriptor's read/write pointer. loc must lie inside
// [0, size]; seeking past the end of the file is not permitted, extension
// happens only by writing at the end.
func (fs *FileSystem) Seek(fd int, loc int64) error {
	if err := fs.checkFD(fd); err != nil {
		return err
	}
	in := &fs.inodes[fs.fds[fd].inode]
	if loc < 0 || loc > int64(in.size) || loc >= MaxFileBytes {
		return ErrOutOfRange
	}
	fs.fds[fd].rwptr = loc
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// read path

// blockFor maps a file-relative block index to an absolute block number,
// lazily loading the indirect index block through ibuf on first need.
// Returns 0 when the mapping is a hole.
func (fs *FileSystem) blockFor(in *inode, b int, ibuf *[]uint32) (int, error) {
	if b < NumDirectPointers {
		return int(in.direct[b]), nil
	}
	if in.indirect == 0 {
		return 0, nil
	}
	if *ibuf == nil {
		buf := make([]byte, BlockSize)
		if err := fs.dev.ReadBlocks(int(in.indirect), 1, buf); err != nil {
			return 0, fmt.Errorf("could not read indirect block %d: %w", in.indirect, err)
		}
		*ibuf = indirectFromBytes(buf)
	}
	return int((*ibuf)[b-NumDirectPointers]), nil
}

// Read reads up to len(p) bytes at the descriptor's current position and
// advances it. At end of file it returns 0 with no error; the File wrapper
// turns that into io.EOF. A read crossing the end of the file is truncated
// to the bytes that exist; a count short of that means the walk hit a hole,
// which only a corrupted image exhibits.
func (fs *FileSystem) Read(fd int, p []byte) (int, error) {
	if err := fs.checkFD(fd); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	d := &fs.fds[fd]
	in := &fs.inodes[d.inode]
	if d.rwptr >= int64(in.size) {
		return 0, nil
	}

	remaining := int64(len(p))
	if max := int64(in.size) - d.rwptr; remaining > max {
		remaining = max
	}

	var ibuf []uint32
	totalRead := 0
	for remaining > 0 {
		b := int(d.rwptr / BlockSize)
		blk, err := fs.blockFor(in, b, &ibuf)
		if err != nil {
			return totalRead, err
		}
		if blk == 0 {
			// sparse hole: stop and report the prefix served rather
			// than inventing zeroes
			break
		}
		buf := make([]byte, BlockSize)
		if err := fs.dev.ReadBlocks(blk, 1, buf); err != nil {
			return totalRead, err
		}
		blockOffset := int(d.rwptr % BlockSize)
		chunk := BlockSize - blockOffset
		if int64(chunk) > remaining {
			chunk = int(remaining)
		}
		copy(p[totalRead:totalRead+chunk], buf[blockOffset:blockOffset+chunk])
		d.rwptr += int64(chunk)
		remaining -= int64(chunk)
		totalRead += chunk
	}
	return totalRead, nil
}

////////////////////////////////////////////////////////////////////////////////
// write path

// locateOrAlloc returns the absolute block for file-relative block b,
// allocating the data block, and the indirect index block when b crosses out
// of the direct range, on demand. ok is false when the free-space map is
// exhausted.
func (fs *FileSystem) locateOrAlloc(in *inode, b int, ibuf *[]uint32, ibufDirty *bool) (blk int, ok bool, err error) {
	if b < NumDirectPointers {
		if in.direct[b] != 0 {
			return int(in.direct[b]), true, nil
		}
		abs, ok := fs.allocBlock()
		if !ok {
			return 0, false, nil
		}
		in.direct[b] = uint32(abs)
		return abs, true, nil
	}

	if in.indirect == 0 {
		abs, ok := fs.allocBlock()
		if !ok {
			return 0, false, nil
		}
		in.indirect = uint32(abs)
		*ibuf = make([]uint32, pointersPerIndirect)
		*ibufDirty = true
	}
	if *ibuf == nil {
		buf := make([]byte, BlockSize)
		if err := fs.dev.ReadBlocks(int(in.indirect), 1, buf); err != nil {
			return 0, false, fmt.Errorf("could not read indirect block %d: %w", in.indirect, err)
		}
		*ibuf = indirectFromBytes(buf)
	}

	s := b - NumDirectPointers
	if (*ibuf)[s] != 0 {
		return int((*ibuf)[s]), true, nil
	}
	abs, ok := fs.allocBlock()
	if !ok {
		return 0, false, nil
	}
	(*ibuf)[s] = uint32(abs)
	*ibufDirty = true
	return abs, true, nil
}

// allocBlock claims the first free slot of the free-space map and returns
// its absolute block number.
func (fs *FileSystem) allocBlock() (int, bool) {
	k := fs.freemap.FirstFree()
	if k < 0 {
		logrus.Warnf("sfs: free-space map exhausted, %d data blocks in use", fs.freemap.CountSet())
		return 0, false
	}
	_ = fs.freemap.Set(k)
	return DataBlocksOffset + k, true
}

// Write writes len(p) bytes at the descriptor's current position, extending
// the file as needed, and advances it. Data blocks are allocated on demand;
// partial blocks are read-modify-written so existing bytes survive. A count
// short of len(p) without an error means the disk ran out of free blocks or
// the file reached MaxFileBytes; whatever was written is durable.
func (fs *FileSystem) Write(fd int, p []byte) (int, error) {
	if err := fs.checkFD(fd); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	d := &fs.fds[fd]
	in := &fs.inodes[d.inode]
	if d.rwptr > int64(in.size) {
		return 0, ErrOutOfRange
	}
	if d.rwptr >= MaxFileBytes {
		return 0, ErrFileTooLarge
	}

	var (
		ibuf      []uint32
		ibufDirty bool
		werr      error
	)
	sizeInitial := int64(in.size)
	remaining := len(p)
	written := 0
	for remaining > 0 {
		b := int(d.rwptr / BlockSize)
		if b >= MaxBlocksPerFile {
			break
		}
		blk, ok, err := fs.locateOrAlloc(in, b, &ibuf, &ibufDirty)
		if err != nil {
			werr = err
			break
		}
		if !ok {
			break
		}
		// read-modify-write keeps the bytes a partial write does not touch
		buf := make([]byte, BlockSize)
		if err := fs.dev.ReadBlocks(blk, 1, buf); err != nil {
			werr = err
			break
		}
		blockOffset := int(d.rwptr % BlockSize)
		chunk := BlockSize - blockOffset
		if chunk > remaining {
			chunk = remaining
		}
		copy(buf[blockOffset:blockOffset+chunk], p[written:written+chunk])
		if err := fs.dev.WriteBlocks(blk, 1, buf); err != nil {
			werr = err
			break
		}
		d.rwptr += int64(chunk)
		written += chunk
		remaining -= chunk
	}

	if written > 0 || ibufDirty {
		if delta := d.rwptr - sizeInitial; delta > 0 {
			in.size = uint32(sizeInitial + delta)
		}
		if ibufDirty {
			if err := fs.dev.WriteBlocks(int(in.indirect), 1, indirectToBytes(ibuf)); err != nil {
				return written, fmt.Errorf("could not write indirect block %d: %w", in.indirect, err)
			}
		}
		if err := fs.writeInodeTable(); err != nil {
			return written, err
		}
		if err := fs.writeBitmap(); err != nil {
			return written, err
		}
	}
	return written, werr
}

////////////////////////////////////////////////////////////////////////////////
// remove

// Remove deletes the named file: its directory entry is cleared, any open
// descriptor is closed, and every data block it owned, plus the indirect
// index block if present, is zeroed on disk and returned to the free-space
// map.
func (fs *FileSystem) Remove(pathname string) error {
	_, err := fs.removeFile(pathname)
	return err
}

// removeFile implements Remove and reports the index of the freed inode.
func (fs *FileSystem) removeFile(name string) (int, error) {
	idx := fs.findEntry(name)
	if idx < 0 {
		return -1, ErrNotFound
	}
	ino := idx + 1
	fs.dir[idx] = dirEntry{}
	if fd := fs.descriptorFor(ino); fd >= 0 {
		fs.fds[fd] = descriptor{inode: -1, rwptr: 0}
	}

	in := &fs.inodes[ino]
	if in.linkCount == 1 {
		zero := make([]byte, BlockSize)
		for i := 0; i < NumDirectPointers; i++ {
			if in.direct[i] == 0 {
				continue
			}
			if err := fs.freeBlock(int(in.direct[i]), zero); err != nil {
				return -1, err
			}
			in.direct[i] = 0
		}
		if in.indirect != 0 {
			buf := make([]byte, BlockSize)
			if err := fs.dev.ReadBlocks(int(in.indirect), 1, buf); err != nil {
				return -1, fmt.Errorf("could not read indirect block %d: %w", in.indirect, err)
			}
			for _, s := range indirectFromBytes(buf) {
				if s == 0 {
					continue
				}
				if err := fs.freeBlock(int(s), zero); err != nil {
					return -1, err
				}
			}
			if err := fs.freeBlock(int(in.indirect), zero); err != nil {
				return -1, err
			}
			in.indirect = 0
		}
		*in = inode{}
		fs.numFiles--
	}

	if err := fs.writeInodeTable(); err != nil {
		return -1, err
	}
	if err := fs.writeDirectory(); err != nil {
		return -1, err
	}
	if err := fs.writeBitmap(); err != nil {
		return -1, err
	}
	return ino, nil
}

// freeBlock zeroes an absolute block on disk and clears its free-space slot.
func (fs *FileSystem) freeBlock(abs int, zero []byte) error {
	if err := fs.dev.WriteBlocks(abs, 1, zero); err != nil {
		return fmt.Errorf("could not zero block %d: %w", abs, err)
	}
	if err := fs.freemap.Clear(abs - DataBlocksOffset); err != nil {
		return fmt.Errorf("could not free block %d: %w", abs, err)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////////////
// filesystem.FileSystem surface

// Type returns the type of filesystem
func (fs *FileSystem) Type() filesystem.Type {
	return filesystem.TypeSfs
}

// Label returns the label for the filesystem. sfs images carry none.
func (fs *FileSystem) Label() string {
	return ""
}

// ReadDir returns the listing of the root directory, the only directory
// there is. Accepts "/", "." and "" as the path.
func (fs *FileSystem) ReadDir(pathname string) ([]os.FileInfo, error) {
	if pathname != "" && pathname != "/" && pathname != "." {
		return nil, fmt.Errorf("%s: %w", pathname, ErrNotFound)
	}
	var infos []os.FileInfo
	for i := range fs.dir {
		if !fs.dir[i].inUse() {
			continue
		}
		infos = append(infos, fileInfo{
			name: fs.dir[i].name,
			size: int64(fs.inodes[i+1].size),
		})
	}
	return infos, nil
}

// Stat returns file information for the named file, or for the root
// directory when name is "/".
func (fs *FileSystem) Stat(name string) (os.FileInfo, error) {
	if name == "/" {
		return fileInfo{name: "/", isDir: true}, nil
	}
	idx := fs.findEntry(name)
	if idx < 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return fileInfo{name: name, size: int64(fs.inodes[idx+1].size)}, nil
}

// FSStat describes the filesystem's capacity and current usage.
type FSStat struct {
	BlockSize   int
	TotalBlocks int
	FreeBlocks  int
	Files       int
	FilesFree   int
}

// FSStat returns capacity and usage counters.
func (fs *FileSystem) FSStat() FSStat {
	return FSStat{
		BlockSize:   BlockSize,
		TotalBlocks: NumDataBlocks,
		FreeBlocks:  NumDataBlocks - fs.freemap.CountSet(),
		Files:       fs.numFiles,
		FilesFree:   NumFileInodes - fs.numFiles,
	}
}
