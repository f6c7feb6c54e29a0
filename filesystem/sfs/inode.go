package sfs

import "encoding/binary"

// inode is the per-file metadata record.
//
// On-disk layout, little-endian, 64 bytes:
//
//	0x00:0x04  mode, 1 when in use as a file
//	0x04:0x08  link count, 1 when the inode is bound to a directory entry
//	0x08:0x0c  file size in bytes
//	0x0c:0x3c  direct block pointers, absolute block numbers, 0 = unallocated
//	0x3c:0x40  indirect index block pointer, 0 = unallocated
//
// A file's body is a contiguous prefix [0, size): writes may begin at most at
// the current size, so a live inode never contains holes.
type inode struct {
	mode      uint32
	linkCount uint32
	size      uint32
	direct    [NumDirectPointers]uint32
	indirect  uint32
}

// toBytes serializes the inode into b, which must be at least
// inodeRecordSize bytes.
func (in *inode) toBytes(b []byte) {
	binary.LittleEndian.PutUint32(b[0x0:0x4], in.mode)
	binary.LittleEndian.PutUint32(b[0x4:0x8], in.linkCount)
	binary.LittleEndian.PutUint32(b[0x8:0xc], in.size)
	for i := 0; i < NumDirectPointers; i++ {
		start := 0xc + i*pointerWidth
		binary.LittleEndian.PutUint32(b[start:start+pointerWidth], in.direct[i])
	}
	binary.LittleEndian.PutUint32(b[0x3c:0x40], in.indirect)
}

func inodeFromBytes(b []byte) inode {
	in := inode{
		mode:      binary.LittleEndian.Uint32(b[0x0:0x4]),
		linkCount: binary.LittleEndian.Uint32(b[0x4:0x8]),
		size:      binary.LittleEndian.Uint32(b[0x8:0xc]),
		indirect:  binary.LittleEndian.Uint32(b[0x3c:0x40]),
	}
	for i := 0; i < NumDirectPointers; i++ {
		start := 0xc + i*pointerWidth
		in.direct[i] = binary.LittleEndian.Uint32(b[start : start+pointerWidth])
	}
	return in
}

// blockCount returns the number of data blocks the file body occupies.
func (in *inode) blockCount() int {
	return (int(in.size) + BlockSize - 1) / BlockSize
}

// indirectFromBytes unpacks an indirect index block into its pointer slots.
func indirectFromBytes(b []byte) []uint32 {
	slots := make([]uint32, pointersPerIndirect)
	for i := range slots {
		slots[i] = binary.LittleEndian.Uint32(b[i*pointerWidth : (i+1)*pointerWidth])
	}
	return slots
}

// indirectToBytes packs pointer slots into a block-sized buffer.
func indirectToBytes(slots []uint32) []byte {
	b := make([]byte, BlockSize)
	for i, s := range slots {
		binary.LittleEndian.PutUint32(b[i*pointerWidth:(i+1)*pointerWidth], s)
	}
	return b
}
