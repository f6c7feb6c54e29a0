package sfs

import (
	"encoding/binary"
	"fmt"
)

// superblock is the fixed-layout record at block 0. It is written once when
// the image is formatted and never rewritten.
//
// On-disk layout, little-endian, 20 bytes used of the block:
//
//	0x00:0x04  magic
//	0x04:0x08  block size in bytes
//	0x08:0x0c  filesystem size in bytes
//	0x0c:0x10  inode table length in blocks
//	0x10:0x14  inode number of the root directory
type superblock struct {
	magic         uint32
	blockSize     uint32
	fsSize        uint32
	inodeTableLen uint32
	rootDirInode  uint32
}

func newSuperblock() superblock {
	return superblock{
		magic:         magicSfs,
		blockSize:     BlockSize,
		fsSize:        NumTotalBlocks * BlockSize,
		inodeTableLen: numInodeBlocks,
		rootDirInode:  0,
	}
}

// toBytes serializes the superblock into a zeroed block-sized buffer.
func (sb *superblock) toBytes() []byte {
	b := make([]byte, BlockSize)
	binary.LittleEndian.PutUint32(b[0x0:0x4], sb.magic)
	binary.LittleEndian.PutUint32(b[0x4:0x8], sb.blockSize)
	binary.LittleEndian.PutUint32(b[0x8:0xc], sb.fsSize)
	binary.LittleEndian.PutUint32(b[0xc:0x10], sb.inodeTableLen)
	binary.LittleEndian.PutUint32(b[0x10:0x14], sb.rootDirInode)
	return b
}

func superblockFromBytes(b []byte) (superblock, error) {
	if len(b) < superblockRecordSize {
		return superblock{}, fmt.Errorf("superblock record must be at least %d bytes, got %d", superblockRecordSize, len(b))
	}
	sb := superblock{
		magic:         binary.LittleEndian.Uint32(b[0x0:0x4]),
		blockSize:     binary.LittleEndian.Uint32(b[0x4:0x8]),
		fsSize:        binary.LittleEndian.Uint32(b[0x8:0xc]),
		inodeTableLen: binary.LittleEndian.Uint32(b[0xc:0x10]),
		rootDirInode:  binary.LittleEndian.Uint32(b[0x10:0x14]),
	}
	if sb.magic != magicSfs {
		return sb, fmt.Errorf("magic %#x: %w", sb.magic, ErrBadMagic)
	}
	if sb.blockSize != BlockSize {
		return sb, fmt.Errorf("block size %d, want %d", sb.blockSize, BlockSize)
	}
	if sb.fsSize != NumTotalBlocks*BlockSize {
		return sb, fmt.Errorf("filesystem size %d, want %d", sb.fsSize, NumTotalBlocks*BlockSize)
	}
	return sb, nil
}
