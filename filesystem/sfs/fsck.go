package sfs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Check verifies the structural invariants of the mounted filesystem and
// returns every violation found, aggregated. It reads indirect index blocks
// from the disk but mutates nothing.
//
// The invariants checked:
//
//   - inode link counts, directory modes and directory names agree
//   - directory names are unique
//   - the free-space map marks exactly the blocks referenced by some inode
//   - each file references exactly the blocks its size requires
//   - every open descriptor points at a live inode with its position inside
//     the file
func (fs *FileSystem) Check() error {
	var result *multierror.Error

	seen := map[string]int{}
	for i := range fs.dir {
		de := &fs.dir[i]
		in := &fs.inodes[i+1]
		switch {
		case de.inUse() && in.linkCount != 1:
			result = multierror.Append(result, fmt.Errorf(
				"directory entry %d (%q) in use but inode %d has link count %d", i, de.name, i+1, in.linkCount))
		case !de.inUse() && in.linkCount != 0:
			result = multierror.Append(result, fmt.Errorf(
				"inode %d allocated but directory entry %d is unused", i+1, i))
		}
		if de.inUse() {
			if de.name == "" {
				result = multierror.Append(result, fmt.Errorf("directory entry %d in use with empty name", i))
			}
			if prev, dup := seen[de.name]; dup {
				result = multierror.Append(result, fmt.Errorf(
					"name %q appears in directory entries %d and %d", de.name, prev, i))
			}
			seen[de.name] = i
		}
	}

	refs := make([]int, NumDataBlocks)
	ref := func(abs int, what string) {
		slot := abs - DataBlocksOffset
		if slot < 0 || slot >= NumDataBlocks {
			result = multierror.Append(result, fmt.Errorf("%s references block %d outside the data region", what, abs))
			return
		}
		refs[slot]++
	}

	for i := 1; i < NumInodes; i++ {
		in := &fs.inodes[i]
		if in.linkCount != 1 {
			continue
		}
		if in.size > MaxFileBytes {
			result = multierror.Append(result, fmt.Errorf("inode %d size %d exceeds maximum %d", i, in.size, MaxFileBytes))
		}
		blocks := 0
		for j, d := range in.direct {
			if d == 0 {
				continue
			}
			ref(int(d), fmt.Sprintf("inode %d direct[%d]", i, j))
			blocks++
		}
		if in.indirect != 0 {
			ref(int(in.indirect), fmt.Sprintf("inode %d indirect", i))
			buf := make([]byte, BlockSize)
			if err := fs.dev.ReadBlocks(int(in.indirect), 1, buf); err != nil {
				result = multierror.Append(result, fmt.Errorf("could not read indirect block of inode %d: %w", i, err))
				continue
			}
			for j, s := range indirectFromBytes(buf) {
				if s == 0 {
					continue
				}
				ref(int(s), fmt.Sprintf("inode %d indirect slot %d", i, j))
				blocks++
			}
		}
		if blocks != in.blockCount() {
			result = multierror.Append(result, fmt.Errorf(
				"inode %d references %d data blocks but size %d requires %d", i, blocks, in.size, in.blockCount()))
		}
	}

	for k := 0; k < NumDataBlocks; k++ {
		marked, _ := fs.freemap.IsSet(k)
		switch {
		case refs[k] > 1:
			result = multierror.Append(result, fmt.Errorf("block %d referenced %d times", DataBlocksOffset+k, refs[k]))
		case refs[k] == 1 && !marked:
			result = multierror.Append(result, fmt.Errorf("block %d referenced but free in the map", DataBlocksOffset+k))
		case refs[k] == 0 && marked:
			result = multierror.Append(result, fmt.Errorf("block %d marked in the map but unreferenced", DataBlocksOffset+k))
		}
	}

	for fd := 1; fd < len(fs.fds); fd++ {
		d := &fs.fds[fd]
		if d.inode < 0 {
			continue
		}
		if d.inode == 0 || d.inode >= NumInodes {
			result = multierror.Append(result, fmt.Errorf("descriptor %d references inode %d", fd, d.inode))
			continue
		}
		in := &fs.inodes[d.inode]
		if in.linkCount != 1 {
			result = multierror.Append(result, fmt.Errorf("descriptor %d references free inode %d", fd, d.inode))
		}
		if d.rwptr < 0 || d.rwptr > int64(in.size) {
			result = multierror.Append(result, fmt.Errorf(
				"descriptor %d position %d outside file of %d bytes", fd, d.rwptr, in.size))
		}
	}

	return result.ErrorOrNil()
}
