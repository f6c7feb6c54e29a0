// Package sync copies files between a host filesystem and a mounted image.
// The image's namespace is flat, so only the top-level regular files of a
// host directory are copied in (subdirectories are skipped) and everything
// lands in one directory on the way out.
package sync

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/diskfs/go-sfs/filesystem"
)

// excludedPaths these are excluded from any copy
var excludedPaths = map[string]bool{
	".DS_Store":                 true,
	"System Volume Information": true,
}

// CopyIn copies the regular files at the top level of src into dst.
// Subdirectories, symlinks and special files are skipped: the destination
// has no way to represent them.
func CopyIn(src fs.FS, dst filesystem.FileSystem) error {
	entries, err := fs.ReadDir(src, ".")
	if err != nil {
		return fmt.Errorf("read source dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if excludedPaths[name] || entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", name, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := copyOneIn(src, dst, name); err != nil {
			return fmt.Errorf("copy file %s: %w", name, err)
		}
	}
	return nil
}

func copyOneIn(src fs.FS, dst filesystem.FileSystem, name string) error {
	in, err := src.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := dst.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_RDWR)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return nil
}

// CopyOut copies every file of src into the host directory dir, which must
// already exist.
func CopyOut(src filesystem.FileSystem, dir string) error {
	infos, err := src.ReadDir("/")
	if err != nil {
		return fmt.Errorf("read image dir: %w", err)
	}
	for _, info := range infos {
		if err := copyOneOut(src, info.Name(), dir); err != nil {
			return fmt.Errorf("copy file %s: %w", info.Name(), err)
		}
	}
	return nil
}

func copyOneOut(src filesystem.FileSystem, name, dir string) error {
	in, err := src.OpenFile(name, os.O_RDONLY)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return nil
}
