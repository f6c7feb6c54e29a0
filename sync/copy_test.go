package sync_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/diskfs/go-sfs/filesystem/sfs"
	"github.com/diskfs/go-sfs/sync"
)

func TestCopyInCopyOut(t *testing.T) {
	srcDir := t.TempDir()
	files := map[string]string{
		"alpha.txt": "first file",
		"beta.bin":  "second file with more contents",
	}
	for name, contents := range files {
		require.NoError(t, os.WriteFile(filepath.Join(srcDir, name), []byte(contents), 0o644))
	}
	// subdirectories are skipped on the way in
	require.NoError(t, os.Mkdir(filepath.Join(srcDir, "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "subdir", "nested"), []byte("x"), 0o644))

	fs, err := sfs.Mount(filepath.Join(t.TempDir(), "img"), true)
	require.NoError(t, err)
	defer func() { _ = fs.Unmount() }()

	require.NoError(t, sync.CopyIn(os.DirFS(srcDir), fs))

	infos, err := fs.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.NoError(t, fs.Check())

	dstDir := t.TempDir()
	require.NoError(t, sync.CopyOut(fs, dstDir))
	for name, contents := range files {
		got, err := os.ReadFile(filepath.Join(dstDir, name))
		require.NoError(t, err)
		require.Equal(t, contents, string(got))
	}
	if _, err := os.Stat(filepath.Join(dstDir, "subdir")); !os.IsNotExist(err) {
		t.Error("subdirectory leaked through the copy")
	}
}
