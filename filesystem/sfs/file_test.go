package sfs_test

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/diskfs/go-sfs/filesystem/sfs"
)

func TestFileReadWriteSeek(t *testing.T) {
	fs, err := sfs.Mount(tempImage(t), true)
	require.NoError(t, err)
	defer func() { _ = fs.Unmount() }()

	f, err := fs.OpenFile("notes.txt", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)

	_, err = io.Copy(f, strings.NewReader("the quick brown fox"))
	require.NoError(t, err)

	// SeekStart
	pos, err := f.Seek(4, io.SeekStart)
	require.NoError(t, err)
	require.Equal(t, int64(4), pos)
	buf := make([]byte, 5)
	_, err = io.ReadFull(f, buf)
	require.NoError(t, err)
	require.Equal(t, "quick", string(buf))

	// SeekCurrent
	pos, err = f.Seek(1, io.SeekCurrent)
	require.NoError(t, err)
	require.Equal(t, int64(10), pos)

	// SeekEnd
	pos, err = f.Seek(-3, io.SeekEnd)
	require.NoError(t, err)
	require.Equal(t, int64(16), pos)
	out, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "fox", string(out))

	// past-EOF positioning is not allowed
	_, err = f.Seek(1, io.SeekEnd)
	require.ErrorIs(t, err, sfs.ErrOutOfRange)

	require.NoError(t, f.Close())
	require.ErrorIs(t, f.Close(), os.ErrClosed)
}

func TestOpenFileFlags(t *testing.T) {
	fs, err := sfs.Mount(tempImage(t), true)
	require.NoError(t, err)
	defer func() { _ = fs.Unmount() }()

	// missing file without O_CREATE
	_, err = fs.OpenFile("absent", os.O_RDONLY)
	require.ErrorIs(t, err, sfs.ErrNotFound)

	f, err := fs.OpenFile("f", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("abcdef"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// O_APPEND keeps the position at the end
	f, err = fs.OpenFile("f", os.O_RDWR|os.O_APPEND)
	require.NoError(t, err)
	_, err = f.Write([]byte("ghi"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	size, err := fs.FileSize("f")
	require.NoError(t, err)
	require.Equal(t, int64(9), size)

	// O_TRUNC discards the old contents
	f, err = fs.OpenFile("f", os.O_RDWR|os.O_TRUNC)
	require.NoError(t, err)
	_, err = f.Write([]byte("xyz"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	size, err = fs.FileSize("f")
	require.NoError(t, err)
	require.Equal(t, int64(3), size)

	require.NoError(t, fs.Check())
}

func TestFileIOCopyRoundTrip(t *testing.T) {
	fs, err := sfs.Mount(tempImage(t), true)
	require.NoError(t, err)
	defer func() { _ = fs.Unmount() }()

	payload := make([]byte, 20000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	f, err := fs.OpenFile("blob", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	n, err := io.Copy(f, bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)
	require.NoError(t, f.Close())

	f, err = fs.OpenFile("blob", os.O_RDONLY)
	require.NoError(t, err)
	out, err := io.ReadAll(f)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, out))
	require.NoError(t, f.Close())
}

func TestFileStatAndReadDir(t *testing.T) {
	fs, err := sfs.Mount(tempImage(t), true)
	require.NoError(t, err)
	defer func() { _ = fs.Unmount() }()

	f, err := fs.OpenFile("f", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("1234"))
	require.NoError(t, err)

	info, err := f.Stat()
	require.NoError(t, err)
	require.Equal(t, "f", info.Name())
	require.Equal(t, int64(4), info.Size())

	_, err = f.ReadDir(0)
	require.Error(t, err)
	require.NoError(t, f.Close())
}
