package disk_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/diskfs/go-sfs/disk"
	"github.com/diskfs/go-sfs/testhelper"
)

func TestInitFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := disk.InitFresh(path, 512, 64)
	if err != nil {
		t.Fatalf("InitFresh: %v", err)
	}
	defer func() { _ = d.Close() }()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat image: %v", err)
	}
	if info.Size() != 512*64 {
		t.Errorf("image is %d bytes, want %d", info.Size(), 512*64)
	}

	// a fresh image reads back zeroes
	buf := make([]byte, 512)
	if err := d.ReadBlocks(10, 1, buf); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if !bytes.Equal(buf, make([]byte, 512)) {
		t.Error("fresh image is not zero-filled")
	}
}

func TestInitFreshRefusesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	if _, err := disk.InitFresh(path, 512, 4); err != nil {
		t.Fatalf("first InitFresh: %v", err)
	}
	if _, err := disk.InitFresh(path, 512, 4); err == nil {
		t.Error("second InitFresh on the same path must fail")
	}
}

func TestOpenExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := disk.InitFresh(path, 512, 8)
	if err != nil {
		t.Fatalf("InitFresh: %v", err)
	}
	payload := bytes.Repeat([]byte{0x42}, 512)
	if err := d.WriteBlocks(3, 1, payload); err != nil {
		t.Fatalf("WriteBlocks: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	d, err = disk.OpenExisting(path, 512, 8)
	if err != nil {
		t.Fatalf("OpenExisting: %v", err)
	}
	defer func() { _ = d.Close() }()
	buf := make([]byte, 512)
	if err := d.ReadBlocks(3, 1, buf); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if !bytes.Equal(buf, payload) {
		t.Error("contents changed across reopen")
	}
}

func TestOpenExistingGeometryMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	if _, err := disk.InitFresh(path, 512, 8); err != nil {
		t.Fatalf("InitFresh: %v", err)
	}
	_, err := disk.OpenExisting(path, 512, 16)
	if err == nil {
		t.Fatal("attach with the wrong geometry must fail")
	}
}

func TestReadWriteBounds(t *testing.T) {
	d, err := disk.New(testhelper.NewMemory(512*8), 512, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf := make([]byte, 2*512)

	tests := []struct {
		name    string
		start   int
		count   int
		buf     []byte
		wantErr bool
	}{
		{"valid single", 0, 1, buf, false},
		{"valid span", 6, 2, buf, false},
		{"zero count", 3, 0, buf, true},
		{"negative start", -1, 1, buf, true},
		{"past end", 7, 2, buf, true},
		{"short buffer", 0, 2, buf[:512], true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.ReadBlocks(tt.start, tt.count, tt.buf)
			if (err != nil) != tt.wantErr {
				t.Errorf("ReadBlocks(%d, %d) error = %v, wantErr %v", tt.start, tt.count, err, tt.wantErr)
			}
			err = d.WriteBlocks(tt.start, tt.count, tt.buf)
			if (err != nil) != tt.wantErr {
				t.Errorf("WriteBlocks(%d, %d) error = %v, wantErr %v", tt.start, tt.count, err, tt.wantErr)
			}
		})
	}
}

func TestMultiBlockRoundTrip(t *testing.T) {
	d, err := disk.New(testhelper.NewMemory(1024*16), 1024, 16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	payload := make([]byte, 3*1024)
	for i := range payload {
		payload[i] = byte(i * 13)
	}
	if err := d.WriteBlocks(5, 3, payload); err != nil {
		t.Fatalf("WriteBlocks: %v", err)
	}
	out := make([]byte, 3*1024)
	if err := d.ReadBlocks(5, 3, out); err != nil {
		t.Fatalf("ReadBlocks: %v", err)
	}
	if !bytes.Equal(payload, out) {
		t.Error("multi-block write did not round trip")
	}
}
