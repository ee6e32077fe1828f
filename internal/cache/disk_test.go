package cache

import (
	"bytes"
	"io"
	"os"
	"testing"
)

func readAll(t *testing.T, open func() (io.ReadCloser, error)) []byte {
	t.Helper()
	rc, err := open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	return data
}

func TestMemoryStore(t *testing.T) {
	data := []byte("RIFF....WAVEfmt ")
	res, err := MemoryStore{}.Put(data)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if got := readAll(t, res.Open); !bytes.Equal(got, data) {
		t.Errorf("Open returned %q", got)
	}
	if res.Size() != int64(len(data)) {
		t.Errorf("Size = %d", res.Size())
	}

	_ = res.Release()
	_ = res.Release()
	if _, err := res.Open(); err != ErrResourceReleased {
		t.Errorf("Open after Release = %v, want ErrResourceReleased", err)
	}
}

func TestSpoolStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSpoolStore(dir, 0)
	if err != nil {
		t.Fatalf("NewSpoolStore failed: %v", err)
	}
	defer store.Close()

	data := bytes.Repeat([]byte("audio-sample-"), 1000)
	res, err := store.Put(data)
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}

	// Open twice: the file is read fresh each time
	for i := 0; i < 2; i++ {
		if got := readAll(t, res.Open); !bytes.Equal(got, data) {
			t.Fatalf("Open %d returned %d bytes, want %d", i, len(got), len(data))
		}
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("Spool dir has %d files, want 1", len(entries))
	}
	info, _ := entries[0].Info()
	if info.Size() >= int64(len(data)) {
		t.Errorf("Spool file is %d bytes, expected compression below %d", info.Size(), len(data))
	}

	if err := res.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := res.Release(); err != nil {
		t.Fatalf("Second Release failed: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d after Release, want 0", store.Len())
	}
	entries, _ = os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Spool dir has %d files after Release, want 0", len(entries))
	}
	if _, err := res.Open(); err != ErrResourceReleased {
		t.Errorf("Open after Release = %v, want ErrResourceReleased", err)
	}
}

func TestSpoolStore_CloseRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSpoolStore(dir, 3)
	if err != nil {
		t.Fatalf("NewSpoolStore failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := store.Put([]byte("clip")); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Spool dir has %d files after Close, want 0", len(entries))
	}
}
