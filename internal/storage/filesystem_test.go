package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreWriteRead(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	key, err := store.Write(ctx, "presets/demo.json", []byte(`[]`))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "presets/demo.json" {
		t.Fatalf("unexpected key %q", key)
	}
	if _, err := store.Write(ctx, "presets/demo.json", []byte(`[{"id":"a"}]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != `[{"id":"a"}]` {
		t.Fatalf("unexpected content %q", data)
	}

	entries, err := os.ReadDir(filepath.Join(store.BasePath(), "presets"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected no leftover temp files, got %d entries", len(entries))
	}
}

func TestFileStoreReadMissing(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	_, err := store.Read(context.Background(), "missing.json")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestFileStoreDelete(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	ctx := context.Background()
	if _, err := store.Write(ctx, "a.png", []byte{1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Delete(ctx, "a.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "a.png"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "a/b.json", want: "a/b.json"},
		{in: "/abs/path.json", want: "abs/path.json"},
		{in: `win\style.json`, want: "win/style.json"},
		{in: "../escape", wantErr: true},
		{in: "a/../../escape", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tc := range cases {
		got, err := sanitizeKey(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("sanitizeKey(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("sanitizeKey(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("sanitizeKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFileStoreCanceledContext(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Write(ctx, "x", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
