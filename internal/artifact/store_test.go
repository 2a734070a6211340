package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "artifacts"), filepath.Join(dir, "index.db"), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)

	data := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}
	saved, err := s.Save(data, "chart/png", "Revenue by category")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("artifact must get an opaque handle")
	}
	if !strings.HasSuffix(saved.Path, ".png") {
		t.Errorf("path = %s, want .png extension for chart/png", saved.Path)
	}

	onDisk, err := os.ReadFile(saved.Path)
	if err != nil {
		t.Fatalf("read artifact file: %v", err)
	}
	if string(onDisk) != string(data) {
		t.Error("file content mismatch")
	}

	got, err := s.Get(saved.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("artifact not found in index")
	}
	if got.Kind != "chart/png" || got.Title != "Revenue by category" || got.Path != saved.Path {
		t.Errorf("got = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not round-tripped")
	}
}

func TestGetUnknownHandle(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get("not-a-handle")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("got = %+v, want nil for unknown handle", got)
	}
}

func TestSaveUnknownKindUsesGenericExtension(t *testing.T) {
	s := newTestStore(t)

	saved, err := s.Save([]byte("x"), "blob", "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasSuffix(saved.Path, ".bin") {
		t.Errorf("path = %s", saved.Path)
	}
}

func TestHandlesAreUnique(t *testing.T) {
	s := newTestStore(t)

	a, _ := s.Save([]byte("1"), "chart/png", "")
	b, _ := s.Save([]byte("2"), "chart/png", "")
	if a.ID == b.ID {
		t.Error("handles must be unique")
	}
}
