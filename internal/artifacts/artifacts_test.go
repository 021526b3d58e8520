package artifacts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveProducesUniquePaths(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	p1, err := s.Save(42, strings.NewReader("first"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	p2, err := s.Save(42, strings.NewReader("second"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if p1 == p2 {
		t.Fatalf("expected distinct paths, got %s twice", p1)
	}
	if !strings.HasPrefix(filepath.Base(p1), "42_") {
		t.Fatalf("expected submitter prefix, got %s", p1)
	}

	data, err := os.ReadFile(p1)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "first" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestModTimeMissingFile(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, err = s.ModTime(filepath.Join(s.Root(), "absent.jpg"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
