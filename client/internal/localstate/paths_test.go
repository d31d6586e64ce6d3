package localstate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDir_Override(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "state")
	t.Setenv(envHome, tmp)

	dir, err := DataDir()
	if err != nil {
		t.Fatalf("DataDir error: %v", err)
	}
	if dir != tmp {
		t.Fatalf("expected dir %s, got %s", tmp, dir)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("dir not created: %v", err)
	}
}

func TestStorePaths(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv(envHome, tmp)

	p, err := SQLitePath()
	if err != nil {
		t.Fatalf("SQLitePath error: %v", err)
	}
	if expected := filepath.Join(tmp, sqliteFilename); p != expected {
		t.Fatalf("expected path %s, got %s", expected, p)
	}

	d, err := BadgerDir()
	if err != nil {
		t.Fatalf("BadgerDir error: %v", err)
	}
	if expected := filepath.Join(tmp, badgerDirName); d != expected {
		t.Fatalf("expected dir %s, got %s", expected, d)
	}
}
