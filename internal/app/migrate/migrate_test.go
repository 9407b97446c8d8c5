package migrate

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestMigrationSourceDefaultsToEmbedded(t *testing.T) {
	fsys, src, err := migrationSource("")
	if err != nil {
		t.Fatalf("migrationSource: %v", err)
	}
	if src != "embedded" {
		t.Fatalf("expected embedded source, got %q", src)
	}
	matches, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("expected embedded migrations")
	}
}

func TestMigrationSourceRejectsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "00001_init.sql")
	if err := os.WriteFile(file, []byte("-- +goose Up\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := migrationSource(file); err == nil {
		t.Fatalf("expected error for non-directory path")
	}
	if _, src, err := migrationSource(dir); err != nil || src != dir {
		t.Fatalf("expected directory source, got %q err=%v", src, err)
	}
	if _, _, err := migrationSource(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}
