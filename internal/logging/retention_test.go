package logging_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"vpo/internal/logging"
)

func writeAged(t *testing.T, path string, age time.Duration) {
	t.Helper()
	if err := os.WriteFile(path, []byte("line\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func TestApplyRetentionCompressesAndDeletes(t *testing.T) {
	dir := t.TempDir()
	oldLog := filepath.Join(dir, "old.log")
	freshLog := filepath.Join(dir, "fresh.log")
	staleArchive := filepath.Join(dir, "ancient.log.gz")

	writeAged(t, oldLog, 10*24*time.Hour)
	writeAged(t, freshLog, time.Hour)
	writeAged(t, staleArchive, 40*24*time.Hour)

	logging.ApplyRetention(logging.NewNop(), dir, logging.RetentionPolicy{
		CompressionDays: 7,
		DeletionDays:    30,
	})

	if _, err := os.Stat(oldLog); !os.IsNotExist(err) {
		t.Fatal("expected old log to be replaced by archive")
	}
	if _, err := os.Stat(oldLog + ".gz"); err != nil {
		t.Fatalf("expected compressed archive: %v", err)
	}
	if _, err := os.Stat(freshLog); err != nil {
		t.Fatalf("fresh log should survive: %v", err)
	}
	if _, err := os.Stat(staleArchive); !os.IsNotExist(err) {
		t.Fatal("expected stale archive to be deleted")
	}
}

func TestApplyRetentionExcludesActiveLog(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "vpo.log")
	writeAged(t, active, 10*24*time.Hour)

	logging.ApplyRetention(logging.NewNop(), dir, logging.RetentionPolicy{CompressionDays: 7, DeletionDays: 30}, active)

	if _, err := os.Stat(active); err != nil {
		t.Fatalf("active log must not be touched: %v", err)
	}
}

func TestApplyRetentionDisabled(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.log")
	writeAged(t, old, 100*24*time.Hour)

	logging.ApplyRetention(logging.NewNop(), dir, logging.RetentionPolicy{})

	if _, err := os.Stat(old); err != nil {
		t.Fatalf("zero policy must be a no-op: %v", err)
	}
}
