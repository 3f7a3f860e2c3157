package logging

import (
	"compress/gzip"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionPolicy controls age-based compression and deletion of log files.
// A value of 0 for either field disables that action.
type RetentionPolicy struct {
	CompressionDays int
	DeletionDays    int
}

// ApplyRetention compresses plain logs older than the compression age and
// deletes gzip archives older than the deletion age. The active log file is
// excluded so appending writers are never disturbed.
func ApplyRetention(logger *slog.Logger, dir string, policy RetentionPolicy, exclude ...string) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, path := range exclude {
		if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil {
			excluded[abs] = struct{}{}
		}
	}

	now := time.Now()
	compressCutoff := now.AddDate(0, 0, -policy.CompressionDays)
	deleteCutoff := now.AddDate(0, 0, -policy.DeletionDays)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		full := filepath.Join(dir, name)
		if abs, err := filepath.Abs(full); err == nil {
			if _, skip := excluded[abs]; skip {
				continue
			}
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		switch {
		case strings.HasSuffix(name, ".log") && policy.CompressionDays > 0 && info.ModTime().Before(compressCutoff):
			if err := compressFile(full); err != nil {
				if logger != nil {
					logger.Warn("log compression failed", String("path", full), Error(err))
				}
				continue
			}
			if logger != nil {
				logger.Info("log compressed", String("path", full), String(FieldEventType, "log_compressed"))
			}
		case strings.HasSuffix(name, ".log.gz") && policy.DeletionDays > 0 && info.ModTime().Before(deleteCutoff):
			if err := os.Remove(full); err != nil {
				if logger != nil {
					logger.Warn("log deletion failed", String("path", full), Error(err))
				}
				continue
			}
			if logger != nil {
				logger.Info("log pruned", String("path", full), String(FieldEventType, "log_pruned"))
			}
		}
	}
}

func compressFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(path+".gz", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	if _, err := io.Copy(gz, in); err != nil {
		_ = gz.Close()
		_ = out.Close()
		_ = os.Remove(path + ".gz")
		return err
	}
	if err := gz.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(path + ".gz")
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path + ".gz")
		return err
	}
	// Keep the archive's mtime aligned with the source so deletion ages from
	// the original write time, not the compression time.
	if info, err := os.Stat(path); err == nil {
		_ = os.Chtimes(path+".gz", info.ModTime(), info.ModTime())
	}
	return os.Remove(path)
}
