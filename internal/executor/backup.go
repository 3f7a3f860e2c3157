package executor

import (
	"log/slog"
	"os"

	"vpo/internal/fileutil"
	"vpo/internal/logging"
	"vpo/internal/services"
)

// BackupSuffix is appended to the media file path to form its backup copy.
const BackupSuffix = ".vpo-backup"

// CreateBackup copies path to its sibling backup file, preserving mode and
// mtime, and returns the backup path.
func CreateBackup(path string) (string, error) {
	backupPath := path + BackupSuffix
	if err := fileutil.CopyPreserve(path, backupPath); err != nil {
		return "", services.Wrap(services.ErrTransient, "executor", "backup", path, err)
	}
	return backupPath, nil
}

// RestoreBackup puts the backup copy back in place of path. It is called from
// failure paths; a restoration error is logged but must never replace the
// original cause, so it is only returned for the caller to log.
func RestoreBackup(backupPath, path string, logger *slog.Logger) {
	if backupPath == "" {
		return
	}
	if _, err := os.Stat(backupPath); err != nil {
		return
	}
	if err := fileutil.CopyPreserve(backupPath, path); err != nil {
		if logger != nil {
			logger.Error("backup restoration failed",
				logging.String("backup", backupPath),
				logging.String("target", path),
				logging.Error(err))
		}
		return
	}
	_ = os.Remove(backupPath)
}

// DiscardBackup removes the backup copy after a successful run, unless the
// configuration asks for backups to be kept.
func DiscardBackup(backupPath string, keep bool) {
	if backupPath == "" || keep {
		return
	}
	_ = os.Remove(backupPath)
}
