package executor

import (
	"os"

	"github.com/gofrs/flock"

	"vpo/internal/services"
)

// LockSuffix is appended to the media file path to form its lock file.
const LockSuffix = ".vpo-lock"

// FileLock holds the exclusive advisory lock for one media file.
type FileLock struct {
	flock *flock.Flock
	path  string
}

// AcquireFileLock takes a non-blocking exclusive lock on the sibling lock
// file of path. A held lock is reported immediately, never waited on.
func AcquireFileLock(path string) (*FileLock, error) {
	lockPath := path + LockSuffix
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrLocked, "executor", "lock", lockPath, err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrLocked, "executor", "lock",
			"another process holds "+lockPath, nil)
	}
	return &FileLock{flock: fl, path: lockPath}, nil
}

// Release drops the lock and removes the lock file. Safe to call more than
// once.
func (l *FileLock) Release() {
	if l == nil || l.flock == nil {
		return
	}
	_ = l.flock.Unlock()
	_ = os.Remove(l.path)
	l.flock = nil
}
