// Package workerlock implements the PID-file locking protocol that
// supervises the embed/enrich/compress worker subprocesses: a fixed lock
// path per worker kind, an atomic create-exclusive to claim it, a
// signal-0 liveness probe to detect stale locks left behind by a crashed
// worker, and cleanup of both on exit.
package workerlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrHeld is returned when a lock path is already held by a live process.
var ErrHeld = errors.New("worker lock held by another process")

// IsHeld reports whether err indicates the lock is held by a running process.
func IsHeld(err error) bool {
	return errors.Is(err, ErrHeld)
}

// LockInfo is the metadata a lock file may carry. The wire format is a bare
// ASCII decimal PID (per the on-disk layout), but a lock file is also read
// tolerantly if it happens to hold a PID followed by trailing whitespace or
// a newline, since that's all workers ever write.
type LockInfo struct {
	PID int
}

// path returns the fixed lock path for a worker kind under memDir.
func path(memDir, kind string) string {
	return filepath.Join(memDir, kind+"-worker.lock")
}

// ReadLockInfo reads and parses the lock file for kind under memDir.
// Returns os.ErrNotExist (wrapped) if no lock file is present.
func ReadLockInfo(memDir, kind string) (*LockInfo, error) {
	data, err := os.ReadFile(path(memDir, kind))
	if err != nil {
		return nil, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return nil, fmt.Errorf("malformed lock file: %q", strings.TrimSpace(string(data)))
	}
	return &LockInfo{PID: pid}, nil
}

// IsStale reports whether the lock file for kind exists but names a PID that
// is not alive (dead, missing, invalid, or zero), per the worker-lock cleanup
// invariant: "after ensure_worker_running returns, either a process whose PID
// is in the lock file is alive, or the lock file does not exist."
func IsStale(memDir, kind string) bool {
	info, err := ReadLockInfo(memDir, kind)
	if err != nil {
		return false // missing or malformed isn't "stale", it's just absent/invalid
	}
	return !isProcessRunning(info.PID)
}

// RemoveStale deletes the lock file for kind if it is stale. No-op otherwise.
func RemoveStale(memDir, kind string) error {
	if !IsStale(memDir, kind) {
		return nil
	}
	err := os.Remove(path(memDir, kind))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Acquire atomically creates the lock file for kind holding the current
// process's PID. Returns ErrHeld if a live process already holds it; in
// that case the lock file is left untouched. If the existing lock file
// names a dead process, it is removed and acquisition is retried once.
func Acquire(memDir, kind string) (*Lock, error) {
	lockPath := path(memDir, kind)

	if err := RemoveStale(memDir, kind); err != nil {
		return nil, fmt.Errorf("removing stale lock: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			if info, readErr := ReadLockInfo(memDir, kind); readErr == nil && isProcessRunning(info.PID) {
				return nil, ErrHeld
			}
			// Existing file named a dead/invalid PID; one more collector raced
			// us to create it, or content is malformed. Treat as held to be
			// conservative rather than loop.
			return nil, ErrHeld
		}
		return nil, fmt.Errorf("creating lock file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		_ = os.Remove(lockPath)
		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return &Lock{path: lockPath}, nil
}

// Lock is a held worker lock file. Release removes it.
type Lock struct {
	path string
}

// Release deletes the lock file. Safe to call from the child at
// self-termination time.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SetPID overwrites the lock file content with pid. Used once the real
// worker subprocess PID is known, replacing the placeholder PID written at
// Acquire time.
func (l *Lock) SetPID(pid int) error {
	return os.WriteFile(l.path, []byte(fmt.Sprintf("%d\n", pid)), 0o600)
}

// Path returns the on-disk lock file path.
func (l *Lock) Path() string {
	return l.path
}

// ReleasePath removes the lock file for kind under memDir without requiring
// the *Lock value Acquire returned. A worker subprocess spawned via
// EnsureRunningCmd only has its own PID, not its parent's in-memory *Lock,
// so it calls this directly at self-termination instead.
func ReleasePath(memDir, kind string) error {
	err := os.Remove(path(memDir, kind))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
