package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LockInfo is the content of the run lock file
type LockInfo struct {
	PID       int       `json:"pid" yaml:"pid"`
	Hostname  string    `json:"hostname" yaml:"hostname"`
	StartedAt time.Time `json:"started_at" yaml:"started_at"`
}

// RunLock guards a destination directory against overlapping runs
type RunLock struct {
	path     string
	info     LockInfo
	released bool
}

// AcquireLock creates the lock file in dest. A lock younger than staleAfter
// yields a conflict error; an older one is treated as left behind by a crashed
// run and replaced. replaced reports whether a stale lock was taken over.
func AcquireLock(dest string, staleAfter time.Duration, now time.Time) (lock *RunLock, replaced *LockInfo, err error) {
	path := filepath.Join(dest, LockFileName)
	hostname, _ := os.Hostname()
	info := LockInfo{PID: os.Getpid(), Hostname: hostname, StartedAt: now}

	for attempt := 0; attempt < 2; attempt++ {
		err = writeLockFile(path, info)
		if err == nil {
			return &RunLock{path: path, info: info}, replaced, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, nil, NewConflictError("failed to create run lock", err).WithContext("path", path)
		}

		holder, readErr := readLockInfo(path)
		if readErr != nil {
			// Unreadable lock: fall back to the file's own mtime
			stat, statErr := os.Stat(path)
			if statErr != nil {
				if errors.Is(statErr, os.ErrNotExist) {
					continue
				}
				return nil, nil, NewConflictError("failed to inspect run lock", statErr).WithContext("path", path)
			}
			holder = LockInfo{StartedAt: stat.ModTime()}
		}

		if staleAfter <= 0 || now.Sub(holder.StartedAt) < staleAfter {
			return nil, nil, NewConflictError(
				fmt.Sprintf("another run holds the lock since %s (pid %d on %s)",
					holder.StartedAt.Format(time.RFC3339), holder.PID, holder.Hostname), nil).
				WithContext("path", path).
				WithContext("holder_pid", holder.PID)
		}

		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, nil, NewConflictError("failed to remove stale run lock", rmErr).WithContext("path", path)
		}
		replaced = &holder
	}

	return nil, nil, NewConflictError("run lock was taken concurrently", err).WithContext("path", path)
}

// Info returns the metadata written into the lock
func (l *RunLock) Info() LockInfo {
	return l.info
}

// Path returns the lock file location
func (l *RunLock) Path() string {
	return l.path
}

// Release removes the lock file. It is safe to call more than once.
func (l *RunLock) Release() error {
	if l == nil || l.released {
		return nil
	}
	l.released = true
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

func writeLockFile(path string, info LockInfo) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(info); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write run lock: %w", err)
	}
	return f.Close()
}

func readLockInfo(path string) (LockInfo, error) {
	var info LockInfo
	data, err := os.ReadFile(path)
	if err != nil {
		return info, err
	}
	if err := json.Unmarshal(data, &info); err != nil {
		return info, err
	}
	if info.StartedAt.IsZero() {
		return info, errors.New("lock has no start time")
	}
	return info, nil
}
