package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrLocked = errors.New("state is locked by another run")

const (
	DefaultLockStaleAfter = 6 * time.Hour
	lockOwnerFile         = "owner.json"
)

// RunLock keeps two runs from working on the same state at once. It is a
// directory next to the state, created with mkdir so only one run can own it.
type RunLock struct {
	dir string
}

type lockOwner struct {
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LockPath is the lock directory used for a state file or database.
func LockPath(statePath string) string {
	return statePath + ".lock"
}

// AcquireRunLock takes the lock for statePath. A lock left behind by a run
// that no longer exists is taken over: its owner ran on this host and the
// process is gone, or it was acquired more than staleAfter ago. A zero
// staleAfter disables the age check.
func AcquireRunLock(statePath string, staleAfter time.Duration) (RunLock, error) {
	statePath = strings.TrimSpace(statePath)
	if statePath == "" {
		return RunLock{}, errors.New("state path is required")
	}

	dir := LockPath(statePath)
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return RunLock{}, fmt.Errorf("failed to create lock parent %s: %w", filepath.Dir(dir), err)
	}

	err := os.Mkdir(dir, 0o755)
	if errors.Is(err, fs.ErrExist) {
		owner, reason := staleLock(dir, staleAfter, time.Now())
		if reason == "" {
			return RunLock{}, lockedError(dir, owner)
		}

		args := []any{"path", dir, "reason", reason}
		if owner != nil {
			args = append(args, "pid", owner.PID, "host", owner.Host, "acquired_at", owner.AcquiredAt)
		}
		slog.Warn("Taking over stale run lock", args...)

		if err := os.RemoveAll(dir); err != nil {
			return RunLock{}, fmt.Errorf("failed to remove stale run lock %s: %w", dir, err)
		}
		err = os.Mkdir(dir, 0o755)
		if errors.Is(err, fs.ErrExist) {
			// another run took it over first
			return RunLock{}, fmt.Errorf("%w: %s", ErrLocked, dir)
		}
	}
	if err != nil {
		return RunLock{}, fmt.Errorf("failed to create run lock %s: %w", dir, err)
	}

	owner := lockOwner{
		PID:        os.Getpid(),
		Host:       hostname(),
		AcquiredAt: time.Now().UTC(),
	}
	if err := WriteJSON(filepath.Join(dir, lockOwnerFile), owner); err != nil {
		_ = os.RemoveAll(dir)
		return RunLock{}, fmt.Errorf("failed to record run lock owner: %w", err)
	}

	return RunLock{dir: dir}, nil
}

func (l RunLock) Release() error {
	if l.dir == "" {
		return nil
	}
	if err := os.RemoveAll(l.dir); err != nil {
		return fmt.Errorf("failed to release run lock %s: %w", l.dir, err)
	}
	return nil
}

// staleLock reports why the lock in dir can be taken over, or "" while it
// is still held. The owner is nil when it could not be read.
func staleLock(dir string, staleAfter time.Duration, now time.Time) (*lockOwner, string) {
	owner, err := readLockOwner(dir)
	if err != nil {
		// the holder may be between mkdir and writing its owner file
		info, statErr := os.Stat(dir)
		if statErr == nil && staleAfter > 0 && now.Sub(info.ModTime()) > staleAfter {
			return nil, "expired"
		}
		return nil, ""
	}

	if owner.Host == hostname() && !processAlive(owner.PID) {
		return owner, "owner exited"
	}
	if staleAfter > 0 && now.Sub(owner.AcquiredAt) > staleAfter {
		return owner, "expired"
	}
	return owner, ""
}

func readLockOwner(dir string) (*lockOwner, error) {
	data, err := os.ReadFile(filepath.Join(dir, lockOwnerFile))
	if err != nil {
		return nil, err
	}
	var owner lockOwner
	if err := json.Unmarshal(data, &owner); err != nil {
		return nil, err
	}
	return &owner, nil
}

func lockedError(dir string, owner *lockOwner) error {
	if owner == nil {
		return fmt.Errorf("%w: %s", ErrLocked, dir)
	}
	return fmt.Errorf("%w: %s (pid %d on %s since %s)", ErrLocked, dir,
		owner.PID, owner.Host, owner.AcquiredAt.Format(time.RFC3339))
}

func hostname() string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return "unknown"
	}
	return strings.TrimSpace(host)
}
