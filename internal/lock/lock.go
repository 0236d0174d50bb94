// Package lock guards against two mirrorkeeper runs racing on the same
// config/cache directory using an advisory file lock.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"

	"github.com/skaphos/mirrorkeeper/internal/errtax"
)

// Guard wraps an advisory lock file scoped to a config/cache directory.
type Guard struct {
	flock *flock.Flock
	path  string
}

// Path returns the lock file path for a given state directory.
func Path(stateDir string) string {
	return filepath.Join(stateDir, "mirrorkeeper.lock")
}

// New creates a Guard for the given state directory without acquiring it.
func New(stateDir string) *Guard {
	p := Path(stateDir)
	return &Guard{flock: flock.New(p), path: p}
}

// TryAcquire attempts to take the lock without blocking. On success it
// writes the current pid into the lock file for diagnostics. If another live
// process holds the lock, it returns errtax.ErrLocked.
func (g *Guard) TryAcquire() error {
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return fmt.Errorf("lock: prepare directory: %w", err)
	}
	locked, err := g.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	if !locked {
		holder := g.readHolderPid()
		if holder > 0 {
			return fmt.Errorf("%w: held by pid %d", errtax.ErrLocked, holder)
		}
		return errtax.ErrLocked
	}
	_ = os.WriteFile(g.path, []byte(strconv.Itoa(os.Getpid())), 0o644)
	return nil
}

// AcquireWithTimeout polls TryAcquire until it succeeds or timeout elapses.
func (g *Guard) AcquireWithTimeout(timeout, pollInterval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		err := g.TryAcquire()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(pollInterval)
	}
}

// Release drops the lock. Safe to call even if TryAcquire was never called
// or failed.
func (g *Guard) Release() error {
	return g.flock.Unlock()
}

func (g *Guard) readHolderPid() int {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0
	}
	return pid
}
