package tasks

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
)

// Guard is the single-instance advisory lock: an exclusive lock on the file
// at path, which holds the current PID while locked. The coordinator places
// that file in its state directory, not the process working directory; on
// conflict it exits 1 with a diagnostic, and it releases the lock on shutdown.
type Guard struct {
	lock *flock.Flock
	path string
}

// NewGuard builds a Guard over path without acquiring it.
func NewGuard(path string) *Guard {
	return &Guard{lock: flock.New(path), path: path}
}

// Acquire takes the exclusive lock and writes the current PID into the lock
// file. If another live process already holds the lock, it returns a
// descriptive error; callers exit 1 on that error per spec §4.9.
func (g *Guard) Acquire() error {
	ok, err := g.lock.TryLock()
	if err != nil {
		return fmt.Errorf("tasks: acquiring single-instance lock %s: %w", g.path, err)
	}
	if !ok {
		return fmt.Errorf("tasks: another instance already holds %s", g.path)
	}
	// Best-effort: record our PID in the lock file for operators inspecting
	// a stale lock. The advisory lock itself, not this write, is what
	// actually prevents a second instance from starting.
	_ = os.WriteFile(g.path, []byte(strconv.Itoa(os.Getpid())), 0o644)
	return nil
}

// Release drops the lock and removes the lock file, best-effort.
func (g *Guard) Release() {
	_ = g.lock.Unlock()
	_ = os.Remove(g.path)
}
