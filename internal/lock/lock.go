// Package lock provides an advisory lock file that serializes provisioning
// runs sharing one storage root.
//
// The lock is created with O_CREATE|O_EXCL, so at most one process holds it.
// While held, its modification time is refreshed every HeartbeatInterval. A
// lock file not refreshed for StaleThreshold whose holder process no longer
// exists is assumed to belong to a crashed run and is taken over.
package lock

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	// FileName is the lock file created inside the locked directory.
	FileName = ".provision.lock"

	// StaleThreshold is how long a lock may go without a refresh before it
	// is considered abandoned.
	StaleThreshold = 10 * time.Minute

	// HeartbeatInterval is how often a held lock is refreshed.
	HeartbeatInterval = StaleThreshold / 5
)

// ErrLockExists means another run holds the lock.
var ErrLockExists = errors.New("install lock exists: another provisioning run may be in progress")

// Lock represents a held storage-root lock.
type Lock struct {
	path string
	file *os.File

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Holder is the metadata written into a lock file.
type Holder struct {
	PID        int
	RunID      string
	AcquiredAt time.Time
}

// Acquire takes the lock in dir, creating dir if needed. runID is recorded
// in the lock file for diagnostics.
func Acquire(ctx context.Context, dir, runID string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lockPath := filepath.Join(dir, FileName)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if err := takeOver(ctx, lockPath); err != nil {
			return nil, err
		}
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, ErrLockExists
		}
	}

	lockData := fmt.Sprintf("pid=%d\nrun_id=%s\ntimestamp=%s\n",
		os.Getpid(), runID, time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	l := &Lock{path: lockPath, file: file, stop: make(chan struct{}), done: make(chan struct{})}
	go l.heartbeat(HeartbeatInterval)
	return l, nil
}

// heartbeat refreshes the lock until Release.
func (l *Lock) heartbeat(every time.Duration) {
	defer close(l.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			_ = l.Refresh()
		}
	}
}

// Refresh marks the lock as alive by updating its modification time.
func (l *Lock) Refresh() error {
	if l.path == "" {
		return errors.New("lock released")
	}
	now := time.Now()
	if err := os.Chtimes(l.path, now, now); err != nil {
		return fmt.Errorf("refresh lock file: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock. It is safe to call more than once.
func (l *Lock) Release() error {
	if l.stop != nil {
		l.stopOnce.Do(func() { close(l.stop) })
		<-l.done
	}

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path != "" {
		path := l.path
		l.path = ""
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
	}

	return nil
}

// ReadHolder reads the metadata of the lock currently held in dir.
func ReadHolder(dir string) (*Holder, error) {
	f, err := os.Open(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := &Holder{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "run_id":
			h.RunID = value
		case "timestamp":
			h.AcquiredAt, _ = time.Parse(time.RFC3339, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lock file: %w", err)
	}
	return h, nil
}

// takeOver removes the lock at lockPath if it is stale. The file is first
// renamed aside and compared with the one judged stale, so a lock another
// run created in the meantime is put back rather than deleted.
func takeOver(ctx context.Context, lockPath string) error {
	judged, err := os.Stat(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ErrLockExists
	}
	if !isStale(ctx, lockPath, judged) {
		return ErrLockExists
	}

	aside := lockPath + ".stale-" + uuid.NewString()
	if err := os.Rename(lockPath, aside); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ErrLockExists
	}
	moved, err := os.Stat(aside)
	if err != nil || !os.SameFile(judged, moved) {
		// Link does not overwrite a lock created since the rename.
		_ = os.Link(aside, lockPath)
		_ = os.Remove(aside)
		return ErrLockExists
	}
	_ = os.Remove(aside)
	return nil
}

// isStale reports whether the lock described by info has gone unrefreshed
// for StaleThreshold and its recorded holder is no longer running. A holder
// whose liveness cannot be determined is judged by age alone.
func isStale(ctx context.Context, lockPath string, info os.FileInfo) bool {
	if time.Since(info.ModTime()) <= StaleThreshold {
		return false
	}

	h, err := ReadHolder(filepath.Dir(lockPath))
	if err != nil || h.PID <= 0 {
		return true
	}
	alive, err := process.PidExistsWithContext(ctx, int32(h.PID))
	if err != nil {
		return true
	}
	return !alive
}
