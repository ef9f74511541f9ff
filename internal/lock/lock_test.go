package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAcquire(t *testing.T) {
	t.Run("creates lock file", func(t *testing.T) {
		dir := t.TempDir()

		lock, err := Acquire(context.Background(), dir, "run-1")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		defer lock.Release()

		lockPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(lockPath); os.IsNotExist(err) {
			t.Error("lock file not created")
		}
		if lock.Path() != lockPath {
			t.Errorf("Path() = %s, want %s", lock.Path(), lockPath)
		}
	})

	t.Run("prevents concurrent locks", func(t *testing.T) {
		dir := t.TempDir()

		lock1, err := Acquire(context.Background(), dir, "run-1")
		if err != nil {
			t.Fatalf("first Acquire failed: %v", err)
		}
		defer lock1.Release()

		_, err = Acquire(context.Background(), dir, "run-2")
		if !errors.Is(err, ErrLockExists) {
			t.Errorf("expected ErrLockExists, got %v", err)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		dir := t.TempDir()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := Acquire(ctx, dir, "run-1")
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, FileName)); !os.IsNotExist(err) {
			t.Error("no lock file should be created for a cancelled context")
		}
	})

	t.Run("creates directory if needed", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "storage")

		lock, err := Acquire(context.Background(), dir, "run-1")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		defer lock.Release()

		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Error("directory not created")
		}
	})

	t.Run("writes holder metadata", func(t *testing.T) {
		dir := t.TempDir()
		runID := uuid.NewString()

		before := time.Now().UTC().Add(-time.Second)
		lock, err := Acquire(context.Background(), dir, runID)
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		defer lock.Release()

		h, err := ReadHolder(dir)
		if err != nil {
			t.Fatalf("ReadHolder failed: %v", err)
		}
		if h.PID != os.Getpid() {
			t.Errorf("PID = %d, want %d", h.PID, os.Getpid())
		}
		if h.RunID != runID {
			t.Errorf("RunID = %q, want %q", h.RunID, runID)
		}
		if h.AcquiredAt.Before(before) {
			t.Errorf("AcquiredAt = %v, want after %v", h.AcquiredAt, before)
		}
	})
}

func TestRelease(t *testing.T) {
	t.Run("removes lock file", func(t *testing.T) {
		dir := t.TempDir()

		lock, err := Acquire(context.Background(), dir, "run-1")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}

		if err := lock.Release(); err != nil {
			t.Fatalf("Release failed: %v", err)
		}

		if _, err := os.Stat(filepath.Join(dir, FileName)); !os.IsNotExist(err) {
			t.Error("lock file should be removed after release")
		}
	})

	t.Run("allows new lock after release", func(t *testing.T) {
		dir := t.TempDir()

		lock1, err := Acquire(context.Background(), dir, "run-1")
		if err != nil {
			t.Fatalf("first Acquire failed: %v", err)
		}
		lock1.Release()

		lock2, err := Acquire(context.Background(), dir, "run-2")
		if err != nil {
			t.Fatalf("second Acquire should succeed: %v", err)
		}
		defer lock2.Release()
	})

	t.Run("is idempotent", func(t *testing.T) {
		dir := t.TempDir()

		lock, err := Acquire(context.Background(), dir, "run-1")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}

		if err := lock.Release(); err != nil {
			t.Fatalf("first Release failed: %v", err)
		}
		if err := lock.Release(); err != nil {
			t.Fatalf("second Release should not error: %v", err)
		}
	})

	t.Run("second release keeps a newer holder's lock", func(t *testing.T) {
		dir := t.TempDir()

		lock1, err := Acquire(context.Background(), dir, "run-1")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		lock1.Release()

		lock2, err := Acquire(context.Background(), dir, "run-2")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		defer lock2.Release()

		lock1.Release()
		if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
			t.Errorf("run-2 lock should survive a repeated release of run-1: %v", err)
		}
	})
}

// writeAgedLock writes a lock file with the given content whose mtime is
// past StaleThreshold.
func writeAgedLock(t *testing.T, dir, content string) string {
	t.Helper()

	lockPath := filepath.Join(dir, FileName)
	if err := os.WriteFile(lockPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to create lock: %v", err)
	}
	aged := time.Now().Add(-StaleThreshold - time.Minute)
	if err := os.Chtimes(lockPath, aged, aged); err != nil {
		t.Fatalf("failed to set lock time: %v", err)
	}
	return lockPath
}

// exitedPID returns the pid of a process that has already exited.
func exitedPID(t *testing.T) int {
	t.Helper()

	cmd := exec.Command(os.Args[0], "-test.run=^$")
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to run helper process: %v", err)
	}
	return cmd.ProcessState.Pid()
}

func TestStaleLockHandling(t *testing.T) {
	tests := []struct {
		name     string
		content  func(t *testing.T) string
		aged     bool
		wantTake bool
	}{
		{
			name: "aged lock of exited holder is taken over",
			content: func(t *testing.T) string {
				return fmt.Sprintf("pid=%d\nrun_id=old\ntimestamp=2020-01-01T00:00:00Z\n", exitedPID(t))
			},
			aged:     true,
			wantTake: true,
		},
		{
			name:     "aged lock without holder pid is taken over",
			content:  func(t *testing.T) string { return "run_id=old\n" },
			aged:     true,
			wantTake: true,
		},
		{
			name: "aged lock of running holder is kept",
			content: func(t *testing.T) string {
				return fmt.Sprintf("pid=%d\nrun_id=old\ntimestamp=2020-01-01T00:00:00Z\n", os.Getpid())
			},
			aged:     true,
			wantTake: false,
		},
		{
			name: "fresh lock of exited holder is kept",
			content: func(t *testing.T) string {
				return fmt.Sprintf("pid=%d\nrun_id=old\n", exitedPID(t))
			},
			aged:     false,
			wantTake: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			content := tt.content(t)
			lockPath := filepath.Join(dir, FileName)
			if tt.aged {
				writeAgedLock(t, dir, content)
			} else if err := os.WriteFile(lockPath, []byte(content), 0600); err != nil {
				t.Fatalf("failed to create lock: %v", err)
			}

			lock, err := Acquire(context.Background(), dir, "run-new")
			if !tt.wantTake {
				if !errors.Is(err, ErrLockExists) {
					t.Fatalf("expected ErrLockExists, got %v", err)
				}
				data, rerr := os.ReadFile(lockPath)
				if rerr != nil || string(data) != content {
					t.Errorf("held lock was disturbed: %q, %v", data, rerr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Acquire should take over the stale lock: %v", err)
			}
			defer lock.Release()

			h, err := ReadHolder(dir)
			if err != nil {
				t.Fatal(err)
			}
			if h.RunID != "run-new" || h.PID != os.Getpid() {
				t.Errorf("holder = %+v, want run-new held by this process", h)
			}

			matches, _ := filepath.Glob(lockPath + ".stale-*")
			if len(matches) != 0 {
				t.Errorf("stale lock left aside: %v", matches)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(context.Background(), dir, "run-1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	aged := time.Now().Add(-StaleThreshold - time.Minute)
	if err := os.Chtimes(lock.Path(), aged, aged); err != nil {
		t.Fatalf("failed to set lock time: %v", err)
	}
	if err := lock.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	info, err := os.Stat(lock.Path())
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(info.ModTime()) > time.Minute {
		t.Errorf("mtime not refreshed: %v", info.ModTime())
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := lock.Refresh(); err == nil {
		t.Error("Refresh() after Release should fail")
	}
}

func TestHeartbeat(t *testing.T) {
	dir := t.TempDir()
	lockPath := writeAgedLock(t, dir, "pid=1\n")

	l := &Lock{path: lockPath, stop: make(chan struct{}), done: make(chan struct{})}
	go l.heartbeat(10 * time.Millisecond)
	defer l.Release()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		info, err := os.Stat(lockPath)
		if err != nil {
			t.Fatal(err)
		}
		if time.Since(info.ModTime()) < StaleThreshold {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("heartbeat never refreshed the lock")
}

func TestReadHolderMissing(t *testing.T) {
	_, err := ReadHolder(t.TempDir())
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
