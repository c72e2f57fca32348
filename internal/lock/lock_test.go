package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAcquire(t *testing.T) {
	t.Run("creates lock file", func(t *testing.T) {
		dir := t.TempDir()

		l, err := Acquire(dir, "tsdoc-1.2.3")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		defer l.Release()

		want := filepath.Join(dir, "tsdoc-1.2.3.lock")
		if l.Path() != want {
			t.Errorf("Path() = %q, want %q", l.Path(), want)
		}
		if _, err := os.Stat(want); err != nil {
			t.Errorf("lock file not created: %v", err)
		}
	})

	t.Run("prevents concurrent locks", func(t *testing.T) {
		dir := t.TempDir()

		l1, err := Acquire(dir, "tool")
		if err != nil {
			t.Fatalf("first Acquire failed: %v", err)
		}
		defer l1.Release()

		_, err = Acquire(dir, "tool")
		if !errors.Is(err, ErrLockExists) {
			t.Errorf("expected ErrLockExists, got %v", err)
		}
	})

	t.Run("different names do not conflict", func(t *testing.T) {
		dir := t.TempDir()

		l1, err := Acquire(dir, "tool-1.0.0")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		defer l1.Release()

		l2, err := Acquire(dir, "tool-2.0.0")
		if err != nil {
			t.Fatalf("Acquire for second name failed: %v", err)
		}
		defer l2.Release()
	})

	t.Run("creates directory if needed", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "locks")

		l, err := Acquire(dir, "tool")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		defer l.Release()

		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Error("directory not created")
		}
	})

	t.Run("writes lock metadata", func(t *testing.T) {
		dir := t.TempDir()

		l, err := Acquire(dir, "tool")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		defer l.Release()

		data, err := os.ReadFile(l.Path())
		if err != nil {
			t.Fatalf("failed to read lock file: %v", err)
		}
		for _, key := range []string{"pid=", "timestamp=", "owner=" + l.Owner()} {
			if !strings.Contains(string(data), key) {
				t.Errorf("lock file missing %q: %q", key, data)
			}
		}
	})

	t.Run("replaces stale lock", func(t *testing.T) {
		dir := t.TempDir()
		lockPath := filepath.Join(dir, "tool.lock")

		if err := os.WriteFile(lockPath, []byte("pid=1\n"), 0600); err != nil {
			t.Fatalf("failed to write stale lock: %v", err)
		}
		old := time.Now().Add(-2 * StaleLockThreshold)
		if err := os.Chtimes(lockPath, old, old); err != nil {
			t.Fatalf("failed to age lock: %v", err)
		}

		l, err := Acquire(dir, "tool")
		if err != nil {
			t.Fatalf("Acquire should replace stale lock, got %v", err)
		}
		defer l.Release()
	})
}

func TestAcquire_StaleTakeoverSingleWinner(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "tool.lock")

	if err := os.WriteFile(lockPath, []byte("pid=1\nowner=abandoned\n"), 0600); err != nil {
		t.Fatalf("failed to write stale lock: %v", err)
	}
	old := time.Now().Add(-2 * StaleLockThreshold)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatalf("failed to age lock: %v", err)
	}

	const waiters = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []*Lock
	)
	start := make(chan struct{})
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			l, err := Acquire(dir, "tool")
			if err != nil {
				if !errors.Is(err, ErrLockExists) {
					t.Errorf("Acquire() unexpected error = %v", err)
				}
				return
			}
			mu.Lock()
			winners = append(winners, l)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("got %d lock holders, want 1", len(winners))
	}

	owner, err := readOwner(lockPath)
	if err != nil {
		t.Fatalf("readOwner() error = %v", err)
	}
	if owner != winners[0].Owner() {
		t.Errorf("lock file owner = %q, want winner %q", owner, winners[0].Owner())
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("lock dir holds %v, want only tool.lock", names)
	}

	if err := winners[0].Release(); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestTakeOver_FreshLockIsRestored(t *testing.T) {
	dir := t.TempDir()

	held, err := Acquire(dir, "tool")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer held.Release()

	// A waiter that judged an earlier file stale now renames the fresh one
	if takeOver(held.Path(), "late-waiter") {
		t.Fatal("takeOver() = true for a fresh lock")
	}

	owner, err := readOwner(held.Path())
	if err != nil {
		t.Fatalf("lock not restored: %v", err)
	}
	if owner != held.Owner() {
		t.Errorf("restored owner = %q, want %q", owner, held.Owner())
	}
	if _, err := os.Stat(held.Path() + ".late-waiter.stale"); !os.IsNotExist(err) {
		t.Errorf("claimed file left behind (err = %v)", err)
	}
}

func TestRelease(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, "tool")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if _, err := os.Stat(l.Path()); !os.IsNotExist(err) {
		t.Error("lock file should be removed after Release")
	}

	// Releasing twice is harmless.
	if err := l.Release(); err != nil {
		t.Errorf("second Release failed: %v", err)
	}

	l2, err := Acquire(dir, "tool")
	if err != nil {
		t.Fatalf("Acquire after Release failed: %v", err)
	}
	l2.Release()
}

func TestRelease_TakenOver(t *testing.T) {
	dir := t.TempDir()

	l, err := Acquire(dir, "tool")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	// Another process decides the lock is stale and takes it over
	old := time.Now().Add(-2 * StaleLockThreshold)
	if err := os.Chtimes(l.Path(), old, old); err != nil {
		t.Fatalf("failed to age lock: %v", err)
	}
	other, err := Acquire(dir, "tool")
	if err != nil {
		t.Fatalf("takeover Acquire failed: %v", err)
	}
	if other.Owner() == l.Owner() {
		t.Fatal("owners should differ")
	}

	if err := l.Release(); !errors.Is(err, ErrLockLost) {
		t.Errorf("Release() error = %v, want ErrLockLost", err)
	}
	if _, err := os.Stat(other.Path()); err != nil {
		t.Errorf("new holder's lock was removed: %v", err)
	}

	if err := other.Release(); err != nil {
		t.Errorf("new holder Release failed: %v", err)
	}
}

func TestWait(t *testing.T) {
	t.Run("acquires after holder releases", func(t *testing.T) {
		dir := t.TempDir()

		held, err := Acquire(dir, "tool")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}

		go func() {
			time.Sleep(30 * time.Millisecond)
			held.Release()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		l, err := Wait(ctx, dir, "tool", 5*time.Millisecond)
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		l.Release()
	})

	t.Run("respects context timeout", func(t *testing.T) {
		dir := t.TempDir()

		held, err := Acquire(dir, "tool")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		defer held.Release()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err = Wait(ctx, dir, "tool", 5*time.Millisecond)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}
