// Package lock serializes installs across shim processes that share a cache.
//
// A lock is a file created with O_CREATE|O_EXCL. It records the holder's
// PID, the time it was taken and a random owner token. A lock file older
// than StaleLockThreshold is assumed abandoned and may be taken over. The
// takeover renames the stale file to a name unique to the new owner before
// creating a fresh lock, so two waiters cannot both remove it. Release
// checks the token and leaves a lock that now belongs to another process
// in place.
package lock

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// StaleLockThreshold is the maximum age of a lock before it's considered stale.
	StaleLockThreshold = 10 * time.Minute

	// DefaultPollInterval is how often Wait retries a held lock.
	DefaultPollInterval = 250 * time.Millisecond
)

var (
	ErrLockExists = errors.New("install lock exists: another install may be in progress")
	// ErrLockLost is returned by Release when the lock was taken over as
	// stale by another process.
	ErrLockLost = errors.New("install lock was taken over by another process")
)

// Lock represents a held install lock.
type Lock struct {
	path  string
	owner string
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Owner returns the token written into the lock file.
func (l *Lock) Owner() string {
	return l.owner
}

// Acquire attempts to take the named lock in dir without waiting.
// A lock older than StaleLockThreshold is taken over and creation retried once.
func Acquire(dir, name string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	l := &Lock{
		path:  filepath.Join(dir, name+".lock"),
		owner: uuid.NewString(),
	}

	err := l.create()
	if errors.Is(err, os.ErrExist) {
		if stale, _ := isLockStale(l.path); !stale || !takeOver(l.path, l.owner) {
			return nil, ErrLockExists
		}
		err = l.create()
		if errors.Is(err, os.ErrExist) {
			return nil, ErrLockExists
		}
	}
	if err != nil {
		return nil, err
	}

	return l, nil
}

func (l *Lock) create() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return err
		}
		return fmt.Errorf("create lock file: %w", err)
	}

	lockData := fmt.Sprintf("pid=%d\ntimestamp=%s\nowner=%s\n",
		os.Getpid(), time.Now().UTC().Format(time.RFC3339), l.owner)
	_, werr := file.WriteString(lockData)
	if werr == nil {
		werr = file.Sync()
	}
	cerr := file.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(l.path)
		return fmt.Errorf("write lock file: %w", werr)
	}
	return nil
}

// takeOver moves a stale lock at path out of the way. The rename claims
// whichever file is there at that moment, so a waiter that lost the race
// ends up holding the winner's fresh lock; it is linked back and takeOver
// reports false.
func takeOver(path, owner string) bool {
	claimed := path + "." + owner + ".stale"
	if err := os.Rename(path, claimed); err != nil {
		return false
	}
	defer os.Remove(claimed)

	if stale, _ := isLockStale(claimed); !stale {
		os.Link(claimed, path)
		return false
	}
	return true
}

// Wait acquires the named lock, polling while another process holds it,
// until the lock is taken or ctx is done.
func Wait(ctx context.Context, dir, name string, poll time.Duration) (*Lock, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	for {
		l, err := Acquire(dir, name)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, ErrLockExists) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for install lock %s: %w", name, ctx.Err())
		case <-time.After(poll):
		}
	}
}

// Release removes the lock file if it still belongs to l. Releasing an
// already released lock is a no-op.
func (l *Lock) Release() error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""

	current, err := readOwner(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read lock file: %w", err)
	}
	if current != owner {
		return ErrLockLost
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// readOwner returns the owner token recorded in a lock file.
func readOwner(lockPath string) (string, error) {
	file, err := os.Open(lockPath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if owner, ok := strings.CutPrefix(scanner.Text(), "owner="); ok {
			return owner, nil
		}
	}
	return "", scanner.Err()
}

// isLockStale checks if a lock file is older than the stale lock threshold.
func isLockStale(lockPath string) (bool, error) {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false, err
	}

	return time.Since(info.ModTime()) > StaleLockThreshold, nil
}
