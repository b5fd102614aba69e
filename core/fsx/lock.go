package fsx

import (
	"fmt"
	"os"
	"time"
)

// LockPolicy bounds how long a writer waits for a sibling ".lock" file and when
// an abandoned one may be reclaimed.
type LockPolicy struct {
	Timeout    time.Duration
	Retry      time.Duration
	StaleAfter time.Duration
}

var DefaultLockPolicy = LockPolicy{
	Timeout:    30 * time.Second,
	Retry:      10 * time.Millisecond,
	StaleAfter: 2 * time.Minute,
}

func (p LockPolicy) withDefaults() LockPolicy {
	if p.Timeout <= 0 {
		p.Timeout = DefaultLockPolicy.Timeout
	}
	if p.Retry <= 0 {
		p.Retry = DefaultLockPolicy.Retry
	}
	if p.StaleAfter <= 0 {
		p.StaleAfter = DefaultLockPolicy.StaleAfter
	}
	return p
}

// WithLock runs fn while holding path+".lock". The lock is an O_EXCL file so it
// also serializes writers in other processes.
func WithLock(path string, policy LockPolicy, fn func() error) error {
	policy = policy.withDefaults()
	lockPath := path + ".lock"
	deadline := time.Now().Add(policy.Timeout)
	for {
		// #nosec G304 -- lock path is derived from a validated target path.
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = lockFile.Close()
			defer func() {
				_ = os.Remove(lockPath)
			}()
			return fn()
		}
		if !isLockContention(err, lockPath) {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if isStaleLock(lockPath, policy.StaleAfter, time.Now().UTC()) {
			_ = os.Remove(lockPath)
			continue
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("lock timeout after %s: %s", policy.Timeout, lockPath)
		}
		time.Sleep(policy.Retry)
	}
}

func isLockContention(acquireErr error, lockPath string) bool {
	if os.IsExist(acquireErr) {
		return true
	}
	if !os.IsPermission(acquireErr) {
		return false
	}
	_, statErr := os.Stat(lockPath)
	return statErr == nil
}

func isStaleLock(lockPath string, staleAfter time.Duration, now time.Time) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	return now.Sub(info.ModTime().UTC()) > staleAfter
}
