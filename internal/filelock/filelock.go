// Package filelock provides the "no torn JSON file" contract the credential
// store relies on: atomic tmp-file-plus-rename writes, guarded for the
// duration of the write critical section by a best-effort flock(2) advisory
// lock. No third-party advisory-lock library appears anywhere in the corpus
// this module draws from, so this one concern is built directly on syscall/os.
package filelock

import (
	"fmt"
	"os"
	"path/filepath"
)

// Lock holds an open file descriptor locked for the duration of a write or
// read critical section. Release must be called exactly once.
type Lock struct {
	f *os.File
}

// Acquire opens path (creating it if absent) and takes an advisory lock on
// it. exclusive selects a write lock (flock LOCK_EX) vs a read lock
// (LOCK_SH); on platforms without flock support the lock degrades to a no-op
// and only the open file descriptor is held.
func Acquire(path string, exclusive bool) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("filelock: prepare directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("filelock: open %s: %w", path, err)
	}
	if err := lockFD(f, exclusive); err != nil {
		f.Close()
		return nil, fmt.Errorf("filelock: lock %s: %w", path, err)
	}
	return &Lock{f: f}, nil
}

// File returns the locked, open file descriptor for direct reads.
func (l *Lock) File() *os.File {
	return l.f
}

// Release unlocks and closes the held file descriptor.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	unlockFD(l.f)
	return l.f.Close()
}

// WriteAtomic writes data to path via a `.tmp` sibling, fsyncs it, and
// renames it over the target — the rename is atomic on the same filesystem
// so a reader never observes a partially written file. Callers that need to
// coordinate with concurrent writers in other processes should wrap this
// call with an exclusive Lock on path.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("filelock: prepare directory: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("filelock: open temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("filelock: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("filelock: fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("filelock: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("filelock: rename temp file: %w", err)
	}
	return nil
}

// WithExclusive acquires an exclusive lock on path, runs fn, and releases the
// lock regardless of fn's outcome.
func WithExclusive(path string, fn func() error) error {
	lock, err := Acquire(path, true)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn()
}
