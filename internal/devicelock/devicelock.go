// Package devicelock serializes access to USB audio devices across
// concurrent soundcheck processes. Analyzer and volume-control commands
// drive real hardware, so two runs against the same device must never
// overlap. Locks are flock-based files, one per device, kept under the
// state directory.
package devicelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrBusy is returned by TryAcquire-style checks when another process
// holds the device.
var ErrBusy = errors.New("device is in use by another process")

// retryInterval is how often a blocked Acquire re-attempts the flock.
const retryInterval = 250 * time.Millisecond

// Lock represents exclusive ownership of one audio device.
type Lock struct {
	flock  *flock.Flock
	device string
	path   string
}

// New creates a lock handle for the given device. The lock file lives at
// <dir>/<device>.lock and is created on first acquisition.
func New(dir, device string) *Lock {
	path := filepath.Join(dir, device+".lock")
	return &Lock{
		flock:  flock.New(path),
		device: device,
		path:   path,
	}
}

// Device returns the device name this lock guards.
func (l *Lock) Device() string {
	return l.device
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Acquire blocks until the device lock is held or ctx is done.
func (l *Lock) Acquire(ctx context.Context) error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	acquired, err := l.flock.TryLockContext(ctx, retryInterval)
	if err != nil {
		return fmt.Errorf("failed to acquire lock for device %s: %w", l.device, err)
	}
	if !acquired {
		return fmt.Errorf("failed to acquire lock for device %s: %w", l.device, ctx.Err())
	}
	return nil
}

// TryAcquire attempts to take the device lock without blocking.
// Returns ErrBusy if another process holds it.
func (l *Lock) TryAcquire() error {
	if err := l.ensureDir(); err != nil {
		return err
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to try lock for device %s: %w", l.device, err)
	}
	if !acquired {
		return fmt.Errorf("device %s: %w", l.device, ErrBusy)
	}
	return nil
}

// Release gives the device back.
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock for device %s: %w", l.device, err)
	}
	return nil
}

func (l *Lock) ensureDir() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create lock directory %s: %w", dir, err)
	}
	return nil
}

// AtomicWrite writes data to a file using a temp file and rename, so
// readers never observe a partial transcript archive even if the writer
// is interrupted mid-run.
//
// The temp file is created in the target's directory so the final rename
// stays on one filesystem, where rename is atomic. On failure the
// original file, if any, is left untouched.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tempPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	// Rename succeeded; don't let the deferred cleanup remove the target.
	tempFile = nil

	return nil
}
