package types

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Store errors
	ErrStoreUnavailable = errors.New("lock store unavailable")

	// Lock errors
	ErrLockHeld          = errors.New("lock is already held by another client")
	ErrNotOwner          = errors.New("caller is not the lock owner")
	ErrLockLost          = errors.New("lock lost")
	ErrInvalidCredential = errors.New("invalid ownership credential")

	// Config errors
	ErrInvalidConfig = errors.New("invalid lock configuration")
)

// I/O failure talking to the shared storage
// never retried by the manager, the caller decides what a failed write means
type StoreError struct {
	Op   string
	Path string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("lock store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("lock store %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

// acquire attempted while another live holder exists
type LockHeldError struct {
	Holder LockInfo
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("lock is held by %s (pid %d) since %s, last heartbeat %s ago",
		e.Holder.Holder(),
		e.Holder.PID,
		e.Holder.AcquiredAt.Local().Format("2006-01-02 15:04:05"),
		e.Holder.HeartbeatAge.Truncate(time.Second))
}

func (e *LockHeldError) Is(target error) bool { return target == ErrLockHeld }

// reports that the holder no longer owns the lock
type LockLostError struct {
	Host string
	PID  int
	Err  error //ErrNotOwner or the store error that outlived the staleness window
}

func (e *LockLostError) Error() string {
	return fmt.Sprintf("lock lost by %s (pid %d): %v", e.Host, e.PID, e.Err)
}

func (e *LockLostError) Unwrap() error { return e.Err }

func (e *LockLostError) Is(target error) bool { return target == ErrLockLost }
