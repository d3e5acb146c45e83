package client

import (
	"context"
	"errors"
	"sync"

	"github.com/pixperk/sharelock/pkg/heartbeat"
	"github.com/pixperk/sharelock/pkg/manager"
	"github.com/pixperk/sharelock/pkg/types"
)

type Lock struct {
	client *Client
	handle *manager.Handle
	sched  *heartbeat.Scheduler

	mu       sync.Mutex
	released bool
}

func (l *Lock) Handle() *manager.Handle { return l.handle }

func (l *Lock) Reclaimed() bool { return l.handle.Reclaimed() }

// receives a *types.LockLostError if the lock is lost while held
// the host must warn the user and stop writing
func (l *Lock) Lost() <-chan error {
	return l.sched.Lost()
}

// stops heartbeating, then deletes the record
// the scheduler is fully stopped before the delete so no late heartbeat
// can race it; a failure (already reclaimed, share down) is returned
// for the caller to log, it must not crash the host
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sched.Stop()
	if l.released {
		return nil
	}

	err := l.client.mgr.Release(ctx, l.client.host, l.client.pid)
	//NotOwner means the record is already gone, a store failure can be retried
	if err != nil && !errors.Is(err, types.ErrNotOwner) {
		return err
	}
	l.released = true
	l.client.forget(l)
	return err
}
