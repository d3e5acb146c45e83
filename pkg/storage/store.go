package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pixperk/sharelock/pkg/types"
)

// operations available inside one store transaction
// records beyond the current one only exist after a cross-process race,
// Current always resolves them with "most recent wins"
type Tx interface {
	// record with the greatest AcquiredAt (ties: greatest Seq), nil if none
	Current() (*types.Lock, error)
	// every record in the store, in no particular order
	All() ([]*types.Lock, error)
	// persists a new record, assigning its Seq
	Insert(l *types.Lock) error
	// sets LastHeartbeat of record id, no-op if the record is gone
	UpdateHeartbeat(id string, ts time.Time) error
	// removes record id, no-op if the record is gone
	Delete(id string) error
}

// durable home of the lock record
// single-operation methods each run in their own transaction; Update and
// View run fn atomically, which is what the manager uses for acquire
type Store interface {
	ReadCurrent(ctx context.Context) (*types.Lock, error)
	Insert(ctx context.Context, l *types.Lock) error
	UpdateHeartbeat(ctx context.Context, id string, ts time.Time) error
	Delete(ctx context.Context, id string) error

	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}

// picks the current record out of a set
func currentOf(locks []*types.Lock) *types.Lock {
	var cur *types.Lock
	for _, l := range locks {
		if l.NewerThan(cur) {
			cur = l
		}
	}
	return cur
}

var errTxNotWritable = errors.New("transaction not writable")
