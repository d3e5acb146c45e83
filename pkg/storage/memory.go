package storage

import (
	"context"
	"sync"
	"time"

	"github.com/pixperk/sharelock/pkg/types"
)

// in-process store, used by tests and by hosts that run without a share
// Update holds the mutex for the whole callback, giving the same
// all-or-nothing view a bbolt write transaction gives
type MemoryStorage struct {
	mu      sync.Mutex
	locks   map[string]*types.Lock
	nextSeq uint64
	failErr error //injected I/O failure
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		locks: make(map[string]*types.Lock),
	}
}

// makes every following operation fail with a store error wrapping err,
// nil restores normal operation
func (m *MemoryStorage) SetUnavailable(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// number of records currently stored, including race leftovers
func (m *MemoryStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *MemoryStorage) run(ctx context.Context, op string, writable bool, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return &types.StoreError{Op: op, Err: m.failErr}
	}

	//stage writes on a copy so a failing fn leaves nothing behind
	tx := &memoryTx{
		locks:    make(map[string]*types.Lock, len(m.locks)),
		nextSeq:  m.nextSeq,
		writable: writable,
	}
	for id, l := range m.locks {
		cp := *l
		tx.locks[id] = &cp
	}

	if err := fn(tx); err != nil {
		return err
	}

	if writable {
		m.locks = tx.locks
		m.nextSeq = tx.nextSeq
	}
	return nil
}

func (m *MemoryStorage) Update(ctx context.Context, fn func(tx Tx) error) error {
	return m.run(ctx, "update", true, fn)
}

func (m *MemoryStorage) View(ctx context.Context, fn func(tx Tx) error) error {
	return m.run(ctx, "view", false, fn)
}

func (m *MemoryStorage) ReadCurrent(ctx context.Context) (*types.Lock, error) {
	var cur *types.Lock
	err := m.View(ctx, func(tx Tx) error {
		var err error
		cur, err = tx.Current()
		return err
	})
	return cur, err
}

func (m *MemoryStorage) Insert(ctx context.Context, l *types.Lock) error {
	return m.Update(ctx, func(tx Tx) error { return tx.Insert(l) })
}

func (m *MemoryStorage) UpdateHeartbeat(ctx context.Context, id string, ts time.Time) error {
	return m.Update(ctx, func(tx Tx) error { return tx.UpdateHeartbeat(id, ts) })
}

func (m *MemoryStorage) Delete(ctx context.Context, id string) error {
	return m.Update(ctx, func(tx Tx) error { return tx.Delete(id) })
}

func (m *MemoryStorage) Close() error { return nil }

type memoryTx struct {
	locks    map[string]*types.Lock
	nextSeq  uint64
	writable bool
}

func (t *memoryTx) All() ([]*types.Lock, error) {
	locks := make([]*types.Lock, 0, len(t.locks))
	for _, l := range t.locks {
		cp := *l
		locks = append(locks, &cp)
	}
	return locks, nil
}

func (t *memoryTx) Current() (*types.Lock, error) {
	locks, _ := t.All()
	return currentOf(locks), nil
}

func (t *memoryTx) Insert(l *types.Lock) error {
	if !t.writable {
		return errReadOnlyTx
	}
	t.nextSeq++
	l.Seq = t.nextSeq
	cp := *l
	t.locks[l.ID] = &cp
	return nil
}

func (t *memoryTx) UpdateHeartbeat(id string, ts time.Time) error {
	if !t.writable {
		return errReadOnlyTx
	}
	if l, ok := t.locks[id]; ok {
		l.LastHeartbeat = ts.UTC()
	}
	return nil
}

func (t *memoryTx) Delete(id string) error {
	if !t.writable {
		return errReadOnlyTx
	}
	delete(t.locks, id)
	return nil
}

var errReadOnlyTx = &types.StoreError{Op: "write", Err: errTxNotWritable}
