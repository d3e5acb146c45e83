package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pixperk/sharelock/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var locksBucket = []byte("sharelock_locks")

const defaultIOTimeout = 5 * time.Second

// BoltDBStorage keeps lock records in a bbolt file on the shared drive
// the file is opened per operation and closed right after, so no client
// keeps bbolt's file lock for longer than one transaction and the other
// desktop processes can open the same file in between
type BoltDBStorage struct {
	path      string
	ioTimeout time.Duration //how long to wait for the file before giving up
	fileMode  os.FileMode
}

type BoltOption func(*BoltDBStorage)

// bounds how long an operation waits for the database file
func WithIOTimeout(d time.Duration) BoltOption {
	return func(b *BoltDBStorage) {
		if d > 0 {
			b.ioTimeout = d
		}
	}
}

func WithFileMode(mode os.FileMode) BoltOption {
	return func(b *BoltDBStorage) {
		b.fileMode = mode
	}
}

func NewBoltDBStorage(path string, opts ...BoltOption) (*BoltDBStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt storage: empty database path")
	}

	b := &BoltDBStorage{
		path:      path,
		ioTimeout: defaultIOTimeout,
		fileMode:  0666, //every desktop user on the share writes this file
	}
	for _, opt := range opts {
		opt(b)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, b.storeErr("mkdir", err)
	}

	//create the bucket up front so read-only views find it
	if err := b.Update(context.Background(), func(Tx) error { return nil }); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *BoltDBStorage) Path() string { return b.path }

func (b *BoltDBStorage) open(ctx context.Context, readOnly bool) (*bolt.DB, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := b.ioTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, b.storeErr("open", context.DeadlineExceeded)
	}

	db, err := bolt.Open(b.path, b.fileMode, &bolt.Options{
		Timeout:  timeout,
		ReadOnly: readOnly,
	})
	if err != nil {
		return nil, b.storeErr("open", err)
	}
	return db, nil
}

func (b *BoltDBStorage) storeErr(op string, err error) error {
	return &types.StoreError{Op: op, Path: b.path, Err: err}
}

func (b *BoltDBStorage) Update(ctx context.Context, fn func(tx Tx) error) error {
	db, err := b.open(ctx, false)
	if err != nil {
		return err
	}
	defer db.Close()

	var fnErr error
	err = db.Update(func(btx *bolt.Tx) error {
		bucket, err := btx.CreateBucketIfNotExists(locksBucket)
		if err != nil {
			return b.storeErr("create bucket", err)
		}
		fnErr = fn(&boltTx{bucket: bucket})
		return fnErr
	})
	return b.wrapTxErr("update", err, fnErr)
}

func (b *BoltDBStorage) View(ctx context.Context, fn func(tx Tx) error) error {
	//read-only opens take a shared file lock and do not block each other
	db, err := b.open(ctx, true)
	if err != nil {
		return err
	}
	defer db.Close()

	var fnErr error
	err = db.View(func(btx *bolt.Tx) error {
		fnErr = fn(&boltTx{bucket: btx.Bucket(locksBucket)})
		return fnErr
	})
	return b.wrapTxErr("view", err, fnErr)
}

// errors coming out of bbolt itself are I/O failures, whether raised inside
// fn through a boltTx or by begin/commit (write, truncate, fsync, mmap).
// errors produced by fn (protocol decisions, already-typed store errors)
// pass through untouched
func (b *BoltDBStorage) wrapTxErr(op string, err, fnErr error) error {
	if err == nil {
		return nil
	}

	//fn never ran or returned nil, so bbolt failed on its own
	var storeErr *types.StoreError
	if fnErr == nil {
		if errors.As(err, &storeErr) {
			return err
		}
		return b.storeErr(op, err)
	}

	var txErr *boltTxError
	if errors.As(err, &txErr) {
		return b.storeErr(op, txErr.err)
	}
	return err
}

func (b *BoltDBStorage) ReadCurrent(ctx context.Context) (*types.Lock, error) {
	var cur *types.Lock
	err := b.View(ctx, func(tx Tx) error {
		var err error
		cur, err = tx.Current()
		return err
	})
	return cur, err
}

func (b *BoltDBStorage) Insert(ctx context.Context, l *types.Lock) error {
	return b.Update(ctx, func(tx Tx) error { return tx.Insert(l) })
}

func (b *BoltDBStorage) UpdateHeartbeat(ctx context.Context, id string, ts time.Time) error {
	return b.Update(ctx, func(tx Tx) error { return tx.UpdateHeartbeat(id, ts) })
}

func (b *BoltDBStorage) Delete(ctx context.Context, id string) error {
	return b.Update(ctx, func(tx Tx) error { return tx.Delete(id) })
}

// nothing stays open between operations
func (b *BoltDBStorage) Close() error { return nil }

// marks an error raised by bbolt inside a transaction
type boltTxError struct{ err error }

func (e *boltTxError) Error() string { return e.err.Error() }
func (e *boltTxError) Unwrap() error { return e.err }

type boltTx struct {
	bucket *bolt.Bucket //nil in a view over a file that was never written
}

func (t *boltTx) All() ([]*types.Lock, error) {
	if t.bucket == nil {
		return nil, nil
	}

	var locks []*types.Lock
	err := t.bucket.ForEach(func(k, v []byte) error {
		l, err := types.UnmarshalLock(v)
		if err != nil {
			return &boltTxError{err: fmt.Errorf("record %q: %w", k, err)}
		}
		locks = append(locks, l)
		return nil
	})
	return locks, err
}

func (t *boltTx) Current() (*types.Lock, error) {
	locks, err := t.All()
	if err != nil {
		return nil, err
	}
	return currentOf(locks), nil
}

func (t *boltTx) Insert(l *types.Lock) error {
	if t.bucket == nil {
		return &boltTxError{err: bolt.ErrTxNotWritable}
	}

	seq, err := t.bucket.NextSequence()
	if err != nil {
		return &boltTxError{err: err}
	}
	l.Seq = seq

	if err := t.bucket.Put([]byte(l.ID), types.MarshalLock(l)); err != nil {
		return &boltTxError{err: err}
	}
	return nil
}

func (t *boltTx) UpdateHeartbeat(id string, ts time.Time) error {
	if t.bucket == nil {
		return &boltTxError{err: bolt.ErrTxNotWritable}
	}

	v := t.bucket.Get([]byte(id))
	if v == nil {
		return nil
	}

	l, err := types.UnmarshalLock(v)
	if err != nil {
		return &boltTxError{err: fmt.Errorf("record %q: %w", id, err)}
	}
	l.LastHeartbeat = ts.UTC()

	if err := t.bucket.Put([]byte(id), types.MarshalLock(l)); err != nil {
		return &boltTxError{err: err}
	}
	return nil
}

func (t *boltTx) Delete(id string) error {
	if t.bucket == nil {
		return &boltTxError{err: bolt.ErrTxNotWritable}
	}
	if err := t.bucket.Delete([]byte(id)); err != nil {
		return &boltTxError{err: err}
	}
	return nil
}
