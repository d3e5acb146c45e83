package fsm

import (
	"fmt"
	tm "time"

	"github.com/google/uuid"
	"github.com/pixperk/sharelock/pkg/storage"
	"github.com/pixperk/sharelock/pkg/types"
)

// decides acquire/heartbeat/release against the records visible in one
// store transaction
// critical :
// - at most one live record may exist after any acquire it commits
// - only (host, pid) of the current record may refresh or release it
// - last_heartbeat never moves backwards
type FSM struct {
	staleAfter tm.Duration //heartbeat silence after which a record is STALE
	newID      func() string
}

func NewFSM(staleAfter tm.Duration) *FSM {
	return &FSM{
		staleAfter: staleAfter,
		newID:      uuid.NewString,
	}
}

func (f *FSM) StaleAfter() tm.Duration { return f.staleAfter }

// applies a command to the records in tx at instant now
func (f *FSM) Apply(tx storage.Tx, cmd types.Command, now tm.Time) (any, error) {
	switch c := cmd.(type) {
	case types.AcquireCmd:
		return f.applyAcquire(tx, c, now)
	case types.HeartbeatCmd:
		return f.applyHeartbeat(tx, c, now)
	case types.ReleaseCmd:
		return f.applyRelease(tx, c)
	default:
		return nil, fmt.Errorf("unknown command type: %T", cmd)
	}
}

// how an acquire came to succeed
type Outcome int

const (
	OutcomeAcquired  Outcome = iota + 1 //UNLOCKED -> HELD
	OutcomeReclaimed                    //STALE -> HELD, previous record deleted
	OutcomeReentered                    //caller already held the live record
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAcquired:
		return "acquired"
	case OutcomeReclaimed:
		return "reclaimed"
	case OutcomeReentered:
		return "reentered"
	default:
		return "unknown"
	}
}

// returned when the lock is acquired
type AcquireResponse struct {
	Lock     types.Lock
	Outcome  Outcome
	Previous *types.LockInfo //stale holder that was reclaimed
}

func (f *FSM) applyAcquire(tx storage.Tx, cmd types.AcquireCmd, now tm.Time) (any, error) {
	if err := types.ValidateCredential(cmd.Host, cmd.PID); err != nil {
		return nil, err
	}

	cur, err := tx.Current()
	if err != nil {
		return nil, err
	}

	switch types.StateOf(cur, now, f.staleAfter) {
	case types.StateHeld:
		//held by the caller, allow re-acquisition (idempotent)
		if cur.OwnedBy(cmd.Host, cmd.PID) {
			hb := latest(cur.LastHeartbeat, now)
			if err := tx.UpdateHeartbeat(cur.ID, hb); err != nil {
				return nil, err
			}
			cur.LastHeartbeat = hb
			return AcquireResponse{Lock: *cur, Outcome: OutcomeReentered}, nil
		}
		//held by a different live holder, cannot acquire
		return nil, &types.LockHeldError{Holder: cur.Info(now)}

	case types.StateStale:
		prev := cur.Info(now)
		//sweep every record, race leftovers included
		if err := f.deleteAll(tx); err != nil {
			return nil, err
		}
		lock, err := f.insert(tx, cmd, now)
		if err != nil {
			return nil, err
		}
		return AcquireResponse{Lock: *lock, Outcome: OutcomeReclaimed, Previous: &prev}, nil

	default:
		lock, err := f.insert(tx, cmd, now)
		if err != nil {
			return nil, err
		}
		return AcquireResponse{Lock: *lock, Outcome: OutcomeAcquired}, nil
	}
}

func (f *FSM) insert(tx storage.Tx, cmd types.AcquireCmd, now tm.Time) (*types.Lock, error) {
	lock := &types.Lock{
		ID:            f.newID(),
		HolderHost:    cmd.Host,
		HolderUser:    cmd.User,
		HolderPID:     cmd.PID,
		AcquiredAt:    now,
		LastHeartbeat: now,
		ClientVersion: cmd.Version,
	}
	if err := tx.Insert(lock); err != nil {
		return nil, err
	}
	return lock, nil
}

func (f *FSM) deleteAll(tx storage.Tx) error {
	all, err := tx.All()
	if err != nil {
		return err
	}
	for _, l := range all {
		if err := tx.Delete(l.ID); err != nil {
			return err
		}
	}
	return nil
}

// returned when a heartbeat is recorded
type HeartbeatResponse struct {
	LastHeartbeat tm.Time
}

// the ownership check is against the current record only
// a record that is stale but not yet reclaimed still belongs to its holder,
// a late heartbeat revives it
func (f *FSM) applyHeartbeat(tx storage.Tx, cmd types.HeartbeatCmd, now tm.Time) (any, error) {
	cur, err := f.owned(tx, cmd.Host, cmd.PID)
	if err != nil {
		return nil, err
	}

	hb := latest(cur.LastHeartbeat, now)
	if err := tx.UpdateHeartbeat(cur.ID, hb); err != nil {
		return nil, err
	}

	return HeartbeatResponse{LastHeartbeat: hb}, nil
}

// returned when the lock is released
type ReleaseResponse struct {
	Released bool
	Lock     types.Lock
}

// the owner's release also sweeps records left by a lost acquire race,
// otherwise the loser's record would become current and read as HELD
func (f *FSM) applyRelease(tx storage.Tx, cmd types.ReleaseCmd) (any, error) {
	cur, err := f.owned(tx, cmd.Host, cmd.PID)
	if err != nil {
		return nil, err
	}

	if err := f.deleteAll(tx); err != nil {
		return nil, err
	}

	return ReleaseResponse{Released: true, Lock: *cur}, nil
}

// current record if it belongs to (host, pid), ErrNotOwner otherwise
func (f *FSM) owned(tx storage.Tx, host string, pid int) (*types.Lock, error) {
	if err := types.ValidateCredential(host, pid); err != nil {
		return nil, err
	}

	cur, err := tx.Current()
	if err != nil {
		return nil, err
	}
	if cur == nil || !cur.OwnedBy(host, pid) {
		return nil, types.ErrNotOwner
	}
	return cur, nil
}

// returns the public view of the current record if it is HELD
func (f *FSM) Active(tx storage.Tx, now tm.Time) (*types.LockInfo, error) {
	cur, err := tx.Current()
	if err != nil {
		return nil, err
	}
	if types.StateOf(cur, now, f.staleAfter) != types.StateHeld {
		return nil, nil
	}
	info := cur.Info(now)
	return &info, nil
}

// state of the lock as seen in tx
func (f *FSM) State(tx storage.Tx, now tm.Time) (types.State, error) {
	cur, err := tx.Current()
	if err != nil {
		return types.StateUnlocked, err
	}
	return types.StateOf(cur, now, f.staleAfter), nil
}

func latest(a, b tm.Time) tm.Time {
	if b.After(a) {
		return b
	}
	return a
}
