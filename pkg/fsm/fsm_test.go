package fsm

import (
	"context"
	"testing"
	"time"

	"github.com/pixperk/sharelock/pkg/storage"
	"github.com/pixperk/sharelock/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const window = 15 * time.Minute

var t0 = time.Date(2026, 2, 2, 7, 30, 0, 0, time.UTC)

// applies cmd in its own write transaction
func apply(t *testing.T, s storage.Store, f *FSM, cmd types.Command, now time.Time) (any, error) {
	t.Helper()
	var result any
	err := s.Update(context.Background(), func(tx storage.Tx) error {
		var err error
		result, err = f.Apply(tx, cmd, now)
		return err
	})
	return result, err
}

// TestAcquireOnEmptyStore tests UNLOCKED -> HELD
func TestAcquireOnEmptyStore(t *testing.T) {
	s := storage.NewMemoryStorage()
	f := NewFSM(window)

	result, err := apply(t, s, f, types.AcquireCmd{Host: "pc-a", User: "ann", PID: 10, Version: "1.0"}, t0)
	require.NoError(t, err)

	resp, ok := result.(AcquireResponse)
	require.True(t, ok, "expected AcquireResponse")
	assert.Equal(t, OutcomeAcquired, resp.Outcome)
	assert.Nil(t, resp.Previous)
	assert.NotEmpty(t, resp.Lock.ID)
	assert.Equal(t, t0, resp.Lock.AcquiredAt)
	assert.Equal(t, t0, resp.Lock.LastHeartbeat)

	cur, err := s.ReadCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resp.Lock.ID, cur.ID)
	assert.Equal(t, "ann", cur.HolderUser)
	assert.Equal(t, "1.0", cur.ClientVersion)
}

// TestAcquireWhileHeld tests that a live lock refuses other holders without mutation
func TestAcquireWhileHeld(t *testing.T) {
	s := storage.NewMemoryStorage()
	f := NewFSM(window)

	first, err := apply(t, s, f, types.AcquireCmd{Host: "pc-a", PID: 10}, t0)
	require.NoError(t, err)

	_, err = apply(t, s, f, types.AcquireCmd{Host: "pc-b", PID: 20}, t0.Add(window-time.Second))
	require.ErrorIs(t, err, types.ErrLockHeld)

	var held *types.LockHeldError
	require.ErrorAs(t, err, &held)
	assert.Equal(t, "pc-a", held.Holder.Host)
	assert.Equal(t, t0, held.Holder.AcquiredAt)
	assert.Equal(t, window-time.Second, held.Holder.HeartbeatAge)

	cur, err := s.ReadCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.(AcquireResponse).Lock.ID, cur.ID)
	assert.Equal(t, t0, cur.LastHeartbeat, "refused acquire does not touch the record")
}

// TestReacquireBySameOwner tests idempotent ownership
func TestReacquireBySameOwner(t *testing.T) {
	s := storage.NewMemoryStorage()
	f := NewFSM(window)

	first, err := apply(t, s, f, types.AcquireCmd{Host: "pc-a", PID: 10}, t0)
	require.NoError(t, err)

	again, err := apply(t, s, f, types.AcquireCmd{Host: "pc-a", PID: 10}, t0.Add(time.Minute))
	require.NoError(t, err)

	resp := again.(AcquireResponse)
	assert.Equal(t, OutcomeReentered, resp.Outcome)
	assert.Equal(t, first.(AcquireResponse).Lock.ID, resp.Lock.ID)
	assert.Equal(t, t0.Add(time.Minute), resp.Lock.LastHeartbeat)
	assert.Equal(t, 1, s.Len())
}

// TestReclaimStaleLock tests STALE -> HELD
func TestReclaimStaleLock(t *testing.T) {
	s := storage.NewMemoryStorage()
	f := NewFSM(window)

	first, err := apply(t, s, f, types.AcquireCmd{Host: "pc-a", User: "ann", PID: 10}, t0)
	require.NoError(t, err)

	result, err := apply(t, s, f, types.AcquireCmd{Host: "pc-b", PID: 20}, t0.Add(window))
	require.NoError(t, err)

	resp := result.(AcquireResponse)
	assert.Equal(t, OutcomeReclaimed, resp.Outcome)
	require.NotNil(t, resp.Previous)
	assert.Equal(t, "pc-a", resp.Previous.Host)
	assert.Equal(t, "ann", resp.Previous.User)
	assert.Equal(t, window, resp.Previous.HeartbeatAge)
	assert.NotEqual(t, first.(AcquireResponse).Lock.ID, resp.Lock.ID)
	assert.Equal(t, 1, s.Len(), "stale record is deleted")
}

// TestReclaimSweepsRaceLeftovers tests that a reclaim removes every stale record
func TestReclaimSweepsRaceLeftovers(t *testing.T) {
	s := storage.NewMemoryStorage()
	f := NewFSM(window)
	ctx := context.Background()

	//two records left behind by a race
	require.NoError(t, s.Insert(ctx, &types.Lock{ID: "a", HolderHost: "pc-a", HolderPID: 1, AcquiredAt: t0, LastHeartbeat: t0}))
	require.NoError(t, s.Insert(ctx, &types.Lock{ID: "b", HolderHost: "pc-b", HolderPID: 2, AcquiredAt: t0, LastHeartbeat: t0}))

	_, err := apply(t, s, f, types.AcquireCmd{Host: "pc-c", PID: 3}, t0.Add(2*window))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
}

// TestHeartbeat tests refresh by the owner and refusal for anyone else
func TestHeartbeat(t *testing.T) {
	s := storage.NewMemoryStorage()
	f := NewFSM(window)

	_, err := apply(t, s, f, types.AcquireCmd{Host: "pc-a", PID: 10}, t0)
	require.NoError(t, err)

	result, err := apply(t, s, f, types.HeartbeatCmd{Host: "pc-a", PID: 10}, t0.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(30*time.Second), result.(HeartbeatResponse).LastHeartbeat)

	//same host, different process
	_, err = apply(t, s, f, types.HeartbeatCmd{Host: "pc-a", PID: 11}, t0.Add(time.Minute))
	assert.ErrorIs(t, err, types.ErrNotOwner)

	cur, err := s.ReadCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, t0.Add(30*time.Second), cur.LastHeartbeat, "foreign heartbeat does not mutate")
}

// TestHeartbeatNeverMovesBackwards tests last_heartbeat monotonicity
func TestHeartbeatNeverMovesBackwards(t *testing.T) {
	s := storage.NewMemoryStorage()
	f := NewFSM(window)

	_, err := apply(t, s, f, types.AcquireCmd{Host: "pc-a", PID: 10}, t0.Add(time.Minute))
	require.NoError(t, err)

	result, err := apply(t, s, f, types.HeartbeatCmd{Host: "pc-a", PID: 10}, t0)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Minute), result.(HeartbeatResponse).LastHeartbeat)
}

// TestHeartbeatWithoutLock tests NotOwner when no record exists
func TestHeartbeatWithoutLock(t *testing.T) {
	s := storage.NewMemoryStorage()
	f := NewFSM(window)

	_, err := apply(t, s, f, types.HeartbeatCmd{Host: "pc-a", PID: 10}, t0)
	assert.ErrorIs(t, err, types.ErrNotOwner)
}

// TestRelease tests owner-authenticated release
func TestRelease(t *testing.T) {
	s := storage.NewMemoryStorage()
	f := NewFSM(window)

	_, err := apply(t, s, f, types.AcquireCmd{Host: "pc-a", PID: 10}, t0)
	require.NoError(t, err)

	_, err = apply(t, s, f, types.ReleaseCmd{Host: "pc-b", PID: 10}, t0)
	assert.ErrorIs(t, err, types.ErrNotOwner)
	assert.Equal(t, 1, s.Len(), "foreign release leaves the record")

	result, err := apply(t, s, f, types.ReleaseCmd{Host: "pc-a", PID: 10}, t0)
	require.NoError(t, err)
	assert.True(t, result.(ReleaseResponse).Released)
	assert.Equal(t, 0, s.Len())

	_, err = apply(t, s, f, types.ReleaseCmd{Host: "pc-a", PID: 10}, t0)
	assert.ErrorIs(t, err, types.ErrNotOwner, "second release finds nothing to release")
}

// TestReleaseSweepsRaceLeftovers tests that the winner's release leaves no
// loser record behind to become current
func TestReleaseSweepsRaceLeftovers(t *testing.T) {
	s := storage.NewMemoryStorage()
	f := NewFSM(window)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, &types.Lock{ID: "a", HolderHost: "pc-a", HolderPID: 1, AcquiredAt: t0, LastHeartbeat: t0}))
	require.NoError(t, s.Insert(ctx, &types.Lock{ID: "b", HolderHost: "pc-b", HolderPID: 2, AcquiredAt: t0, LastHeartbeat: t0}))

	_, err := apply(t, s, f, types.ReleaseCmd{Host: "pc-a", PID: 1}, t0)
	assert.ErrorIs(t, err, types.ErrNotOwner, "the loser cannot release")
	assert.Equal(t, 2, s.Len())

	result, err := apply(t, s, f, types.ReleaseCmd{Host: "pc-b", PID: 2}, t0)
	require.NoError(t, err)
	assert.Equal(t, "b", result.(ReleaseResponse).Lock.ID)
	assert.Equal(t, 0, s.Len())
}

// TestInvalidCredential tests that empty hosts and non-positive pids are refused
func TestInvalidCredential(t *testing.T) {
	s := storage.NewMemoryStorage()
	f := NewFSM(window)

	_, err := apply(t, s, f, types.AcquireCmd{Host: "", PID: 10}, t0)
	assert.ErrorIs(t, err, types.ErrInvalidCredential)

	_, err = apply(t, s, f, types.ReleaseCmd{Host: "pc-a", PID: 0}, t0)
	assert.ErrorIs(t, err, types.ErrInvalidCredential)
}

// TestActiveAndState tests the read-only views
func TestActiveAndState(t *testing.T) {
	s := storage.NewMemoryStorage()
	f := NewFSM(window)
	ctx := context.Background()

	view := func(now time.Time) (*types.LockInfo, types.State) {
		var info *types.LockInfo
		var state types.State
		require.NoError(t, s.View(ctx, func(tx storage.Tx) error {
			var err error
			if info, err = f.Active(tx, now); err != nil {
				return err
			}
			state, err = f.State(tx, now)
			return err
		}))
		return info, state
	}

	info, state := view(t0)
	assert.Nil(t, info)
	assert.Equal(t, types.StateUnlocked, state)

	_, err := apply(t, s, f, types.AcquireCmd{Host: "pc-a", PID: 10}, t0)
	require.NoError(t, err)

	info, state = view(t0.Add(time.Minute))
	require.NotNil(t, info)
	assert.Equal(t, "pc-a", info.Host)
	assert.Equal(t, time.Minute, info.HeartbeatAge)
	assert.Equal(t, types.StateHeld, state)

	info, state = view(t0.Add(window))
	assert.Nil(t, info, "stale locks are not reported as active")
	assert.Equal(t, types.StateStale, state)
}

func TestUnknownCommand(t *testing.T) {
	s := storage.NewMemoryStorage()
	_, err := apply(t, s, NewFSM(window), nil, t0)
	assert.Error(t, err)
}
