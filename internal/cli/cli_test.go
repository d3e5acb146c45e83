package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/pixperk/sharelock/pkg/manager"
	"github.com/pixperk/sharelock/pkg/storage"
	"github.com/pixperk/sharelock/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runs the CLI with args and returns its stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	var out, errOut bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// a different desktop holding the lock on the same file
func holdElsewhere(t *testing.T, db string) {
	t.Helper()
	store, err := storage.NewBoltDBStorage(db)
	require.NoError(t, err)
	m, err := manager.New(store, manager.DefaultConfig())
	require.NoError(t, err)
	_, err = m.Acquire(context.Background(), manager.AcquireRequest{Host: "pc-office", User: "bob", PID: 4321})
	require.NoError(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "sharelock dev\n", out)
}

func TestStatusUnlocked(t *testing.T) {
	db := filepath.Join(t.TempDir(), "compliance.db")
	out, err := run(t, "status", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "State: UNLOCKED")
	assert.NotContains(t, out, "Holder:")
}

func TestStatusHeld(t *testing.T) {
	db := filepath.Join(t.TempDir(), "compliance.db")
	holdElsewhere(t, db)

	out, err := run(t, "status", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "State: HELD")
	assert.Contains(t, out, "Holder: bob@pc-office (pid 4321)")
}

func TestHoldForDuration(t *testing.T) {
	db := filepath.Join(t.TempDir(), "compliance.db")

	out, err := run(t, "hold", "--db", db, "--for", "50ms", "--user", "ann")
	require.NoError(t, err)
	assert.Contains(t, out, "Holding lock as")
	assert.Contains(t, out, "Lock released")

	out, err = run(t, "status", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "State: UNLOCKED")
}

func TestHoldWhileHeld(t *testing.T) {
	db := filepath.Join(t.TempDir(), "compliance.db")
	holdElsewhere(t, db)

	out, err := run(t, "hold", "--db", db, "--for", "50ms")
	require.ErrorIs(t, err, types.ErrLockHeld)
	assert.Equal(t, ExitLockHeld, ExitCode(err))
	assert.Contains(t, out, "bob@pc-office")
}

func TestReleaseRequiresOwner(t *testing.T) {
	db := filepath.Join(t.TempDir(), "compliance.db")
	holdElsewhere(t, db)

	_, err := run(t, "release", "--db", db, "--host", "pc-office", "--pid", "1")
	require.ErrorIs(t, err, types.ErrNotOwner)
	assert.Equal(t, ExitNotOwner, ExitCode(err))

	out, err := run(t, "release", "--db", db, "--host", "pc-office", "--pid", "4321")
	require.NoError(t, err)
	assert.Contains(t, out, "Released lock of pc-office (pid 4321)")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	db := filepath.Join(t.TempDir(), "compliance.db")
	_, err := run(t, "status", "--db", db, "--heartbeat-interval", "1m", "--stale-after", "2m")
	assert.Error(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitLockHeld, ExitCode(fmt.Errorf("acquire: %w", &types.LockHeldError{})))
	assert.Equal(t, ExitStoreUnavailable, ExitCode(&types.StoreError{Op: "open", Err: errors.New("x")}))
	assert.Equal(t, ExitNotOwner, ExitCode(types.ErrNotOwner))
	assert.Equal(t, ExitLockLost, ExitCode(&types.LockLostError{Err: types.ErrNotOwner}))
	assert.Equal(t, ExitError, ExitCode(errors.New("x")))
}
