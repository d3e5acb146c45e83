package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pixperk/sharelock/pkg/fsm"
	"github.com/pixperk/sharelock/pkg/logging"
	"github.com/pixperk/sharelock/pkg/metrics"
	"github.com/pixperk/sharelock/pkg/storage"
	lktime "github.com/pixperk/sharelock/pkg/time"
	"github.com/pixperk/sharelock/pkg/types"
)

// wraps the lock store with the protocol fsm and provides a clean api
// constructed once at startup and handed to the scheduler and the
// shutdown path, never looked up globally
type Manager struct {
	store  storage.Store
	fsm    *fsm.FSM
	cfg    Config
	clock  lktime.Clock
	logger *slog.Logger
}

type Option func(*Manager)

func WithClock(c lktime.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func New(store storage.Store, cfg Config, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", types.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		store:  store,
		fsm:    fsm.NewFSM(cfg.StaleAfter),
		cfg:    cfg,
		clock:  lktime.NewClock(),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) Config() Config { return m.cfg }

// applies a command in one store write transaction
// "now" is read inside the transaction, so every staleness check of the
// command agrees on one instant taken after the file was opened
func (m *Manager) apply(ctx context.Context, cmd types.Command) (any, error) {
	start := time.Now()
	defer func() {
		metrics.StoreOpDuration.WithLabelValues(cmd.Type().String()).Observe(time.Since(start).Seconds())
	}()

	var result any
	err := m.store.Update(ctx, func(tx storage.Tx) error {
		var err error
		result, err = m.fsm.Apply(tx, cmd, m.clock.Now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type AcquireRequest struct {
	Host    string
	User    string //optional
	PID     int
	Version string //optional
}

// proof of a successful acquire
type Handle struct {
	Lock     types.Lock
	Outcome  fsm.Outcome
	Previous *types.LockInfo //the stale holder, set when Outcome is OutcomeReclaimed
}

func (h *Handle) Reclaimed() bool { return h.Outcome == fsm.OutcomeReclaimed }

func (h *Handle) Host() string { return h.Lock.HolderHost }

func (h *Handle) PID() int { return h.Lock.HolderPID }

// acquires the lock in a single conditional write
// fails with ErrLockHeld (as *types.LockHeldError) while another live holder
// exists and with ErrStoreUnavailable on I/O failure; neither is retried
func (m *Manager) Acquire(ctx context.Context, req AcquireRequest) (*Handle, error) {
	result, err := m.apply(ctx, types.AcquireCmd{
		Host:    req.Host,
		User:    req.User,
		PID:     req.PID,
		Version: req.Version,
	})
	if err != nil {
		metrics.AcquireTotal.WithLabelValues(metrics.Status(err)).Inc()
		m.logAcquireFailure(req, err)
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	resp := result.(fsm.AcquireResponse)
	metrics.AcquireTotal.WithLabelValues(resp.Outcome.String()).Inc()
	metrics.LockHeld.Set(1)

	log := m.logger.With("lock_id", resp.Lock.ID, "host", req.Host, "pid", req.PID)
	switch resp.Outcome {
	case fsm.OutcomeReclaimed:
		log.Warn("reclaimed stale lock",
			"previous_holder", resp.Previous.Holder(),
			"previous_pid", resp.Previous.PID,
			"previous_acquired_at", resp.Previous.AcquiredAt,
			"silent_for", resp.Previous.HeartbeatAge)
	case fsm.OutcomeReentered:
		log.Info("lock re-entered by its holder")
	default:
		log.Info("lock acquired")
	}

	return &Handle{
		Lock:     resp.Lock,
		Outcome:  resp.Outcome,
		Previous: resp.Previous,
	}, nil
}

func (m *Manager) logAcquireFailure(req AcquireRequest, err error) {
	var held *types.LockHeldError
	if errors.As(err, &held) {
		m.logger.Info("lock held by another client",
			"host", req.Host,
			"holder", held.Holder.Holder(),
			"holder_pid", held.Holder.PID,
			"acquired_at", held.Holder.AcquiredAt,
			"heartbeat_age", held.Holder.HeartbeatAge)
		return
	}
	m.logger.Error("acquire failed", "host", req.Host, "pid", req.PID, "error", err)
}

// records a liveness signal for the lock held by (host, pid)
// returns the stored last_heartbeat, ErrNotOwner if (host, pid) no longer
// holds the current record
func (m *Manager) Heartbeat(ctx context.Context, host string, pid int) (time.Time, error) {
	result, err := m.apply(ctx, types.HeartbeatCmd{Host: host, PID: pid})
	metrics.HeartbeatTotal.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		if errors.Is(err, types.ErrNotOwner) {
			metrics.LockHeld.Set(0)
		}
		return time.Time{}, fmt.Errorf("heartbeat: %w", err)
	}

	resp := result.(fsm.HeartbeatResponse)
	m.logger.Debug("heartbeat recorded", "host", host, "pid", pid, "last_heartbeat", resp.LastHeartbeat)
	return resp.LastHeartbeat, nil
}

// deletes the lock held by (host, pid)
// ErrNotOwner if the record is gone or belongs to someone else, the
// record is left untouched in that case
func (m *Manager) Release(ctx context.Context, host string, pid int) error {
	result, err := m.apply(ctx, types.ReleaseCmd{Host: host, PID: pid})
	metrics.ReleaseTotal.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		if errors.Is(err, types.ErrNotOwner) {
			metrics.LockHeld.Set(0)
		}
		m.logger.Warn("release failed", "host", host, "pid", pid, "error", err)
		return fmt.Errorf("release lock: %w", err)
	}

	resp := result.(fsm.ReleaseResponse)
	metrics.LockHeld.Set(0)
	m.logger.Info("lock released",
		"lock_id", resp.Lock.ID,
		"host", host,
		"pid", pid,
		"held_for", m.clock.Now().Sub(resp.Lock.AcquiredAt))
	return nil
}

// who holds the lock, for read-only diagnostics
// nil when the lock is UNLOCKED or STALE; never use it for ownership decisions
func (m *Manager) ActiveLock(ctx context.Context) (*types.LockInfo, error) {
	start := time.Now()
	defer func() {
		metrics.StoreOpDuration.WithLabelValues("active").Observe(time.Since(start).Seconds())
	}()

	var info *types.LockInfo
	err := m.store.View(ctx, func(tx storage.Tx) error {
		var err error
		info, err = m.fsm.Active(tx, m.clock.Now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("active lock: %w", err)
	}
	return info, nil
}

// UNLOCKED, HELD or STALE as seen right now
func (m *Manager) State(ctx context.Context) (types.State, error) {
	var state types.State
	err := m.store.View(ctx, func(tx storage.Tx) error {
		var err error
		state, err = m.fsm.State(tx, m.clock.Now())
		return err
	})
	if err != nil {
		return types.StateUnlocked, fmt.Errorf("lock state: %w", err)
	}
	return state, nil
}

// state and live holder read in the same transaction at the same instant,
// so the two always agree: info is non-nil exactly when state is HELD
func (m *Manager) Status(ctx context.Context) (types.State, *types.LockInfo, error) {
	var (
		state types.State
		info  *types.LockInfo
	)
	err := m.store.View(ctx, func(tx storage.Tx) error {
		now := m.clock.Now()
		var err error
		if state, err = m.fsm.State(tx, now); err != nil {
			return err
		}
		info, err = m.fsm.Active(tx, now)
		return err
	})
	if err != nil {
		return types.StateUnlocked, nil, fmt.Errorf("lock status: %w", err)
	}
	return state, info, nil
}
