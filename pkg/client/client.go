package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"sync"
	"time"

	"github.com/pixperk/sharelock/pkg/heartbeat"
	"github.com/pixperk/sharelock/pkg/logging"
	"github.com/pixperk/sharelock/pkg/manager"
	"github.com/pixperk/sharelock/pkg/types"
)

// returned by Acquire while a Lock from an earlier Acquire is not released
var ErrAlreadyAcquired = errors.New("lock already acquired by this client")

// what the host application talks to: acquire on startup, watch Lost()
// while working, release on shutdown
type Client struct {
	mgr     *manager.Manager
	host    string
	user    string
	pid     int
	version string
	logger  *slog.Logger

	mu     sync.Mutex
	active *Lock //one scheduler per credential
}

type Option func(*Client)

// overrides the ownership credential, defaults are os.Hostname and os.Getpid
func WithIdentity(host string, pid int) Option {
	return func(c *Client) {
		c.host = host
		c.pid = pid
	}
}

func WithUser(name string) Option {
	return func(c *Client) { c.user = name }
}

func WithVersion(v string) Option {
	return func(c *Client) { c.version = v }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(mgr *manager.Manager, opts ...Option) (*Client, error) {
	c := &Client{
		mgr:    mgr,
		pid:    os.Getpid(),
		logger: logging.Discard(),
	}
	if host, err := os.Hostname(); err == nil {
		c.host = host
	}
	if u, err := user.Current(); err == nil {
		c.user = u.Username
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := types.ValidateCredential(c.host, c.pid); err != nil {
		return nil, fmt.Errorf("client identity %q/%d: %w", c.host, c.pid, err)
	}
	return c, nil
}

func (c *Client) Host() string { return c.host }

func (c *Client) PID() int { return c.pid }

// acquires the lock and starts heartbeating it
// on ErrLockHeld the host should go read-only or exit, HeldMessage
// formats the holder for the user
func (c *Client) Acquire(ctx context.Context) (*Lock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	//a second scheduler on the same credential would report a false loss
	//once the first lock is released
	if c.active != nil {
		return nil, ErrAlreadyAcquired
	}

	h, err := c.mgr.Acquire(ctx, manager.AcquireRequest{
		Host:    c.host,
		User:    c.user,
		PID:     c.pid,
		Version: c.version,
	})
	if err != nil {
		return nil, err
	}

	cfg := c.mgr.Config()
	//the scheduler outlives the acquire call, it is bound to the lock instead
	sched := heartbeat.Start(context.WithoutCancel(ctx), c.mgr, c.host, c.pid,
		cfg.HeartbeatInterval, cfg.StaleAfter, heartbeat.WithLogger(c.logger))

	c.active = &Lock{
		client: c,
		handle: h,
		sched:  sched,
	}
	return c.active, nil
}

func (c *Client) forget(l *Lock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == l {
		c.active = nil
	}
}

// release on behalf of a credential other than this client's, for
// cleaning up after a holder whose process id is known
func (c *Client) ReleaseFor(ctx context.Context, host string, pid int) error {
	return c.mgr.Release(ctx, host, pid)
}

// current live holder or nil, diagnostics only
func (c *Client) Holder(ctx context.Context) (*types.LockInfo, error) {
	return c.mgr.ActiveLock(ctx)
}

// user-facing text for an acquire refused because of a live holder
func HeldMessage(err error) (string, bool) {
	var held *types.LockHeldError
	if !errors.As(err, &held) {
		return "", false
	}
	h := held.Holder
	return fmt.Sprintf("The database is in use by %s since %s (last activity %s ago). Changes are disabled until it is released.",
		h.Holder(),
		h.AcquiredAt.Local().Format("2006-01-02 15:04"),
		h.HeartbeatAge.Truncate(time.Second)), true
}
