package heartbeat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pixperk/sharelock/pkg/logging"
	"github.com/pixperk/sharelock/pkg/metrics"
	"github.com/pixperk/sharelock/pkg/types"
)

// anything that can refresh a held lock, *manager.Manager in production
type Beater interface {
	Heartbeat(ctx context.Context, host string, pid int) (time.Time, error)
}

// periodically refreshes one held lock until stopped or the lock is lost
// owns no lock state, it only drives Beater on a fixed cadence
type Scheduler struct {
	beater     Beater
	host       string
	pid        int
	interval   time.Duration
	staleAfter time.Duration //store outage this long means the lock is gone
	logger     *slog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	lost     chan error
	stopOnce sync.Once
}

type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// starts heartbeating for (host, pid) every interval
// the first heartbeat fires one interval after Start, the acquire itself
// already recorded a fresh heartbeat
func Start(ctx context.Context, b Beater, host string, pid int, interval, staleAfter time.Duration, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)

	s := &Scheduler{
		beater:     b,
		host:       host,
		pid:        pid,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logging.Discard(),
		cancel:     cancel,
		done:       make(chan struct{}),
		lost:       make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.loop(ctx)
	return s
}

// delivers at most one *types.LockLostError, then the scheduler is done
func (s *Scheduler) Lost() <-chan error { return s.lost }

// closed once the loop has exited
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// stops the loop and waits for it to exit
// after Stop returns no heartbeat from this scheduler is in flight,
// an in-flight store call is bounded by the store's I/O timeout
func (s *Scheduler) Stop() {
	s.stopOnce.Do(s.cancel)
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log := s.logger.With("host", s.host, "pid", s.pid)
	lastSuccess := time.Now()
	var failureCount int

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		_, err := s.beater.Heartbeat(ctx, s.host, s.pid)
		if err == nil {
			if failureCount > 0 {
				log.Info("heartbeat recovered", "failures", failureCount)
				failureCount = 0
			}
			lastSuccess = time.Now()
			continue
		}

		if ctx.Err() != nil {
			//stopped while the call was in flight
			return
		}

		if errors.Is(err, types.ErrNotOwner) {
			log.Error("lock lost, another client owns it or it was removed", "error", err)
			s.reportLost(err)
			return
		}

		failureCount++
		silence := time.Since(lastSuccess)
		log.Warn("heartbeat failed", "attempt", failureCount, "silent_for", silence, "error", err)

		if silence >= s.staleAfter {
			//other clients may reclaim the record by now, stop claiming it
			log.Error("lock presumed lost, no heartbeat stored within the staleness window",
				"silent_for", silence, "stale_after", s.staleAfter)
			s.reportLost(err)
			return
		}
		if failureCount >= 2 {
			log.Error("lock may go stale soon, heartbeat failing",
				"remaining", s.staleAfter-silence)
		}
	}
}

func (s *Scheduler) reportLost(cause error) {
	metrics.LockLostTotal.Inc()
	metrics.LockHeld.Set(0)
	s.lost <- &types.LockLostError{Host: s.host, PID: s.pid, Err: cause}
}
