package metrics

import (
	"errors"

	"github.com/pixperk/sharelock/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// acquire attempts by outcome
	// labels: outcome (acquired/reclaimed/reentered/held/store_unavailable/error)
	// a rising reclaimed rate means holders are crashing without releasing
	AcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharelock_acquire_total",
			Help: "total number of lock acquire attempts",
		},
		[]string{"outcome"},
	)

	// heartbeat counter - tracks keepalive success/failure
	// labels: status (success/not_owner/store_unavailable/error)
	// use to detect heartbeat issues before the lock goes stale
	HeartbeatTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharelock_heartbeat_total",
			Help: "total number of heartbeats attempted",
		},
		[]string{"status"},
	)

	// release counter
	// labels: status (success/not_owner/store_unavailable/error)
	ReleaseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sharelock_release_total",
			Help: "total number of lock releases attempted",
		},
		[]string{"status"},
	)

	// locks this process lost while it believed it held them
	LockLostTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sharelock_lock_lost_total",
			Help: "total number of held locks lost (reclaimed elsewhere or unreachable store)",
		},
	)

	// 1 while this process holds the lock, 0 otherwise
	LockHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sharelock_lock_held",
			Help: "whether this process currently holds the lock (1 = held)",
		},
	)

	// store round-trip latency - network shares can be slow
	// labels: op (acquire/heartbeat/release/active)
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sharelock_store_op_duration_seconds",
			Help:    "time taken by one lock store transaction",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"op"},
	)
)

// label for the result of a lock operation
func Status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, types.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, types.ErrLockHeld):
		return "held"
	case errors.Is(err, types.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}
