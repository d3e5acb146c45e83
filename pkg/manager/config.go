package manager

import (
	"fmt"
	"time"

	"github.com/pixperk/sharelock/pkg/types"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultStaleAfter        = 15 * time.Minute //30 heartbeats of silence

	// the staleness window must cover at least this many heartbeat periods,
	// otherwise one slow tick on the share gets a live holder reclaimed
	MinStaleRatio = 3
)

// tunables the host application passes in, network latency differs per deployment
type Config struct {
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: DefaultHeartbeatInterval,
		StaleAfter:        DefaultStaleAfter,
	}
}

func (c Config) Validate() error {
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: heartbeat interval must be positive, got %s", types.ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.StaleAfter < MinStaleRatio*c.HeartbeatInterval {
		return fmt.Errorf("%w: stale window %s must be at least %d heartbeat intervals (%s)",
			types.ErrInvalidConfig, c.StaleAfter, MinStaleRatio, MinStaleRatio*c.HeartbeatInterval)
	}
	return nil
}
