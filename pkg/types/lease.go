package types

import "time"

// a lock record is a heartbeat lease: it stays live only while its holder
// keeps refreshing LastHeartbeat within the staleness window
type State int

const (
	StateUnlocked State = iota //no record present
	StateHeld                  //record present and live
	StateStale                 //record present, holder went silent
)

func (s State) String() string {
	switch s {
	case StateUnlocked:
		return "UNLOCKED"
	case StateHeld:
		return "HELD"
	case StateStale:
		return "STALE"
	default:
		return "UNKNOWN"
	}
}

// time elapsed since the last recorded heartbeat, never negative
// a heartbeat written by a host whose clock runs ahead reads as age zero
func (l *Lock) HeartbeatAge(now time.Time) time.Duration {
	age := now.Sub(l.LastHeartbeat)
	if age < 0 {
		return 0
	}
	return age
}

// checks if the holder has been silent for at least window
func (l *Lock) IsStale(now time.Time, window time.Duration) bool {
	return l.HeartbeatAge(now) >= window
}

// state of a (possibly absent) record at now
func StateOf(l *Lock, now time.Time, window time.Duration) State {
	if l == nil {
		return StateUnlocked
	}
	if l.IsStale(now, window) {
		return StateStale
	}
	return StateHeld
}
