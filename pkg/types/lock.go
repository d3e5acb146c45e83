package types

import "time"

// lock is the single record that grants application-level write access
// to the shared database file
// the credential pair (HolderHost, HolderPID) is the only thing allowed
// to refresh or release it
type Lock struct {
	ID            string //opaque record identity
	HolderHost    string
	HolderUser    string //optional, the operator at the holder's machine
	HolderPID     int
	AcquiredAt    time.Time
	LastHeartbeat time.Time //initialised to AcquiredAt
	ClientVersion string    //optional, diagnostics only
	Seq           uint64    //per-file insertion order, breaks AcquiredAt ties
}

// returns true if host and pid are the credential that created this record
func (l *Lock) OwnedBy(host string, pid int) bool {
	return l.HolderHost == host && l.HolderPID == pid
}

// reports whether l is more recent than other under "most recent wins"
func (l *Lock) NewerThan(other *Lock) bool {
	if other == nil {
		return true
	}
	if !l.AcquiredAt.Equal(other.AcquiredAt) {
		return l.AcquiredAt.After(other.AcquiredAt)
	}
	return l.Seq > other.Seq
}

// public, read-only view of a lock used for diagnostics and user-facing messages
type LockInfo struct {
	Host          string
	User          string
	PID           int
	AcquiredAt    time.Time
	LastHeartbeat time.Time
	HeartbeatAge  time.Duration
	ClientVersion string
}

func (l *Lock) Info(now time.Time) LockInfo {
	return LockInfo{
		Host:          l.HolderHost,
		User:          l.HolderUser,
		PID:           l.HolderPID,
		AcquiredAt:    l.AcquiredAt,
		LastHeartbeat: l.LastHeartbeat,
		HeartbeatAge:  l.HeartbeatAge(now),
		ClientVersion: l.ClientVersion,
	}
}

// holder's display name, "user@host" when the user is known
func (i LockInfo) Holder() string {
	if i.User == "" {
		return i.Host
	}
	return i.User + "@" + i.Host
}
