package types

// type of FSM command
type CommandType uint

const (
	CommandTypeAcquire CommandType = iota + 1
	CommandTypeHeartbeat
	CommandTypeRelease
)

func (t CommandType) String() string {
	switch t {
	case CommandTypeAcquire:
		return "acquire"
	case CommandTypeHeartbeat:
		return "heartbeat"
	case CommandTypeRelease:
		return "release"
	default:
		return "unknown"
	}
}

// interface all FSM commands implement
type Command interface {
	Type() CommandType
}

// acquires the lock, reclaiming a stale record if needed
type AcquireCmd struct {
	Host    string
	User    string
	PID     int
	Version string
}

func (c AcquireCmd) Type() CommandType { return CommandTypeAcquire }

// refreshes last_heartbeat of the caller's record
type HeartbeatCmd struct {
	Host string
	PID  int
}

func (c HeartbeatCmd) Type() CommandType { return CommandTypeHeartbeat }

// deletes the caller's record
type ReleaseCmd struct {
	Host string
	PID  int
}

func (c ReleaseCmd) Type() CommandType { return CommandTypeRelease }

// validates the ownership credential carried by a command
func ValidateCredential(host string, pid int) error {
	if host == "" || pid <= 0 {
		return ErrInvalidCredential
	}
	return nil
}
