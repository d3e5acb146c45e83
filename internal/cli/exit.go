package cli

import (
	"errors"

	"github.com/pixperk/sharelock/pkg/types"
)

// process exit codes, scripts on the warehouse desktops branch on these
const (
	ExitOK               = 0
	ExitError            = 1
	ExitLockHeld         = 3
	ExitStoreUnavailable = 4
	ExitNotOwner         = 5
	ExitLockLost         = 6
)

// converts domain errors to exit codes
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, types.ErrLockLost):
		return ExitLockLost
	case errors.Is(err, types.ErrLockHeld):
		return ExitLockHeld
	case errors.Is(err, types.ErrStoreUnavailable):
		return ExitStoreUnavailable
	case errors.Is(err, types.ErrNotOwner):
		return ExitNotOwner
	default:
		return ExitError
	}
}
