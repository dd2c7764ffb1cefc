package commands

import "github.com/agentvault/runtime/internal/rterr"

// exitCodeFor maps a returned error to one of the process exit codes
// spec.md §6 names: 0 success, 2 user error, 3 lock conflict, 4 internal
// failure after escalation.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	code, tagged := rterr.CodeOf(err)
	if !tagged {
		return ExitInternalError
	}
	switch code {
	case rterr.LockHeld:
		return ExitLockConflict
	case rterr.AgentNotFound, rterr.SessionNotFound, rterr.InvalidInput, rterr.ScopeViolation, rterr.AuthenticationFailed:
		return ExitUserError
	default:
		return ExitInternalError
	}
}
