// Package rterr defines the runtime's error taxonomy.
//
// Every fallible operation in the core returns a plain Go error; the ones
// that matter for retry/escalation decisions carry a Code via New/Wrap and
// can be recovered with CodeOf. This is the one place the retry/non-retry
// classification from the spec lives, so the Retry Manager and the loop
// composer agree on it without duplicating a switch statement.
package rterr

import "errors"

// Code tags an error for retry/escalation decisions.
type Code string

const (
	AgentNotFound        Code = "AGENT_NOT_FOUND"
	SessionNotFound      Code = "SESSION_NOT_FOUND"
	InvalidInput         Code = "INVALID_INPUT"
	LockHeld             Code = "LOCK_HELD"
	ScopeViolation       Code = "SCOPE_VIOLATION"
	AuthenticationFailed Code = "AUTHENTICATION_FAILED"
	TransientIO          Code = "TRANSIENT_IO"
	LLMTransient         Code = "LLM_TRANSIENT"
	ToolTransient        Code = "TOOL_TRANSIENT"
	ExecutionTimeout     Code = "EXECUTION_TIMEOUT"
	ToolTimeout          Code = "TOOL_TIMEOUT"
	MaxIterations        Code = "MAX_ITERATIONS"
	MemoryOverLimit      Code = "MEMORY_OVER_LIMIT"
)

// NonRetryable is the default set of codes the Retry Manager never retries.
var NonRetryable = map[Code]bool{
	AgentNotFound:        true,
	SessionNotFound:      true,
	InvalidInput:         true,
	ScopeViolation:        true,
	AuthenticationFailed: true,
	MaxIterations:        true,
	MemoryOverLimit:      true,
}

// codedError pairs a Code with an underlying error.
type codedError struct {
	code Code
	msg  string
	err  error
}

func (e *codedError) Error() string {
	if e.err != nil {
		return string(e.code) + ": " + e.msg + ": " + e.err.Error()
	}
	return string(e.code) + ": " + e.msg
}

func (e *codedError) Unwrap() error { return e.err }

// New creates a new tagged error.
func New(code Code, msg string) error {
	return &codedError{code: code, msg: msg}
}

// Wrap tags an existing error with a code.
func Wrap(code Code, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, msg: err.Error(), err: err}
}

// CodeOf extracts the Code from an error, if any was attached.
func CodeOf(err error) (Code, bool) {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code, true
	}
	return "", false
}

// IsRetryable reports whether err should be retried given a non-retryable set.
// A nil set falls back to NonRetryable.
func IsRetryable(err error, nonRetryable map[Code]bool) bool {
	if err == nil {
		return false
	}
	if nonRetryable == nil {
		nonRetryable = NonRetryable
	}
	code, ok := CodeOf(err)
	if !ok {
		// Untagged errors are assumed transient (I/O, network) unless
		// proven otherwise by the caller.
		return true
	}
	return !nonRetryable[code]
}
