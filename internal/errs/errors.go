// Package errs defines the error taxonomy shared by the probe engine
// and the CLI: every error carries a kind and the exit code it maps to.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags an error class for dispatch.
type Kind string

const (
	KindUsage       Kind = "usage"
	KindProbe       Kind = "probe"
	KindExpectation Kind = "expectation"
	KindTimeout     Kind = "timeout"
	KindProtocol    Kind = "protocol"
	KindInternal    Kind = "internal"
)

// Exit codes reserved for non-aggregate outcomes.
const (
	ExitUsage    = 3
	ExitInternal = 4
)

// UsageError reports invalid flags, commands or configuration. Exit 3.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// Usagef builds a UsageError from a format string.
func Usagef(format string, args ...any) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// InternalError reports an invariant violation inside the core. Exit 4.
type InternalError struct {
	Msg   string
	Cause error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s: %v", e.Msg, e.Cause)
	}
	return "internal error: " + e.Msg
}

func (e *InternalError) Unwrap() error { return e.Cause }

// TimeoutError marks a probe aborted by its own deadline, as opposed to
// caller cancellation.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %s", e.Timeout)
}

// UnsupportedProtocolError rejects non-HTTP(S) probe URLs.
type UnsupportedProtocolError struct {
	Scheme string
}

func (e *UnsupportedProtocolError) Error() string {
	return fmt.Sprintf("unsupported protocol %q (only http and https)", e.Scheme)
}

// ProbeError wraps any probe-time failure with its service context. It is
// non-fatal: the orchestrator converts it into a down observation.
type ProbeError struct {
	ServiceName string
	Attempt     int
	URL         string
	Expectation string
	Cause       error
}

func (e *ProbeError) Error() string {
	msg := "probe failed"
	if e.Cause != nil {
		msg = e.Cause.Error()
	}
	ctx := fmt.Sprintf("service=%s, attempt=%d, url=%s", e.ServiceName, e.Attempt, e.URL)
	if e.Expectation != "" {
		ctx += ", expected=" + e.Expectation
	}
	return fmt.Sprintf("%s (%s)", msg, ctx)
}

func (e *ProbeError) Unwrap() error { return e.Cause }

// ExpectationError reports a probe that succeeded but produced a status
// other than the configured expectation.
type ExpectationError struct {
	Expected string
	Actual   string
}

func (e *ExpectationError) Error() string {
	return fmt.Sprintf("Expected %s, received %s", e.Expected, e.Actual)
}

// KindOf classifies err into the taxonomy.
func KindOf(err error) Kind {
	var (
		usage       *UsageError
		expectation *ExpectationError
		timeout     *TimeoutError
		protocol    *UnsupportedProtocolError
		probe       *ProbeError
		internal    *InternalError
	)
	switch {
	case errors.As(err, &usage):
		return KindUsage
	case errors.As(err, &expectation):
		return KindExpectation
	case errors.As(err, &timeout):
		return KindTimeout
	case errors.As(err, &protocol):
		return KindProtocol
	case errors.As(err, &probe):
		return KindProbe
	case errors.As(err, &internal):
		return KindInternal
	}
	return KindProbe
}

// ExitCodeOf maps an error to the process exit contract. Probe-level
// errors never decide the exit code themselves; callers derive it from
// the aggregate status instead.
func ExitCodeOf(err error) int {
	switch KindOf(err) {
	case KindUsage:
		return ExitUsage
	case KindInternal:
		return ExitInternal
	default:
		return ExitInternal
	}
}
