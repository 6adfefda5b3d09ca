package errs

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProbeErrorMessage(t *testing.T) {
	err := &ProbeError{
		ServiceName: "api",
		Attempt:     2,
		URL:         "https://api.local/health",
		Cause:       errors.New("connection refused"),
	}
	assert.Equal(t, "connection refused (service=api, attempt=2, url=https://api.local/health)", err.Error())
}

func TestProbeErrorWithExpectation(t *testing.T) {
	err := &ProbeError{
		ServiceName: "api",
		Attempt:     1,
		URL:         "https://api.local/health",
		Expectation: "ok",
		Cause:       &ExpectationError{Expected: "ok", Actual: "down"},
	}
	assert.Contains(t, err.Error(), "Expected ok, received down")
	assert.Contains(t, err.Error(), "expected=ok")
}

func TestUnwrapping(t *testing.T) {
	cause := &TimeoutError{Timeout: 3 * time.Second}
	err := fmt.Errorf("probe: %w", &ProbeError{ServiceName: "api", Cause: cause})

	var timeout *TimeoutError
	assert.True(t, errors.As(err, &timeout))
	assert.Equal(t, 3*time.Second, timeout.Timeout)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindUsage, KindOf(Usagef("bad flag")))
	assert.Equal(t, KindTimeout, KindOf(&TimeoutError{Timeout: time.Second}))
	assert.Equal(t, KindProtocol, KindOf(&UnsupportedProtocolError{Scheme: "ftp"}))
	assert.Equal(t, KindInternal, KindOf(&InternalError{Msg: "broken invariant"}))
	assert.Equal(t, KindProbe, KindOf(errors.New("anything else")))
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 3, ExitCodeOf(Usagef("nope")))
	assert.Equal(t, 4, ExitCodeOf(&InternalError{Msg: "x"}))
}
