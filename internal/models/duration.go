package models

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var durationPattern = regexp.MustCompile(`^(\d+)(ms|s|m)$`)

// ParseDuration parses the configuration duration grammar: an integer
// followed by ms, s or m. Anything else is rejected, including the
// richer forms time.ParseDuration would accept.
func ParseDuration(raw string) (time.Duration, error) {
	m := durationPattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q (expected <number>ms|s|m)", raw)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	switch m[2] {
	case "ms":
		return time.Duration(n) * time.Millisecond, nil
	case "s":
		return time.Duration(n) * time.Second, nil
	default:
		return time.Duration(n) * time.Minute, nil
	}
}
