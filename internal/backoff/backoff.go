// Package backoff implements the two delay policies used by the probe
// engine: exponential per-attempt delays within a cycle, and a
// per-service multiplier ladder widening the interval between cycles.
package backoff

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Options configures an Exponential policy.
type Options struct {
	InitialDelay time.Duration
	Factor       float64
	MaxDelay     time.Duration
	JitterMin    float64
	JitterMax    float64
}

func (o Options) withDefaults() Options {
	if o.InitialDelay <= 0 {
		o.InitialDelay = 200 * time.Millisecond
	}
	if o.Factor <= 1 {
		o.Factor = 2
	}
	if o.JitterMin < 0 {
		o.JitterMin = 0
	}
	if o.JitterMax < o.JitterMin {
		o.JitterMax = o.JitterMin
	}
	if o.JitterMax >= 1 {
		o.JitterMax = 0.999
	}
	return o
}

// Exponential produces geometrically growing delays with symmetric
// jitter. Each call to NextDelay advances the internal attempt counter.
type Exponential struct {
	opts    Options
	attempt int
	rand    func() float64
}

// NewExponential creates an Exponential policy. Zero-valued options
// fall back to defaults (200ms initial, factor 2, no cap).
func NewExponential(opts Options) *Exponential {
	return &Exponential{opts: opts.withDefaults(), rand: rand.Float64}
}

// NextDelay returns the delay for the next attempt:
// initial × factorⁿ × (1 ± jitter), clamped to [1ms, MaxDelay].
func (e *Exponential) NextDelay() time.Duration {
	o := e.opts
	base := float64(o.InitialDelay) * math.Pow(o.Factor, float64(e.attempt))
	e.attempt++

	if span := o.JitterMax - o.JitterMin; o.JitterMax > 0 {
		magnitude := o.JitterMin + span*e.rand()
		sign := 1.0
		if e.rand() < 0.5 {
			sign = -1
		}
		base *= 1 + sign*magnitude
	}

	d := time.Duration(math.Round(base))
	if o.MaxDelay > 0 && d > o.MaxDelay {
		d = o.MaxDelay
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// Reset zeroes the attempt counter.
func (e *Exponential) Reset() {
	e.attempt = 0
}

// ServiceBackoff escalates a per-service interval multiplier on
// sustained failure. The ladder is [1, g, g², …] clamped to the
// configured ceiling; a success removes the entry entirely.
type ServiceBackoff struct {
	mu     sync.Mutex
	levels []int
	index  map[string]int
}

// NewServiceBackoff builds the multiplier ladder with the given growth
// factor and ceiling. Defaults: growth 2, ceiling 4.
func NewServiceBackoff(growth, maxMultiplier int) *ServiceBackoff {
	if growth < 2 {
		growth = 2
	}
	if maxMultiplier < 1 {
		maxMultiplier = 4
	}
	levels := []int{1}
	for m := growth; m <= maxMultiplier; m *= growth {
		levels = append(levels, m)
	}
	return &ServiceBackoff{
		levels: levels,
		index:  make(map[string]int),
	}
}

// RecordFailure creates the service's entry at the bottom rung, or
// advances it one rung, and returns the new multiplier. At the ceiling
// it is idempotent.
func (b *ServiceBackoff) RecordFailure(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, ok := b.index[name]
	if ok && i < len(b.levels)-1 {
		i++
	}
	b.index[name] = i
	return b.levels[i]
}

// RecordSuccess removes the service's entry; its multiplier becomes 1.
func (b *ServiceBackoff) RecordSuccess(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.index, name)
}

// Multiplier returns the current multiplier for the service, 1 when
// the service has no recorded failures.
func (b *ServiceBackoff) Multiplier(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i, ok := b.index[name]; ok {
		return b.levels[i]
	}
	return 1
}
