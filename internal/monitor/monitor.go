// Package monitor ties the probe pipeline together: scheduler ticks
// fan out through the concurrency gate into retried HTTP probes, whose
// observations land in the store and produce one aggregate per cycle.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"healthwatch/internal/backoff"
	"healthwatch/internal/errs"
	"healthwatch/internal/fleet"
	"healthwatch/internal/gate"
	"healthwatch/internal/httpx"
	"healthwatch/internal/models"
	"healthwatch/internal/probe"
	"healthwatch/internal/retry"
	"healthwatch/internal/sched"
	"healthwatch/internal/store"
)

// Subscriber receives each cycle's aggregate.
type Subscriber func(models.AggregateResult)

// Monitor runs probe cycles against the fleet.
type Monitor struct {
	params  models.Params
	tracker *fleet.Tracker
	store   *store.ObservationStore
	svcBack *backoff.ServiceBackoff
	gate    *gate.Gate
	pool    *httpx.Pool
	proxies *httpx.ProxyCache
	sched   *sched.Scheduler
	logger  *slog.Logger

	retryBackoff backoff.Options
	shouldRetry  retry.Predicate

	mu          sync.Mutex
	subscribers []Subscriber

	cycleBusy atomic.Bool
	cycleWG   sync.WaitGroup

	ctx     context.Context
	cancel  context.CancelFunc
	stopped atomic.Bool
}

// Option adjusts monitor construction.
type Option func(*Monitor)

// WithRetryBackoff overrides the per-attempt backoff parameters.
func WithRetryBackoff(opts backoff.Options) Option {
	return func(m *Monitor) { m.retryBackoff = opts }
}

// WithRetryPredicate overrides the retry-on-any-error default.
func WithRetryPredicate(p retry.Predicate) Option {
	return func(m *Monitor) { m.shouldRetry = p }
}

// WithScheduler substitutes the probe clock.
func WithScheduler(s *sched.Scheduler) Option {
	return func(m *Monitor) { m.sched = s }
}

// New assembles a monitor for the fleet. The pool and proxy cache are
// shared process-wide collaborators owned by the caller.
func New(params models.Params, services []models.Service, pool *httpx.Pool, proxies *httpx.ProxyCache, logger *slog.Logger, options ...Option) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		params:  params,
		tracker: fleet.NewTracker(services),
		store:   store.New(store.DefaultCapacity),
		svcBack: backoff.NewServiceBackoff(2, 4),
		gate:    gate.New(params.Concurrency),
		pool:    pool,
		proxies: proxies,
		logger:  logger,
		retryBackoff: backoff.Options{
			InitialDelay: 200 * time.Millisecond,
			Factor:       2,
			MaxDelay:     5 * time.Second,
			JitterMin:    sched.DefaultJitterMin,
			JitterMax:    sched.DefaultJitterMax,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.sched == nil {
		m.sched = sched.New(params.Interval, sched.DefaultJitterMin, sched.DefaultJitterMax, logger)
	}
	return m
}

// Store exposes the observation history for read-side surfaces.
func (m *Monitor) Store() *store.ObservationStore {
	return m.store
}

// Services returns the canonical fleet.
func (m *Monitor) Services() []models.Service {
	return m.tracker.Services()
}

// Multiplier reports a service's current interval multiplier.
func (m *Monitor) Multiplier(name string) int {
	return m.tracker.Multiplier(name)
}

// Subscribe registers fn to receive every aggregate.
func (m *Monitor) Subscribe(fn Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Start runs an immediate first cycle and arms the scheduler.
func (m *Monitor) Start() {
	m.sched.OnTick(func(time.Time) {
		m.startCycle()
	})
	m.startCycle()
	m.sched.Start()
}

// Stop cancels the scheduler, in-flight probes and retry sleeps, then
// waits for the running cycle to drain.
func (m *Monitor) Stop() {
	if m.stopped.Swap(true) {
		return
	}
	m.sched.Stop()
	m.cancel()
	m.cycleWG.Wait()
}

// Pause suspends the probe clock, preserving the residual delay.
func (m *Monitor) Pause() { m.sched.Pause() }

// Resume re-arms the probe clock.
func (m *Monitor) Resume() { m.sched.Resume() }

// Paused reports whether the clock is suspended.
func (m *Monitor) Paused() bool { return m.sched.Paused() }

// startCycle launches a cycle unless one is already in flight; a tick
// arriving mid-cycle is coalesced.
func (m *Monitor) startCycle() {
	if m.stopped.Load() {
		return
	}
	if !m.cycleBusy.CompareAndSwap(false, true) {
		m.logger.Debug("cycle still in flight, coalescing tick")
		return
	}
	m.cycleWG.Add(1)
	go func() {
		defer m.cycleWG.Done()
		defer m.cycleBusy.Store(false)
		m.RunCycle(m.ctx)
	}()
}

// RunCycle performs one probe cycle: every due service is probed
// through the gate, observations are recorded, and the aggregate is
// emitted to subscribers.
func (m *Monitor) RunCycle(ctx context.Context) models.AggregateResult {
	startedAt := time.Now()
	due := m.tracker.Due()

	observations := make([]models.Observation, len(due))
	var wg sync.WaitGroup
	for i, svc := range due {
		wg.Add(1)
		go func(i int, svc models.Service) {
			defer wg.Done()
			// The only gate error is cancellation while queued; the
			// service is released without an observation.
			_ = m.gate.Do(ctx, func() error {
				observations[i] = m.probeService(ctx, svc)
				return nil
			})
		}(i, svc)
	}
	wg.Wait()

	// Single critical section per cycle: record outcomes and advance
	// per-service state.
	for i, obs := range observations {
		if obs.ServiceName == "" {
			m.tracker.Release(due[i].Name)
			continue
		}
		m.store.Add(obs)
		switch obs.Status {
		case models.StatusOK:
			m.svcBack.RecordSuccess(obs.ServiceName)
			m.tracker.Complete(obs.ServiceName, obs.Status, 1)
		case models.StatusDown:
			mult := m.svcBack.RecordFailure(obs.ServiceName)
			m.tracker.Complete(obs.ServiceName, obs.Status, mult)
		default:
			m.tracker.Complete(obs.ServiceName, obs.Status, m.svcBack.Multiplier(obs.ServiceName))
		}
	}

	agg := store.Aggregate(m.store, m.tracker.Services(), startedAt, time.Now())
	m.emit(agg)
	return agg
}

func (m *Monitor) emit(agg models.AggregateResult) {
	m.mu.Lock()
	subs := make([]Subscriber, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()
	for _, fn := range subs {
		fn(agg)
	}
}

// probeService runs the retry harness around single attempts for one
// service. Errors never escape: they become a down observation.
func (m *Monitor) probeService(ctx context.Context, svc models.Service) models.Observation {
	timeout := svc.Timeout
	if timeout <= 0 {
		timeout = m.params.Timeout
	}
	headers := mergeHeaders(m.params.Headers, svc.Headers)
	proxy := svc.Proxy
	if proxy == "" {
		proxy = m.params.Proxy
	}

	var lastAttempt atomic.Int32
	obs, err := retry.Do(ctx, retry.Options{
		Retries:     m.params.Retries,
		Backoff:     m.retryBackoff,
		ShouldRetry: m.shouldRetry,
	}, func(ctx context.Context, attempt int) (models.Observation, error) {
		lastAttempt.Store(int32(attempt))
		return m.attempt(ctx, svc, attempt, timeout, headers, proxy)
	})
	if err != nil {
		// Shutdown is not a probe outcome.
		if errors.Is(err, context.Canceled) {
			return models.Observation{}
		}
		probeErr := &errs.ProbeError{
			ServiceName: svc.Name,
			Attempt:     int(lastAttempt.Load()),
			URL:         svc.URL,
			Expectation: svc.ExpectStatus,
			Cause:       err,
		}
		m.logger.Debug("probe failed", "service", svc.Name, "error", probeErr.Error())
		return models.Observation{
			ServiceName: svc.Name,
			Status:      models.StatusDown,
			CheckedAt:   time.Now(),
			Error:       probeErr,
		}
	}
	return obs
}

// attempt issues one HTTP probe and normalizes the response.
func (m *Monitor) attempt(ctx context.Context, svc models.Service, attempt int, timeout time.Duration, headers map[string]string, proxy string) (models.Observation, error) {
	checkedAt := time.Now()
	resp, err := httpx.Do(ctx, httpx.RequestOptions{
		URL:        svc.URL,
		Headers:    headers,
		Timeout:    timeout,
		Proxy:      proxy,
		Insecure:   m.params.Insecure,
		Pool:       m.pool,
		ProxyCache: m.proxies,
		Debug:      m.params.Debug,
		Logger:     m.logger,
	})
	if err != nil {
		return models.Observation{}, err
	}

	measuredMS := float64(time.Since(checkedAt).Microseconds()) / 1000

	payload, parseErr := probe.ParsePayload(resp.Body)
	if parseErr != nil {
		return models.Observation{}, parseErr
	}

	status := probe.NormalizeStatus(resp.StatusCode, payload, m.params.MissingStatus)
	if svc.ExpectStatus != "" && string(status) != svc.ExpectStatus {
		return models.Observation{}, &errs.ExpectationError{
			Expected: svc.ExpectStatus,
			Actual:   string(status),
		}
	}

	latency, timings := probe.ResolveLatency(payload, measuredMS)
	obs := models.Observation{
		ServiceName: svc.Name,
		Status:      status,
		HTTPStatus:  &resp.StatusCode,
		LatencyMS:   &latency,
		Timings:     timings,
		CheckedAt:   checkedAt,
		Payload:     resp.Body,
	}
	if payload != nil {
		obs.Version = payload.Version
		obs.Region = payload.Region
	}
	return obs, nil
}

func mergeHeaders(base, overlay map[string]string) map[string]string {
	if len(base) == 0 && len(overlay) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
