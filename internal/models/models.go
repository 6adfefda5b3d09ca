package models

import (
	"time"
)

// Service defines a monitored HTTP endpoint. Immutable after load.
type Service struct {
	Name         string            `yaml:"name" json:"name"`
	URL          string            `yaml:"url" json:"url"`
	ExpectStatus string            `yaml:"expect_status" json:"expect_status,omitempty"`
	Tags         []string          `yaml:"tags" json:"tags,omitempty"`
	Headers      map[string]string `yaml:"headers" json:"headers,omitempty"`
	Proxy        string            `yaml:"proxy" json:"proxy,omitempty"`
	Timeout      time.Duration     `yaml:"-" json:"-"`
}

// Params is the process-wide parameter bundle. Immutable after construction.
type Params struct {
	Interval      time.Duration
	Timeout       time.Duration
	Retries       int
	Concurrency   int
	Headers       map[string]string
	Proxy         string
	Insecure      bool
	Debug         bool
	MissingStatus Status
	OutputFormat  string
}

// DefaultParams returns the documented parameter defaults.
func DefaultParams() Params {
	return Params{
		Interval:      15 * time.Second,
		Timeout:       3 * time.Second,
		Retries:       1,
		Concurrency:   10,
		MissingStatus: StatusDown,
	}
}

// Timings carries server-reported or measured phase timings, in
// milliseconds. TotalMS is always set when the struct is present.
type Timings struct {
	TotalMS float64  `json:"total_ms"`
	TTFBMS  *float64 `json:"ttfb_ms,omitempty"`
	DNSMS   *float64 `json:"dns_ms,omitempty"`
	TCPMS   *float64 `json:"tcp_ms,omitempty"`
	TLSMS   *float64 `json:"tls_ms,omitempty"`
}

// Observation captures the outcome of a single probe.
type Observation struct {
	ServiceName string    `json:"service_name"`
	Status      Status    `json:"status"`
	HTTPStatus  *int      `json:"http_status,omitempty"`
	LatencyMS   *float64  `json:"latency_ms,omitempty"`
	Timings     *Timings  `json:"timings,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
	Payload     []byte    `json:"-"`
	Error       error     `json:"-"`
	Version     string    `json:"version,omitempty"`
	Region      string    `json:"region,omitempty"`
}

// ServiceResult is a per-service snapshot inside an aggregate: the
// latest observation plus derived metadata.
type ServiceResult struct {
	Name      string    `json:"name"`
	URL       string    `json:"url,omitempty"`
	Status    Status    `json:"status"`
	LatencyMS *float64  `json:"latency_ms,omitempty"`
	AgeMS     int64     `json:"age_ms"`
	Version   string    `json:"version,omitempty"`
	Region    string    `json:"region,omitempty"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// LatencySummary holds interpolated percentiles over finite latencies.
// Empty is true when no sample had a finite latency.
type LatencySummary struct {
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Empty bool    `json:"-"`
}

// AggregateResult is one cycle's derived summary of the fleet.
type AggregateResult struct {
	Status      Status          `json:"status"`
	Results     []ServiceResult `json:"results"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Latency     LatencySummary  `json:"latency"`
}
