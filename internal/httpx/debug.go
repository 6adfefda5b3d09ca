package httpx

import (
	"crypto/tls"
	"log/slog"
	"net/http/httptrace"
	"sync"
	"time"
)

// traceRecorder accumulates connection-phase timings for one request.
// httptrace callbacks may run on different goroutines, so every field
// is guarded.
type traceRecorder struct {
	mu sync.Mutex

	start    time.Time
	dnsStart time.Time
	dnsMS    *float64
	tcpStart time.Time
	tcpMS    *float64
	tlsStart time.Time
	tlsMS    *float64
	ttfbMS   *float64

	reused     bool
	remoteAddr string
}

func newTraceRecorder(start time.Time) *traceRecorder {
	return &traceRecorder{start: start}
}

func (r *traceRecorder) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			r.mu.Lock()
			r.dnsStart = time.Now()
			r.mu.Unlock()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			r.mu.Lock()
			if !r.dnsStart.IsZero() {
				r.dnsMS = msSince(r.dnsStart)
			}
			r.mu.Unlock()
		},
		ConnectStart: func(_, _ string) {
			r.mu.Lock()
			r.tcpStart = time.Now()
			r.mu.Unlock()
		},
		ConnectDone: func(_, _ string, _ error) {
			r.mu.Lock()
			if !r.tcpStart.IsZero() {
				r.tcpMS = msSince(r.tcpStart)
			}
			r.mu.Unlock()
		},
		TLSHandshakeStart: func() {
			r.mu.Lock()
			r.tlsStart = time.Now()
			r.mu.Unlock()
		},
		TLSHandshakeDone: func(tls.ConnectionState, error) {
			r.mu.Lock()
			if !r.tlsStart.IsZero() {
				r.tlsMS = msSince(r.tlsStart)
			}
			r.mu.Unlock()
		},
		GotConn: func(info httptrace.GotConnInfo) {
			r.mu.Lock()
			r.reused = info.Reused
			if info.Conn != nil {
				r.remoteAddr = info.Conn.RemoteAddr().String()
			}
			r.mu.Unlock()
		},
		GotFirstResponseByte: func() {
			r.mu.Lock()
			r.ttfbMS = msSince(r.start)
			r.mu.Unlock()
		},
	}
}

func msSince(t time.Time) *float64 {
	ms := float64(time.Since(t).Microseconds()) / 1000
	return &ms
}

// logAttrs renders the recorded phases as slog attributes.
func (r *traceRecorder) logAttrs(totalMS float64) []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	attrs := []any{
		slog.Float64("total_ms", totalMS),
		slog.Bool("conn_reused", r.reused),
	}
	if r.remoteAddr != "" {
		attrs = append(attrs, slog.String("remote_addr", r.remoteAddr))
	}
	if r.dnsMS != nil {
		attrs = append(attrs, slog.Float64("dns_ms", *r.dnsMS))
	}
	if r.tcpMS != nil {
		attrs = append(attrs, slog.Float64("tcp_ms", *r.tcpMS))
	}
	if r.tlsMS != nil {
		attrs = append(attrs, slog.Float64("tls_ms", *r.tlsMS))
	}
	if r.ttfbMS != nil {
		attrs = append(attrs, slog.Float64("ttfb_ms", *r.ttfbMS))
	}
	return attrs
}
