// Package httpx is the probe engine's HTTP request layer: keep-alive
// transport pool, proxy transport cache, per-request timeout
// discrimination, and debug instrumentation.
package httpx

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// PoolOptions tunes the long-lived transports.
type PoolOptions struct {
	Connections    int
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	MaxIdleTime    time.Duration
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.Connections <= 0 {
		o.Connections = 32
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 30 * time.Second
	}
	if o.MaxIdleTime <= 0 {
		o.MaxIdleTime = 90 * time.Second
	}
	return o
}

func newTransport(opts PoolOptions, proxy *url.URL, insecure bool) *http.Transport {
	t := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   opts.ConnectTimeout,
			KeepAlive: opts.IdleTimeout,
		}).DialContext,
		MaxIdleConns:          opts.Connections,
		MaxIdleConnsPerHost:   opts.Connections,
		IdleConnTimeout:       opts.MaxIdleTime,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	}
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return t
}

// Pool holds the two process-wide keep-alive transports, one for plain
// HTTP and one for HTTPS. Close and Destroy are idempotent.
type Pool struct {
	httpTransport  *http.Transport
	httpsTransport *http.Transport

	closeOnce   sync.Once
	destroyOnce sync.Once
}

// NewPool creates the transport pair. When insecure is set the HTTPS
// transport skips TLS verification.
func NewPool(opts PoolOptions, insecure bool) *Pool {
	opts = opts.withDefaults()
	return &Pool{
		httpTransport:  newTransport(opts, nil, false),
		httpsTransport: newTransport(opts, nil, insecure),
	}
}

// Transport routes by URL scheme.
func (p *Pool) Transport(scheme string) *http.Transport {
	if scheme == "https" {
		return p.httpsTransport
	}
	return p.httpTransport
}

// Close drains both transports: idle connections are shut down and new
// requests still work but will redial.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.httpTransport.CloseIdleConnections()
		p.httpsTransport.CloseIdleConnections()
	})
}

// Destroy hard-drops whatever Close left behind. In-flight requests are
// aborted through their contexts by the caller; here only the sockets
// kept for reuse remain to be torn down.
func (p *Pool) Destroy() {
	p.Close()
	p.destroyOnce.Do(func() {
		p.httpTransport.CloseIdleConnections()
		p.httpsTransport.CloseIdleConnections()
	})
}
