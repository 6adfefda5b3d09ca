package httpx

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// ResolveProxy picks the proxy for a request: explicit configuration
// first, then HTTPS_PROXY/HTTP_PROXY from env according to the target
// scheme. Values are trimmed; empty means absent. A nil return means
// direct connection.
func ResolveProxy(explicit, scheme string, env func(string) string) (*url.URL, error) {
	candidates := []string{strings.TrimSpace(explicit)}
	if env != nil {
		if scheme == "https" {
			candidates = append(candidates, strings.TrimSpace(env("HTTPS_PROXY")))
		}
		candidates = append(candidates, strings.TrimSpace(env("HTTP_PROXY")))
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		u, err := url.Parse(c)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url %q: %w", c, err)
		}
		return u, nil
	}
	return nil, nil
}

// ProxyCache reuses one transport per {proxy URL, insecure} pair so
// proxied probes share connections the way direct ones share the pool.
type ProxyCache struct {
	opts PoolOptions

	mu         sync.Mutex
	transports map[string]*http.Transport
}

// NewProxyCache creates an empty cache using the given transport tuning.
func NewProxyCache(opts PoolOptions) *ProxyCache {
	return &ProxyCache{
		opts:       opts.withDefaults(),
		transports: make(map[string]*http.Transport),
	}
}

// Transport fetches or creates the transport for the proxy.
func (c *ProxyCache) Transport(proxy *url.URL, insecure bool) *http.Transport {
	key := fmt.Sprintf("%s|%t", proxy.String(), insecure)

	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.transports[key]; ok {
		return t
	}
	t := newTransport(c.opts, proxy, insecure)
	c.transports[key] = t
	return t
}

// Close drains every cached transport.
func (c *ProxyCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.transports {
		t.CloseIdleConnections()
	}
}
