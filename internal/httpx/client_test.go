package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthwatch/internal/errs"
)

func TestDoSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "probe", r.Header.Get("X-Requested-By"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	pool := NewPool(PoolOptions{}, false)
	defer pool.Destroy()

	resp, err := Do(context.Background(), RequestOptions{
		URL:     srv.URL,
		Headers: map[string]string{"X-Requested-By": "probe"},
		Timeout: time.Second,
		Pool:    pool,
		Env:     func(string) string { return "" },
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Body))
}

func TestDoRejectsUnsupportedProtocol(t *testing.T) {
	_, err := Do(context.Background(), RequestOptions{URL: "ftp://example.com/health"})
	var protoErr *errs.UnsupportedProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, "ftp", protoErr.Scheme)
}

func TestDoTimeoutDiscrimination(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	_, err := Do(context.Background(), RequestOptions{
		URL:     srv.URL,
		Timeout: 30 * time.Millisecond,
		Env:     func(string) string { return "" },
	})
	var timeoutErr *errs.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 30*time.Millisecond, timeoutErr.Timeout)
}

func TestDoExternalCancelWins(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	cause := errors.New("operator shutdown")
	ctx, cancel := context.WithCancelCause(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel(cause)
	}()

	_, err := Do(ctx, RequestOptions{
		URL:     srv.URL,
		Timeout: 5 * time.Second,
		Env:     func(string) string { return "" },
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	var timeoutErr *errs.TimeoutError
	assert.False(t, errors.As(err, &timeoutErr))
}

func TestResolveProxyPrecedence(t *testing.T) {
	env := func(vars map[string]string) func(string) string {
		return func(name string) string { return vars[name] }
	}

	u, err := ResolveProxy("http://explicit:3128", "https", env(map[string]string{
		"HTTPS_PROXY": "http://https-proxy:3128",
		"HTTP_PROXY":  "http://http-proxy:3128",
	}))
	require.NoError(t, err)
	assert.Equal(t, "http://explicit:3128", u.String())

	u, err = ResolveProxy("", "https", env(map[string]string{
		"HTTPS_PROXY": "http://https-proxy:3128",
		"HTTP_PROXY":  "http://http-proxy:3128",
	}))
	require.NoError(t, err)
	assert.Equal(t, "http://https-proxy:3128", u.String())

	u, err = ResolveProxy("", "https", env(map[string]string{
		"HTTP_PROXY": "http://http-proxy:3128",
	}))
	require.NoError(t, err)
	assert.Equal(t, "http://http-proxy:3128", u.String())

	u, err = ResolveProxy("", "http", env(map[string]string{
		"HTTPS_PROXY": "http://https-proxy:3128",
	}))
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = ResolveProxy("   ", "http", env(map[string]string{
		"HTTP_PROXY": "  ",
	}))
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestProxyCacheReusesTransports(t *testing.T) {
	cache := NewProxyCache(PoolOptions{})
	defer cache.Close()

	p1, err := ResolveProxy("http://proxy:3128", "http", nil)
	require.NoError(t, err)

	t1 := cache.Transport(p1, false)
	t2 := cache.Transport(p1, false)
	assert.Same(t, t1, t2)

	t3 := cache.Transport(p1, true)
	assert.NotSame(t, t1, t3)
}

func TestPoolRoutesByScheme(t *testing.T) {
	pool := NewPool(PoolOptions{}, false)
	defer pool.Destroy()

	assert.NotSame(t, pool.Transport("http"), pool.Transport("https"))
	assert.Same(t, pool.Transport("https"), pool.Transport("https"))
}

func TestPoolCloseIdempotent(t *testing.T) {
	pool := NewPool(PoolOptions{}, false)
	pool.Close()
	pool.Close()
	pool.Destroy()
	pool.Destroy()
}

func TestInsecurePoolSkipsVerification(t *testing.T) {
	pool := NewPool(PoolOptions{}, true)
	defer pool.Destroy()

	httpsTransport := pool.Transport("https")
	require.NotNil(t, httpsTransport.TLSClientConfig)
	assert.True(t, httpsTransport.TLSClientConfig.InsecureSkipVerify)

	httpTransport := pool.Transport("http")
	assert.Nil(t, httpTransport.TLSClientConfig)
}
