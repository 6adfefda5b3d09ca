package httpx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"os"
	"time"

	"healthwatch/internal/errs"
	"healthwatch/internal/redact"
)

// RequestOptions describes a single outbound request.
type RequestOptions struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration

	Proxy    string
	Insecure bool

	Pool       *Pool
	ProxyCache *ProxyCache

	// Env resolves proxy environment variables; defaults to os.Getenv.
	Env func(string) string

	// Logger receives one structured record per completed request when
	// Debug is set.
	Debug  bool
	Logger *slog.Logger
}

// Response is the fully-read result of a request.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Do issues the request and reads the body to completion.
//
// When Timeout > 0 the request runs under its own deadline and a late
// response surfaces as *errs.TimeoutError. Cancellation of ctx is
// passed through unchanged so callers can tell shutdown from timeout.
func Do(ctx context.Context, opts RequestOptions) (*Response, error) {
	target, err := url.Parse(opts.URL)
	if err != nil {
		return nil, &errs.UnsupportedProtocolError{Scheme: opts.URL}
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, &errs.UnsupportedProtocolError{Scheme: target.Scheme}
	}

	env := opts.Env
	if env == nil {
		env = os.Getenv
	}
	proxy, err := ResolveProxy(opts.Proxy, target.Scheme, env)
	if err != nil {
		return nil, err
	}

	transport, ephemeral := selectTransport(opts, target, proxy)
	if ephemeral {
		defer transport.CloseIdleConnections()
	}

	var timeoutErr *errs.TimeoutError
	if opts.Timeout > 0 {
		timeoutErr = &errs.TimeoutError{Timeout: opts.Timeout}
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadlineCause(ctx, time.Now().Add(opts.Timeout), timeoutErr)
		defer cancel()
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(opts.Body) > 0 {
		body = bytes.NewReader(opts.Body)
	}

	start := time.Now()
	var rec *traceRecorder
	if opts.Debug {
		rec = newTraceRecorder(start)
		ctx = httptrace.WithClientTrace(ctx, rec.clientTrace())
	}

	req, err := http.NewRequestWithContext(ctx, method, opts.URL, body)
	if err != nil {
		return nil, err
	}
	headerBytes := 0
	for name, value := range opts.Headers {
		req.Header.Set(name, value)
		headerBytes += len(name) + len(value) + 4
	}

	client := &http.Client{Transport: transport}
	resp, err := client.Do(req)
	if err != nil {
		err = resolveCancelCause(ctx, err, timeoutErr)
		debugLog(opts, rec, start, proxy, 0, -1, err)
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		err = resolveCancelCause(ctx, err, timeoutErr)
		debugLog(opts, rec, start, proxy, headerBytes, resp.ContentLength, err)
		return nil, err
	}

	debugLog(opts, rec, start, proxy, headerBytes, resp.ContentLength, nil)
	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       payload,
	}, nil
}

// selectTransport picks the dispatcher: proxy cache when a proxy was
// resolved, the keep-alive pool otherwise, an ephemeral transport when
// neither collaborator is supplied.
func selectTransport(opts RequestOptions, target, proxy *url.URL) (t *http.Transport, ephemeral bool) {
	if proxy != nil {
		if opts.ProxyCache != nil {
			return opts.ProxyCache.Transport(proxy, opts.Insecure), false
		}
		return newTransport(PoolOptions{}.withDefaults(), proxy, opts.Insecure), true
	}
	if opts.Pool != nil {
		return opts.Pool.Transport(target.Scheme), false
	}
	return newTransport(PoolOptions{}.withDefaults(), nil, opts.Insecure && target.Scheme == "https"), true
}

// resolveCancelCause maps a transport error onto the taxonomy: the
// internal deadline becomes TimeoutError, caller cancellation keeps its
// own cause.
func resolveCancelCause(ctx context.Context, err error, timeoutErr *errs.TimeoutError) error {
	if ctx.Err() == nil {
		return err
	}
	cause := context.Cause(ctx)
	if timeoutErr != nil && errors.Is(cause, timeoutErr) {
		return timeoutErr
	}
	if cause != nil {
		return cause
	}
	return err
}

func debugLog(opts RequestOptions, rec *traceRecorder, start time.Time, proxy *url.URL, headerBytes int, contentLength int64, reqErr error) {
	if !opts.Debug || rec == nil {
		return
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	totalMS := float64(time.Since(start).Microseconds()) / 1000
	attrs := []any{slog.String("url", redact.URLCredentials(opts.URL))}
	if proxy != nil {
		attrs = append(attrs, slog.String("proxy", redact.URLCredentials(proxy.String())))
	}
	attrs = append(attrs, rec.logAttrs(totalMS)...)
	if headerBytes > 0 {
		attrs = append(attrs, slog.Int("request_header_bytes", headerBytes))
	}
	if contentLength >= 0 {
		attrs = append(attrs, slog.Int64("content_length", contentLength))
	}
	if reqErr != nil {
		attrs = append(attrs, slog.String("error", reqErr.Error()))
		logger.Debug("probe request failed", attrs...)
		return
	}
	logger.Debug("probe request completed", attrs...)
}
