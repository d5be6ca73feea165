package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"birdtrip/pkg/cache"
	"birdtrip/pkg/tracker"
	"birdtrip/pkg/version"
)

var (
	defaultUserAgent = fmt.Sprintf("birdtrip/%s (birding road-trip planner)", version.Version)
)

// ctxKey is unexported to keep context keys collision-free.
type ctxKey int

// CtxProviderLabel overrides the host-derived provider label for
// queueing and stats. LLM clients set it so that multi-host vendors
// still serialize on one queue.
const CtxProviderLabel ctxKey = 1

// ClientConfig tunes retry, pacing and breaker behaviour.
// Zero values fall back to defaults.
type ClientConfig struct {
	Retries          int           // attempts per request, default 3
	Timeout          time.Duration // per-call HTTP timeout, default 30s
	MinInterval      time.Duration // spacing between sends per provider, default 200ms
	BaseDelay        time.Duration // first retry delay, default 1s
	MaxDelay         time.Duration // retry delay cap, default 60s
	BreakerThreshold int           // consecutive failures to open, default 5
	BreakerCooldown  time.Duration // open-circuit duration, default 60s
}

func (c *ClientConfig) applyDefaults() {
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MinInterval <= 0 {
		c.MinInterval = 200 * time.Millisecond
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 60 * time.Second
	}
}

// Client handles HTTP requests with per-provider queuing, pacing,
// caching, retries and circuit breaking.
type Client struct {
	httpClient *http.Client
	cache      cache.Cacher
	tracker    *tracker.Tracker
	cfg        ClientConfig
	breaker    *Breaker

	// Queues and send gates per provider (domain)
	queues map[string]chan job
	gates  map[string]*sendGate
	mu     sync.Mutex // Protects queues and gates maps
}

// job represents a queued request.
type job struct {
	req      *http.Request
	headers  map[string]string
	cacheKey string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// sendGate enforces the minimum spacing between sends to one provider.
type sendGate struct {
	mu   sync.Mutex
	last time.Time
}

func (g *sendGate) wait(ctx context.Context, interval time.Duration) error {
	g.mu.Lock()
	pause := interval - time.Since(g.last)
	if pause > 0 {
		g.mu.Unlock()
		select {
		case <-time.After(pause):
		case <-ctx.Done():
			return ctx.Err()
		}
		g.mu.Lock()
	}
	g.last = time.Now()
	g.mu.Unlock()
	return nil
}

// New creates a new Client.
func New(c cache.Cacher, t *tracker.Tracker, cfg ClientConfig) *Client {
	cfg.applyDefaults()
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      c,
		tracker:    t,
		cfg:        cfg,
		breaker:    NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		queues:     make(map[string]chan job),
		gates:      make(map[string]*sendGate),
	}
}

// Get performs a GET request with queuing and caching if key is provided.
func (c *Client) Get(ctx context.Context, u, cacheKey string) ([]byte, error) {
	return c.GetWithHeaders(ctx, u, nil, cacheKey)
}

// GetWithHeaders performs a GET request with custom headers and optional caching.
func (c *Client) GetWithHeaders(ctx context.Context, u string, headers map[string]string, cacheKey string) ([]byte, error) {
	provider, err := c.providerFor(ctx, u)
	if err != nil {
		return nil, err
	}

	// 1. Check Cache (Only if key is provided)
	if cacheKey != "" {
		if val, hit := c.cache.GetCache(ctx, cacheKey); hit {
			c.tracker.TrackCacheHit(provider)
			slog.Debug("Cache Hit", "provider", provider, "key", cacheKey)
			return val, nil
		}
		c.tracker.TrackCacheMiss(provider)
		slog.Debug("Cache Miss", "provider", provider, "key", cacheKey)
	}

	// 2. Enqueue Request
	req, err := http.NewRequestWithContext(ctx, "GET", u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan jobResult, 1)
	j := job{req: req, headers: headers, cacheKey: cacheKey, respChan: respChan}

	c.dispatch(provider, j)

	// 3. Wait for Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

// Post performs a POST request with queuing.
func (c *Client) Post(ctx context.Context, u string, body []byte, contentType string) ([]byte, error) {
	return c.PostWithHeaders(ctx, u, body, map[string]string{"Content-Type": contentType})
}

// PostWithHeaders performs a POST request with custom headers and queuing.
func (c *Client) PostWithHeaders(ctx context.Context, u string, body []byte, headers map[string]string) ([]byte, error) {
	provider, err := c.providerFor(ctx, u)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	respChan := make(chan jobResult, 1)
	j := job{req: req, headers: headers, respChan: respChan}

	c.dispatch(provider, j)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

func (c *Client) providerFor(ctx context.Context, u string) (string, error) {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	if label, ok := ctx.Value(CtxProviderLabel).(string); ok && label != "" {
		return label, nil
	}
	return normalizeProvider(parsedURL.Host), nil
}

func normalizeProvider(host string) string {
	// Group all eBird subdomains into one "ebird" provider so the
	// send gate paces every observation-service call.
	if strings.HasSuffix(host, ".ebird.org") || host == "ebird.org" {
		return "ebird"
	}
	if strings.HasSuffix(host, "googleapis.com") {
		return "gemini"
	}
	if strings.HasSuffix(host, ".openai.com") || host == "openai.com" {
		return "openai"
	}
	return host
}

// dispatch sends the job to the provider's queue, creating the queue/worker if needed.
func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		// Create new queue and start worker
		q = make(chan job, 100)
		c.queues[provider] = q
		go c.worker(provider, q)
	}
	c.mu.Unlock()

	// We block here if the queue is full, effectively throttling the caller
	select {
	case q <- j:
	case <-j.req.Context().Done():
		// Caller gave up before we could even enqueue
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

// worker processes requests for a specific provider sequentially.
func (c *Client) worker(provider string, q <-chan job) {
	for j := range q {
		// Check context before processing
		if j.req.Context().Err() != nil {
			slog.Warn("Job dropped from queue (context expired)", "provider", provider, "error", j.req.Context().Err())
			j.respChan <- jobResult{err: j.req.Context().Err()}
			continue
		}

		// Fail fast while the circuit is open
		if !c.breaker.Allow(provider) {
			slog.Warn("Request rejected (circuit open)", "provider", provider, "url", j.req.URL)
			j.respChan <- jobResult{err: fmt.Errorf("%s: %w", provider, ErrBreakerOpen)}
			continue
		}

		// Apply User-Agent (Default if not provided)
		uaMatch := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				uaMatch = true
			}
		}
		if !uaMatch {
			j.req.Header.Set("User-Agent", defaultUserAgent)
		}

		body, err := c.executeWithBackoff(provider, j.req)

		if err == nil {
			c.tracker.TrackAPISuccess(provider)
			c.breaker.RecordSuccess(provider)
			// Cache result (Only if key is provided)
			if j.cacheKey != "" {
				if err := c.cache.SetCache(context.Background(), j.cacheKey, body); err != nil {
					slog.Error("Failed to cache response", "url", j.req.URL, "error", err)
				}
			}
		} else {
			c.tracker.TrackAPIFailure(provider)
			if j.req.Context().Err() == nil {
				if opened := c.breaker.RecordFailure(provider); opened {
					c.tracker.TrackBreakerOpen(provider)
					slog.Warn("Circuit opened", "provider", provider, "cooldown", c.cfg.BreakerCooldown)
				}
			}
		}

		j.respChan <- jobResult{body: body, err: err}
	}
}

// executeWithBackoff attempts the request with exponential backoff on retryable errors.
func (c *Client) executeWithBackoff(provider string, req *http.Request) ([]byte, error) {
	gate := c.gate(provider)

	var lastErr error
	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		// Verify context is still alive before dialing
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}

		// Pace sends so the provider never sees a burst
		if err := gate.wait(req.Context(), c.cfg.MinInterval); err != nil {
			return nil, err
		}

		// Rewind the body for replayed attempts
		if attempt > 0 && req.GetBody != nil {
			b, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			req.Body = b
		}

		slog.Debug("Network Request", "host", req.URL.Host, "path", req.URL.Path, "attempt", attempt+1)
		resp, err := c.httpClient.Do(req)

		if err != nil {
			// Check if the error is a context cancellation from OUR side
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}

			// Otherwise, it's a network error or server timeout
			lastErr = err
			slog.Warn("Request failed, retrying", "url", req.URL, "attempt", attempt+1, "error", err)
			if err := c.retrySleep(provider, req, attempt, 0); err != nil {
				return nil, err
			}
			continue
		}

		// Handle Status Codes
		if resp.StatusCode == 429 || (resp.StatusCode >= 500 && resp.StatusCode < 600) {
			if resp.StatusCode == 429 {
				c.tracker.TrackRateLimited(provider)
			}
			retryAfter := retryAfterDelay(resp)
			snippet := readSnippet(resp.Body)
			resp.Body.Close()
			lastErr = &StatusError{Status: resp.StatusCode, URL: req.URL.String(), Body: snippet}

			if attempt == c.cfg.Retries-1 {
				break
			}
			slog.Warn("API Backoff", "status", resp.StatusCode, "url", req.URL, "attempt", attempt+1)
			if err := c.retrySleep(provider, req, attempt, retryAfter); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode >= 400 {
			snippet := readSnippet(resp.Body)
			resp.Body.Close()
			return nil, &StatusError{Status: resp.StatusCode, URL: req.URL.String(), Body: snippet}
		}

		// Success
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return body, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("max retries exceeded")
	}
	return nil, lastErr
}

// retrySleep waits for the attempt's backoff delay, preferring a
// server-provided Retry-After when it is longer.
func (c *Client) retrySleep(provider string, req *http.Request, attempt int, retryAfter time.Duration) error {
	c.tracker.TrackRetry(provider)

	sleepDur := time.Duration(math.Pow(2, float64(attempt))) * c.cfg.BaseDelay
	if sleepDur > c.cfg.MaxDelay {
		sleepDur = c.cfg.MaxDelay
	}
	if retryAfter > sleepDur {
		sleepDur = retryAfter
	}

	select {
	case <-time.After(sleepDur):
		return nil
	case <-req.Context().Done():
		return req.Context().Err()
	}
}

func (c *Client) gate(provider string) *sendGate {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.gates[provider]
	if !ok {
		g = &sendGate{}
		c.gates[provider] = g
	}
	return g
}

// retryAfterDelay parses a Retry-After header (seconds or HTTP date).
func retryAfterDelay(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// readSnippet returns the first part of an error body for diagnostics.
func readSnippet(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
