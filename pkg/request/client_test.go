package request

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"birdtrip/pkg/cache"
	"birdtrip/pkg/tracker"
)

// fastConfig keeps retry/pacing delays tiny so tests stay quick.
func fastConfig() ClientConfig {
	return ClientConfig{
		Retries:     3,
		Timeout:     5 * time.Second,
		MinInterval: time.Millisecond,
		BaseDelay:   5 * time.Millisecond,
		MaxDelay:    50 * time.Millisecond,
	}
}

func TestGet_Sequential(t *testing.T) {
	// Mock Server using simple handler that sleeps to prove sequential execution
	var conc int32
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt32(&conc, 1)
		defer atomic.AddInt32(&conc, -1)

		if current > 1 {
			// If concurrent > 1, the queue didn't work (for same provider)
			t.Errorf("Concurrency detected! Expected sequential.")
		}
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(200)
		if _, err := w.Write([]byte("ok")); err != nil {
			t.Logf("Write failed: %v", err)
		}
	}))
	defer svr.Close()

	client := New(cache.NewMemory(), tracker.New(), fastConfig())

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := client.Get(context.Background(), svr.URL, "")
			if err != nil {
				t.Errorf("Get failed: %v", err)
			}
		}()
	}
	for i := 0; i < 3; i++ {
		<-done
	}
}

func TestGet_Retry(t *testing.T) {
	attempts := 0
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(429) // Too Many Requests
			return
		}
		w.WriteHeader(200)
		if _, err := w.Write([]byte("success")); err != nil {
			t.Logf("Write failed: %v", err)
		}
	}))
	defer svr.Close()

	client := New(cache.NewMemory(), tracker.New(), fastConfig())

	body, err := client.Get(context.Background(), svr.URL, "")
	if err != nil {
		t.Fatalf("Expected success after retry, got error: %v", err)
	}
	if string(body) != "success" {
		t.Errorf("Expected 'success', got '%s'", string(body))
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestGet_RetryAfterHonored(t *testing.T) {
	attempts := 0
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(429)
			return
		}
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	}))
	defer svr.Close()

	client := New(cache.NewMemory(), tracker.New(), fastConfig())

	start := time.Now()
	_, err := client.Get(context.Background(), svr.URL, "")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 900*time.Millisecond {
		t.Errorf("Retry-After ignored: retried after %v, want >= ~1s", elapsed)
	}
}

func TestGet_ClientErrorNotRetried(t *testing.T) {
	attempts := 0
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "no such location", http.StatusNotFound)
	}))
	defer svr.Close()

	client := New(cache.NewMemory(), tracker.New(), fastConfig())

	_, err := client.Get(context.Background(), svr.URL, "")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Expected StatusError, got %T: %v", err, err)
	}
	if se.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", se.Status)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound() = false, want true")
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (4xx must not retry), got %d", attempts)
	}
}

func TestGet_AuthError(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusForbidden)
	}))
	defer svr.Close()

	client := New(cache.NewMemory(), tracker.New(), fastConfig())

	_, err := client.Get(context.Background(), svr.URL, "")
	if !IsAuth(err) {
		t.Errorf("IsAuth() = false for 403 response, want true (err: %v)", err)
	}
}

func TestGet_BreakerOpens(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer svr.Close()

	cfg := fastConfig()
	cfg.Retries = 1
	cfg.BreakerThreshold = 2
	cfg.BreakerCooldown = time.Minute

	tr := tracker.New()
	client := New(cache.NewMemory(), tr, cfg)

	// Two failing requests trip the breaker.
	for i := 0; i < 2; i++ {
		if _, err := client.Get(context.Background(), svr.URL, ""); err == nil {
			t.Fatal("Expected failure from 500 response")
		}
	}

	// Third request must fail fast without hitting the server.
	_, err := client.Get(context.Background(), svr.URL, "")
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Expected ErrBreakerOpen, got: %v", err)
	}

	snap := tr.Snapshot()
	for provider, stats := range snap {
		if stats.BreakerOpens != 1 {
			t.Errorf("provider %s: BreakerOpens = %d, want 1", provider, stats.BreakerOpens)
		}
	}
}

func TestGet_MinIntervalPacing(t *testing.T) {
	var stamps []time.Time
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stamps = append(stamps, time.Now())
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	}))
	defer svr.Close()

	cfg := fastConfig()
	cfg.MinInterval = 60 * time.Millisecond
	client := New(cache.NewMemory(), tracker.New(), cfg)

	for i := 0; i < 3; i++ {
		if _, err := client.Get(context.Background(), svr.URL, ""); err != nil {
			t.Fatalf("Get failed: %v", err)
		}
	}

	if len(stamps) != 3 {
		t.Fatalf("Expected 3 requests, got %d", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if gap := stamps[i].Sub(stamps[i-1]); gap < 50*time.Millisecond {
			t.Errorf("Requests %d and %d only %v apart, want >= ~60ms", i-1, i, gap)
		}
	}
}

func TestGet_CacheHit(t *testing.T) {
	calls := 0
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(200)
		_, _ = w.Write([]byte("fresh"))
	}))
	defer svr.Close()

	tr := tracker.New()
	client := New(cache.NewMemory(), tr, fastConfig())

	for i := 0; i < 2; i++ {
		body, err := client.Get(context.Background(), svr.URL, "same_key")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(body) != "fresh" {
			t.Errorf("Body = %q, want 'fresh'", string(body))
		}
	}

	if calls != 1 {
		t.Errorf("Server called %d times, want 1 (second call should hit cache)", calls)
	}
}

func TestProviderLabelOverride(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	}))
	defer svr.Close()

	tr := tracker.New()
	client := New(cache.NewMemory(), tr, fastConfig())

	ctx := context.WithValue(context.Background(), CtxProviderLabel, "openai")
	if _, err := client.Get(ctx, svr.URL, ""); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	snap := tr.Snapshot()
	if stats, ok := snap["openai"]; !ok || stats.APISuccess != 1 {
		t.Errorf("Expected stats under provider label 'openai', got %+v", snap)
	}
}
