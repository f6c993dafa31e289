package transport

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lysyi3m/auto-comb/app/listing"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

var _ Clock = (*fakeClock)(nil)

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func newTestFetcher(baseURL string, clock Clock, opts Options) *Fetcher {
	opts.BaseURL = baseURL
	opts.Clock = clock
	opts.Rand = rand.New(rand.NewSource(1))
	return New(opts)
}

func TestFetcherSuccess(t *testing.T) {
	var gotAgent, gotLang, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		gotPath = r.URL.Path
		w.Write([]byte("<html>ok</html>"))
	}))
	defer server.Close()

	f := newTestFetcher(server.URL, newFakeClock(), Options{})

	body, err := f.Fetch(context.Background(), Query{Brand: "Mazda", Model: "2", MaxPrice: 3000})
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "<html>ok</html>" {
		t.Errorf("Unexpected body: %s", body)
	}
	if gotPath != "/recherche" {
		t.Errorf("Expected path '/recherche', got '%s'", gotPath)
	}

	found := false
	for _, agent := range DefaultAgents {
		if agent == gotAgent {
			found = true
		}
	}
	if !found {
		t.Errorf("User-Agent %q is not from the pool", gotAgent)
	}
	if !strings.HasPrefix(gotLang, "fr-FR") {
		t.Errorf("Expected French Accept-Language, got '%s'", gotLang)
	}
}

func TestFetcherRateLimitBackoff(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	clock := newFakeClock()
	f := newTestFetcher(server.URL, clock, Options{
		RateLimit: BackoffPolicy{Base: 10 * time.Second, Max: 30 * time.Second, Factor: 2, Attempts: 3},
		Network:   BackoffPolicy{Base: time.Second, Linear: true, Attempts: 5},
	})

	_, err := f.Get(context.Background(), server.URL)
	if !IsKind(err, KindRateLimited) {
		t.Fatalf("Expected rate limited error, got %v", err)
	}

	if got := atomic.LoadInt32(&requests); got != 4 {
		t.Errorf("Expected 4 requests (1 + 3 retries), got %d", got)
	}

	want := []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second}
	sleeps := clock.Sleeps()
	if len(sleeps) != len(want) {
		t.Fatalf("Expected %d sleeps, got %v", len(want), sleeps)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("Sleep %d: expected %v, got %v", i, want[i], sleeps[i])
		}
	}
}

func TestFetcherRecoversAfterRateLimit(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("page"))
	}))
	defer server.Close()

	f := newTestFetcher(server.URL, newFakeClock(), Options{
		RateLimit: BackoffPolicy{Base: time.Second, Factor: 2, Attempts: 2},
	})

	body, err := f.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "page" {
		t.Errorf("Expected 'page', got '%s'", body)
	}
}

func TestFetcherSoftBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><script src="https://ct.captcha-delivery.com/c.js"></script></html>`))
	}))
	defer server.Close()

	f := newTestFetcher(server.URL, newFakeClock(), Options{
		RateLimit:     BackoffPolicy{Base: time.Second, Factor: 2, Attempts: 1},
		ContentMarker: "__NEXT_DATA__",
	})

	_, err := f.Get(context.Background(), server.URL)
	if !IsKind(err, KindRateLimited) {
		t.Errorf("Expected soft block to surface as rate limited, got %v", err)
	}
}

func TestFetcherContentMarkerOverridesSoftBlock(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<script src="datadome.js"></script><script id="__NEXT_DATA__">{}</script>`))
	}))
	defer server.Close()

	f := newTestFetcher(server.URL, newFakeClock(), Options{ContentMarker: "__NEXT_DATA__"})

	if _, err := f.Get(context.Background(), server.URL); err != nil {
		t.Errorf("Expected genuine page to pass, got %v", err)
	}
}

func TestFetcherBlocked(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f := newTestFetcher(server.URL, newFakeClock(), Options{
		RateLimit: BackoffPolicy{Base: time.Second, Factor: 2, Attempts: 2},
	})

	_, err := f.Get(context.Background(), server.URL)
	if !IsKind(err, KindBlocked) {
		t.Fatalf("Expected blocked error, got %v", err)
	}
	var tErr *Error
	if !errors.As(err, &tErr) || tErr.Status != http.StatusForbidden || tErr.Attempts != 3 {
		t.Errorf("Unexpected error details: %+v", tErr)
	}
}

func TestFetcherServerErrorUsesNetworkBudget(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	clock := newFakeClock()
	f := newTestFetcher(server.URL, clock, Options{
		RateLimit: BackoffPolicy{Base: time.Minute, Factor: 2, Attempts: 5},
		Network:   BackoffPolicy{Base: 5 * time.Second, Linear: true, Attempts: 2},
	})

	_, err := f.Get(context.Background(), server.URL)
	if !IsKind(err, KindNetwork) {
		t.Fatalf("Expected network error, got %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != 3 {
		t.Errorf("Expected 3 requests, got %d", got)
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != 5*time.Second || sleeps[1] != 10*time.Second {
		t.Errorf("Expected linear sleeps [5s 10s], got %v", sleeps)
	}
}

func TestFetcherConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	f := newTestFetcher(url, newFakeClock(), Options{
		Network: BackoffPolicy{Base: time.Second, Linear: true, Attempts: 1},
	})

	_, err := f.Get(context.Background(), url)
	if !IsKind(err, KindNetwork) {
		t.Errorf("Expected network error, got %v", err)
	}
}

func TestFetcherUnexpectedStatus(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := newTestFetcher(server.URL, newFakeClock(), Options{
		RateLimit: BackoffPolicy{Base: time.Second, Factor: 2, Attempts: 3},
		Network:   BackoffPolicy{Base: time.Second, Linear: true, Attempts: 3},
	})

	body, err := f.Get(context.Background(), server.URL)
	if body != nil {
		t.Error("A non-200 response must never produce a payload")
	}
	if !IsKind(err, KindUnexpectedStatus) {
		t.Errorf("Expected unexpected status error, got %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != 1 {
		t.Errorf("Expected no retries, got %d requests", got)
	}
}

func TestFetcherPolitenessDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	clock := newFakeClock()
	f := newTestFetcher(server.URL, clock, Options{DelayMin: 5 * time.Second, DelayMax: 10 * time.Second})

	for i := 0; i < 3; i++ {
		if _, err := f.Get(context.Background(), server.URL); err != nil {
			t.Fatal(err)
		}
	}

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("Expected a politeness wait between each pair of requests, got %v", sleeps)
	}
	for _, d := range sleeps {
		if d < 5*time.Second || d > 10*time.Second {
			t.Errorf("Politeness delay %v outside [5s, 10s]", d)
		}
	}
}

func TestFetcherHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(server.URL, newFakeClock(), Options{
		RateLimit: BackoffPolicy{Base: time.Second, Factor: 2, Attempts: 3},
	})

	if _, err := f.Get(ctx, server.URL); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestQueryURL(t *testing.T) {
	q := Query{
		Brand:        "Citroën",
		Model:        "C3",
		MaxPrice:     3000,
		MaxMileage:   150000,
		MinYear:      2008,
		Fuel:         listing.FuelPetrol,
		Transmission: listing.TransmissionManual,
	}

	got, err := q.URL("https://www.leboncoin.fr/")
	if err != nil {
		t.Fatal(err)
	}

	for _, part := range []string{
		"https://www.leboncoin.fr/recherche?",
		"category=2",
		"brand=citroen",
		"model=c3",
		"price=0-3000",
		"mileage=0-150000",
		"regdate=2008-max",
		"fuel=1",
		"gearbox=1",
		"sort=time",
	} {
		if !strings.Contains(got, part) {
			t.Errorf("Expected URL to contain %q, got %s", part, got)
		}
	}

	if _, err := (Query{}).URL("not a url"); err == nil {
		t.Error("Expected error for invalid base URL")
	}
}
