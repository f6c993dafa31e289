package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

const maxPayloadSize = 16 << 20

type Options struct {
	BaseURL          string
	Client           *http.Client
	Agents           []string
	DelayMin         time.Duration
	DelayMax         time.Duration
	Timeout          time.Duration
	RateLimit        BackoffPolicy
	Network          BackoffPolicy
	SoftBlockMarkers []string
	ContentMarker    string // present in every genuine page; empty disables the check
	Clock            Clock
	Rand             *rand.Rand
}

// Fetcher retrieves search pages. Requests are serialized and separated by a
// randomized politeness delay, including retries.
type Fetcher struct {
	baseURL   string
	client    *http.Client
	agents    []string
	delayMin  time.Duration
	delayMax  time.Duration
	timeout   time.Duration
	rateLimit BackoffPolicy
	network   BackoffPolicy
	markers   [][]byte
	content   []byte
	clock     Clock
	rnd       *rand.Rand

	mu   sync.Mutex
	last time.Time
}

func New(opts Options) *Fetcher {
	f := &Fetcher{
		baseURL:   opts.BaseURL,
		client:    opts.Client,
		agents:    opts.Agents,
		delayMin:  opts.DelayMin,
		delayMax:  opts.DelayMax,
		timeout:   opts.Timeout,
		rateLimit: opts.RateLimit,
		network:   opts.Network,
		clock:     opts.Clock,
		rnd:       opts.Rand,
	}

	if f.client == nil {
		f.client = &http.Client{}
	}
	if len(f.agents) == 0 {
		f.agents = DefaultAgents
	}
	if f.timeout <= 0 {
		f.timeout = 30 * time.Second
	}
	if f.delayMax < f.delayMin {
		f.delayMax = f.delayMin
	}
	if f.clock == nil {
		f.clock = SystemClock{}
	}
	if f.rnd == nil {
		f.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	markers := opts.SoftBlockMarkers
	if markers == nil {
		markers = DefaultSoftBlockMarkers
	}
	for _, m := range markers {
		f.markers = append(f.markers, bytes.ToLower([]byte(m)))
	}

	if opts.ContentMarker != "" {
		f.content = []byte(opts.ContentMarker)
	}

	return f
}

// Pacing is the part of the fetcher that follows the search configuration.
type Pacing struct {
	DelayMin  time.Duration
	DelayMax  time.Duration
	Timeout   time.Duration
	RateLimit BackoffPolicy
	Network   BackoffPolicy
}

// SetPacing applies reloaded delays and retry budgets. It waits for an in-flight request.
func (f *Fetcher) SetPacing(p Pacing) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.delayMin = p.DelayMin
	f.delayMax = max(p.DelayMax, p.DelayMin)
	if p.Timeout > 0 {
		f.timeout = p.Timeout
	}
	f.rateLimit = p.RateLimit
	f.network = p.Network
}

// Fetch returns the raw search page for q.
func (f *Fetcher) Fetch(ctx context.Context, q Query) ([]byte, error) {
	target, err := q.URL(f.baseURL)
	if err != nil {
		return nil, err
	}
	return f.Get(ctx, target)
}

// Get retrieves target, retrying rate limits and network failures on separate budgets.
func (f *Fetcher) Get(ctx context.Context, target string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rateLimit := f.rateLimit.New()
	network := f.network.New()
	attempts := 0

	for {
		if err := f.politenessWait(ctx); err != nil {
			return nil, err
		}

		attempts++
		body, status, reqErr := f.do(ctx, target)
		f.last = f.clock.Now()

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var kind Kind
		switch {
		case reqErr != nil:
			kind = KindNetwork
		case status == http.StatusOK && f.softBlocked(body):
			kind = KindRateLimited
		case status == http.StatusOK:
			slog.Debug("Page fetched", "url", target, "attempts", attempts, "bytes", len(body))
			return body, nil
		case status == http.StatusTooManyRequests:
			kind = KindRateLimited
		case status == http.StatusForbidden:
			kind = KindBlocked
		case status >= http.StatusInternalServerError:
			kind = KindNetwork
		default:
			return nil, &Error{Kind: KindUnexpectedStatus, Status: status, Attempts: attempts}
		}

		budget := rateLimit
		if kind == KindNetwork {
			budget = network
		}

		delay, ok := budget.Next()
		if !ok {
			return nil, &Error{Kind: kind, Status: status, Attempts: attempts, Err: reqErr}
		}

		slog.Warn("Request failed, retrying",
			"url", target,
			"kind", string(kind),
			"status", status,
			"retry", budget.Attempts(),
			"delay", delay.String(),
			"error", reqErr)

		if err := f.clock.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (f *Fetcher) do(ctx context.Context, target string) ([]byte, int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	agent := applyIdentity(req, f.agents, f.rnd)
	slog.Debug("Issuing request", "url", target, "user_agent", agent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadSize))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, resp.StatusCode, nil
}

// politenessWait holds the next request until a random delay in
// [delayMin, delayMax] has passed since the previous one.
func (f *Fetcher) politenessWait(ctx context.Context) error {
	if f.last.IsZero() || f.delayMax <= 0 {
		return nil
	}

	gap := f.delayMin
	if spread := f.delayMax - f.delayMin; spread > 0 {
		gap += time.Duration(f.rnd.Int63n(int64(spread) + 1))
	}

	elapsed := f.clock.Now().Sub(f.last)
	if elapsed >= gap {
		return nil
	}

	wait := gap - elapsed
	slog.Debug("Politeness delay", "wait", wait.String())
	return f.clock.Sleep(ctx, wait)
}

// softBlocked detects challenge pages served with a 200 status.
func (f *Fetcher) softBlocked(body []byte) bool {
	if len(f.markers) == 0 {
		return false
	}
	if f.content != nil && bytes.Contains(body, f.content) {
		return false
	}
	lower := bytes.ToLower(body)
	for _, m := range f.markers {
		if bytes.Contains(lower, m) {
			return true
		}
	}
	return false
}
