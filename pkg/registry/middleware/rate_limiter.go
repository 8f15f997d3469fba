package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	minLimit  = 0.1
	backOffBy = 2.0
	recoverBy = 1.5
)

// RateLimiters limits requests per registry host. A host that answers
// `429 Too Many Requests` gets its limit halved (once per
// RoundTripper, so concurrent requests don't compound it); Recover
// raises it again towards RPS after a successful operation.
type RateLimiters struct {
	RPS    float64
	Burst  int
	Logger log.Logger

	mu      sync.Mutex
	perHost map[string]*rate.Limiter
}

// limiterFor must be called with mu held.
func (rl *RateLimiters) limiterFor(host string) *rate.Limiter {
	if rl.perHost == nil {
		rl.perHost = map[string]*rate.Limiter{}
	}
	limiter, ok := rl.perHost[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.RPS), rl.Burst)
		rl.perHost[host] = limiter
	}
	return limiter
}

func (rl *RateLimiters) clip(limit float64) float64 {
	switch {
	case limit < minLimit:
		return minLimit
	case limit > rl.RPS:
		return rl.RPS
	}
	return limit
}

func (rl *RateLimiters) adjust(host string, by float64, verb string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	limiter := rl.limiterFor(host)
	oldLimit := float64(limiter.Limit())
	newLimit := rl.clip(oldLimit * by)
	if newLimit != oldLimit && rl.Logger != nil {
		rl.Logger.Log("info", verb+" rate limit", "host", host, "limit", strconv.FormatFloat(newLimit, 'f', 2, 64))
	}
	limiter.SetLimit(rate.Limit(newLimit))
}

func (rl *RateLimiters) backOff(host string) {
	rl.adjust(host, 1/backOffBy, "reducing")
}

// Recover should be called when an operation against host has
// succeeded.
func (rl *RateLimiters) Recover(host string) {
	rl.mu.Lock()
	_, seen := rl.perHost[host]
	rl.mu.Unlock()
	if seen {
		rl.adjust(host, recoverBy, "increasing")
	}
}

// Limit reports the current limit for host, in requests per second.
func (rl *RateLimiters) Limit(host string) float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return float64(rl.limiterFor(host).Limit())
}

// RoundTripper wraps rt so that requests to host are rate limited.
func (rl *RateLimiters) RoundTripper(rt http.RoundTripper, host string) http.RoundTripper {
	rl.mu.Lock()
	limiter := rl.limiterFor(host)
	rl.mu.Unlock()

	var once sync.Once
	return &roundTripRateLimiter{
		rl: limiter,
		tx: rt,
		slowDown: func() {
			once.Do(func() { rl.backOff(host) })
		},
	}
}

type roundTripRateLimiter struct {
	rl       *rate.Limiter
	tx       http.RoundTripper
	slowDown func()
}

func (t *roundTripRateLimiter) RoundTrip(r *http.Request) (*http.Response, error) {
	// Wait fails straight away if the context deadline would pass
	// before a token is available.
	if err := t.rl.Wait(r.Context()); err != nil {
		return nil, errors.Wrap(err, "rate limited")
	}
	resp, err := t.tx.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		t.slowDown()
	}
	return resp, nil
}
