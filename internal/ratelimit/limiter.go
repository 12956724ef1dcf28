package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/podguard/internal/clock"
	"github.com/ppiankov/podguard/internal/model"
)

// sweepEvery bounds how many Allow calls pass between expired-window sweeps.
const sweepEvery = 1024

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Channel  model.Channel
	Current  int
	Limit    int
	Reason   string
}

// Rule returns the decision rule id for an exceeded check.
func (r CheckResult) Rule() string {
	return fmt.Sprintf("ratelimit.%s_exceeded", r.Channel)
}

// Check compares the current count against the limit.
func Check(count int, limit *Limit) CheckResult {
	if !limit.enabled() {
		return CheckResult{}
	}
	if count >= limit.MaxRequests {
		return CheckResult{
			Exceeded: true,
			Current:  count,
			Limit:    limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d requests in %s window",
				count, limit.MaxRequests, limit.Window),
		}
	}
	return CheckResult{}
}

type key struct {
	session string
	channel model.Channel
}

// window is a fixed counting window for one session and channel.
type window struct {
	start time.Time
	count int
	span  time.Duration
}

// Limiter counts checks per session and channel in fixed windows.
// Safe for concurrent use.
type Limiter struct {
	clock clock.Clock

	mu      sync.Mutex
	cfg     Config
	windows map[key]*window
	calls   int
}

// New creates a Limiter. A nil or empty cfg never limits.
func New(cfg Config, clk clock.Clock) *Limiter {
	if clk == nil {
		clk = clock.Real()
	}
	return &Limiter{clock: clk, cfg: cfg, windows: make(map[key]*window)}
}

// Allow records a check for sessionID on ch unless the channel's budget
// for the current window is spent. Denied checks are not counted.
func (l *Limiter) Allow(sessionID string, ch model.Channel) CheckResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.cfg[ch]
	if !limit.enabled() {
		return CheckResult{}
	}
	now := l.clock.Now()

	l.calls++
	if l.calls%sweepEvery == 0 {
		l.sweep(now)
	}

	k := key{sessionID, ch}
	w := l.windows[k]
	if w == nil || now.Sub(w.start) >= limit.Window {
		w = &window{start: now, span: limit.Window}
		l.windows[k] = w
	}

	result := Check(w.count, limit)
	if result.Exceeded {
		result.Channel = ch
		return result
	}
	w.count++
	return CheckResult{}
}

// Forget drops every window held for sessionID.
func (l *Limiter) Forget(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.windows {
		if k.session == sessionID {
			delete(l.windows, k)
		}
	}
}

// Replace swaps the limits. Open windows keep their counts.
func (l *Limiter) Replace(cfg Config) {
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
}

// Len returns the number of open windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *Limiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= w.span {
			delete(l.windows, k)
		}
	}
}
