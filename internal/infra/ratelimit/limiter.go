// Package ratelimit provides the per-bot send-admission check the worker
// pool consults before every BotSendAPI call.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter tracks one sliding-window admission gate per bot index, grounded
// on the token-bucket idea in internal/infra/throttle.Throttler but
// simplified to a non-blocking admit() check: the worker pool needs a bool
// it can act on immediately (retry with backoff), not a blocking Do.
// golang.org/x/time/rate.Limiter already implements the sliding-window
// token bucket; each bot gets its own so one noisy bot cannot starve
// another's budget.
type Limiter struct {
	mu       sync.Mutex
	perBot   map[int]*botState
	messages int
	window   time.Duration
}

type botState struct {
	limiter        *rate.Limiter
	rateLimitUntil time.Time
}

// New builds a Limiter admitting at most messages sends per window for
// every bot, each tracked independently.
func New(messages int, window time.Duration) *Limiter {
	if messages <= 0 {
		messages = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{perBot: map[int]*botState{}, messages: messages, window: window}
}

// Admit reports whether botIndex may send now. It is O(1) amortized and
// never blocks: a denial means the caller should back off and retry later.
func (l *Limiter) Admit(botIndex int) bool {
	state := l.stateFor(botIndex)

	l.mu.Lock()
	until := state.rateLimitUntil
	l.mu.Unlock()
	if time.Now().Before(until) {
		return false
	}

	return state.limiter.Allow()
}

// SetFloodWait records a server-issued retry-after for botIndex: Admit
// returns false until retryAfter has elapsed, regardless of the underlying
// token bucket's state.
func (l *Limiter) SetFloodWait(botIndex int, retryAfter time.Duration) {
	state := l.stateFor(botIndex)
	l.mu.Lock()
	state.rateLimitUntil = time.Now().Add(retryAfter)
	l.mu.Unlock()
}

// Sweep clears any expired flood-wait overrides. rate.Limiter's token bucket
// needs no periodic maintenance of its own (Allow lazily accounts for
// elapsed time), so this only trims the one piece of state that can go
// stale: a rate_limit_until that has already passed.
func (l *Limiter) Sweep() {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, state := range l.perBot {
		if !state.rateLimitUntil.IsZero() && now.After(state.rateLimitUntil) {
			state.rateLimitUntil = time.Time{}
		}
	}
}

func (l *Limiter) stateFor(botIndex int) *botState {
	l.mu.Lock()
	defer l.mu.Unlock()
	state, ok := l.perBot[botIndex]
	if !ok {
		ratePerSec := float64(l.messages) / l.window.Seconds()
		state = &botState{limiter: rate.NewLimiter(rate.Limit(ratePerSec), l.messages)}
		l.perBot[botIndex] = state
	}
	return state
}
