// Package ratelimit implements per-client fixed-window request limiting.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Limiter admits up to limit requests per client key per window.
// Windows are fixed: the counter resets when a request arrives after the
// current window has elapsed.
type Limiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	clients   map[string]*windowState
	lastPrune time.Time
}

type windowState struct {
	start time.Time
	count int
}

// New returns a Limiter admitting limit requests per window per client.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:     limit,
		window:    window,
		clients:   make(map[string]*windowState),
		lastPrune: time.Now(),
	}
}

// Allow reports whether a request from key is admitted. When denied,
// retryAfter is the time remaining in the client's current window.
func (l *Limiter) Allow(key string) (ok bool, retryAfter time.Duration) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > l.window {
		l.pruneLocked(now)
	}

	st, exists := l.clients[key]
	if !exists || now.Sub(st.start) >= l.window {
		l.clients[key] = &windowState{start: now, count: 1}
		return true, 0
	}

	if st.count >= l.limit {
		return false, st.start.Add(l.window).Sub(now)
	}
	st.count++
	return true, 0
}

// pruneLocked drops clients whose window has long elapsed. Callers must
// hold l.mu.
func (l *Limiter) pruneLocked(now time.Time) {
	for key, st := range l.clients {
		if now.Sub(st.start) >= l.window {
			delete(l.clients, key)
		}
	}
	l.lastPrune = now
}

// ClientIP extracts the client address for limiter keying, preferring the
// first X-Forwarded-For hop when present.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
