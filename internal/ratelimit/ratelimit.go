// File: internal/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds rate limiting configuration
type Config struct {
	WindowSize    time.Duration // Time window for rate limiting
	MaxRequests   int           // Maximum requests per window
	CleanupPeriod time.Duration // How often to clean up old entries
	BanDuration   time.Duration // How long to block after exceeding the limit
}

// DefaultDownloadConfig suits the image download endpoint
func DefaultDownloadConfig() *Config {
	return &Config{
		WindowSize:    time.Minute,
		MaxRequests:   60,
		CleanupPeriod: 10 * time.Minute,
		BanDuration:   5 * time.Minute,
	}
}

// DefaultAPIConfig suits the read-only audit API
func DefaultAPIConfig() *Config {
	return &Config{
		WindowSize:    time.Minute,
		MaxRequests:   120,
		CleanupPeriod: 10 * time.Minute,
		BanDuration:   time.Minute,
	}
}

type windowRecord struct {
	Count     int
	FirstSeen time.Time
	BannedAt  *time.Time
}

// Info contains information about rate limit status
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
	Banned     bool
}

// MemoryRateLimiter is a fixed-window limiter keyed by client identifier
type MemoryRateLimiter struct {
	config  *Config
	windows map[string]*windowRecord
	mu      sync.Mutex
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

func NewMemoryRateLimiter(config *Config) *MemoryRateLimiter {
	limiter := newLimiter(config, time.Now)
	go limiter.cleanupLoop()
	return limiter
}

func newLimiter(config *Config, now func() time.Time) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		config:  config,
		windows: make(map[string]*windowRecord),
		now:     now,
		stopCh:  make(chan struct{}),
	}
}

// Allow counts one request for identifier and reports whether it may proceed
func (rl *MemoryRateLimiter) Allow(identifier string) Info {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	limit := rl.config.MaxRequests
	record, exists := rl.windows[identifier]

	if exists && record.BannedAt != nil {
		if banLeft := rl.config.BanDuration - now.Sub(*record.BannedAt); banLeft > 0 {
			return Info{Limit: limit, ResetTime: now.Add(banLeft), RetryAfter: banLeft, Banned: true}
		}
	}

	if !exists || record.BannedAt != nil || now.Sub(record.FirstSeen) >= rl.config.WindowSize {
		rl.windows[identifier] = &windowRecord{Count: 1, FirstSeen: now}
		return Info{Allowed: true, Limit: limit, Remaining: limit - 1, ResetTime: now.Add(rl.config.WindowSize)}
	}

	record.Count++
	if record.Count > limit {
		banTime := now
		record.BannedAt = &banTime
		return Info{Limit: limit, ResetTime: now.Add(rl.config.BanDuration), RetryAfter: rl.config.BanDuration, Banned: true}
	}
	return Info{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - record.Count,
		ResetTime: record.FirstSeen.Add(rl.config.WindowSize),
	}
}

func (rl *MemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *MemoryRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for identifier, record := range rl.windows {
		windowExpired := now.Sub(record.FirstSeen) > rl.config.WindowSize
		banExpired := record.BannedAt != nil && now.Sub(*record.BannedAt) > rl.config.BanDuration
		if (windowExpired && record.BannedAt == nil) || banExpired {
			delete(rl.windows, identifier)
		}
	}
}

// Close stops the cleanup goroutine
func (rl *MemoryRateLimiter) Close() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// GetClientIP extracts the real client IP from request
func GetClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
