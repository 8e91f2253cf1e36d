// Package ratelimit bounds request frequency per client per function with a
// fixed window counter.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultLimit  = 60
	DefaultWindow = time.Minute

	sweepInterval = 5 * time.Minute
	tokenSuffix   = 16
)

// Limiter decides whether a client may call a function now
type Limiter interface {
	Allow(ctx context.Context, function, client string) (bool, error)
}

// Config sets the per-window request budget
type Config struct {
	Limit  int
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}

type window struct {
	start time.Time
	count int
}

// MemoryLimiter keeps counters in process memory. Counters reset on restart
// and are not shared between instances.
type MemoryLimiter struct {
	cfg     Config
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	ticker  *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// NewMemoryLimiter creates a MemoryLimiter and starts its sweep goroutine
func NewMemoryLimiter(cfg Config) *MemoryLimiter {
	l := &MemoryLimiter{
		cfg:     cfg.withDefaults(),
		windows: make(map[string]*window),
		now:     time.Now,
		ticker:  time.NewTicker(sweepInterval),
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow counts one call and reports whether it fits in the current window
func (l *MemoryLimiter) Allow(_ context.Context, function, client string) (bool, error) {
	key := function + ":" + client
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	return w.count <= l.cfg.Limit, nil
}

func (l *MemoryLimiter) sweepLoop() {
	for {
		select {
		case <-l.ticker.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

// sweep drops expired windows
func (l *MemoryLimiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.cfg.Window {
			delete(l.windows, key)
		}
	}
}

// Stop ends the sweep goroutine
func (l *MemoryLimiter) Stop() {
	l.once.Do(func() {
		l.ticker.Stop()
		close(l.done)
	})
}

// RedisLimiter shares counters across instances using INCR and EXPIRE
type RedisLimiter struct {
	cfg    Config
	client redis.UniversalClient
	now    func() time.Time
	logger *slog.Logger
}

// NewRedisLimiter creates a RedisLimiter
func NewRedisLimiter(client redis.UniversalClient, cfg Config, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{cfg: cfg.withDefaults(), client: client, now: time.Now, logger: logger}
}

func (l *RedisLimiter) key(function, client string) string {
	slot := l.now().UnixNano() / int64(l.cfg.Window)
	return fmt.Sprintf("ratelimit:%s:%s:%d", function, client, slot)
}

// Allow counts one call in the shared window
func (l *RedisLimiter) Allow(ctx context.Context, function, client string) (bool, error) {
	key := l.key(function, client)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.cfg.Window).Err(); err != nil {
			l.logger.Warn("failed to set rate counter expiry", "key", key, "error", err)
		}
	}

	return count <= int64(l.cfg.Limit), nil
}

// ClientKey identifies the caller by the tail of its bearer token, falling
// back to the client IP
func ClientKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		if len(token) > tokenSuffix {
			token = token[len(token)-tokenSuffix:]
		}
		if token != "" {
			return "token:" + token
		}
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if ip != "" {
			return "ip:" + ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
