package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRateLimits = []byte("rate_limits")

// Level represents the level of rate limiting
type Level string

const (
	LevelGlobal    Level = "global"
	LevelWorkspace Level = "workspace"
	LevelClient    Level = "client"
)

// Config contains rate limit configuration
type Config struct {
	// Limits across all workspaces
	Global *LimitConfig

	// Limits applied to each workspace
	DefaultWorkspace *LimitConfig

	// Limits applied to each client
	DefaultClient *LimitConfig

	// Persistence settings
	FlushInterval time.Duration
}

// LimitConfig contains rate limit values. Zero disables a window.
type LimitConfig struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
}

// Counter tracks rate limit counters
type Counter struct {
	MinuteCount int       `json:"minute_count"`
	HourlyCount int       `json:"hourly_count"`
	MinuteStart time.Time `json:"minute_start"`
	HourStart   time.Time `json:"hour_start"`
}

// Limiter implements fixed-window limits at several levels. Counters are
// flushed to bolt periodically so restarts do not reset the windows.
type Limiter struct {
	db       *bolt.DB
	config   *Config
	counters map[string]*Counter // key -> counter
	mu       sync.Mutex
	now      func() time.Time
}

// NewLimiter creates a new rate limiter. db may be nil, counters then live
// in memory only.
func NewLimiter(db *bolt.DB, cfg *Config) (*Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	l := &Limiter{
		db:       db,
		config:   cfg,
		counters: make(map[string]*Counter),
		now:      time.Now,
	}

	if db == nil {
		return l, nil
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRateLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limits bucket: %w", err)
	}

	if err := l.loadCounters(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	return l, nil
}

// Request identifies who asks for a refresh of which workspace
type Request struct {
	Workspace string
	Client    string // client IP
}

// Result contains the rate limit check result
type Result struct {
	Allowed    bool
	DeniedBy   Level
	DeniedKey  string
	RetryAfter time.Duration
}

// Allow checks if the action is allowed and increments counters. A denied
// request consumes nothing.
func (l *Limiter) Allow(ctx context.Context, req *Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	result := &Result{
		Allowed: true,
	}

	now := l.now()
	checks := l.getChecks(req)

	for _, check := range checks {
		counter := l.getOrCreateCounter(check.key, now)
		resetExpiredCounters(counter, now)

		if check.limit.PerMinute > 0 && counter.MinuteCount >= check.limit.PerMinute {
			result.Allowed = false
			result.DeniedBy = check.level
			result.DeniedKey = check.key
			result.RetryAfter = counter.MinuteStart.Add(time.Minute).Sub(now)
			return result, nil
		}

		if check.limit.PerHour > 0 && counter.HourlyCount >= check.limit.PerHour {
			result.Allowed = false
			result.DeniedBy = check.level
			result.DeniedKey = check.key
			result.RetryAfter = counter.HourStart.Add(time.Hour).Sub(now)
			return result, nil
		}
	}

	for _, check := range checks {
		counter := l.counters[check.key]
		counter.MinuteCount++
		counter.HourlyCount++
	}

	return result, nil
}

// Run flushes counters every FlushInterval until ctx is done, then flushes
// once more.
func (l *Limiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return l.Flush()
		case <-ticker.C:
			if err := l.Flush(); err != nil {
				return err
			}
		}
	}
}

// Flush persists the counters
func (l *Limiter) Flush() error {
	if l.db == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		for key, counter := range l.counters {
			data, err := json.Marshal(counter)
			if err != nil {
				continue
			}
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

type limitCheck struct {
	level Level
	key   string
	limit *LimitConfig
}

func (l *Limiter) getChecks(req *Request) []limitCheck {
	var checks []limitCheck

	if l.config.Global != nil {
		checks = append(checks, limitCheck{
			level: LevelGlobal,
			key:   makeKey(LevelGlobal, "global"),
			limit: l.config.Global,
		})
	}

	if req.Workspace != "" && l.config.DefaultWorkspace != nil {
		checks = append(checks, limitCheck{
			level: LevelWorkspace,
			key:   makeKey(LevelWorkspace, req.Workspace),
			limit: l.config.DefaultWorkspace,
		})
	}

	if req.Client != "" && l.config.DefaultClient != nil {
		checks = append(checks, limitCheck{
			level: LevelClient,
			key:   makeKey(LevelClient, req.Client),
			limit: l.config.DefaultClient,
		})
	}

	return checks
}

func (l *Limiter) getOrCreateCounter(key string, now time.Time) *Counter {
	counter, exists := l.counters[key]
	if !exists {
		counter = &Counter{
			MinuteStart: now,
			HourStart:   now,
		}
		l.counters[key] = counter
	}
	return counter
}

func resetExpiredCounters(counter *Counter, now time.Time) {
	if now.Sub(counter.MinuteStart) >= time.Minute {
		counter.MinuteCount = 0
		counter.MinuteStart = now
	}
	if now.Sub(counter.HourStart) >= time.Hour {
		counter.HourlyCount = 0
		counter.HourStart = now
	}
}

func (l *Limiter) loadCounters() error {
	return l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var counter Counter
			if err := json.Unmarshal(v, &counter); err != nil {
				return nil // Skip invalid entries
			}
			l.counters[string(k)] = &counter
			return nil
		})
	})
}

func makeKey(level Level, key string) string {
	return string(level) + ":" + key
}
