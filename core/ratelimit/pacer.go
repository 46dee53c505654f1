// Package ratelimit enforces a minimum spacing between cycle-initiating
// requests per (participant, session) pair. Requests arriving inside the
// window are rejected with the remaining wait, not queued.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// DefaultWindow is the minimum spacing between cycles for one
// (participant, session) pair.
const DefaultWindow = 3 * time.Second

// Decision is the outcome of a pacing check.
type Decision struct {
	Allowed  bool
	WaitTime time.Duration
}

// Config configures a Pacer.
type Config struct {
	Window time.Duration

	// MaxEntries bounds the number of tracked (participant, session)
	// pairs. Entries expire on their own after one window.
	MaxEntries int64
}

// Pacer tracks the last allowed request per key in a ristretto cache
// whose entries expire after one window.
type Pacer struct {
	cache  *ristretto.Cache
	window time.Duration
	mu     sync.Mutex
}

// New creates a Pacer.
func New(cfg Config) (*Pacer, error) {
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 1 << 14
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("ratelimit: %w", err)
	}

	return &Pacer{cache: cache, window: cfg.Window}, nil
}

// Allow records and permits the request if the window since the last
// allowed request for the key has elapsed, and rejects it with the
// remaining wait otherwise.
func (p *Pacer) Allow(participantID string, sessionKey string) Decision {
	key := participantID + "/" + sessionKey
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.cache.Get(key); ok {
		last := v.(time.Time)
		if elapsed := now.Sub(last); elapsed < p.window {
			return Decision{Allowed: false, WaitTime: p.window - elapsed}
		}
	}

	p.cache.SetWithTTL(key, now, 1, p.window)
	p.cache.Wait()
	return Decision{Allowed: true}
}

// Window returns the configured spacing.
func (p *Pacer) Window() time.Duration {
	return p.window
}

// Close releases the underlying cache.
func (p *Pacer) Close() {
	p.cache.Close()
}
