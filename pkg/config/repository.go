package config

import (
	"sync"
	"time"
)

// AgentsRepository serves cached agents snapshots, reloading from its
// source once the TTL elapses.
type AgentsRepository struct {
	src Source
	ttl time.Duration

	mu       sync.RWMutex
	cached   *AgentsConfig
	fetchedAt time.Time
}

// NewAgentsRepository builds a repository over src with the given TTL. A
// non-positive TTL disables caching: every read reloads.
func NewAgentsRepository(src Source, ttl time.Duration) *AgentsRepository {
	return &AgentsRepository{src: src, ttl: ttl}
}

// Get returns the current snapshot, reloading it if the TTL has elapsed.
func (r *AgentsRepository) Get() (*AgentsConfig, error) {
	r.mu.RLock()
	if r.cached != nil && r.ttl > 0 && time.Since(r.fetchedAt) < r.ttl {
		cfg := r.cached
		r.mu.RUnlock()
		return cfg, nil
	}
	r.mu.RUnlock()

	cfg, err := LoadAgents(r.src)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cached = cfg
	r.fetchedAt = time.Now()
	r.mu.Unlock()
	return cfg, nil
}

// Invalidate forces the next Get to reload regardless of TTL. The config
// hot-reload watcher calls this on a detected file change.
func (r *AgentsRepository) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

// ProvidersRepository serves cached providers snapshots the same way
// AgentsRepository does.
type ProvidersRepository struct {
	src Source
	ttl time.Duration

	mu        sync.RWMutex
	cached    *ProvidersConfig
	fetchedAt time.Time
}

// NewProvidersRepository builds a repository over src with the given TTL.
func NewProvidersRepository(src Source, ttl time.Duration) *ProvidersRepository {
	return &ProvidersRepository{src: src, ttl: ttl}
}

// Get returns the current snapshot, reloading it if the TTL has elapsed.
func (r *ProvidersRepository) Get() (*ProvidersConfig, error) {
	r.mu.RLock()
	if r.cached != nil && r.ttl > 0 && time.Since(r.fetchedAt) < r.ttl {
		cfg := r.cached
		r.mu.RUnlock()
		return cfg, nil
	}
	r.mu.RUnlock()

	cfg, err := LoadProviders(r.src)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cached = cfg
	r.fetchedAt = time.Now()
	r.mu.Unlock()
	return cfg, nil
}

// Invalidate forces the next Get to reload regardless of TTL.
func (r *ProvidersRepository) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}
