// ABOUTME: Reference-counted registry of shared clients
// ABOUTME: Clients are keyed by cache key or derived config key and closed on last release
package netclock

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrUnknownHandle is returned when releasing a handle this registry does not hold
var ErrUnknownHandle = errors.New("unknown registry handle")

// Factory creates the client for a key on first acquisition
type Factory func() (*Client, error)

// Handle is one reference to a shared client
type Handle struct {
	ID     string
	Key    string
	Client *Client

	released bool
}

type entry struct {
	client *Client
	refs   int
}

// Registry shares clients between consumers. The zero value is not usable;
// call NewRegistry.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Acquire returns a handle to the client under key, creating it with factory
// when absent
func (r *Registry) Acquire(key string, factory Factory) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		client, err := factory()
		if err != nil {
			return nil, fmt.Errorf("failed to create client for %q: %w", key, err)
		}
		e = &entry{client: client}
		r.entries[key] = e
	}
	e.refs++

	return &Handle{
		ID:     uuid.New().String(),
		Key:    key,
		Client: e.client,
	}, nil
}

// AcquireConfig acquires the client for KeyFor(cfg), creating it from cfg
func (r *Registry) AcquireConfig(cfg Config) (*Handle, error) {
	return r.Acquire(KeyFor(cfg), func() (*Client, error) {
		return NewClient(cfg)
	})
}

// Release drops one reference. The last release closes the client. Releasing
// the same handle twice is a no-op.
func (r *Registry) Release(h *Handle) error {
	if h == nil {
		return ErrUnknownHandle
	}

	r.mu.Lock()
	if h.released {
		r.mu.Unlock()
		return nil
	}
	e, ok := r.entries[h.Key]
	if !ok || e.client != h.Client {
		r.mu.Unlock()
		return ErrUnknownHandle
	}
	h.released = true
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, h.Key)
	r.mu.Unlock()

	return e.client.Close()
}

// Len returns the number of live clients
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Refs returns the reference count for key
func (r *Registry) Refs(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		return e.refs
	}
	return 0
}

// Close closes every client regardless of references
func (r *Registry) Close() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*entry)
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := e.client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// KeyFor returns cfg.CacheKey, or "sorted,urls:strategy:worker|main"
func KeyFor(cfg Config) string {
	if cfg.CacheKey != "" {
		return cfg.CacheKey
	}

	urls := cfg.sourceURLs()
	sorted := append([]string(nil), urls...)
	sort.Strings(sorted)

	strategy := cfg.Strategy
	if strategy == "" {
		strategy = FirstSuccess
	}

	mode := "main"
	if cfg.UseWorker {
		mode = "worker"
	}

	return strings.Join(sorted, ",") + ":" + string(strategy) + ":" + mode
}
