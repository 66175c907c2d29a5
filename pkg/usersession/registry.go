package usersession

import (
	"context"
	"sync"
	"time"

	"github.com/corpalert/corpalert-backend/pkg/logger"
	"github.com/corpalert/corpalert-backend/pkg/metrics"
)

// RegistryOptions are shared by every store the registry creates.
type RegistryOptions struct {
	Storage  Storage
	Fetcher  ProfileFetcher
	Ordering Ordering
	Logger   *logger.Logger
	Metrics  *metrics.SessionMetrics
	// Now is the clock used for idle tracking; defaults to time.Now.
	Now func() time.Time
}

// Registry owns one Store per scope (a browser session in the portal).
// Storage is authoritative: every Get re-reads the persisted entry, so a
// logout or expiry seen through shared storage is picked up on the next
// request. In-memory stores only carry in-flight fetch ordering and
// listeners, and are dropped once signed out or idle.
type Registry struct {
	opts RegistryOptions

	mu     sync.Mutex
	stores map[string]*registryEntry
}

type registryEntry struct {
	store    *Store
	lastUsed time.Time
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Storage == nil {
		opts.Storage = NewMemoryStorage()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{opts: opts, stores: make(map[string]*registryEntry)}
}

// Get returns the store for scope, creating it if needed, and rehydrates it
// from storage. A corrupt entry leaves the store signed out. When storage
// cannot be read the in-memory state is kept.
func (r *Registry) Get(ctx context.Context, scope string) *Store {
	r.mu.Lock()
	entry, ok := r.stores[scope]
	if !ok {
		entry = &registryEntry{store: New(Options{
			Key:      KeyFor(scope),
			Storage:  r.opts.Storage,
			Fetcher:  r.opts.Fetcher,
			Ordering: r.opts.Ordering,
			Logger:   r.opts.Logger,
			Metrics:  r.opts.Metrics,
		})}
		r.stores[scope] = entry
		r.opts.Metrics.SetActiveStores(len(r.stores))
	}
	entry.lastUsed = r.opts.Now()
	store := entry.store
	r.mu.Unlock()

	if err := store.Hydrate(ctx); err != nil {
		r.opts.Logger.Warn(r.opts.Logger.WithFields(ctx, map[string]any{
			"session_key": store.Key(),
			"error":       err.Error(),
		}), "session hydration failed")
	}
	return store
}

// Release drops the store for scope when it holds no session. The portal
// calls it after every request so cookieless traffic leaves nothing behind.
func (r *Registry) Release(scope string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.stores[scope]
	if !ok || entry.store.HasSession() {
		return
	}
	delete(r.stores, scope)
	r.opts.Metrics.SetActiveStores(len(r.stores))
}

// Evict forgets the in-memory store for scope. The persisted copy stays, so
// the next Get rehydrates it.
func (r *Registry) Evict(scope string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, scope)
	r.opts.Metrics.SetActiveStores(len(r.stores))
}

// Sweep evicts every store not used within idle and returns how many went.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.opts.Now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for scope, entry := range r.stores {
		if entry.lastUsed.Before(cutoff) {
			delete(r.stores, scope)
			evicted++
		}
	}
	if evicted > 0 {
		r.opts.Metrics.SetActiveStores(len(r.stores))
	}
	return evicted
}

// RunSweeper calls Sweep every idle/2 until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(max(idle/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				r.opts.Logger.Debug(r.opts.Logger.WithField(ctx, "evicted", n), "idle session stores evicted")
			}
		}
	}
}

// Len returns the number of stores held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}
