// Package usersession holds the signed-in user's profile for one session
// scope and keeps a durable copy of it in keyed storage.
package usersession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
	"github.com/corpalert/corpalert-backend/pkg/logger"
	"github.com/corpalert/corpalert-backend/pkg/metrics"
	"github.com/corpalert/corpalert-backend/pkg/types"
)

// DefaultKey is the storage key of an unscoped store.
const DefaultKey = "user-store"

var (
	ErrNoFetcher    = errors.New("usersession: no profile fetcher configured")
	ErrEmptyProfile = errors.New("usersession: profile endpoint returned no profile")
)

// KeyFor returns the storage key for a scope, e.g. "user-store:<tab>".
func KeyFor(scope string) string {
	if scope == "" {
		return DefaultKey
	}
	return DefaultKey + ":" + scope
}

// ProfileFetcher performs the credentialed profile request.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context) (*types.UserProfile, error)
}

// Listener observes every change. prev and next are copies; nil means no session.
type Listener func(prev, next *types.UserProfile)

// Options configures a Store.
type Options struct {
	Key      string
	Storage  Storage
	Fetcher  ProfileFetcher
	Ordering Ordering
	Logger   *logger.Logger
	Metrics  *metrics.SessionMetrics
}

// Store is the single source of truth for who is signed in. Mutators never
// fail: storage problems are logged and counted, and the in-memory state is
// still updated.
type Store struct {
	mu sync.Mutex

	key      string
	storage  Storage
	fetcher  ProfileFetcher
	ordering Ordering
	logg     *logger.Logger
	metrics  *metrics.SessionMetrics

	user *types.UserProfile

	// generation bumps on every clear; dispatched/applied sequence fetches.
	generation uint64
	dispatched uint64
	applied    uint64

	listenersMu  sync.RWMutex
	listeners    map[uint64]Listener
	nextListener uint64
}

type persisted struct {
	User *types.UserProfile `json:"user"`
}

// New builds an empty store. Call Hydrate to pick up a persisted session.
func New(opts Options) *Store {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.Storage == nil {
		opts.Storage = NewMemoryStorage()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Store{
		key:       opts.Key,
		storage:   opts.Storage,
		fetcher:   opts.Fetcher,
		ordering:  opts.Ordering,
		logg:      opts.Logger,
		metrics:   opts.Metrics,
		listeners: make(map[uint64]Listener),
	}
}

// Key returns the storage key this store persists under.
func (s *Store) Key() string {
	return s.key
}

// User returns a snapshot of the held profile, or nil when signed out.
func (s *Store) User() *types.UserProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user.Clone()
}

// HasSession reports whether a profile is held.
func (s *Store) HasSession() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user != nil
}

// SetUser replaces the held profile wholesale and persists it. A nil profile
// behaves like ClearUser.
func (s *Store) SetUser(ctx context.Context, profile *types.UserProfile) {
	if profile == nil {
		s.ClearUser(ctx)
		return
	}
	s.mu.Lock()
	prev := s.user
	s.user = profile.Clone()
	next := s.user.Clone()
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.metrics.ObserveMutation("set")
	s.notify(prev, next)
}

// ClearUser drops the held profile and removes the persisted copy before
// returning. Clearing an empty store is a no-op apart from the removal.
func (s *Store) ClearUser(ctx context.Context) {
	s.mu.Lock()
	prev := s.user
	s.user = nil
	s.generation++
	if err := s.storage.Remove(ctx, s.key); err != nil {
		s.logg.Error(s.logCtx(ctx), "failed to remove persisted session", err)
		s.metrics.ObserveMutation("persist_error")
	}
	s.mu.Unlock()

	if prev == nil {
		return
	}
	s.metrics.ObserveMutation("clear")
	s.notify(prev, nil)
}

// UpdateUser merges patch into the held profile. It returns false and changes
// nothing when no session is held.
func (s *Store) UpdateUser(ctx context.Context, patch types.UserProfilePatch) bool {
	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		s.logg.Debug(s.logCtx(ctx), "profile update ignored without a session")
		return false
	}
	prev := s.user
	s.user = patch.ApplyTo(prev)
	next := s.user.Clone()
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.metrics.ObserveMutation("update")
	s.notify(prev, next)
	return true
}

// Hydrate replaces the in-memory state with the persisted entry. A missing
// entry leaves the store empty. A corrupt entry is removed and reported.
func (s *Store) Hydrate(ctx context.Context) error {
	raw, err := s.storage.Load(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		s.replace(nil)
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load persisted session")
	}

	var entry persisted
	if err := json.Unmarshal(raw, &entry); err != nil || (entry.User != nil && entry.User.ID == "") {
		if rmErr := s.storage.Remove(ctx, s.key); rmErr != nil {
			s.logg.Error(s.logCtx(ctx), "failed to remove corrupt session", rmErr)
		}
		s.replace(nil)
		if err == nil {
			err = fmt.Errorf("persisted profile has no id")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "corrupt persisted session")
	}

	s.replace(entry.User)
	return nil
}

// Subscribe registers listener and returns a func that removes it.
func (s *Store) Subscribe(listener Listener) (unsubscribe func()) {
	if listener == nil {
		return func() {}
	}
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = listener
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

// replace installs a reloaded profile. Losing the session this way counts as
// a clear for fetch ordering; an unchanged reload notifies nobody.
func (s *Store) replace(profile *types.UserProfile) {
	s.mu.Lock()
	prev := s.user
	if reflect.DeepEqual(prev, profile) {
		s.mu.Unlock()
		return
	}
	s.user = profile.Clone()
	if prev != nil && s.user == nil {
		s.generation++
	}
	next := s.user.Clone()
	s.mu.Unlock()

	s.notify(prev, next)
}

// persistLocked writes the held profile. Callers hold s.mu so the durable
// copy always matches the in-memory one when the lock is released.
func (s *Store) persistLocked(ctx context.Context) {
	data, err := json.Marshal(persisted{User: s.user})
	if err == nil {
		err = s.storage.Save(ctx, s.key, data)
	}
	if err != nil {
		s.logg.Error(s.logCtx(ctx), "failed to persist session", err)
		s.metrics.ObserveMutation("persist_error")
	}
}

func (s *Store) notify(prev, next *types.UserProfile) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(prev.Clone(), next.Clone())
	}
}

func (s *Store) logCtx(ctx context.Context) context.Context {
	return s.logg.WithField(ctx, "session_key", s.key)
}
