package usersession

import (
	"context"

	"github.com/corpalert/corpalert-backend/pkg/metrics"
	"github.com/corpalert/corpalert-backend/pkg/types"
)

// Ordering decides which of several overlapping profile fetches wins.
type Ordering int

const (
	// OrderLastResolved applies every successful response as it arrives, so
	// the last one to resolve wins even if it was dispatched first.
	OrderLastResolved Ordering = iota
	// OrderLatestDispatched drops a response when a later-dispatched fetch has
	// already been applied, or when the session was cleared after dispatch.
	OrderLatestDispatched
)

func (o Ordering) String() string {
	if o == OrderLatestDispatched {
		return "latest-dispatched"
	}
	return "last-resolved"
}

// FetchResult reports what FetchProfile did. The store is unchanged unless
// Applied returns true.
type FetchResult struct {
	// Profile is what the endpoint returned, when it returned one.
	Profile *types.UserProfile
	// Err is the transport or HTTP failure.
	Err error
	// Stale is set when a successful response was dropped by the ordering rule.
	Stale bool
}

// Applied reports whether the fetched profile is now the held one.
func (r FetchResult) Applied() bool {
	return r.Err == nil && !r.Stale && r.Profile != nil
}

// FetchProfile asks the backend for the current profile. On success the
// profile replaces the held one with SetUser semantics. On failure the store
// is left untouched and the failure is logged, counted and returned in the
// result. The lock is not held during the network call.
func (s *Store) FetchProfile(ctx context.Context) FetchResult {
	if s.fetcher == nil {
		s.metrics.ObserveFetch(metrics.FetchFailure)
		return FetchResult{Err: ErrNoFetcher}
	}

	s.mu.Lock()
	s.dispatched++
	seq := s.dispatched
	gen := s.generation
	s.mu.Unlock()

	profile, err := s.fetcher.FetchProfile(ctx)
	if err == nil && (profile == nil || profile.ID == "") {
		err = ErrEmptyProfile
	}
	if err != nil {
		s.logg.Warn(s.logg.WithField(s.logCtx(ctx), "error", err.Error()), "profile fetch failed")
		s.metrics.ObserveFetch(metrics.FetchFailure)
		return FetchResult{Err: err}
	}

	s.mu.Lock()
	if s.ordering == OrderLatestDispatched && (seq < s.applied || gen != s.generation) {
		s.mu.Unlock()
		s.logg.Debug(s.logCtx(ctx), "stale profile response dropped")
		s.metrics.ObserveFetch(metrics.FetchStale)
		return FetchResult{Profile: profile.Clone(), Stale: true}
	}
	if seq > s.applied {
		s.applied = seq
	}
	prev := s.user
	s.user = profile.Clone()
	next := s.user.Clone()
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.metrics.ObserveFetch(metrics.FetchSuccess)
	s.metrics.ObserveMutation("fetch")
	s.notify(prev, next)
	return FetchResult{Profile: next.Clone()}
}
