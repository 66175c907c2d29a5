package usersession

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/corpalert/corpalert-backend/pkg/metrics"
	"github.com/corpalert/corpalert-backend/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func farmer(id string) *types.UserProfile {
	return &types.UserProfile{
		ID:              id,
		FirstName:       "Amina",
		LastName:        "Diallo",
		Email:           "amina+" + id + "@example.com",
		Role:            enums.RoleFarmer,
		IsApproved:      true,
		SubscribedCrops: []string{"maize", "sorghum"},
		Location:        &types.GeographyPoint{Lat: 12.64, Lng: -8.0},
	}
}

func strPtr(s string) *string { return &s }

func persistedUser(t *testing.T, storage *MemoryStorage, key string) *types.UserProfile {
	t.Helper()
	raw, err := storage.Load(context.Background(), key)
	require.NoError(t, err)
	var entry persisted
	require.NoError(t, json.Unmarshal(raw, &entry))
	return entry.User
}

func TestSetUserPersistsAndSnapshots(t *testing.T) {
	storage := NewMemoryStorage()
	store := New(Options{Storage: storage})
	ctx := context.Background()

	p := farmer("1")
	store.SetUser(ctx, p)
	p.FirstName = "mutated after set"

	got := store.User()
	require.NotNil(t, got)
	assert.Equal(t, "Amina", got.FirstName)

	got.SubscribedCrops[0] = "mutated snapshot"
	assert.Equal(t, "maize", store.User().SubscribedCrops[0])

	assert.Equal(t, farmer("1"), persistedUser(t, storage, DefaultKey))
}

func TestPersistedLayoutOnlyHoldsUser(t *testing.T) {
	storage := NewMemoryStorage()
	store := New(Options{Storage: storage})
	store.SetUser(context.Background(), farmer("1"))

	raw, err := storage.Load(context.Background(), DefaultKey)
	require.NoError(t, err)
	var generic map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Len(t, generic, 1)
	assert.Contains(t, generic, "user")
}

func TestClearUserIsIdempotentAndRemovesPersistedCopy(t *testing.T) {
	storage := NewMemoryStorage()
	store := New(Options{Storage: storage})
	ctx := context.Background()

	store.SetUser(ctx, farmer("1"))
	require.True(t, storage.Has(DefaultKey))

	store.ClearUser(ctx)
	assert.Nil(t, store.User())
	assert.False(t, storage.Has(DefaultKey))

	store.ClearUser(ctx)
	assert.Nil(t, store.User())
	assert.False(t, storage.Has(DefaultKey))
	assert.False(t, store.HasSession())
}

func TestUpdateUserWithoutSessionIsNoop(t *testing.T) {
	storage := NewMemoryStorage()
	store := New(Options{Storage: storage})

	ok := store.UpdateUser(context.Background(), types.UserProfilePatch{FirstName: strPtr("Ghost")})
	assert.False(t, ok)
	assert.Nil(t, store.User())
	assert.False(t, storage.Has(DefaultKey))
}

func TestUpdateUserChangesOnlyGivenField(t *testing.T) {
	storage := NewMemoryStorage()
	store := New(Options{Storage: storage})
	ctx := context.Background()
	store.SetUser(ctx, farmer("1"))

	before, err := json.Marshal(store.User())
	require.NoError(t, err)

	require.True(t, store.UpdateUser(ctx, types.UserProfilePatch{LastName: strPtr("Traore")}))

	after, err := json.Marshal(store.User())
	require.NoError(t, err)

	var b, a map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(before, &b))
	require.NoError(t, json.Unmarshal(after, &a))
	for field, raw := range b {
		if field == "last_name" {
			assert.Equal(t, `"Traore"`, string(a[field]))
			continue
		}
		assert.Equal(t, string(raw), string(a[field]), "field %s changed", field)
	}
	assert.Equal(t, "Traore", persistedUser(t, storage, DefaultKey).LastName)
}

func TestReloadRestoresPersistedSession(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	first := New(Options{Storage: storage})
	first.SetUser(ctx, farmer("1"))

	reloaded := New(Options{Storage: storage})
	require.NoError(t, reloaded.Hydrate(ctx))
	assert.Equal(t, farmer("1"), reloaded.User())
}

func TestReloadAfterClearStaysSignedOut(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	first := New(Options{Storage: storage})
	first.SetUser(ctx, farmer("1"))
	first.ClearUser(ctx)

	reloaded := New(Options{Storage: storage})
	require.NoError(t, reloaded.Hydrate(ctx))
	assert.Nil(t, reloaded.User())
}

func TestHydrateRemovesCorruptEntry(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, storage.Save(ctx, DefaultKey, []byte("{not json")))

	store := New(Options{Storage: storage})
	err := store.Hydrate(ctx)
	require.Error(t, err)
	assert.Nil(t, store.User())
	assert.False(t, storage.Has(DefaultKey))
}

func TestHydrateRejectsProfileWithoutID(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, storage.Save(ctx, DefaultKey, []byte(`{"user":{"first_name":"x"}}`)))

	store := New(Options{Storage: storage})
	require.Error(t, store.Hydrate(ctx))
	assert.False(t, storage.Has(DefaultKey))
}

type failingStorage struct {
	*MemoryStorage
}

func (f *failingStorage) Save(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func TestPersistFailureStillUpdatesMemory(t *testing.T) {
	store := New(Options{Storage: &failingStorage{MemoryStorage: NewMemoryStorage()}})
	store.SetUser(context.Background(), farmer("1"))
	assert.Equal(t, "1", store.User().ID)
}

func TestSubscribeObservesChanges(t *testing.T) {
	store := New(Options{})
	ctx := context.Background()

	type change struct{ prev, next *types.UserProfile }
	var (
		mu      sync.Mutex
		changes []change
	)
	unsubscribe := store.Subscribe(func(prev, next *types.UserProfile) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, change{prev, next})
	})

	store.SetUser(ctx, farmer("1"))
	store.UpdateUser(ctx, types.UserProfilePatch{FirstName: strPtr("Awa")})
	store.ClearUser(ctx)
	store.ClearUser(ctx)

	unsubscribe()
	unsubscribe()
	store.SetUser(ctx, farmer("2"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, changes, 3)
	assert.Nil(t, changes[0].prev)
	assert.Equal(t, "1", changes[0].next.ID)
	assert.Equal(t, "Amina", changes[1].prev.FirstName)
	assert.Equal(t, "Awa", changes[1].next.FirstName)
	assert.Equal(t, "Awa", changes[2].prev.FirstName)
	assert.Nil(t, changes[2].next)
}

// fold applies the operations to a plain value, mirroring the store's contract.
func fold(state *types.UserProfile, op func(*types.UserProfile) *types.UserProfile) *types.UserProfile {
	return op(state)
}

func TestOperationSequencesFoldDeterministically(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()

	for round := 0; round < 50; round++ {
		storage := NewMemoryStorage()
		store := New(Options{Storage: storage})
		var model *types.UserProfile

		for step := 0; step < 20; step++ {
			switch rng.Intn(3) {
			case 0:
				p := farmer(string(rune('a' + rng.Intn(5))))
				store.SetUser(ctx, p)
				model = fold(model, func(*types.UserProfile) *types.UserProfile { return p.Clone() })
			case 1:
				store.ClearUser(ctx)
				model = fold(model, func(*types.UserProfile) *types.UserProfile { return nil })
			case 2:
				patch := types.UserProfilePatch{FirstName: strPtr(string(rune('A' + rng.Intn(26))))}
				if rng.Intn(2) == 0 {
					crops := []string{"millet"}
					patch.SubscribedCrops = &crops
				}
				store.UpdateUser(ctx, patch)
				model = fold(model, func(cur *types.UserProfile) *types.UserProfile {
					if cur == nil {
						return nil
					}
					return patch.ApplyTo(cur)
				})
			}
			require.Equal(t, model, store.User(), "round %d step %d", round, step)
			if model == nil {
				require.False(t, storage.Has(DefaultKey))
			} else {
				require.Equal(t, model, persistedUser(t, storage, DefaultKey))
			}
		}
	}
}

type fetchReply struct {
	profile *types.UserProfile
	err     error
}

// scriptedFetcher blocks every call until the test replies to it.
type scriptedFetcher struct {
	calls chan chan fetchReply
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{calls: make(chan chan fetchReply)}
}

func (f *scriptedFetcher) FetchProfile(ctx context.Context) (*types.UserProfile, error) {
	reply := make(chan fetchReply, 1)
	f.calls <- reply
	r := <-reply
	return r.profile, r.err
}

func startFetch(store *Store) <-chan FetchResult {
	out := make(chan FetchResult, 1)
	go func() { out <- store.FetchProfile(context.Background()) }()
	return out
}

func TestConcurrentFetchLastResolvedWins(t *testing.T) {
	fetcher := newScriptedFetcher()
	store := New(Options{Fetcher: fetcher})

	firstDone := startFetch(store)
	first := <-fetcher.calls
	secondDone := startFetch(store)
	second := <-fetcher.calls

	second <- fetchReply{profile: farmer("B")}
	resB := <-secondDone
	require.True(t, resB.Applied())

	first <- fetchReply{profile: farmer("A")}
	resA := <-firstDone
	require.True(t, resA.Applied())

	assert.Equal(t, "A", store.User().ID)
}

func TestConcurrentFetchLatestDispatchedDropsOlderResponse(t *testing.T) {
	fetcher := newScriptedFetcher()
	reg := prometheus.NewRegistry()
	m := metrics.NewSessionMetrics(reg)
	store := New(Options{Fetcher: fetcher, Ordering: OrderLatestDispatched, Metrics: m})

	firstDone := startFetch(store)
	first := <-fetcher.calls
	secondDone := startFetch(store)
	second := <-fetcher.calls

	second <- fetchReply{profile: farmer("B")}
	require.True(t, (<-secondDone).Applied())

	first <- fetchReply{profile: farmer("A")}
	resA := <-firstDone
	assert.True(t, resA.Stale)
	assert.False(t, resA.Applied())
	assert.Equal(t, "A", resA.Profile.ID)

	assert.Equal(t, "B", store.User().ID)
	assert.Equal(t, "latest-dispatched", OrderLatestDispatched.String())
	assert.Equal(t, 1.0, fetchCount(t, reg, metrics.FetchStale))
}

func TestLatestDispatchedInOrderResponsesBothApply(t *testing.T) {
	fetcher := newScriptedFetcher()
	store := New(Options{Fetcher: fetcher, Ordering: OrderLatestDispatched})

	firstDone := startFetch(store)
	first := <-fetcher.calls
	secondDone := startFetch(store)
	second := <-fetcher.calls

	first <- fetchReply{profile: farmer("A")}
	require.True(t, (<-firstDone).Applied())
	second <- fetchReply{profile: farmer("B")}
	require.True(t, (<-secondDone).Applied())
	assert.Equal(t, "B", store.User().ID)
}

func TestLatestDispatchedClearInvalidatesInFlightFetch(t *testing.T) {
	fetcher := newScriptedFetcher()
	storage := NewMemoryStorage()
	store := New(Options{Fetcher: fetcher, Storage: storage, Ordering: OrderLatestDispatched})
	ctx := context.Background()
	store.SetUser(ctx, farmer("1"))

	done := startFetch(store)
	pending := <-fetcher.calls
	store.ClearUser(ctx)
	pending <- fetchReply{profile: farmer("1")}

	res := <-done
	assert.True(t, res.Stale)
	assert.Nil(t, store.User())
	assert.False(t, storage.Has(DefaultKey))
}

func TestLastResolvedFetchAfterClearRestoresSession(t *testing.T) {
	fetcher := newScriptedFetcher()
	store := New(Options{Fetcher: fetcher})
	ctx := context.Background()

	done := startFetch(store)
	pending := <-fetcher.calls
	store.ClearUser(ctx)
	pending <- fetchReply{profile: farmer("1")}

	require.True(t, (<-done).Applied())
	assert.Equal(t, "1", store.User().ID)
}

func TestFetchFailureLeavesStateUnchanged(t *testing.T) {
	fetcher := newScriptedFetcher()
	reg := prometheus.NewRegistry()
	store := New(Options{Fetcher: fetcher, Metrics: metrics.NewSessionMetrics(reg)})
	ctx := context.Background()
	store.SetUser(ctx, farmer("1"))

	done := startFetch(store)
	(<-fetcher.calls) <- fetchReply{err: errors.New("401 unauthorized")}
	res := <-done
	require.Error(t, res.Err)
	assert.False(t, res.Applied())
	assert.Equal(t, farmer("1"), store.User())

	done = startFetch(store)
	(<-fetcher.calls) <- fetchReply{}
	res = <-done
	assert.ErrorIs(t, res.Err, ErrEmptyProfile)

	assert.Equal(t, 2.0, fetchCount(t, reg, metrics.FetchFailure))
}

func TestFetchRejectsProfileWithoutID(t *testing.T) {
	fetcher := newScriptedFetcher()
	storage := NewMemoryStorage()
	store := New(Options{Fetcher: fetcher, Storage: storage})

	done := startFetch(store)
	(<-fetcher.calls) <- fetchReply{profile: &types.UserProfile{}}
	res := <-done
	assert.ErrorIs(t, res.Err, ErrEmptyProfile)
	assert.False(t, res.Applied())
	assert.Nil(t, store.User())
	assert.False(t, storage.Has(DefaultKey))
}

func TestHydrateObservesClearFromAnotherStore(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()
	fetcher := newScriptedFetcher()

	other := New(Options{Storage: storage})
	other.SetUser(ctx, farmer("1"))

	store := New(Options{Storage: storage, Fetcher: fetcher, Ordering: OrderLatestDispatched})
	require.NoError(t, store.Hydrate(ctx))
	require.NotNil(t, store.User())

	var notified int
	store.Subscribe(func(_, _ *types.UserProfile) { notified++ })
	require.NoError(t, store.Hydrate(ctx))
	assert.Zero(t, notified, "unchanged reload is silent")

	done := startFetch(store)
	pending := <-fetcher.calls
	other.ClearUser(ctx)
	require.NoError(t, store.Hydrate(ctx))
	assert.Nil(t, store.User())
	assert.Equal(t, 1, notified)

	pending <- fetchReply{profile: farmer("1")}
	res := <-done
	assert.True(t, res.Stale, "fetch dispatched before the sign-out is dropped")
	assert.Nil(t, store.User())
}

func TestFetchWithoutFetcher(t *testing.T) {
	res := New(Options{}).FetchProfile(context.Background())
	assert.ErrorIs(t, res.Err, ErrNoFetcher)
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, "user-store", KeyFor(""))
	assert.Equal(t, "user-store:tab-1", KeyFor("tab-1"))
}

func fetchCount(t *testing.T, reg *prometheus.Registry, result string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "corpalert_session_profile_fetch_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
