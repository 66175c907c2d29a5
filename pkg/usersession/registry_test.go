package usersession

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/corpalert/corpalert-backend/pkg/enums"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryReturnsSameStorePerScope(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	ctx := context.Background()

	a := reg.Get(ctx, "tab-a")
	assert.Same(t, a, reg.Get(ctx, "tab-a"))
	assert.NotSame(t, a, reg.Get(ctx, "tab-b"))
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, "user-store:tab-a", a.Key())
}

func TestRegistryScopesAreIsolated(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	ctx := context.Background()

	reg.Get(ctx, "tab-a").SetUser(ctx, farmer("1"))
	assert.Nil(t, reg.Get(ctx, "tab-b").User())

	reg.Get(ctx, "tab-b").ClearUser(ctx)
	assert.Equal(t, "1", reg.Get(ctx, "tab-a").User().ID)
}

func TestRegistryHydratesOnFirstUse(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	seed := New(Options{Key: KeyFor("tab-a"), Storage: storage})
	agronomist := farmer("7")
	agronomist.Role = enums.RoleAgronomist
	agronomist.IsApproved = false
	seed.SetUser(ctx, agronomist)

	reg := NewRegistry(RegistryOptions{Storage: storage})
	got := reg.Get(ctx, "tab-a").User()
	require.NotNil(t, got)
	assert.Equal(t, enums.RoleAgronomist, got.Role)

	reg.Evict("tab-a")
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, "7", reg.Get(ctx, "tab-a").User().ID)
}

func TestRegistryStartsEmptyOnCorruptEntry(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()
	require.NoError(t, storage.Save(ctx, KeyFor("tab-a"), []byte("garbage")))

	reg := NewRegistry(RegistryOptions{Storage: storage})
	assert.Nil(t, reg.Get(ctx, "tab-a").User())
	assert.False(t, storage.Has(KeyFor("tab-a")))
}

func TestRegistriesSharingStorageSeeLogout(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()
	a := NewRegistry(RegistryOptions{Storage: storage})
	b := NewRegistry(RegistryOptions{Storage: storage})

	a.Get(ctx, "tab-a").SetUser(ctx, farmer("1"))
	require.NotNil(t, b.Get(ctx, "tab-a").User())

	a.Get(ctx, "tab-a").ClearUser(ctx)
	assert.False(t, storage.Has(KeyFor("tab-a")))
	assert.Nil(t, b.Get(ctx, "tab-a").User(), "other instance must not keep a logged-out user")
}

func TestRegistryDropsSessionWhenEntryExpires(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()
	reg := NewRegistry(RegistryOptions{Storage: storage})

	reg.Get(ctx, "tab-a").SetUser(ctx, farmer("1"))
	require.NoError(t, storage.Remove(ctx, KeyFor("tab-a")))

	assert.Nil(t, reg.Get(ctx, "tab-a").User())
}

func TestRegistryKeepsStateWhenStorageUnreadable(t *testing.T) {
	storage := &unreadableStorage{MemoryStorage: NewMemoryStorage()}
	ctx := context.Background()
	reg := NewRegistry(RegistryOptions{Storage: storage})

	reg.Get(ctx, "tab-a").SetUser(ctx, farmer("1"))
	storage.broken = true
	assert.Equal(t, "1", reg.Get(ctx, "tab-a").User().ID)
}

func TestRegistryReleaseDropsOnlyEmptyStores(t *testing.T) {
	reg := NewRegistry(RegistryOptions{})
	ctx := context.Background()

	for i := range 1000 {
		scope := fmt.Sprintf("anon-%d", i)
		reg.Get(ctx, scope)
		reg.Release(scope)
	}
	assert.Zero(t, reg.Len())

	reg.Get(ctx, "tab-a").SetUser(ctx, farmer("1"))
	reg.Release("tab-a")
	assert.Equal(t, 1, reg.Len())
	reg.Release("missing")
}

func TestRegistrySweepEvictsIdleStores(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	storage := NewMemoryStorage()
	reg := NewRegistry(RegistryOptions{Storage: storage, Now: func() time.Time { return now }})
	ctx := context.Background()

	reg.Get(ctx, "old").SetUser(ctx, farmer("1"))
	now = now.Add(20 * time.Minute)
	reg.Get(ctx, "fresh").SetUser(ctx, farmer("2"))
	now = now.Add(15 * time.Minute)

	assert.Equal(t, 1, reg.Sweep(30*time.Minute))
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, "1", reg.Get(ctx, "old").User().ID, "evicted store rehydrates from storage")
}

type unreadableStorage struct {
	*MemoryStorage
	broken bool
}

func (u *unreadableStorage) Load(ctx context.Context, key string) ([]byte, error) {
	if u.broken {
		return nil, fmt.Errorf("connection refused")
	}
	return u.MemoryStorage.Load(ctx, key)
}
