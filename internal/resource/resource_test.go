package resource

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/fxratemanager/internal/storage"
)

type fakeFetcher struct {
	mu    sync.Mutex
	data  map[string][]byte
	calls map[string]int
}

func newFakeFetcher(data map[string]string) *fakeFetcher {
	f := &fakeFetcher{data: map[string][]byte{}, calls: map[string]int{}}
	for k, v := range data {
		f.data[k] = []byte(v)
	}
	return f
}

func (f *fakeFetcher) Fetch(ctx context.Context, loc string, _ FetchOptions) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[loc]++
	d, ok := f.data[loc]
	if !ok {
		return nil, errors.New("unreachable")
	}
	return d, nil
}

func (f *fakeFetcher) set(loc, v string) {
	f.mu.Lock()
	f.data[loc] = []byte(v)
	f.mu.Unlock()
}

func (f *fakeFetcher) count(loc string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[loc]
}

type fixture struct {
	cache   *storage.MemoryCache
	fetcher *fakeFetcher
	pool    *PayloadPool
	alerts  []string
	loads   []string
	now     time.Time
}

func newFixture(data map[string]string) *fixture {
	return &fixture{
		cache:   storage.NewMemory(),
		fetcher: newFakeFetcher(data),
		pool:    NewPayloadPool(8, 0),
		now:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (fx *fixture) resource(t *testing.T, d Descriptor) *Managed {
	t.Helper()
	r, err := New(d, Options{
		Cache:     fx.cache,
		Fetcher:   fx.fetcher,
		Pool:      fx.pool,
		OnFailure: func(id string, err error) { fx.alerts = append(fx.alerts, id) },
		OnSuccess: func(id string) { fx.loads = append(fx.loads, id) },
		Now:       func() time.Time { return fx.now },
	})
	require.NoError(t, err)
	return r
}

func desc(policy UpdatePolicy) Descriptor {
	return Descriptor{
		ID:       "ECB-daily",
		Remotes:  []string{"remote-a", "remote-b"},
		Fallback: "fallback",
		Policy:   policy,
	}
}

func TestLoad_NeverPolicySkipsRemote(t *testing.T) {
	fx := newFixture(map[string]string{"remote-a": "remote", "fallback": "bundled"})
	r := fx.resource(t, desc(Never))

	require.True(t, r.Load(context.Background()))
	data, err := r.GetData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bundled", string(data))
	assert.Zero(t, fx.fetcher.count("remote-a"))
	assert.Zero(t, fx.fetcher.count("remote-b"))
}

func TestLoad_PrefersCache(t *testing.T) {
	fx := newFixture(map[string]string{"remote-a": "remote", "fallback": "bundled"})
	require.NoError(t, fx.cache.Write(context.Background(), "ECB-daily", []byte("cached")))
	d := desc(Scheduled)
	d.Properties = map[string]string{PropPeriod: "1h"}
	r := fx.resource(t, d)

	require.True(t, r.Load(context.Background()))
	data, err := r.GetData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", string(data))
	assert.Zero(t, fx.fetcher.count("remote-a"))
}

func TestLoadRemote_FirstReachableWinsAndWritesCache(t *testing.T) {
	fx := newFixture(map[string]string{"remote-b": "from-b", "fallback": "bundled"})
	r := fx.resource(t, desc(OnStartup))
	ctx := context.Background()

	require.True(t, r.LoadRemote(ctx))
	assert.Equal(t, 1, fx.fetcher.count("remote-a"))
	assert.Equal(t, 1, fx.fetcher.count("remote-b"))

	cached, err := fx.cache.Read(ctx, "ECB-daily")
	require.NoError(t, err)
	assert.Equal(t, "from-b", string(cached))

	st := r.Stats(ctx)
	assert.EqualValues(t, 1, st.LoadCount)
	assert.Equal(t, fx.now, st.LastLoaded)
	assert.True(t, st.Cached)
	assert.True(t, st.InMemory)
}

func TestLoadRemote_AllFail(t *testing.T) {
	fx := newFixture(map[string]string{"fallback": "bundled"})
	r := fx.resource(t, desc(OnStartup))
	assert.False(t, r.LoadRemote(context.Background()))
	assert.Zero(t, r.Version())
	assert.Empty(t, fx.alerts)
	assert.Empty(t, fx.loads)
}

func TestLoadRemote_ReportsSuccessForUnchangedPayload(t *testing.T) {
	fx := newFixture(map[string]string{"remote-a": "remote", "fallback": "bundled"})
	r := fx.resource(t, desc(OnStartup))
	ctx := context.Background()

	require.True(t, r.LoadRemote(ctx))
	require.True(t, r.LoadRemote(ctx))
	assert.EqualValues(t, 1, r.Version())
	assert.Equal(t, []string{"ECB-daily", "ECB-daily"}, fx.loads)
}

func TestLoadFallback_ClearsCache(t *testing.T) {
	fx := newFixture(map[string]string{"fallback": "bundled"})
	ctx := context.Background()
	require.NoError(t, fx.cache.Write(ctx, "ECB-daily", []byte("cached")))
	r := fx.resource(t, desc(OnStartup))

	require.True(t, r.LoadFallback(ctx))
	assert.False(t, fx.cache.IsCached(ctx, "ECB-daily"))
}

func TestLoadFallback_FailureRaisesAlert(t *testing.T) {
	fx := newFixture(nil)
	r := fx.resource(t, desc(Never))

	assert.False(t, r.LoadFallback(context.Background()))
	assert.Equal(t, []string{"ECB-daily"}, fx.alerts)
}

func TestGetData_RecoversAfterReclaim(t *testing.T) {
	fx := newFixture(map[string]string{"remote-a": "remote", "fallback": "bundled"})
	r := fx.resource(t, desc(OnStartup))
	ctx := context.Background()

	require.True(t, r.LoadRemote(ctx))
	fx.pool.Drop("ECB-daily")

	data, err := r.GetData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data), "recovered from cache")
	assert.Equal(t, 1, fx.fetcher.count("remote-a"))

	require.NoError(t, fx.cache.Clear(ctx, "ECB-daily"))
	fx.pool.Drop("ECB-daily")
	data, err = r.GetData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bundled", string(data), "recovered from fallback")
}

func TestGetData_ReturnsCopy(t *testing.T) {
	fx := newFixture(map[string]string{"fallback": "bundled"})
	r := fx.resource(t, desc(Never))
	ctx := context.Background()

	data, err := r.GetData(ctx)
	require.NoError(t, err)
	data[0] = 'X'

	again, err := r.GetData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bundled", string(again))
}

func TestGetData_Unavailable(t *testing.T) {
	fx := newFixture(nil)
	r := fx.resource(t, desc(Never))

	_, err := r.GetData(context.Background())
	require.ErrorIs(t, err, ErrResourceUnavailable)
	assert.NotEmpty(t, fx.alerts)
}

func TestLoad_TTLExpiryReloads(t *testing.T) {
	fx := newFixture(map[string]string{"remote-a": "v1", "fallback": "bundled"})
	d := desc(OnStartup)
	d.Properties = map[string]string{PropCacheTTL: "10m"}
	r := fx.resource(t, d)
	ctx := context.Background()

	require.True(t, r.LoadRemote(ctx))
	require.NoError(t, fx.cache.Write(ctx, "ECB-daily", []byte("v2")))

	fx.now = fx.now.Add(5 * time.Minute)
	r.mu.Lock()
	r.expireLocked()
	r.mu.Unlock()
	assert.True(t, fx.pool.Contains("ECB-daily"), "still fresh")

	fx.now = fx.now.Add(6 * time.Minute)
	r.mu.Lock()
	r.expireLocked()
	r.mu.Unlock()
	assert.False(t, fx.pool.Contains("ECB-daily"), "expired")

	require.True(t, r.Load(ctx))
	data, err := r.GetData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestVersion_OnlyBumpsOnChange(t *testing.T) {
	fx := newFixture(map[string]string{"remote-a": "same", "fallback": "bundled"})
	r := fx.resource(t, desc(OnStartup))
	ctx := context.Background()

	require.True(t, r.LoadRemote(ctx))
	v := r.Version()
	require.True(t, r.LoadRemote(ctx))
	assert.Equal(t, v, r.Version())

	fx.fetcher.set("remote-a", "changed")
	require.True(t, r.LoadRemote(ctx))
	assert.Equal(t, v+1, r.Version())
	assert.EqualValues(t, 3, r.Stats(ctx).LoadCount)
}

func TestResetToFallback(t *testing.T) {
	fx := newFixture(map[string]string{"remote-a": "remote", "fallback": "bundled"})
	r := fx.resource(t, desc(OnStartup))
	ctx := context.Background()

	require.True(t, r.LoadRemote(ctx))
	require.True(t, r.ResetToFallback(ctx))

	st := r.Stats(ctx)
	assert.Zero(t, st.LoadCount)
	assert.False(t, st.Cached)
	data, err := r.GetData(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bundled", string(data))
}

func TestWriteCache(t *testing.T) {
	fx := newFixture(map[string]string{"fallback": "bundled"})
	r := fx.resource(t, desc(Never))
	ctx := context.Background()

	assert.Error(t, r.WriteCache(ctx))
	require.True(t, r.LoadFallback(ctx))
	require.NoError(t, r.WriteCache(ctx))
	assert.True(t, fx.cache.IsCached(ctx, "ECB-daily"))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(desc(Never), Options{})
	assert.Error(t, err)
}
