package app

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/fxratemanager/internal/auth"
	"github.com/bher20/fxratemanager/internal/config"
	"github.com/bher20/fxratemanager/internal/rates"
	"github.com/bher20/fxratemanager/internal/resource"
	"github.com/bher20/fxratemanager/internal/storage"
	"github.com/bher20/fxratemanager/pkg/providers/ecb"
	"github.com/bher20/fxratemanager/pkg/providers/imf"
)

// offlineFetcher serves bundled payloads and fails every network location.
func offlineFetcher() resource.Fetcher {
	local := resource.NewFetcher(map[string]fs.FS{
		ecb.Key: ecb.New().Bundled(),
		imf.Key: imf.New().Bundled(),
	})
	return resource.FetcherFunc(func(ctx context.Context, location string, opts resource.FetchOptions) ([]byte, error) {
		if strings.HasPrefix(location, "http") {
			return nil, errors.New("offline")
		}
		return local.Fetch(ctx, location, opts)
	})
}

func testConfig() config.Config {
	return config.Config{
		Pool:  config.PoolConfig{Size: 16, MaxAge: time.Hour},
		Rates: config.RatesConfig{LookbackDays: 3, Providers: []string{"ecb", "imf"}},
	}
}

func newApp(t *testing.T, cfg config.Config, cache storage.ResourceCache) *App {
	t.Helper()
	a, err := New(context.Background(), Options{Config: cfg, Cache: cache, Fetcher: offlineFetcher()})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return a
}

var friday = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func TestNew_PrimesTablesFromFallback(t *testing.T) {
	a := newApp(t, testConfig(), storage.NewMemory())

	res, err := a.GetRate(rates.Query{Base: "USD", Term: "JPY", Date: friday})
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, ecb.Key, res.Provider)
	assert.Len(t, res.Record.Provenance, 2)

	want, err := decimal.MustParse("162.14").Quo(decimal.MustParse("1.0887"))
	require.NoError(t, err)
	diff, err := res.Record.Factor.Sub(want)
	require.NoError(t, err)
	assert.True(t, diff.Abs().Cmp(decimal.MustParse("0.000000000001")) < 0)

	// The SDR is only known to the IMF table.
	res, err = a.GetRate(rates.Query{Base: "XDR", Term: "USD", Date: friday})
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, imf.Key, res.Provider)
}

func TestGetRate_LoadsLazyResourcesOnFirstQuery(t *testing.T) {
	a := newApp(t, testConfig(), storage.NewMemory())
	ctx := context.Background()

	st, err := a.Registry.Stats(ctx, ecb.Hist90Resource)
	require.NoError(t, err)
	assert.False(t, st.InMemory)

	// Only the 90 day history reaches back to March 4th.
	res, err := a.GetRate(rates.Query{Base: "EUR", Term: "USD", Date: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, "1.0869", res.Record.Factor.String())

	st, err = a.Registry.Stats(ctx, ecb.Hist90Resource)
	require.NoError(t, err)
	assert.True(t, st.InMemory)
}

func TestNew_AppliesOverrides(t *testing.T) {
	cfg := testConfig()
	cfg.Rates.Providers = []string{"imf"}
	cfg.Resources = map[string]config.ResourceOverride{
		"imf-sdr": {Policy: "never"},
	}
	a := newApp(t, cfg, storage.NewMemory())

	d, err := a.Registry.Descriptor(imf.SDRResource)
	require.NoError(t, err)
	assert.Equal(t, resource.Never, d.Policy)
	assert.Empty(t, a.Registry.Jobs())

	require.Len(t, a.Engine.Sources(), 1)
	assert.Equal(t, imf.Key, a.ProviderInfo()[0].Key)
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Rates.Providers = []string{"ecb", "fed"}
	_, err := New(context.Background(), Options{Config: cfg, Cache: storage.NewMemory(), Fetcher: offlineFetcher()})
	require.Error(t, err)
}

func TestAlerter_RemoteSuccessWithSamePayloadResetsFailures(t *testing.T) {
	daily, err := fs.ReadFile(ecb.New().Bundled(), "eurofxref-daily.xml")
	require.NoError(t, err)

	var fallbackDown atomic.Bool
	local := offlineFetcher()
	fetcher := resource.FetcherFunc(func(ctx context.Context, location string, opts resource.FetchOptions) ([]byte, error) {
		if strings.HasPrefix(location, "http") {
			return daily, nil
		}
		if fallbackDown.Load() {
			return nil, errors.New("fallback missing")
		}
		return local.Fetch(ctx, location, opts)
	})

	cfg := testConfig()
	cfg.Rates.Providers = []string{"ecb"}
	cfg.Resources = map[string]config.ResourceOverride{
		"ecb-daily": {Policy: "lazy"},
	}
	a, err := New(context.Background(), Options{Config: cfg, Cache: storage.NewMemory(), Fetcher: fetcher})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	ctx := context.Background()

	ok, err := a.Registry.LoadData(ctx, ecb.DailyResource)
	require.NoError(t, err)
	require.True(t, ok)

	fallbackDown.Store(true)
	ok, err = a.Registry.LoadDataLocal(ctx, ecb.DailyResource)
	require.NoError(t, err)
	require.False(t, ok)
	assert.Equal(t, 1, a.Alerter.Failures(ecb.DailyResource))

	// The remote returns the bytes already held, so no listener fires.
	before, err := a.Registry.Stats(ctx, ecb.DailyResource)
	require.NoError(t, err)
	ok, err = a.Registry.LoadData(ctx, ecb.DailyResource)
	require.NoError(t, err)
	require.True(t, ok)
	after, err := a.Registry.Stats(ctx, ecb.DailyResource)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Zero(t, a.Alerter.Failures(ecb.DailyResource))
}

func TestHandler_EndToEnd(t *testing.T) {
	hash, err := auth.HashToken("s3cret")
	require.NoError(t, err)

	cache := storage.NewMemory()
	cfg := testConfig()
	cfg.Auth = config.AuthConfig{
		Enabled: true,
		Tokens:  []config.TokenConfig{{Name: "ops", Hash: hash, Role: auth.RoleAdmin}},
	}
	a := newApp(t, cfg, cache)
	require.NotNil(t, a.Auth)
	assert.True(t, cache.IsCached(context.Background(), auth.PolicyKey))

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	get := func(path string, token string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, get("/api/v1/rates?base=USD&term=GBP", "").StatusCode)
	assert.Equal(t, http.StatusOK, get("/api/v1/rates?base=USD&term=GBP&date=2024-03-17", "s3cret").StatusCode)
	assert.Equal(t, http.StatusOK, get("/api/v1/providers", "s3cret").StatusCode)
	assert.Equal(t, http.StatusOK, get("/readyz", "").StatusCode)
}
