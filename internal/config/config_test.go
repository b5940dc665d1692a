package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/fxratemanager/internal/resource"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fxrates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FXRATES_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTP.Addr)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, 64, cfg.Pool.Size)
	assert.Equal(t, 3, cfg.Rates.LookbackDays)
	assert.Equal(t, []string{"ecb", "imf"}, cfg.Rates.Providers)
	assert.Equal(t, 1, cfg.Alerting.MinFailures)
	assert.Equal(t, int64(32<<20), cfg.Fetch.MaxPayloadBytes)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
storage:
  driver: sqlite
  dsn: /tmp/fx.db
pool:
  max_age: 2h
rates:
  lookback_days: 5
resources:
  ECB-daily:
    policy: lazy
    remotes:
      - https://mirror.example.com/daily.xml
    properties:
      cacheTTL: 6h
      proxy_host: proxy.internal
auth:
  enabled: true
  tokens:
    - name: ops
      hash: "$2a$10$abcdefghijklmnopqrstuv"
      role: admin
      expires_at: "2030-01-02T03:04:05Z"
`)
	t.Setenv("FXRATES_HTTP_ADDR", ":9100")
	t.Setenv("FXRATES_RATES_PROVIDERS", "imf,ecb")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9100", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.StorageConfig().Driver)
	assert.Equal(t, "/tmp/fx.db", cfg.StorageConfig().DSN)
	assert.Equal(t, 2*time.Hour, cfg.Pool.MaxAge)
	assert.Equal(t, 5, cfg.Rates.LookbackDays)
	assert.Equal(t, []string{"imf", "ecb"}, cfg.Rates.Providers)

	require.Len(t, cfg.Auth.Tokens, 1)
	tok := cfg.Auth.Tokens[0]
	assert.Equal(t, "ops", tok.Name)
	assert.Equal(t, "admin", tok.Role)
	assert.Equal(t, time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC), tok.ExpiresAt.UTC())

	o, ok := cfg.Override("ECB-daily")
	require.True(t, ok)
	assert.Equal(t, "lazy", o.Policy)
	assert.Equal(t, []string{"https://mirror.example.com/daily.xml"}, o.Remotes)
}

func TestLoad_RejectsBadPolicy(t *testing.T) {
	path := writeConfig(t, `
resources:
  ECB-daily:
    policy: sometimes
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy")
}

func TestLoad_AuthNeedsTokens(t *testing.T) {
	path := writeConfig(t, "auth:\n  enabled: true\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestOverrideApply(t *testing.T) {
	base := resource.Descriptor{
		ID:       "ECB-daily",
		Remotes:  []string{"https://www.ecb.europa.eu/daily.xml"},
		Fallback: "embed://ecb/data/eurofxref-daily.xml",
		Policy:   resource.Scheduled,
		Properties: map[string]string{
			resource.PropAt:          "16:30",
			resource.PropStartRemote: "true",
		},
	}

	o := ResourceOverride{
		Properties: map[string]string{
			"cachettl":        "6h",
			"proxy_host":      "proxy.internal",
			"connect-timeout": "500",
			"custom":          "kept",
		},
	}
	got, err := o.Apply(base)
	require.NoError(t, err)

	assert.Equal(t, resource.Scheduled, got.Policy)
	assert.Equal(t, base.Remotes, got.Remotes)
	assert.Equal(t, "6h", got.Properties[resource.PropCacheTTL])
	assert.Equal(t, "proxy.internal", got.Properties[resource.PropProxyHost])
	assert.Equal(t, "500", got.Properties[resource.PropConnectTimeout])
	assert.Equal(t, "kept", got.Properties["custom"])
	assert.Equal(t, "16:30", got.Properties[resource.PropAt])

	// The built-in descriptor is untouched.
	_, leaked := base.Properties[resource.PropCacheTTL]
	assert.False(t, leaked)
}

func TestOverrideApply_Policy(t *testing.T) {
	base := resource.Descriptor{ID: "r", Fallback: "f.xml", Policy: resource.Lazy}

	got, err := ResourceOverride{Policy: "never", Fallback: "other.xml"}.Apply(base)
	require.NoError(t, err)
	assert.Equal(t, resource.Never, got.Policy)
	assert.Equal(t, "other.xml", got.Fallback)

	// Scheduled without a trigger does not validate.
	_, err = ResourceOverride{Policy: "scheduled"}.Apply(base)
	require.Error(t, err)
}
