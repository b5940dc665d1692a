package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/bher20/fxratemanager/internal/resource"
	"github.com/bher20/fxratemanager/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. FXRATES_HTTP_ADDR.
const EnvPrefix = "FXRATES"

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Dir    string `mapstructure:"dir"`
}

// PoolConfig bounds the in-memory payload pool.
type PoolConfig struct {
	Size   int           `mapstructure:"size"`
	MaxAge time.Duration `mapstructure:"max_age"`
}

type RatesConfig struct {
	LookbackDays int `mapstructure:"lookback_days"`
	// Providers lists the enabled providers in lookup order.
	Providers []string `mapstructure:"providers"`
}

type FetchConfig struct {
	InsecureSkipVerify bool  `mapstructure:"insecure_skip_verify"`
	MaxPayloadBytes    int64 `mapstructure:"max_payload_bytes"`
}

// ResourceOverride replaces parts of a provider's built-in resource
// descriptor. Empty fields keep the built-in value.
type ResourceOverride struct {
	Policy     string            `mapstructure:"policy"`
	Remotes    []string          `mapstructure:"remotes"`
	Fallback   string            `mapstructure:"fallback"`
	Properties map[string]string `mapstructure:"properties"`
}

type AlertingConfig struct {
	WebhookURL  string        `mapstructure:"webhook_url"`
	WebhookType string        `mapstructure:"webhook_type"`
	MinFailures int           `mapstructure:"min_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`

	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	EmailFrom      string `mapstructure:"email_from"`
	EmailTo        string `mapstructure:"email_to"`
}

type TokenConfig struct {
	Name string `mapstructure:"name"`
	// Hash is the bcrypt hash of the bearer token.
	Hash      string    `mapstructure:"hash"`
	Role      string    `mapstructure:"role"`
	ExpiresAt time.Time `mapstructure:"expires_at"`
}

type AuthConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Tokens  []TokenConfig `mapstructure:"tokens"`
}

type Config struct {
	Log       LogConfig                   `mapstructure:"log"`
	HTTP      HTTPConfig                  `mapstructure:"http"`
	Storage   StorageConfig               `mapstructure:"storage"`
	Pool      PoolConfig                  `mapstructure:"pool"`
	Rates     RatesConfig                 `mapstructure:"rates"`
	Fetch     FetchConfig                 `mapstructure:"fetch"`
	Resources map[string]ResourceOverride `mapstructure:"resources"`
	Alerting  AlertingConfig              `mapstructure:"alerting"`
	Auth      AuthConfig                  `mapstructure:"auth"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.format", "json")
	v.SetDefault("log.level", "info")
	v.SetDefault("http.addr", ":8000")
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.dir", "data/cache")
	v.SetDefault("pool.size", 64)
	v.SetDefault("pool.max_age", 24*time.Hour)
	v.SetDefault("rates.lookback_days", 3)
	v.SetDefault("rates.providers", []string{"ecb", "imf"})
	v.SetDefault("fetch.insecure_skip_verify", false)
	v.SetDefault("fetch.max_payload_bytes", resource.DefaultMaxPayloadBytes)
	v.SetDefault("alerting.webhook_url", "")
	v.SetDefault("alerting.webhook_type", "")
	v.SetDefault("alerting.min_failures", 1)
	v.SetDefault("alerting.timeout", 10*time.Second)
	v.SetDefault("alerting.sendgrid_api_key", "")
	v.SetDefault("alerting.email_from", "")
	v.SetDefault("alerting.email_to", "")
	v.SetDefault("auth.enabled", false)
}

// Load reads .env (if present), then the optional YAML file at path, then
// FXRATES_* environment variables. Later sources win.
func Load(path string) (Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	hooks := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hooks); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the process cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Rates.LookbackDays < 0 {
		errs = append(errs, fmt.Errorf("rates.lookback_days must not be negative, got %d", c.Rates.LookbackDays))
	}
	if c.Pool.Size < 0 {
		errs = append(errs, fmt.Errorf("pool.size must not be negative, got %d", c.Pool.Size))
	}
	for id, o := range c.Resources {
		if o.Policy == "" {
			continue
		}
		if _, err := resource.ParsePolicy(o.Policy); err != nil {
			errs = append(errs, fmt.Errorf("resources.%s.policy: %w", id, err))
		}
	}
	if c.Auth.Enabled && len(c.Auth.Tokens) == 0 {
		errs = append(errs, errors.New("auth.enabled requires at least one token"))
	}
	return errors.Join(errs...)
}

// StorageConfig maps the cache section onto the storage factory config.
func (c Config) StorageConfig() storage.Config {
	return storage.Config{Driver: c.Storage.Driver, DSN: c.Storage.DSN, Dir: c.Storage.Dir}
}

// Override returns the override for a resource id. Viper lowercases map keys,
// so ids are matched without regard to case.
func (c Config) Override(id string) (ResourceOverride, bool) {
	if o, ok := c.Resources[id]; ok {
		return o, true
	}
	for k, o := range c.Resources {
		if strings.EqualFold(k, id) {
			return o, true
		}
	}
	return ResourceOverride{}, false
}

// Apply merges o into a copy of d. Property keys are mapped back to their
// canonical spelling.
func (o ResourceOverride) Apply(d resource.Descriptor) (resource.Descriptor, error) {
	out := d
	if o.Policy != "" {
		p, err := resource.ParsePolicy(o.Policy)
		if err != nil {
			return d, err
		}
		out.Policy = p
	}
	if len(o.Remotes) > 0 {
		out.Remotes = append([]string(nil), o.Remotes...)
	}
	if o.Fallback != "" {
		out.Fallback = o.Fallback
	}
	if len(o.Properties) > 0 {
		props := make(map[string]string, len(d.Properties)+len(o.Properties))
		for k, v := range d.Properties {
			props[k] = v
		}
		for k, v := range o.Properties {
			props[canonicalProperty(k)] = v
		}
		out.Properties = props
	}
	return out, out.Validate()
}

var knownProperties = []string{
	resource.PropProxyHost,
	resource.PropProxyPort,
	resource.PropProxyType,
	resource.PropConnectTimeout,
	resource.PropReadTimeout,
	resource.PropWriteTimeout,
	resource.PropCacheTTL,
	resource.PropPeriod,
	resource.PropDelay,
	resource.PropAt,
	resource.PropCron,
	resource.PropStartRemote,
}

// canonicalProperty maps a config key such as "proxy_host" or "cachettl" to
// the descriptor property it names. Dotted keys cannot be used in config
// files because viper splits them into nested maps.
func canonicalProperty(k string) string {
	norm := propertyFolder.Replace(strings.ToLower(k))
	for _, known := range knownProperties {
		if propertyFolder.Replace(strings.ToLower(known)) == norm {
			return known
		}
	}
	return k
}

var propertyFolder = strings.NewReplacer(".", "", "_", "", "-", "")
