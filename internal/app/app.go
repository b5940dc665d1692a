// Package app builds the object graph of the service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/bher20/fxratemanager/internal/alerting"
	"github.com/bher20/fxratemanager/internal/api"
	"github.com/bher20/fxratemanager/internal/auth"
	"github.com/bher20/fxratemanager/internal/config"
	"github.com/bher20/fxratemanager/internal/cron"
	"github.com/bher20/fxratemanager/internal/loader"
	"github.com/bher20/fxratemanager/internal/rates"
	"github.com/bher20/fxratemanager/internal/resource"
	"github.com/bher20/fxratemanager/internal/storage"
	"github.com/bher20/fxratemanager/pkg/providers"
	"github.com/bher20/fxratemanager/pkg/providers/ecb"
	"github.com/bher20/fxratemanager/pkg/providers/imf"
)

// DefaultProviders registers every provider shipped with the service.
func DefaultProviders() *providers.Registry {
	reg := providers.NewRegistry()
	reg.Register(ecb.Key, ecb.New)
	reg.Register(imf.Key, imf.New)
	return reg
}

type Options struct {
	Config config.Config
	Logger *zap.Logger
	// Providers defaults to DefaultProviders.
	Providers *providers.Registry
	// Cache and Fetcher replace the configured backends when set.
	Cache   storage.ResourceCache
	Fetcher resource.Fetcher
}

// App owns every long-lived component of the service.
type App struct {
	Config    config.Config
	Log       *zap.Logger
	Cache     storage.ResourceCache
	Registry  *loader.Registry
	Engine    *rates.Engine
	Providers []providers.Provider
	Alerter   *alerting.Alerter
	Auth      *auth.Service

	lazy     []string
	lazyOnce sync.Once
}

// New wires the application. Feed listeners are attached before resources
// are registered so loads started by registration reach the rate tables.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	provReg := opts.Providers
	if provReg == nil {
		provReg = DefaultProviders()
	}

	a := &App{Config: cfg, Log: log}

	var provs []providers.Provider
	mounts := make(map[string]fs.FS)
	for _, name := range cfg.Rates.Providers {
		p, err := provReg.Get(name)
		if err != nil {
			return nil, err
		}
		provs = append(provs, p)
		mounts[p.Key()] = p.Bundled()
	}
	a.Providers = provs

	cache := opts.Cache
	if cache == nil {
		c, err := storage.Open(ctx, cfg.StorageConfig(), log.Named("storage"))
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		cache = c
	}
	a.Cache = cache

	fetcher := opts.Fetcher
	if fetcher == nil {
		f := resource.NewFetcher(mounts)
		f.InsecureSkipVerify(cfg.Fetch.InsecureSkipVerify)
		f.MaxPayloadBytes(cfg.Fetch.MaxPayloadBytes)
		fetcher = f
	}

	a.Alerter = newAlerter(cfg.Alerting, log)

	a.Registry = loader.New(loader.Options{
		Cache:     cache,
		Fetcher:   fetcher,
		Pool:      resource.NewPayloadPool(cfg.Pool.Size, cfg.Pool.MaxAge),
		Scheduler: cron.New(log.Named("cron")),
		Logger:    log.Named("loader"),
		OnFailure: a.Alerter.ResourceFailed,
		OnSuccess: a.Alerter.Recovered,
	})

	engineOpts := []rates.Option{
		rates.WithLookback(cfg.Rates.LookbackDays),
		rates.WithLogger(log.Named("rates")),
	}
	var descs []resource.Descriptor
	for _, p := range provs {
		table := rates.NewTable(p.Key(), p.Pivot())
		engineOpts = append(engineOpts, rates.WithSource(rates.Source{
			Provider: p.Key(),
			Table:    table,
			Strategy: p.Strategy(),
		}))

		for _, r := range p.Resources() {
			d := r.Descriptor
			if o, ok := cfg.Override(d.ID); ok {
				var err error
				if d, err = o.Apply(d); err != nil {
					return nil, fmt.Errorf("resource %s override: %w", r.Descriptor.ID, err)
				}
			}
			binding := &rates.FeedBinding{
				Provider: p.Key(),
				Table:    table,
				Decoder:  p,
				Kind:     r.Kind,
				Latest:   r.Latest,
				Log:      log.Named("feed"),
			}
			a.Registry.AddLoaderListener(binding.OnLoad, d.ID)
			descs = append(descs, d)
		}
	}
	a.Engine = rates.NewEngine(engineOpts...)

	for _, d := range descs {
		if err := a.Registry.Register(ctx, d); err != nil {
			return nil, err
		}
		if d.Policy == resource.Lazy {
			a.lazy = append(a.lazy, d.ID)
			continue
		}
		// Fill the tables from cache or fallback while remote loads run.
		if _, err := a.Registry.GetData(ctx, d.ID); err != nil {
			log.Warn("resource not primed", zap.String("resource", d.ID), zap.Error(err))
		}
	}

	if cfg.Auth.Enabled {
		tokens := make([]auth.Token, 0, len(cfg.Auth.Tokens))
		for _, t := range cfg.Auth.Tokens {
			tokens = append(tokens, auth.Token{Name: t.Name, Hash: t.Hash, Role: t.Role, ExpiresAt: t.ExpiresAt})
		}
		svc, err := auth.NewService(tokens, auth.NewAdapter(cache))
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		a.Auth = svc
	}

	return a, nil
}

func newAlerter(cfg config.AlertingConfig, log *zap.Logger) *alerting.Alerter {
	var senders []alerting.Sender
	if cfg.WebhookURL != "" {
		senders = append(senders, alerting.NewWebhookSender(cfg.WebhookURL, cfg.WebhookType, cfg.Timeout))
	}
	if cfg.SendGridAPIKey != "" && cfg.EmailTo != "" {
		senders = append(senders, alerting.NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailFrom, cfg.EmailTo))
	}
	return alerting.New(alerting.Config{MinFailures: cfg.MinFailures, Timeout: cfg.Timeout}, log, senders...)
}

// Start begins scheduled reloads.
func (a *App) Start() {
	a.Registry.Start()
}

// GetRate answers a rate query. The first query loads the lazy resources.
func (a *App) GetRate(q rates.Query) (rates.Result, error) {
	a.lazyOnce.Do(func() {
		for _, id := range a.lazy {
			if _, err := a.Registry.GetData(context.Background(), id); err != nil {
				a.Log.Warn("lazy resource unavailable", zap.String("resource", id), zap.Error(err))
			}
		}
	})
	return a.Engine.GetRate(q)
}

// ProviderInfo describes the enabled providers in lookup order.
func (a *App) ProviderInfo() []providers.Info {
	out := make([]providers.Info, 0, len(a.Providers))
	for _, p := range a.Providers {
		out = append(out, providers.Describe(p))
	}
	return out
}

// Handler is the HTTP API of the application.
func (a *App) Handler() http.Handler {
	return api.NewServer(api.Options{
		Rates:     a,
		Resources: a.Registry,
		Providers: a.ProviderInfo(),
		Ready:     a.Cache,
		Auth:      a.Auth,
		Logger:    a.Log,
	}).Handler()
}

// Close stops the registry, waits for pending alerts and closes the cache.
func (a *App) Close(ctx context.Context) error {
	err := a.Registry.Shutdown(ctx)
	a.Alerter.Wait()
	return errors.Join(err, a.Cache.Close())
}
