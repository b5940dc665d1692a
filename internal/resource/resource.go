// Package resource manages named byte payloads that are fetched from remote
// locations, cached locally and backed by a bundled fallback.
package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/fxratemanager/internal/metrics"
	"github.com/bher20/fxratemanager/internal/storage"
)

// ErrResourceUnavailable means neither the cache nor the fallback could
// produce a payload. It indicates a packaging or configuration defect.
var ErrResourceUnavailable = errors.New("resource unavailable")

// AlertFunc is called when a fallback load fails or a resource is exhausted.
type AlertFunc func(id string, err error)

// SuccessFunc is called after every successful remote load, changed or not.
type SuccessFunc func(id string)

// Options are the collaborators shared by all resources of a registry.
type Options struct {
	Cache   storage.ResourceCache
	Fetcher Fetcher
	Pool    *PayloadPool
	Logger  *zap.Logger
	// OnFailure and OnSuccess may be nil.
	OnFailure AlertFunc
	OnSuccess SuccessFunc
	// Now defaults to time.Now.
	Now func() time.Time
}

// Managed is one remotely sourced, locally cached, fallback-backed payload.
// All loads on one Managed are serialized.
type Managed struct {
	desc      Descriptor
	ttl       time.Duration
	fetchOpts FetchOptions

	cache     storage.ResourceCache
	fetcher   Fetcher
	pool      *PayloadPool
	log       *zap.Logger
	onFailure AlertFunc
	onSuccess SuccessFunc
	now       func() time.Time

	mu         sync.Mutex
	loadedAt   time.Time
	lastLoaded time.Time
	loadCount  int64
	version    atomic.Uint64

	accessCount atomic.Int64
}

// New validates the descriptor and builds the resource. Nothing is loaded.
func New(desc Descriptor, opts Options) (*Managed, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if opts.Cache == nil || opts.Fetcher == nil || opts.Pool == nil {
		return nil, fmt.Errorf("resource %s: cache, fetcher and pool are required", desc.ID)
	}
	ttl, _ := desc.CacheTTL()
	timeouts, _ := desc.Timeouts()
	proxy, _ := desc.Proxy()

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Managed{
		desc:      desc,
		ttl:       ttl,
		fetchOpts: FetchOptions{Proxy: proxy, Timeouts: timeouts},
		cache:     opts.Cache,
		fetcher:   opts.Fetcher,
		pool:      opts.Pool,
		log:       log.With(zap.String("resource", desc.ID)),
		onFailure: opts.OnFailure,
		onSuccess: opts.OnSuccess,
		now:       now,
	}, nil
}

func (r *Managed) ID() string             { return r.desc.ID }
func (r *Managed) Descriptor() Descriptor { return r.desc }

// Version increases every time the in-memory payload changes.
func (r *Managed) Version() uint64 { return r.version.Load() }

// Load drops an expired payload, then tries the cache, the remote locations
// (unless the policy is Never) and finally the fallback.
func (r *Managed) Load(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.expireLocked()
	if r.readCacheLocked(ctx) {
		return true
	}
	if r.desc.Policy != Never && r.loadRemoteLocked(ctx) {
		return true
	}
	if r.loadFallbackLocked(ctx) {
		return true
	}
	r.exhausted()
	return false
}

// LoadRemote tries each remote location in order and stops at the first
// success, which is also written to the cache.
func (r *Managed) LoadRemote(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadRemoteLocked(ctx)
}

// LoadFallback reads the bundled fallback and clears the cache entry.
func (r *Managed) LoadFallback(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadFallbackLocked(ctx)
}

// ReadCache replaces the in-memory payload with the cached bytes.
func (r *Managed) ReadCache(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readCacheLocked(ctx)
}

// WriteCache stores the current in-memory payload in the cache.
func (r *Managed) WriteCache(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.pool.Get(r.desc.ID)
	if !ok {
		return fmt.Errorf("resource %s: no payload in memory", r.desc.ID)
	}
	return r.cache.Write(ctx, r.desc.ID, data)
}

// ResetToFallback forces the fallback payload and resets the load count.
func (r *Managed) ResetToFallback(ctx context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loadFallbackLocked(ctx) {
		return false
	}
	r.loadCount = 0
	return true
}

// GetData returns a copy of the current payload, recovering it from the
// cache or the fallback when it is not held in memory.
func (r *Managed) GetData(ctx context.Context) ([]byte, error) {
	r.accessCount.Add(1)
	data, _, err := r.Snapshot(ctx)
	return data, err
}

// Snapshot is GetData plus the version of the returned payload. It does not
// count as an access.
func (r *Managed) Snapshot(ctx context.Context) ([]byte, uint64, error) {
	if v := r.version.Load(); v > 0 {
		if data, ok := r.pool.Get(r.desc.ID); ok && r.version.Load() == v {
			return data, v, nil
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if data, ok := r.pool.Get(r.desc.ID); ok {
		return data, r.version.Load(), nil
	}
	if r.version.Load() > 0 {
		r.log.Debug("payload reclaimed, recovering")
	}
	if r.readCacheLocked(ctx) || r.loadFallbackLocked(ctx) {
		if data, ok := r.pool.Get(r.desc.ID); ok {
			return data, r.version.Load(), nil
		}
	}
	r.exhausted()
	return nil, 0, fmt.Errorf("resource %s: %w", r.desc.ID, ErrResourceUnavailable)
}

// Stats is a point-in-time view of the resource counters.
type Stats struct {
	ID          string       `json:"id"`
	Policy      UpdatePolicy `json:"-"`
	PolicyName  string       `json:"policy"`
	LastLoaded  time.Time    `json:"last_loaded,omitempty"`
	LoadCount   int64        `json:"load_count"`
	AccessCount int64        `json:"access_count"`
	InMemory    bool         `json:"in_memory"`
	Cached      bool         `json:"cached"`
	Version     uint64       `json:"version"`
}

func (r *Managed) Stats(ctx context.Context) Stats {
	r.mu.Lock()
	lastLoaded, loadCount := r.lastLoaded, r.loadCount
	r.mu.Unlock()
	return Stats{
		ID:          r.desc.ID,
		Policy:      r.desc.Policy,
		PolicyName:  r.desc.Policy.String(),
		LastLoaded:  lastLoaded,
		LoadCount:   loadCount,
		AccessCount: r.accessCount.Load(),
		InMemory:    r.pool.Contains(r.desc.ID),
		Cached:      r.cache.IsCached(ctx, r.desc.ID),
		Version:     r.version.Load(),
	}
}

func (r *Managed) expireLocked() {
	if r.ttl <= 0 || r.loadedAt.IsZero() {
		return
	}
	if r.now().Sub(r.loadedAt) > r.ttl {
		r.log.Debug("payload ttl expired", zap.Duration("ttl", r.ttl))
		r.pool.Drop(r.desc.ID)
		r.loadedAt = time.Time{}
	}
}

// setPayloadLocked bumps the version only when the bytes differ from the
// payload currently held.
func (r *Managed) setPayloadLocked(data []byte) {
	r.loadedAt = r.now()
	if cur, ok := r.pool.Get(r.desc.ID); ok && bytes.Equal(cur, data) {
		return
	}
	r.pool.Put(r.desc.ID, data)
	r.version.Add(1)
}

func (r *Managed) readCacheLocked(ctx context.Context) bool {
	if !r.cache.IsCached(ctx, r.desc.ID) {
		return false
	}
	data, err := r.cache.Read(ctx, r.desc.ID)
	if err != nil || len(data) == 0 {
		if err != nil && !errors.Is(err, storage.ErrNotCached) {
			r.log.Warn("cache read failed", zap.Error(err))
		}
		metrics.ObserveLoad(r.desc.ID, "cache", false)
		return false
	}
	r.setPayloadLocked(data)
	metrics.ObserveLoad(r.desc.ID, "cache", true)
	return true
}

func (r *Managed) loadRemoteLocked(ctx context.Context) bool {
	for _, loc := range r.desc.Remotes {
		if ctx.Err() != nil {
			r.log.Info("remote load cancelled", zap.Error(ctx.Err()))
			break
		}
		start := time.Now()
		data, err := r.fetcher.Fetch(ctx, loc, r.fetchOpts)
		metrics.RemoteFetchDurationSeconds.WithLabelValues(r.desc.ID).Observe(time.Since(start).Seconds())
		if err == nil && len(data) == 0 {
			err = errors.New("empty payload")
		}
		if err != nil {
			r.log.Warn("remote location failed", zap.String("location", loc), zap.Error(err))
			continue
		}

		r.setPayloadLocked(data)
		r.lastLoaded = r.now()
		r.loadCount++
		if err := r.cache.Write(ctx, r.desc.ID, data); err != nil {
			r.log.Warn("cache write failed", zap.Error(err))
		}
		r.log.Info("loaded from remote",
			zap.String("location", loc),
			zap.Int("bytes", len(data)),
			zap.Int64("load_count", r.loadCount),
		)
		metrics.ObserveLoad(r.desc.ID, "remote", true)
		if r.onSuccess != nil {
			r.onSuccess(r.desc.ID)
		}
		return true
	}
	if len(r.desc.Remotes) > 0 {
		r.log.Warn("all remote locations failed", zap.Int("locations", len(r.desc.Remotes)))
	}
	metrics.ObserveLoad(r.desc.ID, "remote", false)
	return false
}

func (r *Managed) loadFallbackLocked(ctx context.Context) bool {
	data, err := r.fetcher.Fetch(ctx, r.desc.Fallback, FetchOptions{})
	if err == nil && len(data) == 0 {
		err = errors.New("empty payload")
	}
	if err != nil {
		r.log.Error("fallback load failed", zap.String("location", r.desc.Fallback), zap.Error(err))
		metrics.ObserveLoad(r.desc.ID, "fallback", false)
		r.alert(fmt.Errorf("fallback %s: %w", r.desc.Fallback, err))
		return false
	}
	r.setPayloadLocked(data)
	if err := r.cache.Clear(ctx, r.desc.ID); err != nil {
		r.log.Warn("cache clear failed", zap.Error(err))
	}
	metrics.ObserveLoad(r.desc.ID, "fallback", true)
	return true
}

func (r *Managed) exhausted() {
	r.log.Error("no payload available from cache, remote or fallback")
	r.alert(ErrResourceUnavailable)
}

func (r *Managed) alert(err error) {
	if r.onFailure != nil {
		r.onFailure(r.desc.ID, err)
	}
}
