// Package loader owns the managed resources of the process, applies their
// update policies and fans payload changes out to listeners.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bher20/fxratemanager/internal/cron"
	"github.com/bher20/fxratemanager/internal/metrics"
	"github.com/bher20/fxratemanager/internal/resource"
	"github.com/bher20/fxratemanager/internal/storage"
)

var (
	ErrDuplicateResource = errors.New("duplicate resource")
	ErrUnknownResource   = errors.New("unknown resource")
	ErrRegistryClosed    = errors.New("registry closed")
)

// Event is delivered to listeners when a resource payload changes. Data is
// shared between listeners and must not be modified.
type Event struct {
	ResourceID string
	Stage      string
	Version    uint64
	Data       []byte
}

// Listener handles payload change events. Listeners run synchronously on the
// loading goroutine and must not load the same resource again.
type Listener func(Event)

// Options are the collaborators handed to every managed resource.
type Options struct {
	Cache     storage.ResourceCache
	Fetcher   resource.Fetcher
	Pool      *resource.PayloadPool
	Scheduler *cron.Scheduler
	Logger    *zap.Logger
	OnFailure resource.AlertFunc
	OnSuccess resource.SuccessFunc
	// RefreshConcurrency bounds RefreshAll; zero means 4.
	RefreshConcurrency int
}

type entry struct {
	res *resource.Managed

	notifyMu  sync.Mutex
	delivered uint64

	lazyOnce sync.Once
}

type subscription struct {
	id  string
	fn  Listener
	ids map[string]struct{}
}

// Registry is the loader registry. The zero value is not usable; use New.
type Registry struct {
	opts  Options
	log   *zap.Logger
	sched *cron.Scheduler

	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	closed  bool

	lmu  sync.RWMutex
	subs []subscription

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Pool == nil {
		opts.Pool = resource.NewPayloadPool(0, 0)
	}
	if opts.Scheduler == nil {
		opts.Scheduler = cron.New(log.Named("cron"))
	}
	if opts.RefreshConcurrency <= 0 {
		opts.RefreshConcurrency = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		opts:    opts,
		log:     log,
		sched:   opts.Scheduler,
		entries: make(map[string]*entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins firing scheduled loads.
func (r *Registry) Start() {
	r.sched.Start()
}

// Register adds a resource and applies its update policy.
func (r *Registry) Register(ctx context.Context, d resource.Descriptor) error {
	res, err := resource.New(d, resource.Options{
		Cache:     r.opts.Cache,
		Fetcher:   r.opts.Fetcher,
		Pool:      r.opts.Pool,
		Logger:    r.log.Named("resource"),
		OnFailure: r.opts.OnFailure,
		OnSuccess: r.opts.OnSuccess,
	})
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	if _, ok := r.entries[d.ID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("register %s: %w", d.ID, ErrDuplicateResource)
	}
	e := &entry{res: res}
	r.entries[d.ID] = e
	r.order = append(r.order, d.ID)
	r.mu.Unlock()

	r.log.Info("resource registered",
		zap.String("resource", d.ID),
		zap.Stringer("policy", d.Policy),
		zap.Strings("remotes", d.Remotes),
	)

	switch d.Policy {
	case resource.Never:
		r.stage(ctx, e, "local", res.Load)
	case resource.OnStartup:
		r.loadAsync(e)
	case resource.Scheduled:
		if err := r.schedule(e); err != nil {
			return err
		}
		if d.StartRemote() {
			r.loadAsync(e)
		}
	case resource.Lazy:
	}
	return nil
}

// RegisterAndLoad registers the resource then loads it synchronously.
func (r *Registry) RegisterAndLoad(ctx context.Context, d resource.Descriptor) (bool, error) {
	if err := r.Register(ctx, d); err != nil {
		return false, err
	}
	return r.LoadData(ctx, d.ID)
}

// LoadData reads the cache and then the remote locations. A Never resource
// reads the cache and then its fallback instead. Listeners are notified
// after each stage that changes the payload.
func (r *Registry) LoadData(ctx context.Context, id string) (bool, error) {
	e, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	return r.loadData(ctx, e), nil
}

func (r *Registry) loadData(ctx context.Context, e *entry) bool {
	if e.res.Descriptor().Policy == resource.Never {
		return r.stage(ctx, e, "local", e.res.Load)
	}
	ok := r.stage(ctx, e, "cache", e.res.ReadCache)
	if r.stage(ctx, e, "remote", e.res.LoadRemote) {
		ok = true
	}
	return ok
}

// LoadDataAsync runs LoadData on its own goroutine. The channel receives the
// result and is then closed.
func (r *Registry) LoadDataAsync(id string) (<-chan bool, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	return r.loadAsync(e), nil
}

func (r *Registry) loadAsync(e *entry) <-chan bool {
	ch := make(chan bool, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(ch)
		ch <- r.loadData(r.ctx, e)
	}()
	return ch
}

// LoadDataLocal loads the bundled fallback only.
func (r *Registry) LoadDataLocal(ctx context.Context, id string) (bool, error) {
	e, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	return r.stage(ctx, e, "fallback", e.res.LoadFallback), nil
}

// ResetData forces the fallback payload and resets the load count.
func (r *Registry) ResetData(ctx context.Context, id string) (bool, error) {
	e, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	return r.stage(ctx, e, "reset", e.res.ResetToFallback), nil
}

// GetData returns the current payload. A lazy resource schedules its remote
// load on first access.
func (r *Registry) GetData(ctx context.Context, id string) ([]byte, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	before := e.res.Version()
	data, err := e.res.GetData(ctx)
	if err != nil {
		return nil, err
	}
	if e.res.Version() != before {
		r.publish(ctx, e, "recover")
	}
	if e.res.Descriptor().Policy == resource.Lazy {
		e.lazyOnce.Do(func() { r.loadAsync(e) })
	}
	return data, nil
}

// Resources lists resource ids in registration order.
func (r *Registry) Resources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Descriptor returns the descriptor a resource was registered with.
func (r *Registry) Descriptor(id string) (resource.Descriptor, error) {
	e, err := r.lookup(id)
	if err != nil {
		return resource.Descriptor{}, err
	}
	return e.res.Descriptor(), nil
}

func (r *Registry) Stats(ctx context.Context, id string) (resource.Stats, error) {
	e, err := r.lookup(id)
	if err != nil {
		return resource.Stats{}, err
	}
	return e.res.Stats(ctx), nil
}

// AllStats returns the stats of every resource in registration order.
func (r *Registry) AllStats(ctx context.Context) []resource.Stats {
	ids := r.Resources()
	out := make([]resource.Stats, 0, len(ids))
	for _, id := range ids {
		if st, err := r.Stats(ctx, id); err == nil {
			out = append(out, st)
		}
	}
	return out
}

// RefreshAll runs LoadData for the given resources, or all of them,
// concurrently. A failure does not stop the other refreshes; the first one
// is returned.
func (r *Registry) RefreshAll(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		ids = r.Resources()
	}
	var g errgroup.Group
	g.SetLimit(r.opts.RefreshConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			ok, err := r.LoadData(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("refresh %s: no payload from cache or remote", id)
			}
			return nil
		})
	}
	return g.Wait()
}

// ResetSchedules rebuilds the shared scheduler and reinstalls the job of
// every scheduled resource, including cancelled ones.
func (r *Registry) ResetSchedules() error {
	if err := r.sched.Reset(); err != nil {
		return err
	}
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, r.entries[id])
	}
	r.mu.RUnlock()

	for _, e := range entries {
		if e.res.Descriptor().Policy != resource.Scheduled {
			continue
		}
		if err := r.schedule(e); err != nil {
			return err
		}
	}
	return nil
}

// CancelSchedule removes the recurring job of one resource.
func (r *Registry) CancelSchedule(id string) (bool, error) {
	if _, err := r.lookup(id); err != nil {
		return false, err
	}
	return r.sched.Cancel(id), nil
}

// Jobs lists the installed scheduled jobs.
func (r *Registry) Jobs() []cron.JobInfo {
	return r.sched.Jobs()
}

// Shutdown stops the scheduler, cancels async loads and waits for them.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	err := r.sched.Stop(ctx)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

func (r *Registry) schedule(e *entry) error {
	d := e.res.Descriptor()
	sc, err := d.Schedule()
	if err != nil {
		return err
	}
	var triggers []cron.Trigger
	if sc.Period > 0 {
		triggers = append(triggers, cron.Every(sc.Period, sc.Delay))
	}
	for _, t := range sc.Times {
		triggers = append(triggers, cron.DailyAt(t.Hour, t.Minute, t.Second))
	}
	if sc.Cron != "" {
		triggers = append(triggers, cron.Expression(sc.Cron))
	}
	return r.sched.Schedule(d.ID, func(ctx context.Context) error {
		if !r.loadData(ctx, e) {
			return fmt.Errorf("scheduled load of %s produced no payload", d.ID)
		}
		return nil
	}, triggers...)
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrUnknownResource)
	}
	return e, nil
}

// stage runs one load step and publishes the payload if it changed.
func (r *Registry) stage(ctx context.Context, e *entry, name string, fn func(context.Context) bool) bool {
	before := e.res.Version()
	ok := fn(ctx)
	if ok && e.res.Version() != before {
		r.publish(ctx, e, name)
	}
	return ok
}

func (r *Registry) publish(ctx context.Context, e *entry, stage string) {
	data, version, err := e.res.Snapshot(ctx)
	if err != nil {
		r.log.Warn("payload changed but could not be read back",
			zap.String("resource", e.res.ID()), zap.Error(err))
		return
	}
	r.notify(e, Event{ResourceID: e.res.ID(), Stage: stage, Version: version, Data: data})
}

// notify delivers ev unless a newer payload version was already delivered
// for the same resource.
func (r *Registry) notify(e *entry, ev Event) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	if ev.Version <= e.delivered {
		r.log.Debug("dropping stale notification",
			zap.String("resource", ev.ResourceID),
			zap.Uint64("version", ev.Version),
			zap.Uint64("delivered", e.delivered),
		)
		return
	}
	e.delivered = ev.Version

	for _, l := range r.listenersFor(ev.ResourceID) {
		r.call(l, ev)
	}
}

func (r *Registry) call(l Listener, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.ListenerFailuresTotal.WithLabelValues(ev.ResourceID).Inc()
			r.log.Error("loader listener panicked",
				zap.String("resource", ev.ResourceID),
				zap.Any("panic", rec),
			)
		}
	}()
	l(ev)
}

// AddLoaderListener subscribes l to the given resources, or to all resources
// when no ids are given. The returned id removes the subscription.
func (r *Registry) AddLoaderListener(l Listener, ids ...string) string {
	sub := subscription{id: uuid.NewString(), fn: l}
	if len(ids) > 0 {
		sub.ids = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			sub.ids[id] = struct{}{}
		}
	}
	r.lmu.Lock()
	r.subs = append(r.subs, sub)
	r.lmu.Unlock()
	return sub.id
}

// RemoveLoaderListener reports whether the subscription existed.
func (r *Registry) RemoveLoaderListener(subscriptionID string) bool {
	r.lmu.Lock()
	defer r.lmu.Unlock()
	for i, s := range r.subs {
		if s.id == subscriptionID {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Registry) listenersFor(id string) []Listener {
	r.lmu.RLock()
	defer r.lmu.RUnlock()
	var out []Listener
	for _, s := range r.subs {
		if s.ids == nil {
			out = append(out, s.fn)
			continue
		}
		if _, ok := s.ids[id]; ok {
			out = append(out, s.fn)
		}
	}
	return out
}
