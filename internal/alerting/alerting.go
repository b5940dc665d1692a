package alerting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds alerting configuration.
type Config struct {
	// MinFailures is the number of consecutive failures of one resource
	// before alerts are sent for it.
	MinFailures int
	// Timeout bounds a single delivery to all senders.
	Timeout time.Duration
}

// Alert describes a resource that could not be loaded.
type Alert struct {
	Resource  string    `json:"resource"`
	Error     string    `json:"error"`
	Failures  int       `json:"failures"`
	Timestamp time.Time `json:"timestamp"`
}

// Sender delivers an alert to one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

// Alerter counts consecutive failures per resource and fans alerts out to
// its senders once a resource crosses the threshold.
type Alerter struct {
	cfg     Config
	senders []Sender
	log     *zap.Logger
	now     func() time.Time

	mu       sync.Mutex
	failures map[string]int

	wg sync.WaitGroup
}

func New(cfg Config, log *zap.Logger, senders ...Sender) *Alerter {
	if cfg.MinFailures <= 0 {
		cfg.MinFailures = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Alerter{
		cfg:      cfg,
		senders:  senders,
		log:      log.Named("alerting"),
		now:      time.Now,
		failures: make(map[string]int),
	}
}

// Enabled reports whether any sender is configured.
func (a *Alerter) Enabled() bool { return len(a.senders) > 0 }

// ResourceFailed records a failure and dispatches an alert in the background
// when the threshold is reached. It matches resource.AlertFunc and never
// blocks the caller on delivery.
func (a *Alerter) ResourceFailed(id string, err error) {
	a.mu.Lock()
	a.failures[id]++
	n := a.failures[id]
	a.mu.Unlock()

	if !a.Enabled() {
		a.log.Debug("alerts disabled, skipping", zap.String("resource", id))
		return
	}
	if n < a.cfg.MinFailures {
		a.log.Debug("failures below threshold, skipping",
			zap.String("resource", id),
			zap.Int("failures", n),
			zap.Int("threshold", a.cfg.MinFailures))
		return
	}

	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	alert := Alert{Resource: id, Error: msg, Failures: n, Timestamp: a.now().UTC()}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
		defer cancel()
		if err := a.Notify(ctx, alert); err != nil {
			a.log.Warn("alert delivery failed", zap.String("resource", id), zap.Error(err))
		}
	}()
}

// Recovered clears the failure count of a resource.
func (a *Alerter) Recovered(id string) {
	a.mu.Lock()
	delete(a.failures, id)
	a.mu.Unlock()
}

// Failures returns the current consecutive failure count of a resource.
func (a *Alerter) Failures(id string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failures[id]
}

// Notify sends alert to every sender and joins their errors.
func (a *Alerter) Notify(ctx context.Context, alert Alert) error {
	var errs []error
	for _, s := range a.senders {
		if err := s.Send(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		a.log.Info("sent alert",
			zap.String("sender", s.Name()),
			zap.String("resource", alert.Resource),
			zap.Int("failures", alert.Failures))
	}
	return errors.Join(errs...)
}

// Wait blocks until background deliveries finish.
func (a *Alerter) Wait() { a.wg.Wait() }
