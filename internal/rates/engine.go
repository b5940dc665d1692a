package rates

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/fxratemanager/internal/metrics"
)

// DefaultLookback is the number of days searched before the preferred date.
const DefaultLookback = 3

// Strategy selects how a conversion is derived from a pivot table.
type Strategy int

const (
	// SinglePivotChain serves direct and reversed pivot legs and two-hop
	// conversions through the pivot.
	SinglePivotChain Strategy = iota
	// ReverseOnly serves direct and reversed pivot legs only.
	ReverseOnly
)

func (s Strategy) String() string {
	if s == ReverseOnly {
		return "reverse-only"
	}
	return "single-pivot-chain"
}

// Source is one table consulted by the engine.
type Source struct {
	Provider string
	Table    *Table
	Strategy Strategy
}

// Query asks for the rate converting Base into Term. A zero Date means the
// most recent date of each table. Dates, when set, replaces the look-back
// window and is searched verbatim.
type Query struct {
	Base  string
	Term  string
	Date  time.Time
	Dates []time.Time
}

// Result is the answer to a Query. Found is false when no source holds the
// rate within the searched dates.
type Result struct {
	Record   Record    `json:"record"`
	Found    bool      `json:"found"`
	Provider string    `json:"provider,omitempty"`
	Date     time.Time `json:"date,omitempty"`
}

// Engine answers queries against its sources, in order. It performs no I/O.
type Engine struct {
	sources  []Source
	lookback int
	log      *zap.Logger
}

type Option func(*Engine)

// WithLookback sets how many days before the preferred date are searched.
func WithLookback(days int) Option {
	return func(e *Engine) {
		if days >= 0 {
			e.lookback = days
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

func WithSource(s Source) Option {
	return func(e *Engine) { e.sources = append(e.sources, s) }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{lookback: DefaultLookback, log: zap.NewNop()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Sources returns the configured sources in query order.
func (e *Engine) Sources() []Source {
	return append([]Source(nil), e.sources...)
}

func (e *Engine) Lookback() int { return e.lookback }

// validCurrency accepts three letter upper case codes.
func validCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// GetRate resolves q. Missing data is reported through Result.Found; errors
// are returned for malformed queries and arithmetic failures only.
func (e *Engine) GetRate(q Query) (Result, error) {
	base := strings.ToUpper(strings.TrimSpace(q.Base))
	term := strings.ToUpper(strings.TrimSpace(q.Term))
	if base == "" || term == "" {
		return Result{}, fmt.Errorf("%w: empty currency", ErrInvalidQuery)
	}

	// Any code converts into itself, whether or not a table knows it.
	if base == term {
		date := q.Date
		if !date.IsZero() {
			date = DateOf(date)
		}
		metrics.RateQueriesTotal.WithLabelValues("identity", "found").Inc()
		return Result{Record: Identity(base, date), Found: true, Date: date}, nil
	}

	if !validCurrency(base) {
		return Result{}, fmt.Errorf("%w: base currency %q", ErrInvalidQuery, q.Base)
	}
	if !validCurrency(term) {
		return Result{}, fmt.Errorf("%w: term currency %q", ErrInvalidQuery, q.Term)
	}

	for _, src := range e.sources {
		res, err := e.fromSource(src, base, term, q)
		if err != nil {
			metrics.RateQueriesTotal.WithLabelValues(src.Provider, "error").Inc()
			return Result{}, err
		}
		if res.Found {
			metrics.RateQueriesTotal.WithLabelValues(src.Provider, "found").Inc()
			return res, nil
		}
		metrics.RateQueriesTotal.WithLabelValues(src.Provider, "not_found").Inc()
	}

	e.log.Debug("rate not found",
		zap.String("base", base),
		zap.String("term", term),
		zap.Time("date", q.Date),
	)
	return Result{}, nil
}

// candidateDates returns the dates searched in t, most preferred first.
func (e *Engine) candidateDates(t *Table, q Query) []time.Time {
	if len(q.Dates) > 0 {
		return q.Dates
	}
	d := q.Date
	if d.IsZero() {
		latest, ok := t.Latest()
		if !ok {
			return nil
		}
		d = latest
	}
	d = DateOf(d)
	out := make([]time.Time, 0, e.lookback+1)
	for i := 0; i <= e.lookback; i++ {
		out = append(out, d.AddDate(0, 0, -i))
	}
	return out
}

func (e *Engine) fromSource(src Source, base, term string, q Query) (Result, error) {
	if src.Table == nil {
		return Result{}, nil
	}
	for _, d := range e.candidateDates(src.Table, q) {
		b, ok := src.Table.bucket(d)
		if !ok {
			continue
		}
		// the first date holding any rate decides; there is no reach past it
		rec, found, err := resolve(b, src.Table.Pivot(), base, term, src.Strategy)
		if err != nil || !found {
			return Result{}, err
		}
		if rec.Provider == "" {
			rec.Provider = src.Provider
		}
		return Result{Record: rec, Found: true, Provider: src.Provider, Date: DateOf(d)}, nil
	}
	return Result{}, nil
}

func resolve(b *bucket, pivot, base, term string, strategy Strategy) (Record, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	switch {
	case term == pivot:
		return toPivot(b, base, pivot)
	case base == pivot:
		return fromPivot(b, pivot, term)
	}
	if strategy == ReverseOnly {
		return Record{}, false, nil
	}

	first, ok, err := toPivot(b, base, pivot)
	if err != nil || !ok {
		return Record{}, false, err
	}
	second, ok, err := fromPivot(b, pivot, term)
	if err != nil || !ok {
		return Record{}, false, err
	}
	rec, err := Multiply(first, second)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// toPivot returns currency->pivot, reversing a stored pivot->currency record.
func toPivot(b *bucket, currency, pivot string) (Record, bool, error) {
	rec, ok := b.rates[currency]
	if !ok {
		return Record{}, false, nil
	}
	if rec.Base == currency && rec.Term == pivot {
		return rec, true, nil
	}
	rev, err := rec.Reverse()
	if err != nil {
		return Record{}, false, err
	}
	return rev, true, nil
}

// fromPivot returns pivot->currency, reversing a stored currency->pivot record.
func fromPivot(b *bucket, pivot, currency string) (Record, bool, error) {
	rec, ok := b.rates[currency]
	if !ok {
		return Record{}, false, nil
	}
	if rec.Base == pivot && rec.Term == currency {
		return rec, true, nil
	}
	rev, err := rec.Reverse()
	if err != nil {
		return Record{}, false, err
	}
	return rev, true, nil
}
