package rates

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type bucket struct {
	mu    sync.RWMutex
	rates map[string]Record
}

// Table maps valuation dates to pivot relative records, keyed by the
// non-pivot currency. Buckets are created once per date and merged into by
// later writers.
type Table struct {
	name  string
	pivot string

	buckets sync.Map // time.Time -> *bucket
}

func NewTable(name, pivot string) *Table {
	return &Table{name: name, pivot: strings.ToUpper(pivot)}
}

func (t *Table) Name() string  { return t.name }
func (t *Table) Pivot() string { return t.pivot }

// AddRate stores rec for date. One side of rec must be the pivot; an entry
// for the same currency on the same date is replaced.
func (t *Table) AddRate(date time.Time, rec Record) error {
	var key string
	switch {
	case rec.Term == t.pivot && rec.Base != t.pivot:
		key = rec.Base
	case rec.Base == t.pivot && rec.Term != t.pivot:
		key = rec.Term
	default:
		return fmt.Errorf("%w: %s is not relative to pivot %s", ErrInvalidRecord, rec, t.pivot)
	}
	day := DateOf(date)
	if rec.Date.IsZero() {
		rec.Date = day
	}

	b, _ := t.buckets.LoadOrStore(day, &bucket{rates: make(map[string]Record)})
	bk := b.(*bucket)
	bk.mu.Lock()
	bk.rates[key] = rec
	bk.mu.Unlock()
	return nil
}

func (t *Table) bucket(date time.Time) (*bucket, bool) {
	b, ok := t.buckets.Load(DateOf(date))
	if !ok {
		return nil, false
	}
	return b.(*bucket), true
}

// HasDate reports whether any rate is stored for date.
func (t *Table) HasDate(date time.Time) bool {
	_, ok := t.bucket(date)
	return ok
}

// Lookup returns the stored record for currency on date.
func (t *Table) Lookup(date time.Time, currency string) (Record, bool) {
	b, ok := t.bucket(date)
	if !ok {
		return Record{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rates[strings.ToUpper(currency)]
	return r, ok
}

// Currencies lists the non-pivot currencies stored for date.
func (t *Table) Currencies(date time.Time) []string {
	b, ok := t.bucket(date)
	if !ok {
		return nil
	}
	b.mu.RLock()
	out := make([]string, 0, len(b.rates))
	for c := range b.rates {
		out = append(out, c)
	}
	b.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Dates returns every stored date, oldest first.
func (t *Table) Dates() []time.Time {
	var out []time.Time
	t.buckets.Range(func(k, _ any) bool {
		out = append(out, k.(time.Time))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Latest returns the most recent stored date.
func (t *Table) Latest() (time.Time, bool) {
	var latest time.Time
	t.buckets.Range(func(k, _ any) bool {
		if d := k.(time.Time); d.After(latest) {
			latest = d
		}
		return true
	})
	return latest, !latest.IsZero()
}

// Len is the number of stored dates.
func (t *Table) Len() int {
	n := 0
	t.buckets.Range(func(_, _ any) bool { n++; return true })
	return n
}
