package rates

import (
	"errors"
	"fmt"
	"time"

	"github.com/govalues/decimal"
	"go.uber.org/zap"

	"github.com/bher20/fxratemanager/internal/loader"
	"github.com/bher20/fxratemanager/internal/metrics"
)

// Direction tells how a quoted rate relates the currency to the pivot.
type Direction int

const (
	// PivotPerUnit quotes pivot units for one unit of the currency.
	PivotPerUnit Direction = iota
	// UnitsPerPivot quotes currency units for one unit of the pivot.
	UnitsPerPivot
)

// Quote is one decoded feed observation.
type Quote struct {
	Date      time.Time
	Currency  string
	Direction Direction
	Rate      decimal.Decimal
}

// Decoder turns a raw feed payload into quotes against pivot.
type Decoder interface {
	Decode(data []byte, pivot string) ([]Quote, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(data []byte, pivot string) ([]Quote, error)

func (f DecoderFunc) Decode(data []byte, pivot string) ([]Quote, error) { return f(data, pivot) }

// Record converts the quote into a pivot relative record.
func (q Quote) Record(pivot string, kind Kind, provider string) (Record, error) {
	if q.Direction == UnitsPerPivot {
		return NewRecord(pivot, q.Currency, q.Rate, kind, DateOf(q.Date), provider)
	}
	return NewRecord(q.Currency, pivot, q.Rate, kind, DateOf(q.Date), provider)
}

// FeedBinding decodes resource payloads into a table.
type FeedBinding struct {
	Provider string
	Table    *Table
	Decoder  Decoder
	// Kind is assigned to every record unless Latest is set, in which case
	// the newest date of a payload is Deferred and older dates Historic.
	Kind   Kind
	Latest bool
	Log    *zap.Logger
}

// Apply decodes data and upserts every quote. Invalid quotes are skipped and
// reported in the joined error; the count of stored records is returned.
func (b *FeedBinding) Apply(data []byte) (int, error) {
	quotes, err := b.Decoder.Decode(data, b.Table.Pivot())
	if err != nil {
		return 0, fmt.Errorf("%s: decode: %w", b.Provider, err)
	}

	var newest time.Time
	if b.Latest {
		for _, q := range quotes {
			if d := DateOf(q.Date); d.After(newest) {
				newest = d
			}
		}
	}

	var errs []error
	stored := 0
	for _, q := range quotes {
		kind := b.Kind
		if b.Latest {
			kind = Historic
			if DateOf(q.Date).Equal(newest) {
				kind = Deferred
			}
		}
		rec, err := q.Record(b.Table.Pivot(), kind, b.Provider)
		if err == nil {
			err = b.Table.AddRate(q.Date, rec)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		stored++
	}
	metrics.RateTableEntries.WithLabelValues(b.Table.Name()).Set(float64(b.Table.Len()))
	return stored, errors.Join(errs...)
}

// OnLoad is a loader.Listener.
func (b *FeedBinding) OnLoad(ev loader.Event) {
	log := b.Log
	if log == nil {
		log = zap.NewNop()
	}
	n, err := b.Apply(ev.Data)
	if err != nil && n == 0 {
		log.Error("feed rejected",
			zap.String("resource", ev.ResourceID),
			zap.String("provider", b.Provider),
			zap.Error(err),
		)
		return
	}
	if err != nil {
		log.Warn("feed partially applied", zap.String("resource", ev.ResourceID), zap.Error(err))
	}
	log.Info("rates updated",
		zap.String("resource", ev.ResourceID),
		zap.String("stage", ev.Stage),
		zap.Uint64("version", ev.Version),
		zap.Int("records", n),
		zap.Int("dates", b.Table.Len()),
	)
}
