package rates

import (
	"errors"
	"testing"

	"github.com/govalues/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bher20/fxratemanager/internal/loader"
)

func staticDecoder(quotes []Quote, err error) Decoder {
	return DecoderFunc(func(data []byte, pivot string) ([]Quote, error) {
		return quotes, err
	})
}

func TestFeedBinding_Directions(t *testing.T) {
	tbl := NewTable("ecb", "EUR")
	b := &FeedBinding{
		Provider: "ecb",
		Table:    tbl,
		Decoder: staticDecoder([]Quote{
			{Date: day, Currency: "USD", Direction: UnitsPerPivot, Rate: decimal.MustParse("1.10")},
			{Date: day, Currency: "GBP", Direction: PivotPerUnit, Rate: decimal.MustParse("1.17")},
		}, nil),
	}

	n, err := b.Apply(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	usd, ok := tbl.Lookup(day, "USD")
	require.True(t, ok)
	assert.Equal(t, "EUR", usd.Base)
	assert.Equal(t, "USD", usd.Term)

	gbp, ok := tbl.Lookup(day, "GBP")
	require.True(t, ok)
	assert.Equal(t, "GBP", gbp.Base)
	assert.Equal(t, "EUR", gbp.Term)
	assert.Equal(t, "ecb", gbp.Provider)
}

func TestFeedBinding_LatestMarksNewestDeferred(t *testing.T) {
	tbl := NewTable("ecb", "EUR")
	older := day.AddDate(0, 0, -1)
	b := &FeedBinding{
		Provider: "ecb",
		Table:    tbl,
		Latest:   true,
		Decoder: staticDecoder([]Quote{
			{Date: older, Currency: "USD", Direction: UnitsPerPivot, Rate: decimal.MustParse("1.09")},
			{Date: day, Currency: "USD", Direction: UnitsPerPivot, Rate: decimal.MustParse("1.10")},
		}, nil),
	}
	_, err := b.Apply(nil)
	require.NoError(t, err)

	r, _ := tbl.Lookup(day, "USD")
	assert.Equal(t, Deferred, r.Kind)
	r, _ = tbl.Lookup(older, "USD")
	assert.Equal(t, Historic, r.Kind)
}

func TestFeedBinding_SkipsInvalidQuotes(t *testing.T) {
	tbl := NewTable("ecb", "EUR")
	b := &FeedBinding{
		Provider: "ecb",
		Table:    tbl,
		Kind:     Historic,
		Decoder: staticDecoder([]Quote{
			{Date: day, Currency: "USD", Direction: UnitsPerPivot, Rate: decimal.MustParse("1.10")},
			{Date: day, Currency: "BAD", Direction: UnitsPerPivot, Rate: decimal.Zero},
		}, nil),
	}
	n, err := b.Apply(nil)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, ErrInvalidRecord)
	assert.Equal(t, []string{"USD"}, tbl.Currencies(day))
}

func TestFeedBinding_OnLoad(t *testing.T) {
	tbl := NewTable("ecb", "EUR")
	b := &FeedBinding{
		Provider: "ecb",
		Table:    tbl,
		Decoder: DecoderFunc(func(data []byte, pivot string) ([]Quote, error) {
			if string(data) != "payload" {
				return nil, errors.New("garbage")
			}
			return []Quote{{Date: day, Currency: "USD", Direction: UnitsPerPivot, Rate: decimal.MustParse("1.10")}}, nil
		}),
	}

	b.OnLoad(loader.Event{ResourceID: "ECB-daily", Data: []byte("garbage")})
	assert.Zero(t, tbl.Len())

	b.OnLoad(loader.Event{ResourceID: "ECB-daily", Data: []byte("payload"), Version: 1})
	assert.Equal(t, 1, tbl.Len())
}
