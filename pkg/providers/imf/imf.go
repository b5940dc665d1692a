// Package imf decodes the International Monetary Fund SDR valuation report
// for the last five business days.
package imf

import (
	"bytes"
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/govalues/decimal"

	"github.com/bher20/fxratemanager/internal/rates"
	"github.com/bher20/fxratemanager/internal/resource"
	"github.com/bher20/fxratemanager/pkg/providers"
)

const (
	Key = "imf"
	// Pivot is the ISO 4217 code of the special drawing right.
	Pivot = "XDR"

	SDRResource = "IMF-SDR"

	reportURL = "https://www.imf.org/external/np/fin/data/rms_five.aspx?tsvflag=Y"
)

//go:embed data/rms_five.tsv
var bundled embed.FS

type Provider struct{}

// New is the providers.Factory of the IMF feed.
func New() providers.Provider { return &Provider{} }

func (p *Provider) Key() string { return Key }

func (p *Provider) Name() string {
	return "International Monetary Fund"
}

func (p *Provider) LandingURL() string {
	return "https://www.imf.org/external/np/fin/data/rms_five.aspx"
}

func (p *Provider) Pivot() string { return Pivot }

// Strategy is reverse-only: the SDR table is consulted for SDR legs only and
// never chains two currencies through the SDR.
func (p *Provider) Strategy() rates.Strategy { return rates.ReverseOnly }

func (p *Provider) Bundled() fs.FS {
	sub, err := fs.Sub(bundled, "data")
	if err != nil {
		panic(err)
	}
	return sub
}

func (p *Provider) Resources() []providers.Resource {
	return []providers.Resource{{
		Descriptor: resource.Descriptor{
			ID:       SDRResource,
			Remotes:  []string{reportURL},
			Fallback: "embed://" + Key + "/rms_five.tsv",
			Policy:   resource.Scheduled,
			Properties: map[string]string{
				resource.PropAt:             "13:00",
				resource.PropStartRemote:    "true",
				resource.PropConnectTimeout: "10s",
				resource.PropReadTimeout:    "30s",
			},
		},
		Kind: rates.Historic,
	}}
}

// currencyNames maps the report's row labels to ISO codes.
var currencyNames = map[string]string{
	"algerian dinar":      "DZD",
	"australian dollar":   "AUD",
	"botswana pula":       "BWP",
	"brazilian real":      "BRL",
	"brunei dollar":       "BND",
	"canadian dollar":     "CAD",
	"chilean peso":        "CLP",
	"chinese yuan":        "CNY",
	"czech koruna":        "CZK",
	"danish krone":        "DKK",
	"euro":                "EUR",
	"indian rupee":        "INR",
	"israeli new shekel":  "ILS",
	"japanese yen":        "JPY",
	"korean won":          "KRW",
	"kuwaiti dinar":       "KWD",
	"malaysian ringgit":   "MYR",
	"mauritian rupee":     "MUR",
	"mexican peso":        "MXN",
	"new zealand dollar":  "NZD",
	"norwegian krone":     "NOK",
	"omani rial":          "OMR",
	"peruvian sol":        "PEN",
	"philippine peso":     "PHP",
	"polish zloty":        "PLN",
	"qatari riyal":        "QAR",
	"russian ruble":       "RUB",
	"saudi arabian riyal": "SAR",
	"singapore dollar":    "SGD",
	"south african rand":  "ZAR",
	"swedish krona":       "SEK",
	"swiss franc":         "CHF",
	"thai baht":           "THB",
	"trinidadian dollar":  "TTD",
	"u.a.e. dirham":       "AED",
	"u.k. pound":          "GBP",
	"u.s. dollar":         "USD",
	"uruguayan peso":      "UYU",
}

var isoSuffix = regexp.MustCompile(`\(([A-Z]{3})\)\s*$`)

func currencyCode(label string) (string, bool) {
	label = strings.TrimSpace(label)
	if m := isoSuffix.FindStringSubmatch(label); m != nil {
		return m[1], true
	}
	if len(label) == 3 && strings.ToUpper(label) == label {
		return label, true
	}
	code, ok := currencyNames[strings.ToLower(label)]
	return code, ok
}

var dateLayouts = []string{"January 2, 2006", "Jan 2, 2006", time.DateOnly, "01/02/2006"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Decode reads the tab delimited report. A section title selects the quote
// direction, the row starting with "Currency" holds the column dates and
// every following row one currency. Missing values ("NA") are skipped.
func (p *Provider) Decode(data []byte, pivot string) ([]rates.Quote, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var (
		out       []rates.Quote
		dir       rates.Direction
		inSection bool
		dates     []time.Time
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: imf report: %v", providers.ErrParseFailed, err)
		}
		first := strings.TrimSpace(rec[0])
		lower := strings.ToLower(first)

		switch {
		case first == "":
			continue
		case strings.HasPrefix(lower, "currency units per sdr"):
			dir, inSection, dates = rates.UnitsPerPivot, true, nil
			continue
		case strings.HasPrefix(lower, "sdrs per currency unit"):
			dir, inSection, dates = rates.PivotPerUnit, true, nil
			continue
		case lower == "currency":
			if !inSection {
				return nil, fmt.Errorf("%w: imf report: date row outside a section", providers.ErrParseFailed)
			}
			dates = dates[:0]
			for _, cell := range rec[1:] {
				if strings.TrimSpace(cell) == "" {
					continue
				}
				d, err := parseDate(cell)
				if err != nil {
					return nil, fmt.Errorf("%w: imf report: %v", providers.ErrParseFailed, err)
				}
				dates = append(dates, d)
			}
			continue
		}

		if !inSection || len(dates) == 0 {
			// report preamble and footnotes
			continue
		}
		code, ok := currencyCode(first)
		if !ok || code == pivot {
			continue
		}
		for i, cell := range rec[1:] {
			if i >= len(dates) {
				break
			}
			cell = strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
			if cell == "" || strings.EqualFold(cell, "NA") {
				continue
			}
			rate, err := decimal.Parse(cell)
			if err != nil {
				return nil, fmt.Errorf("%w: imf %s %s: %v", providers.ErrParseFailed, code, dates[i].Format(time.DateOnly), err)
			}
			out = append(out, rates.Quote{Date: dates[i], Currency: code, Direction: dir, Rate: rate})
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: imf report: no rates", providers.ErrParseFailed)
	}
	return out, nil
}
