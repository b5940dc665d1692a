// Package ecb decodes the European Central Bank euro foreign exchange
// reference rates.
package ecb

import (
	"bytes"
	"embed"
	"encoding/xml"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/govalues/decimal"

	"github.com/bher20/fxratemanager/internal/rates"
	"github.com/bher20/fxratemanager/internal/resource"
	"github.com/bher20/fxratemanager/pkg/providers"
)

const (
	Key   = "ecb"
	Pivot = "EUR"

	DailyResource  = "ECB-daily"
	Hist90Resource = "ECB-hist90"

	dailyURL  = "https://www.ecb.europa.eu/stats/eurofxref/eurofxref-daily.xml"
	hist90URL = "https://www.ecb.europa.eu/stats/eurofxref/eurofxref-hist-90d.xml"
)

//go:embed data/*.xml
var bundled embed.FS

type Provider struct{}

// New is the providers.Factory of the ECB feed.
func New() providers.Provider { return &Provider{} }

func (p *Provider) Key() string { return Key }

func (p *Provider) Name() string {
	return "European Central Bank"
}

func (p *Provider) LandingURL() string {
	return "https://www.ecb.europa.eu/stats/policy_and_exchange_rates/euro_reference_exchange_rates/html/index.en.html"
}

func (p *Provider) Pivot() string { return Pivot }

func (p *Provider) Strategy() rates.Strategy { return rates.SinglePivotChain }

func (p *Provider) Bundled() fs.FS {
	sub, err := fs.Sub(bundled, "data")
	if err != nil {
		panic(err)
	}
	return sub
}

// Resources publishes the daily file, refreshed after the 16:00 CET
// concertation, and the 90 day history, loaded on first use.
func (p *Provider) Resources() []providers.Resource {
	return []providers.Resource{
		{
			Descriptor: resource.Descriptor{
				ID:       DailyResource,
				Remotes:  []string{dailyURL},
				Fallback: "embed://" + Key + "/eurofxref-daily.xml",
				Policy:   resource.Scheduled,
				Properties: map[string]string{
					resource.PropAt:             "16:30,17:30",
					resource.PropStartRemote:    "true",
					resource.PropConnectTimeout: "10s",
					resource.PropReadTimeout:    "30s",
					resource.PropCacheTTL:       "24h",
				},
			},
			Latest: true,
		},
		{
			Descriptor: resource.Descriptor{
				ID:       Hist90Resource,
				Remotes:  []string{hist90URL},
				Fallback: "embed://" + Key + "/eurofxref-hist-90d.xml",
				Policy:   resource.Lazy,
				Properties: map[string]string{
					resource.PropConnectTimeout: "10s",
					resource.PropReadTimeout:    "60s",
				},
			},
			Kind: rates.Historic,
		},
	}
}

type envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Cube    struct {
		Days []struct {
			Time  string `xml:"time,attr"`
			Rates []struct {
				Currency string `xml:"currency,attr"`
				Rate     string `xml:"rate,attr"`
			} `xml:"Cube"`
		} `xml:"Cube"`
	} `xml:"Cube"`
}

// Decode reads an eurofxref document. Every rate is quoted as currency units
// per euro.
func (p *Provider) Decode(data []byte, pivot string) ([]rates.Quote, error) {
	var env envelope
	dec := xml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: ecb xml: %v", providers.ErrParseFailed, err)
	}
	if len(env.Cube.Days) == 0 {
		return nil, fmt.Errorf("%w: ecb xml: no dated cubes", providers.ErrParseFailed)
	}

	var out []rates.Quote
	for _, day := range env.Cube.Days {
		date, err := time.Parse(time.DateOnly, strings.TrimSpace(day.Time))
		if err != nil {
			return nil, fmt.Errorf("%w: ecb cube time %q", providers.ErrParseFailed, day.Time)
		}
		for _, r := range day.Rates {
			rate, err := decimal.Parse(strings.TrimSpace(r.Rate))
			if err != nil {
				return nil, fmt.Errorf("%w: ecb rate %s=%q: %v", providers.ErrParseFailed, r.Currency, r.Rate, err)
			}
			out = append(out, rates.Quote{
				Date:      date,
				Currency:  strings.ToUpper(strings.TrimSpace(r.Currency)),
				Direction: rates.UnitsPerPivot,
				Rate:      rate,
			})
		}
	}
	return out, nil
}
