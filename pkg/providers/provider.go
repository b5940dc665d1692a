// Package providers describes the exchange rate feeds the service knows how
// to load and decode.
package providers

import (
	"errors"
	"io/fs"

	"github.com/bher20/fxratemanager/internal/rates"
	"github.com/bher20/fxratemanager/internal/resource"
)

// Provider is a source of exchange rates: the resources it publishes, the
// decoder for their payloads and the pivot its rates are quoted against.
type Provider interface {
	// Key returns the unique identifier for the provider (e.g., "ecb", "imf").
	Key() string
	// Name returns the human-readable name of the provider.
	Name() string
	// LandingURL returns the URL of the provider's rates page.
	LandingURL() string
	// Pivot is the currency every published rate is relative to.
	Pivot() string
	// Strategy selects how conversions are derived from the provider's table.
	Strategy() rates.Strategy
	// Resources lists the default resources of the provider.
	Resources() []Resource
	// Bundled holds the fallback payloads, reachable as embed://<key>/<path>.
	Bundled() fs.FS

	rates.Decoder
}

// Resource is a provider resource and how its records are classified.
type Resource struct {
	Descriptor resource.Descriptor
	// Latest marks the newest date of each payload Deferred and older dates
	// Historic. Otherwise every record gets Kind.
	Latest bool
	Kind   rates.Kind
}

// Info is the JSON view of a provider.
type Info struct {
	Key        string   `json:"key"`
	Name       string   `json:"name"`
	LandingURL string   `json:"landing_url"`
	Pivot      string   `json:"pivot"`
	Strategy   string   `json:"strategy"`
	Resources  []string `json:"resources"`
}

// Describe builds the Info of p.
func Describe(p Provider) Info {
	info := Info{
		Key:        p.Key(),
		Name:       p.Name(),
		LandingURL: p.LandingURL(),
		Pivot:      p.Pivot(),
		Strategy:   p.Strategy().String(),
	}
	for _, r := range p.Resources() {
		info.Resources = append(info.Resources, r.Descriptor.ID)
	}
	return info
}

// Common errors shared across providers.
var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrParseFailed      = errors.New("failed to parse rates")
)
