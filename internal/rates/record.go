// Package rates holds date indexed exchange rate tables and answers
// conversion queries against them, triangulating through a pivot currency.
package rates

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/govalues/decimal"
)

var (
	ErrInvalidQuery  = errors.New("invalid rate query")
	ErrInvalidRecord = errors.New("invalid rate record")
)

// Kind classifies how final a rate is.
type Kind int

const (
	Historic Kind = iota
	Deferred
	Other
)

func (k Kind) String() string {
	switch k {
	case Historic:
		return "historic"
	case Deferred:
		return "deferred"
	default:
		return "other"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "historic":
		*k = Historic
	case "deferred":
		*k = Deferred
	case "other":
		*k = Other
	default:
		return fmt.Errorf("unknown rate kind %q", b)
	}
	return nil
}

// Record is the factor converting one unit of Base into Term. A derived
// record lists the records it was multiplied from in Provenance, and its
// factor equals their product.
type Record struct {
	Base       string          `json:"base"`
	Term       string          `json:"term"`
	Factor     decimal.Decimal `json:"factor"`
	Kind       Kind            `json:"kind"`
	Date       time.Time       `json:"date,omitempty"`
	Provider   string          `json:"provider,omitempty"`
	Provenance []Record        `json:"provenance,omitempty"`
}

// NewRecord validates the currencies and requires a positive factor.
func NewRecord(base, term string, factor decimal.Decimal, kind Kind, date time.Time, provider string) (Record, error) {
	r := Record{
		Base:     strings.ToUpper(base),
		Term:     strings.ToUpper(term),
		Factor:   factor,
		Kind:     kind,
		Date:     date,
		Provider: provider,
	}
	if r.Base == "" || r.Term == "" {
		return Record{}, fmt.Errorf("%w: empty currency", ErrInvalidRecord)
	}
	if !factor.IsPos() {
		return Record{}, fmt.Errorf("%w: %s/%s factor %s is not positive", ErrInvalidRecord, r.Base, r.Term, factor)
	}
	return r, nil
}

// Identity is the record for a conversion of a currency into itself.
func Identity(currency string, date time.Time) Record {
	return Record{Base: currency, Term: currency, Factor: decimal.One, Kind: Other, Date: date}
}

// Derived reports whether the record was built by multiplication.
func (r Record) Derived() bool { return len(r.Provenance) > 0 }

// Reverse swaps the currencies and inverts the factor. A derived record is
// rebuilt from its reversed provenance in reverse order.
func (r Record) Reverse() (Record, error) {
	if r.Derived() {
		prov := make([]Record, len(r.Provenance))
		for i, p := range r.Provenance {
			rev, err := p.Reverse()
			if err != nil {
				return Record{}, err
			}
			prov[len(prov)-1-i] = rev
		}
		factor, err := product(prov)
		if err != nil {
			return Record{}, err
		}
		out := r
		out.Base, out.Term = r.Term, r.Base
		out.Factor = factor
		out.Provenance = prov
		return out, nil
	}

	inv, err := decimal.One.Quo(r.Factor)
	if err != nil {
		return Record{}, fmt.Errorf("reverse %s/%s: %w", r.Base, r.Term, err)
	}
	out := r
	out.Base, out.Term = r.Term, r.Base
	out.Factor = inv
	return out, nil
}

// Multiply chains a (X->Y) and b (Y->Z) into X->Z. The kind is shared when
// both agree and Other otherwise.
func Multiply(a, b Record) (Record, error) {
	if a.Term != b.Base {
		return Record{}, fmt.Errorf("%w: cannot chain %s/%s with %s/%s", ErrInvalidRecord, a.Base, a.Term, b.Base, b.Term)
	}
	f, err := a.Factor.Mul(b.Factor)
	if err != nil {
		return Record{}, fmt.Errorf("multiply %s/%s by %s/%s: %w", a.Base, a.Term, b.Base, b.Term, err)
	}
	kind := Other
	if a.Kind == b.Kind {
		kind = a.Kind
	}
	provider := a.Provider
	if provider == "" {
		provider = b.Provider
	}
	return Record{
		Base:       a.Base,
		Term:       b.Term,
		Factor:     f,
		Kind:       kind,
		Date:       a.Date,
		Provider:   provider,
		Provenance: []Record{a, b},
	}, nil
}

func product(recs []Record) (decimal.Decimal, error) {
	f := decimal.One
	for _, r := range recs {
		var err error
		if f, err = f.Mul(r.Factor); err != nil {
			return decimal.Decimal{}, err
		}
	}
	return f, nil
}

func (r Record) String() string {
	s := fmt.Sprintf("%s/%s=%s", r.Base, r.Term, r.Factor)
	if !r.Date.IsZero() {
		s += " @" + r.Date.Format(time.DateOnly)
	}
	return s
}
