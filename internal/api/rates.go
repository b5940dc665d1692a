package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/fxratemanager/internal/rates"
)

const dateLayout = "2006-01-02"

// RateResponse is the body of a successful rate lookup.
type RateResponse struct {
	Base       string         `json:"base"`
	Term       string         `json:"term"`
	Rate       string         `json:"rate"`
	Kind       string         `json:"kind"`
	Date       string         `json:"date,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Provenance []rates.Record `json:"provenance,omitempty"`
}

// NotFoundResponse is returned when no source holds the rate.
type NotFoundResponse struct {
	Base  string `json:"base"`
	Term  string `json:"term"`
	Found bool   `json:"found"`
	Error string `json:"error"`
}

func parseDates(raw string) ([]time.Time, error) {
	var out []time.Time
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := time.Parse(dateLayout, p)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// handleRate converts base into term.
// @Summary Get an exchange rate
// @Description Resolve the rate converting one unit of base into term, triangulating through provider pivots
// @Tags rates
// @Produce json
// @Param base query string true "ISO 4217 base currency"
// @Param term query string true "ISO 4217 term currency"
// @Param date query string false "Valuation date (YYYY-MM-DD); searched with the look-back window"
// @Param dates query string false "Comma-separated dates searched verbatim"
// @Success 200 {object} RateResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} NotFoundResponse
// @Router /api/v1/rates [get]
func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := rates.Query{Base: q.Get("base"), Term: q.Get("term")}

	if raw := q.Get("date"); raw != "" {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		query.Date = d
	}
	if raw := q.Get("dates"); raw != "" {
		ds, err := parseDates(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "dates must be comma-separated YYYY-MM-DD values")
			return
		}
		query.Dates = ds
	}

	res, err := s.rates.GetRate(query)
	if err != nil {
		if errors.Is(err, rates.ErrInvalidQuery) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.log.Error("rate lookup failed",
			zap.String("base", query.Base),
			zap.String("term", query.Term),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !res.Found {
		s.writeJSON(w, http.StatusNotFound, NotFoundResponse{
			Base:  strings.ToUpper(query.Base),
			Term:  strings.ToUpper(query.Term),
			Error: "no rate found",
		})
		return
	}

	rec := res.Record
	out := RateResponse{
		Base:       rec.Base,
		Term:       rec.Term,
		Rate:       rec.Factor.String(),
		Kind:       rec.Kind.String(),
		Provider:   res.Provider,
		Provenance: rec.Provenance,
	}
	if !res.Date.IsZero() {
		out.Date = res.Date.Format(dateLayout)
	}
	s.writeJSON(w, http.StatusOK, out)
}
