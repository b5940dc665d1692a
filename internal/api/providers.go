package api

import (
	"net/http"

	"github.com/bher20/fxratemanager/pkg/providers"
)

// ProvidersResponse lists the enabled providers in lookup order.
type ProvidersResponse struct {
	Providers []providers.Info `json:"providers"`
}

// handleProviders lists providers.
// @Summary List providers
// @Description Enabled rate providers, in the order the engine consults them
// @Tags providers
// @Produce json
// @Success 200 {object} ProvidersResponse
// @Router /api/v1/providers [get]
func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	list := s.providers
	if list == nil {
		list = []providers.Info{}
	}
	s.writeJSON(w, http.StatusOK, ProvidersResponse{Providers: list})
}
