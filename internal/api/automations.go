package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

// addAutomationRequest is the body of POST /automations.
type addAutomationRequest struct {
	Automation string `json:"automation"`
}

// automationResponse is the JSON form of an active automation.
type automationResponse struct {
	ID         string    `json:"id"`
	Automation string    `json:"automation"`
	CreatedAt  time.Time `json:"created_at"`
}

func toAutomationResponse(a *automation.Automation) automationResponse {
	return automationResponse{
		ID:         a.ID,
		Automation: a.Text(),
		CreatedAt:  a.CreatedAt,
	}
}

// handleListAutomations returns every active automation in insertion order.
func (s *Server) handleListAutomations(w http.ResponseWriter, _ *http.Request) {
	list := s.store.List()
	out := make([]automationResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAutomationResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"automations": out, "count": len(out)})
}

// handleGetAutomation returns one automation.
func (s *Server) handleGetAutomation(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "automation not found")
		return
	}
	writeJSON(w, http.StatusOK, toAutomationResponse(a))
}

// handleAddAutomation parses and activates a rule.
//
// Responses:
//   - 201: rule is active; it has already been evaluated once
//   - 400: the text does not parse
//   - 422: a channel of the rule is not registered
func (s *Server) handleAddAutomation(w http.ResponseWriter, r *http.Request) {
	var req addAutomationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Automation) == "" {
		writeBadRequest(w, "automation is required")
		return
	}

	a, err := s.store.AddAutomationText(req.Automation)
	if err != nil {
		var regErr *automation.RegistrationError
		switch {
		case errors.Is(err, rule.ErrInvalidStatement):
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRule, err.Error())
		case errors.As(err, &regErr):
			writeError(w, http.StatusUnprocessableEntity, ErrCodeRegistration, err.Error())
		case errors.Is(err, automation.ErrStoreClosed):
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "automation store is closed")
		default:
			s.logger.Error("failed to add automation", "error", err)
			writeInternalError(w, "failed to add automation")
		}
		return
	}

	writeJSON(w, http.StatusCreated, toAutomationResponse(a))
}

// handleRemoveAutomation deactivates a rule. Channel values it collected
// are kept.
func (s *Server) handleRemoveAutomation(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.RemoveAutomation(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, automation.ErrAutomationNotFound) {
			writeNotFound(w, "automation not found")
			return
		}
		writeInternalError(w, "failed to remove automation")
		return
	}
	writeJSON(w, http.StatusOK, toAutomationResponse(a))
}
