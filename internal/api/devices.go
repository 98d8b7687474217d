package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// handleListDevices returns every registered device.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.List()
	defs := make([]device.Definition, 0, len(devices))
	for _, d := range devices {
		defs = append(defs, d.Definition())
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": defs, "count": len(defs)})
}

// handleGetDevice returns a single device definition.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, ok := s.registry.Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, d.Definition())
}

// handleRegisterDevice registers a device and its channels.
//
// An ID that is already registered is rejected with 409 duplicate_device;
// device definitions are never replaced.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var def device.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	d, err := device.New(def)
	if err != nil {
		if errors.Is(err, device.ErrInvalidDevice) || errors.Is(err, device.ErrInvalidTemplate) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		writeInternalError(w, "failed to build device")
		return
	}

	s.registerMu.Lock()
	if _, exists := s.registry.Get(d.ID()); exists {
		s.registerMu.Unlock()
		writeError(w, http.StatusConflict, ErrCodeDuplicateDevice, "device "+d.ID()+" is already registered")
		return
	}
	s.registry.Register(d)
	s.registerMu.Unlock()

	writeJSON(w, http.StatusCreated, d.Definition())
}
