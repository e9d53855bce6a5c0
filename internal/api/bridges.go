package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/rf"
)

// handleListBridges returns the health message of every bridge.
func (s *Server) handleListBridges(w http.ResponseWriter, _ *http.Request) {
	bridges := make([]rf.HealthMessage, 0, len(s.bridges))
	for _, b := range s.bridges {
		bridges = append(bridges, b.Health())
	}
	writeJSON(w, http.StatusOK, map[string]any{"bridges": bridges, "count": len(bridges)})
}

func (s *Server) handleGetBridge(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bridgeByID[chi.URLParam(r, "id")]
	if !ok {
		writeNotFound(w, "bridge not found")
		return
	}
	writeJSON(w, http.StatusOK, b.Health())
}

// handleReinitialize reopens the serial port of a bridge whose start or
// recovery failed.
func (s *Server) handleReinitialize(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bridgeByID[chi.URLParam(r, "id")]
	if !ok {
		writeNotFound(w, "bridge not found")
		return
	}

	if err := b.Reinitialize(r.Context()); err != nil {
		if errors.Is(err, rf.ErrStopped) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "bridge stopped")
			return
		}
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"state": b.State().String()})
}

// startDiscoveryRequest is the optional body of POST /bridges/{id}/discovery.
type startDiscoveryRequest struct {
	// DurationSeconds overrides the configured scan length.
	DurationSeconds int `json:"duration_seconds"`
}

// handleStartDiscovery starts (or extends) a discovery scan.
func (s *Server) handleStartDiscovery(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bridgeByID[chi.URLParam(r, "id")]
	if !ok {
		writeNotFound(w, "bridge not found")
		return
	}

	var req startDiscoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.DurationSeconds < 0 {
		writeBadRequest(w, "duration_seconds must not be negative")
		return
	}

	until, err := b.StartDiscovery(time.Duration(req.DurationSeconds) * time.Second)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}

	s.logger.Info("discovery scan started via API", "bridge_id", b.ID(), "until", until)
	writeJSON(w, http.StatusOK, map[string]any{"active": true, "until": until})
}

func (s *Server) handleStopDiscovery(w http.ResponseWriter, r *http.Request) {
	b, ok := s.bridgeByID[chi.URLParam(r, "id")]
	if !ok {
		writeNotFound(w, "bridge not found")
		return
	}
	b.StopDiscovery()
	w.WriteHeader(http.StatusNoContent)
}
