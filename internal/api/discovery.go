package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-rfbridge/internal/discovery"
)

// handleListCandidates returns devices heard during discovery scans, most
// recently seen first.
//
// Query parameters:
//   - bridge: filter by bridge id
//   - family: filter by protocol family
//   - limit: maximum number of candidates
func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	if s.candidates == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "discovery store not configured")
		return
	}

	q := r.URL.Query()
	f := discovery.Filter{
		Bridge: q.Get("bridge"),
		Family: q.Get("family"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		f.Limit = limit
	}

	candidates, err := s.candidates.List(r.Context(), f)
	if err != nil {
		s.logger.Error("listing discovery candidates failed", "error", err)
		writeInternalError(w, "failed to list candidates")
		return
	}
	if candidates == nil {
		candidates = []discovery.Candidate{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates, "count": len(candidates)})
}

// handleDismissCandidate removes a candidate, typically after the device was
// added to a bridge config or identified as a neighbour's.
func (s *Server) handleDismissCandidate(w http.ResponseWriter, r *http.Request) {
	if s.candidates == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "discovery store not configured")
		return
	}

	addr, ok := parseAddressParams(w, r)
	if !ok {
		return
	}

	err := s.candidates.Dismiss(r.Context(), addr.Family.String(), addr.Hex())
	switch {
	case errors.Is(err, discovery.ErrNotFound):
		writeNotFound(w, "candidate not found")
	case err != nil:
		s.logger.Error("dismissing discovery candidate failed", "error", err, "address", addr.String())
		writeInternalError(w, "failed to dismiss candidate")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleListPorts lists the serial ports present on the host.
func (s *Server) handleListPorts(w http.ResponseWriter, _ *http.Request) {
	ports, err := s.listPorts()
	if err != nil {
		s.logger.Warn("listing serial ports failed", "error", err)
		writeInternalError(w, "failed to list serial ports")
		return
	}
	if ports == nil {
		ports = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ports": ports, "count": len(ports)})
}
