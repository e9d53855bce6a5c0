package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/core"
	"github.com/nerrad567/gray-logic-rfbridge/internal/bridges/rf"
	"github.com/nerrad567/gray-logic-rfbridge/internal/protocol/culfw"
	"github.com/nerrad567/gray-logic-rfbridge/internal/protocol/onewire"
)

// deviceView is a registered device with the bridge serving it.
type deviceView struct {
	Bridge string `json:"bridge"`
	rf.DeviceInfo
}

// createDeviceRequest is the body of POST /devices.
type createDeviceRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Family  string `json:"family"`
	Address string `json:"address"`

	// Bridge selects the bridge. When empty the first bridge serving the
	// family is used.
	Bridge string `json:"bridge,omitempty"`
}

// commandRequest is the body of POST /devices/{family}/{address}/commands.
type commandRequest struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// handleListDevices returns the devices of every bridge.
//
// Query parameters:
//   - bridge: filter by bridge id
//   - family: filter by protocol family (fht, evohome, onewire, ...)
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	bridgeFilter := r.URL.Query().Get("bridge")
	familyFilter := r.URL.Query().Get("family")

	devices := make([]deviceView, 0)
	for _, b := range s.bridges {
		if bridgeFilter != "" && b.ID() != bridgeFilter {
			continue
		}
		for _, info := range b.Devices() {
			if familyFilter != "" && info.Family != familyFilter {
				continue
			}
			devices = append(devices, deviceView{Bridge: b.ID(), DeviceInfo: info})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns one device with its current channel values.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddressParams(w, r)
	if !ok {
		return
	}

	b, d, found := s.bridgeFor(addr)
	if !found {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bridge":      b.ID(),
		"device":      d.Info(),
		"last_update": d.LastUpdate(),
	})
}

// handleCreateDevice registers a device at runtime. The registration lasts
// until the service restarts; permanent devices belong in the bridge config.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	family, err := core.ParseFamily(req.Family)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	addr, err := core.ParseAddress(family, req.Address)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	candidates := s.bridges
	if req.Bridge != "" {
		b, ok := s.bridgeByID[req.Bridge]
		if !ok {
			writeNotFound(w, "bridge not found")
			return
		}
		candidates = []Bridge{b}
	}

	for _, b := range candidates {
		d, err := b.AddDevice(req.ID, req.Name, addr)
		switch {
		case err == nil:
			writeJSON(w, http.StatusCreated, deviceView{Bridge: b.ID(), DeviceInfo: d.Info()})
			return
		case errors.Is(err, rf.ErrUnsupportedFamily):
			continue
		case errors.Is(err, core.ErrDuplicateAddress):
			writeError(w, http.StatusConflict, ErrCodeConflict, "device address already registered")
			return
		case errors.Is(err, rf.ErrStopped):
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "bridge stopped")
			return
		default:
			writeInternalError(w, "failed to register device")
			return
		}
	}

	writeBadRequest(w, "no bridge serves family "+family.String())
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddressParams(w, r)
	if !ok {
		return
	}

	b, _, found := s.bridgeFor(addr)
	if !found {
		writeNotFound(w, "device not found")
		return
	}

	b.Unregister(addr)
	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceCommand encodes and sends a command to a registered device.
// The response reports whether the transceiver accepted the frames; the
// device itself never acknowledges.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddressParams(w, r)
	if !ok {
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeBadRequest(w, "command is required")
		return
	}

	b, _, found := s.bridgeFor(addr)
	if !found {
		writeNotFound(w, "device not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := b.SendCommand(ctx, addr, req.Command, req.Parameters); err != nil {
		status, code := commandErrorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	subject := ""
	if claims, ok := claimsFromContext(r.Context()); ok {
		subject = claims.Subject
	}
	s.logger.Info("device command sent via API",
		"bridge_id", b.ID(),
		"address", addr.String(),
		"command", req.Command,
		"subject", subject,
	)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "accepted",
		"bridge":  b.ID(),
		"address": addr.Hex(),
		"command": req.Command,
	})
}

// commandErrorStatus maps a SendCommand error onto an HTTP status and code.
func commandErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, culfw.ErrUnknownCommand),
		errors.Is(err, culfw.ErrInvalidParameter),
		errors.Is(err, culfw.ErrFamilyDisabled),
		errors.Is(err, onewire.ErrNoCommands),
		errors.Is(err, rf.ErrUnsupportedFamily):
		return http.StatusBadRequest, ErrCodeBadRequest
	case errors.Is(err, core.ErrNotConnected),
		errors.Is(err, rf.ErrStopped),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusBadGateway, ErrCodeDevice
	}
}

// parseAddressParams reads {family} and {address} from the route. It writes
// a 400 response and returns false when they are invalid.
func parseAddressParams(w http.ResponseWriter, r *http.Request) (core.DeviceAddress, bool) {
	family, err := core.ParseFamily(chi.URLParam(r, "family"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return core.DeviceAddress{}, false
	}
	addr, err := core.ParseAddress(family, chi.URLParam(r, "address"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return core.DeviceAddress{}, false
	}
	return addr, true
}
