package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alphaq-labs/helixr/internal/devstate"
	"github.com/alphaq-labs/helixr/internal/domain"
)

type controlRequest struct {
	DeviceID int    `json:"device_id"`
	Action   string `json:"action"`
}

type controlResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ControlDevice handles POST /api/device/control: a direct synchronous
// valve command, same updater path as spoken commands. Malformed input
// is a client error; a device the updater could not change is a soft
// failure, status error with a 200.
func (h *Handler) ControlDevice(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var action domain.Action
	switch req.Action {
	case "open":
		action = domain.ActionOpen
	case "close":
		action = domain.ActionClose
	default:
		Error(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q, expected open or close", req.Action))
		return
	}
	if !domain.ValidDevice(req.DeviceID) {
		Error(w, http.StatusBadRequest, fmt.Sprintf("device id %d out of range %d..%d",
			req.DeviceID, domain.MinDevice, domain.MaxDevice))
		return
	}

	modified, msg := h.updater.Apply(r.Context(), req.DeviceID, action)
	status := "success"
	if !modified {
		status = "error"
	}
	slog.Info("device control request", "device", req.DeviceID, "action", req.Action, "status", status)
	JSON(w, http.StatusOK, controlResponse{Status: status, Message: msg})
}

// LatestState handles GET /api/state/latest: the most recent sensor and
// actuator snapshot.
func (h *Handler) LatestState(w http.ResponseWriter, r *http.Request) {
	doc, err := h.store.Latest(r.Context())
	if err != nil {
		if errors.Is(err, devstate.ErrNoDocument) {
			Error(w, http.StatusNotFound, "no state document found")
			return
		}
		slog.Error("Failed to load latest state", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load state")
		return
	}
	JSON(w, http.StatusOK, doc)
}
