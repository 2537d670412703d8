package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/alphaq-labs/helixr/internal/domain"
)

type ingestRequest struct {
	Sensors   domain.SensorData `json:"sensors"`
	Actuators map[int]int       `json:"actuators"`
}

// IngestState handles POST /api/state: the sensor producer pushes a new
// snapshot. Each push is a fresh document; the orchestrator never
// overwrites older ones.
func (h *Handler) IngestState(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Actuators == nil {
		req.Actuators = make(map[int]int)
	}

	doc := &domain.StateDocument{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Sensors:   req.Sensors,
		Actuators: req.Actuators,
	}
	if err := h.store.Insert(r.Context(), doc); err != nil {
		slog.Error("Failed to insert state document", "error", err)
		Error(w, http.StatusInternalServerError, "failed to store snapshot")
		return
	}
	JSON(w, http.StatusCreated, map[string]string{"id": doc.ID})
}
