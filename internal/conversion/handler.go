package conversion

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

// Handler exposes the tracker over HTTP.
type Handler struct {
	tracker *Tracker
	logger  *logging.Logger
}

func NewHandler(tracker *Tracker, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{tracker: tracker, logger: logger}
}

type markRequest struct {
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"`
	LeadID    string `json:"leadId,omitempty"`
}

type markResponse struct {
	Success bool   `json:"success"`
	Fired   bool   `json:"fired"`
	State   State  `json:"state,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Mark handles POST /api/conversions.
func (h *Handler) Mark(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, markResponse{Error: "invalid request body"})
		return
	}
	kind, ok := ParseKind(req.Kind)
	if !ok {
		writeJSON(w, http.StatusBadRequest, markResponse{Error: "kind must be partial or full"})
		return
	}
	fired, err := h.tracker.MarkConversion(r.Context(), req.SessionID, kind, req.LeadID)
	if errors.Is(err, ErrSessionRequired) {
		writeJSON(w, http.StatusBadRequest, markResponse{Error: "sessionId is required"})
		return
	}
	if err != nil {
		h.logger.Error("failed to mark conversion", "error", err, "session_id", req.SessionID)
		writeJSON(w, http.StatusInternalServerError, markResponse{Error: "failed to record conversion"})
		return
	}
	state, err := h.tracker.State(r.Context(), req.SessionID)
	if err != nil {
		h.logger.Warn("failed to read conversion state", "error", err, "session_id", req.SessionID)
	}
	writeJSON(w, http.StatusOK, markResponse{Success: true, Fired: fired, State: state})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
