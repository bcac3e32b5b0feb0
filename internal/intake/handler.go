package intake

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/cashoffer-funnel/internal/http/middleware"
	"github.com/wolfman30/cashoffer-funnel/internal/leads"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

const maxBodyBytes = 64 << 10

// loadRetryAfter is the Retry-After hint, in seconds, when the stored record
// could not be read.
const loadRetryAfter = 5

// Handler exposes the Service over HTTP.
type Handler struct {
	service *Service
	loader  Loader
	logger  *logging.Logger
}

// NewHandler builds a Handler. loader backs the admin lookup and may be nil.
func NewHandler(service *Service, loader Loader, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, loader: loader, logger: logger}
}

// Response is the body of every lead endpoint.
type Response struct {
	Success        bool                 `json:"success"`
	LeadID         string               `json:"leadId,omitempty"`
	CRMContactID   string               `json:"crmContactId,omitempty"`
	SubmissionType leads.SubmissionType `json:"submissionType,omitempty"`
	Error          string               `json:"error,omitempty"`
	Field          string               `json:"field,omitempty"`
	RetryAfter     int                  `json:"retryAfter,omitempty"`
	Warning        string               `json:"warning,omitempty"`
}

// Mount registers the lead routes, including the older form endpoints.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/api/leads/partial", h.Partial)
	r.Post("/api/leads/complete", h.Complete)

	r.Post("/api/submit-partial", h.Partial)
	r.Post("/api/capture-lead", h.Partial)
	r.Post("/api/submit-form", h.Complete)
	r.Post("/api/submit-lead", h.Submit)
	r.Post("/api/partial-lead", h.Partial)
	r.Post("/api/save-property-details", h.Submit)
}

// Partial handles POST /api/leads/partial.
func (h *Handler) Partial(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, leads.KindPartial)
}

// Complete handles POST /api/leads/complete.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, leads.KindComplete)
}

// Submit infers the kind from the accumulated record.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, "")
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request, kind leads.Kind) {
	var payload leads.Payload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "invalid request body"})
		return
	}

	out, err := h.service.Submit(r.Context(), Submission{
		Payload: payload,
		Kind:    kind,
		IP:      middleware.ClientIP(r),
	})

	var (
		verr *leads.ValidationError
		lerr *LoadError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, Response{Error: verr.Error(), Field: string(verr.Field)})
		return
	case errors.As(err, &lerr):
		w.Header().Set("Retry-After", strconv.Itoa(loadRetryAfter))
		writeJSON(w, http.StatusServiceUnavailable, Response{
			LeadID:     lerr.LeadID,
			Error:      "We could not load your saved details. Please try again.",
			RetryAfter: loadRetryAfter,
		})
		return
	case err != nil && out != nil:
		writeJSON(w, http.StatusInternalServerError, Response{
			LeadID:         out.Lead.ID,
			SubmissionType: out.Lead.SubmissionType,
			Error:          "We could not save your information. Please try again.",
		})
		return
	case err != nil:
		h.logger.Error("lead submission failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, Response{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, Response{
		Success:        true,
		LeadID:         out.Lead.ID,
		CRMContactID:   out.Lead.CRMContactID,
		SubmissionType: out.Lead.SubmissionType,
		Warning:        out.Warning(),
	})
}

// Lookup handles GET /admin/leads/{leadId}.
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadId")
	if !leads.ValidID(leadID) {
		writeJSON(w, http.StatusBadRequest, Response{Error: "invalid lead id", Field: string(leads.FieldLeadID)})
		return
	}
	if h.loader == nil {
		writeJSON(w, http.StatusNotFound, Response{Error: "lead lookup unavailable"})
		return
	}
	lead, err := h.loader.Load(r.Context(), leadID)
	if errors.Is(err, leads.ErrLeadNotFound) {
		writeJSON(w, http.StatusNotFound, Response{Error: "lead not found"})
		return
	}
	if err != nil {
		h.logger.WithLead(leadID).Error("lead lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, Response{Error: "lead lookup failed"})
		return
	}
	if who, ok := middleware.AdminSubject(r.Context()); ok {
		h.logger.WithLead(leadID).Info("lead viewed", "admin", who)
	}
	writeJSON(w, http.StatusOK, lead)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
