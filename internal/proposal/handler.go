package proposal

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-certs/meridian/internal/platform/httpx"
	"github.com/meridian-certs/meridian/internal/shared"
)

// Handler wires HTTP endpoints for the proposal engine.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers proposal routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/proposals", h.create)
	r.Get("/proposals", h.list)
	r.Get("/proposals/pending", h.pending)
	r.Get("/proposals/threshold", h.threshold)
	r.Post("/proposals/threshold", h.setThreshold)
	r.Get("/proposals/{id}", h.get)
	r.Post("/proposals/{id}/approve", h.approve)
	r.Post("/proposals/{id}/revoke-approval", h.revokeApproval)
	r.Post("/proposals/{id}/execute", h.execute)
	r.Post("/proposals/{id}/cancel", h.cancel)
	r.Get("/proposals/{id}/approvers", h.approvers)
	r.Get("/proposals/{id}/approvals/{address}", h.hasApproved)
}

type createRequest struct {
	Recipient   string `json:"recipient" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	MetadataRef string `json:"metadata_ref" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	caller := shared.CallerFromContext(r.Context())
	id, err := h.service.Create(r.Context(), caller, req.Recipient, req.Title, req.Description, req.MetadataRef)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

func proposalID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "proposal id must be a positive integer")
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.IDs(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (h *Handler) pending(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.service.Pending(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"proposals": proposals})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "proposal id must be a positive integer")
		return
	}
	caller := shared.CallerFromContext(r.Context())
	if err := h.service.Approve(r.Context(), caller, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) revokeApproval(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "proposal id must be a positive integer")
		return
	}
	caller := shared.CallerFromContext(r.Context())
	if err := h.service.RevokeApproval(r.Context(), caller, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "approval_revoked": true})
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "proposal id must be a positive integer")
		return
	}
	caller := shared.CallerFromContext(r.Context())
	if err := h.service.Execute(r.Context(), caller, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "proposal id must be a positive integer")
		return
	}
	caller := shared.CallerFromContext(r.Context())
	if err := h.service.Cancel(r.Context(), caller, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "cancelled": true})
}

func (h *Handler) approvers(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "proposal id must be a positive integer")
		return
	}
	approvers, err := h.service.Approvers(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "approvers": approvers})
}

func (h *Handler) hasApproved(w http.ResponseWriter, r *http.Request) {
	id, ok := proposalID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "proposal id must be a positive integer")
		return
	}
	address := chi.URLParam(r, "address")
	approved, err := h.service.HasApproved(r.Context(), id, address)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "account": address, "approved": approved})
}

type thresholdRequest struct {
	Threshold int `json:"threshold" validate:"required,min=1"`
}

func (h *Handler) threshold(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.Threshold(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"threshold": n})
}

func (h *Handler) setThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	caller := shared.CallerFromContext(r.Context())
	if err := h.service.SetThreshold(r.Context(), caller, req.Threshold); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"threshold": req.Threshold})
}
