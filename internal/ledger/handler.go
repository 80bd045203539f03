package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-certs/meridian/internal/platform/httpx"
	"github.com/meridian-certs/meridian/internal/shared"
)

// Handler wires HTTP endpoints for the certificate ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers certificate routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/certificates", h.mint)
	r.Post("/certificates/{id}/revoke", h.revoke)
	r.Get("/certificates/{id}", h.details)
	r.Get("/certificates/{id}/verify", h.verify)
	r.Get("/certificates/total", h.total)
}

type mintRequest struct {
	Recipient   string `json:"recipient" validate:"required"`
	MetadataRef string `json:"metadata_ref" validate:"required"`
}

func (h *Handler) mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	caller := shared.CallerFromContext(r.Context())
	id, err := h.service.Mint(r.Context(), caller, req.Recipient, req.MetadataRef)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"id": id})
}

func certID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := certID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "certificate id must be a positive integer")
		return
	}
	caller := shared.CallerFromContext(r.Context())
	if err := h.service.Revoke(r.Context(), caller, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "revoked": true})
}

func (h *Handler) details(w http.ResponseWriter, r *http.Request) {
	id, ok := certID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "certificate id must be a positive integer")
		return
	}
	cert, err := h.service.Details(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, cert)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	id, ok := certID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "certificate id must be a positive integer")
		return
	}
	valid, err := h.service.Verify(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"id": id, "valid": valid})
}

func (h *Handler) total(w http.ResponseWriter, r *http.Request) {
	total, err := h.service.Total(r.Context())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"total_minted": total})
}
