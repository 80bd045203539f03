package guard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-certs/meridian/internal/platform/httpx"
	"github.com/meridian-certs/meridian/internal/shared"
)

// Handler wires HTTP endpoints for emergency control.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers emergency control routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/registry/pause", h.pause)
	r.Post("/registry/unpause", h.unpause)
	r.Get("/registry/status", h.status)
}

func (h *Handler) pause(w http.ResponseWriter, r *http.Request) {
	caller := shared.CallerFromContext(r.Context())
	if err := h.service.Pause(r.Context(), caller); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"paused": true})
}

func (h *Handler) unpause(w http.ResponseWriter, r *http.Request) {
	caller := shared.CallerFromContext(r.Context())
	if err := h.service.Unpause(r.Context(), caller); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"paused": false})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"paused": h.service.Paused()})
}
