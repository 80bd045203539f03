package hierarchy

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-certs/meridian/internal/platform/httpx"
	"github.com/meridian-certs/meridian/internal/shared"
)

// Handler wires HTTP endpoints for role management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers role routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/roles/grant", h.grant)
	r.Post("/roles/revoke", h.revoke)
	r.Post("/roles/emergency-revoke", h.emergencyRevoke)
	r.Post("/roles/request", h.request)
	r.Post("/roles/batch-grant", h.batchGrant)
	r.Get("/accounts/{address}/roles", h.accountRoles)
	r.Get("/accounts/{address}/capabilities", h.capabilities)
}

type roleChangeRequest struct {
	Account string `json:"account" validate:"required"`
	Role    string `json:"role" validate:"required"`
}

func (h *Handler) grant(w http.ResponseWriter, r *http.Request) {
	var req roleChangeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	caller := shared.CallerFromContext(r.Context())
	if err := h.service.GrantRole(r.Context(), caller, req.Account, role); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account": req.Account, "role": req.Role, "granted": true})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	var req roleChangeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	caller := shared.CallerFromContext(r.Context())
	if err := h.service.RevokeRole(r.Context(), caller, req.Account, role); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account": req.Account, "role": req.Role, "revoked": true})
}

type emergencyRevokeRequest struct {
	Account string `json:"account" validate:"required"`
	Role    string `json:"role" validate:"required"`
	Reason  string `json:"reason" validate:"required"`
}

func (h *Handler) emergencyRevoke(w http.ResponseWriter, r *http.Request) {
	var req emergencyRevokeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	caller := shared.CallerFromContext(r.Context())
	if err := h.service.EmergencyRevokeRole(r.Context(), caller, req.Account, role, req.Reason); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account": req.Account, "role": req.Role, "revoked": true})
}

type roleRequestRequest struct {
	Role          string `json:"role" validate:"required"`
	Justification string `json:"justification" validate:"required"`
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	var req roleRequestRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	caller := shared.CallerFromContext(r.Context())
	if err := h.service.RequestRole(r.Context(), caller, role, req.Justification); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"role": req.Role, "requested": true})
}

type batchGrantRequest struct {
	Accounts []string `json:"accounts" validate:"required,min=1"`
	Roles    []string `json:"roles" validate:"required,min=1"`
}

func (h *Handler) batchGrant(w http.ResponseWriter, r *http.Request) {
	var req batchGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	roles := make([]Role, 0, len(req.Roles))
	for _, raw := range req.Roles {
		role, err := ParseRole(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		roles = append(roles, role)
	}
	caller := shared.CallerFromContext(r.Context())
	if err := h.service.BatchGrantRoles(r.Context(), caller, req.Accounts, roles); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"granted": len(req.Accounts)})
}

func (h *Handler) accountRoles(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	roles, err := h.service.Roles(r.Context(), address)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account": address, "roles": roles})
}

func (h *Handler) capabilities(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	isAdmin, err := h.service.IsAdmin(r.Context(), address)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	canIssue, err := h.service.CanIssue(r.Context(), address)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	canRevoke, err := h.service.CanRevoke(r.Context(), address)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"account":    address,
		"is_admin":   isAdmin,
		"can_issue":  canIssue,
		"can_revoke": canRevoke,
	})
}
