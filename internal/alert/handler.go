// AngelaMos | 2026
// handler.go

package alert

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/rti-cashflowops/internal/core"
	"github.com/carterperez-dev/rti-cashflowops/internal/entitlement"
	"github.com/carterperez-dev/rti-cashflowops/internal/middleware"
)

type Handler struct {
	service      *Service
	entitlements *entitlement.Service
	freeLimit    int
	validator    *validator.Validate
}

func NewHandler(
	service *Service,
	entitlements *entitlement.Service,
	freeLimit int,
) *Handler {
	return &Handler{
		service:      service,
		entitlements: entitlements,
		freeLimit:    freeLimit,
		validator:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/alerts", func(r chi.Router) {
		r.Use(authenticator)

		r.With(h.entitlements.RequireQueryTier).Get("/", h.List)
		r.With(h.entitlements.RequireTier(entitlement.TierWeekly)).Get("/premium", h.ListPremium)
		r.Get("/{alertID}", h.Get)

		r.Group(func(r chi.Router) {
			r.Use(adminOnly)
			r.Post("/", h.Create)
			r.Delete("/{alertID}", h.Delete)
		})
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

func (h *Handler) ListPremium(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

// list truncates after the newest-first ordering so free accounts see the
// most recent alerts.
func (h *Handler) list(w http.ResponseWriter, r *http.Request, premium bool) {
	alerts, err := h.service.List(r.Context(), ListFilter{
		Category: r.URL.Query().Get("category"),
		Premium:  premium,
	})
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	decision, _ := entitlement.DecisionFromContext(r.Context())
	visible := entitlement.Truncate(alerts, decision.Subject, h.freeLimit, h.entitlements.Now())

	core.OK(w, ListResponse{
		Alerts:    visible,
		Total:     len(alerts),
		Truncated: len(visible) < len(alerts),
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.Get(r.Context(), chi.URLParam(r, "alertID"))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "alert")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	if a.Premium {
		decision, err := h.entitlements.Authorize(
			r.Context(),
			middleware.GetUserID(r.Context()),
			entitlement.TierWeekly,
		)
		if err != nil {
			core.JSONError(w, err)
			return
		}
		if !decision.Allowed {
			core.JSONError(w, decision.Err())
			return
		}
	}

	core.OK(w, a)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	a, err := h.service.Create(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.Created(w, a)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	err := h.service.Delete(
		r.Context(),
		middleware.GetUserID(r.Context()),
		chi.URLParam(r, "alertID"),
	)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "alert")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.NoContent(w)
}
