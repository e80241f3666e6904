// AngelaMos | 2026
// handler.go

package account

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/rti-cashflowops/internal/avatar"
	"github.com/carterperez-dev/rti-cashflowops/internal/core"
	"github.com/carterperez-dev/rti-cashflowops/internal/entitlement"
	"github.com/carterperez-dev/rti-cashflowops/internal/middleware"
)

type Handler struct {
	service       *Service
	entitlements  *entitlement.Service
	freeUserLimit int
	validator     *validator.Validate
}

func NewHandler(
	service *Service,
	entitlements *entitlement.Service,
	freeUserLimit int,
) *Handler {
	return &Handler{
		service:       service,
		entitlements:  entitlements,
		freeUserLimit: freeUserLimit,
		validator:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/users", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/me", h.GetMe)
		r.Put("/me", h.UpdateMe)
		r.Put("/me/password", h.ChangePassword)
		r.Post("/me/avatar", h.UploadAvatar)
		r.With(h.entitlements.RequireQueryTier).Get("/active", h.ListActive)
	})
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetAccount(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeAccountError(w, err)
		return
	}

	core.OK(w, h.service.toResponse(a))
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	a, err := h.service.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		writeAccountError(w, err)
		return
	}

	core.OK(w, h.service.toResponse(a))
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	err := h.service.ChangePassword(
		r.Context(),
		middleware.GetUserID(r.Context()),
		req.CurrentPassword,
		req.NewPassword,
	)
	if err != nil {
		writeAccountError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, avatar.MaxUploadSize+1<<20)

	if err := r.ParseMultipartForm(avatar.MaxUploadSize); err != nil {
		core.BadRequest(w, "avatar must be a multipart upload of at most 5 MiB")
		return
	}
	defer func() {
		//nolint:errcheck // temp file cleanup
		_ = r.MultipartForm.RemoveAll()
	}()

	file, _, err := r.FormFile("avatar")
	if err != nil {
		core.BadRequest(w, "avatar file is required")
		return
	}
	defer file.Close()

	a, err := h.service.UploadAvatar(r.Context(), middleware.GetUserID(r.Context()), file)
	if err != nil {
		writeAccountError(w, err)
		return
	}

	core.OK(w, h.service.toResponse(a))
}

// ListActive applies the free tier cap after ordering.
func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListActive(r.Context())
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	decision, _ := entitlement.DecisionFromContext(r.Context())
	visible := entitlement.Truncate(accounts, decision.Subject, h.freeUserLimit, h.entitlements.Now())

	out := make([]PublicAccountResponse, 0, len(visible))
	for i := range visible {
		out = append(out, h.service.toPublic(&visible[i]))
	}

	core.OK(w, ActiveAccountsResponse{
		Accounts:  out,
		Total:     len(accounts),
		Truncated: len(visible) < len(accounts),
	})
}

func (h *Handler) RegisterAdminRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin/users", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/", h.ListAccounts)
		r.Get("/{accountID}", h.GetAccount)
		r.Put("/{accountID}/role", h.UpdateRole)
		r.Put("/{accountID}/subscription", h.UpdateSubscription)
		r.Delete("/{accountID}", h.DeleteAccount)
	})
}

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	params := ListParams{
		Page:     parseIntQuery(r, "page", 1),
		PageSize: parseIntQuery(r, "page_size", 20),
		Search:   r.URL.Query().Get("search"),
		Role:     r.URL.Query().Get("role"),
		Tier:     r.URL.Query().Get("tier"),
	}
	params.Normalize()

	accounts, total, err := h.service.ListAccounts(r.Context(), params)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	core.Paginated(
		w,
		h.service.toResponseList(accounts),
		params.Page,
		params.PageSize,
		total,
	)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.service.GetAccount(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeAccountError(w, err)
		return
	}

	core.OK(w, h.service.toResponse(a))
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	a, err := h.service.UpdateRole(r.Context(), chi.URLParam(r, "accountID"), req.Role)
	if err != nil {
		writeAccountError(w, err)
		return
	}

	core.OK(w, h.service.toResponse(a))
}

func (h *Handler) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	var req UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	a, err := h.service.UpdateSubscription(r.Context(), chi.URLParam(r, "accountID"), req)
	if err != nil {
		writeAccountError(w, err)
		return
	}

	core.OK(w, h.service.toResponse(a))
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	requesterID := middleware.GetUserID(r.Context())
	targetID := chi.URLParam(r, "accountID")

	if err := h.service.CanDelete(r.Context(), requesterID, targetID); err != nil {
		writeAccountError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), targetID); err != nil {
		writeAccountError(w, err)
		return
	}

	core.NoContent(w)
}

func writeAccountError(w http.ResponseWriter, err error) {
	switch {
	case core.IsAppError(err):
		core.JSONError(w, err)
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, "account")
	case errors.Is(err, core.ErrForbidden):
		core.Forbidden(w, "insufficient permissions")
	default:
		core.JSONError(w, err)
	}
}

func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return defaultVal
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}

	return parsed
}
