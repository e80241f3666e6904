// AngelaMos | 2026
// handler.go

package realtime

import (
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/carterperez-dev/rti-cashflowops/internal/core"
	"github.com/carterperez-dev/rti-cashflowops/internal/middleware"
)

type Handler struct {
	hub      *Hub
	verifier middleware.TokenVerifier
	upgrader websocket.Upgrader
}

// NewHandler accepts upgrades from the given origins. A "*" entry allows any
// origin; requests without an Origin header are always accepted.
func NewHandler(
	hub *Hub,
	verifier middleware.TokenVerifier,
	allowedOrigins []string,
) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" ||
					slices.Contains(allowedOrigins, "*") ||
					slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.Serve)
}

// Serve authenticates before upgrading. Browsers cannot set headers on a
// websocket handshake, so the token query parameter is accepted too.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.ExtractToken(r)
	}
	if token == "" {
		core.Unauthorized(w, "missing authorization token")
		return
	}

	principal, err := h.verifier.Authenticate(r.Context(), token)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			err = core.TokenInvalidError()
		}
		core.JSONError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(h.hub, conn, principal.AccountID)
	if !h.hub.Register(c) {
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
