package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mindfulspace.app/backend/internal/auth"
	"mindfulspace.app/backend/internal/core"
	"mindfulspace.app/backend/internal/logging"
	"mindfulspace.app/backend/internal/store"
)

const maxBodyBytes = 10 << 20

type APIHandler struct {
	db          *store.Database
	userService *core.UserService
	chatService *core.ChatService
	guide       *core.GuideService
	log         *logging.Logger
}

// NewAPIHandler builds the HTTP handlers. guide may be nil when no AI provider
// is configured.
func NewAPIHandler(db *store.Database, us *core.UserService, cs *core.ChatService, guide *core.GuideService, log *logging.Logger) *APIHandler {
	return &APIHandler{
		db:          db,
		userService: us,
		chatService: cs,
		guide:       guide,
		log:         log,
	}
}

type contextKey string

const userContextKey contextKey = "user"

func userFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(userContextKey).(*store.User)
	return u, ok && u != nil
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := h.userService.Get(r.Context(), userID)
		if err != nil {
			h.log.Error().Err(err).Str("user", userID).Msg("failed to load user in auth middleware")
			writeError(w, http.StatusInternalServerError, "Failed to process user identity")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *APIHandler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "MindfulSpace API running")
}

// HealthHandler always answers 200; counts are omitted when storage fails.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	users, err := h.userService.Count(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("health: failed to count users")
		writeJSON(w, http.StatusOK, resp)
		return
	}
	conversations, err := h.db.Conversations().Count(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("health: failed to count conversations")
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp["users"] = users
	resp["conversations"] = conversations
	writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &store.ValidationError{Message: "request body is required"}
		}
		return &store.ValidationError{Message: "invalid request body: " + err.Error()}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// respondError maps service errors onto HTTP statuses.
func (h *APIHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *store.ValidationError
	var ue *core.UpstreamError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, http.StatusConflict, "Already exists")
	case errors.Is(err, core.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, core.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "AI provider is not configured")
	case errors.As(err, &ue):
		h.log.Warn().Err(err).Str("path", r.URL.Path).Msg("upstream service failed")
		writeError(w, http.StatusBadGateway, fmt.Sprintf("%s service unavailable, please retry", ue.Service))
	default:
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
