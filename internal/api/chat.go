package api

import (
	"net/http"
	"strconv"

	"mindfulspace.app/backend/internal/core"
)

func (h *APIHandler) CompanionHandler(w http.ResponseWriter, r *http.Request) {
	var req core.CompanionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	reply, err := h.chatService.Companion(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (h *APIHandler) ChatProxyHandler(w http.ResponseWriter, r *http.Request) {
	var req core.ProxyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	content, err := h.chatService.Proxy(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": content})
}

func (h *APIHandler) SuggestExercisesHandler(w http.ResponseWriter, r *http.Request) {
	if h.guide == nil {
		h.respondError(w, r, core.ErrNotConfigured)
		return
	}
	limit := core.NumSuggestions
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	suggestions, err := h.guide.Suggest(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}
