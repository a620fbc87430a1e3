package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mindfulspace.app/backend/internal/store"
)

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	convs, err := h.db.Conversations().List(r.Context(), chi.URLParam(r, "agentName"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

type CreateConversationRequest struct {
	Metadata any `json:"metadata"`
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			h.respondError(w, r, err)
			return
		}
	}
	conv, err := h.db.Conversations().Create(r.Context(), chi.URLParam(r, "agentName"), req.Metadata)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	conv, err := h.db.Conversations().Lookup(r.Context(), chi.URLParam(r, "conversationID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if conv == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *APIHandler) AddMessageHandler(w http.ResponseWriter, r *http.Request) {
	var msg store.Message
	if err := decodeJSON(w, r, &msg); err != nil {
		h.respondError(w, r, err)
		return
	}
	added, err := h.db.Conversations().AddMessage(r.Context(), chi.URLParam(r, "conversationID"), msg)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if added == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, added)
}

type ReplyRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) ReplyHandler(w http.ResponseWriter, r *http.Request) {
	var req ReplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	msg, err := h.chatService.Reply(r.Context(), chi.URLParam(r, "conversationID"), req.Content)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if msg == nil {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
