package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mindfulspace.app/backend/internal/store"
)

// entityTypes lists the collections reachable through /entities.
var entityTypes = map[string]bool{
	store.CollectionExpert:       true,
	store.CollectionConsultation: true,
	store.CollectionPlaylist:     true,
	store.CollectionExercise:     true,
}

func (h *APIHandler) entityCollection(w http.ResponseWriter, r *http.Request) (*store.Collection, bool) {
	name := chi.URLParam(r, "type")
	if !entityTypes[name] {
		writeError(w, http.StatusNotFound, "Unknown entity type")
		return nil, false
	}
	return h.db.Collection(name), true
}

func (h *APIHandler) ListEntitiesHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := h.entityCollection(w, r)
	if !ok {
		return
	}
	items, err := c.List(r.Context(), r.URL.Query().Get("order_by"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *APIHandler) CreateEntityHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := h.entityCollection(w, r)
	if !ok {
		return
	}
	var data store.Document
	if err := decodeJSON(w, r, &data); err != nil {
		h.respondError(w, r, err)
		return
	}
	if data == nil {
		h.respondError(w, r, &store.ValidationError{Message: "request body must be a JSON object"})
		return
	}
	item, err := c.Create(r.Context(), data)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *APIHandler) UpdateEntityHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := h.entityCollection(w, r)
	if !ok {
		return
	}
	var patch store.Document
	if err := decodeJSON(w, r, &patch); err != nil {
		h.respondError(w, r, err)
		return
	}
	item, err := c.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *APIHandler) DeleteEntityHandler(w http.ResponseWriter, r *http.Request) {
	c, ok := h.entityCollection(w, r)
	if !ok {
		return
	}
	deleted, err := c.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
