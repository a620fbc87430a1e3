package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"mindfulspace.app/backend/internal/store"
)

// Backend is the read/write surface a Client caches over.
type Backend interface {
	List(ctx context.Context, collection, orderBy string) ([]store.Document, error)
	Create(ctx context.Context, collection string, data store.Document) (store.Document, error)
	// Update returns nil, nil when the record does not exist.
	Update(ctx context.Context, collection, id string, patch store.Document) (store.Document, error)
	Delete(ctx context.Context, collection, id string) (bool, error)
}

// LocalBackend talks to an in-process Database.
type LocalBackend struct {
	db *store.Database
}

func NewLocalBackend(db *store.Database) *LocalBackend {
	return &LocalBackend{db: db}
}

func (b *LocalBackend) List(ctx context.Context, collection, orderBy string) ([]store.Document, error) {
	return b.db.Collection(collection).List(ctx, orderBy)
}

func (b *LocalBackend) Create(ctx context.Context, collection string, data store.Document) (store.Document, error) {
	return b.db.Collection(collection).Create(ctx, data)
}

func (b *LocalBackend) Update(ctx context.Context, collection, id string, patch store.Document) (store.Document, error) {
	return b.db.Collection(collection).Update(ctx, id, patch)
}

func (b *LocalBackend) Delete(ctx context.Context, collection, id string) (bool, error) {
	return b.db.Collection(collection).Delete(ctx, id)
}

// StatusError is a non-2xx answer from the entities API.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("entities api: %d %s", e.Code, e.Message)
}

// HTTPBackend talks to the server's /entities routes.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend returns a backend for baseURL. A nil client means
// http.DefaultClient.
func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBackend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (b *HTTPBackend) List(ctx context.Context, collection, orderBy string) ([]store.Document, error) {
	u := b.entityURL(collection)
	if orderBy != "" {
		u += "?" + url.Values{"order_by": {orderBy}}.Encode()
	}
	var out []store.Document
	if _, err := b.do(ctx, http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *HTTPBackend) Create(ctx context.Context, collection string, data store.Document) (store.Document, error) {
	var out store.Document
	if _, err := b.do(ctx, http.MethodPost, b.entityURL(collection), data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *HTTPBackend) Update(ctx context.Context, collection, id string, patch store.Document) (store.Document, error) {
	var out store.Document
	found, err := b.do(ctx, http.MethodPut, b.entityURL(collection, id), patch, &out)
	if err != nil || !found {
		return nil, err
	}
	return out, nil
}

func (b *HTTPBackend) Delete(ctx context.Context, collection, id string) (bool, error) {
	return b.do(ctx, http.MethodDelete, b.entityURL(collection, id), nil, nil)
}

func (b *HTTPBackend) entityURL(collection string, id ...string) string {
	u := b.baseURL + "/entities/" + url.PathEscape(collection)
	for _, part := range id {
		u += "/" + url.PathEscape(part)
	}
	return u
}

// do sends one request. It reports false without error on 404 for
// id-addressed requests.
func (b *HTTPBackend) do(ctx context.Context, method, u string, body, out any) (bool, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method != http.MethodGet && method != http.MethodPost {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return false, &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
	}
	return true, nil
}
