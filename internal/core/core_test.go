package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mindfulspace.app/backend/internal/config"
	"mindfulspace.app/backend/internal/kv"
	"mindfulspace.app/backend/internal/logging"
	"mindfulspace.app/backend/internal/store"
)

func newTestDB(t *testing.T) *store.Database {
	t.Helper()
	policies, err := store.DefaultPolicies()
	require.NoError(t, err)
	return store.NewDatabase(kv.NewMemory(), logging.Nop(), store.WithPolicies(policies))
}

func withJWTSecret(t *testing.T) {
	t.Helper()
	prev := config.AppConfig
	config.AppConfig.JWTSecret = "test-secret"
	config.AppConfig.TokenTTL = time.Hour
	t.Cleanup(func() { config.AppConfig = prev })
}

// fakeCompleter records every call and answers with reply or err.
type fakeCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []completionCall
}

type completionCall struct {
	messages []ChatMessage
	opts     CompletionOptions
}

func (f *fakeCompleter) Complete(_ context.Context, messages []ChatMessage, opts CompletionOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, completionCall{messages: append([]ChatMessage(nil), messages...), opts: opts})
	return f.reply, f.err
}

func (f *fakeCompleter) last() completionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

// keywordEmbedder maps text onto one dimension per keyword.
type keywordEmbedder struct {
	mu       sync.Mutex
	keywords []string
	calls    int
	err      error
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{keywords: []string{"breath", "muscle", "confidence"}}
}

func (e *keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	text = strings.ToLower(text)
	vec := make([]float32, len(e.keywords))
	for i, k := range e.keywords {
		if strings.Contains(text, k) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (e *keywordEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

var errProvider = errors.New("provider down")
