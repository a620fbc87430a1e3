package core

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mindfulspace.app/backend/internal/logging"
	"mindfulspace.app/backend/internal/store"
)

func TestBuildTranscript(t *testing.T) {
	system, history, last, err := buildTranscript([]ChatMessage{
		{Role: "system", Content: "be kind"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "tool", Content: "ignored"},
		{Role: "user", Content: "  "},
		{Role: "user", Content: "I feel anxious"},
	})
	require.NoError(t, err)
	assert.Equal(t, "be kind", system)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("hello")}, history[1].Parts)
	assert.Equal(t, "user", last.Role)
	assert.Equal(t, []genai.Part{genai.Text("I feel anxious")}, last.Parts)
}

func TestBuildTranscript_Invalid(t *testing.T) {
	_, _, _, err := buildTranscript(nil)
	assert.True(t, store.IsValidation(err))

	_, _, _, err = buildTranscript([]ChatMessage{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hey"}})
	assert.True(t, store.IsValidation(err))

	_, _, _, err = buildTranscript([]ChatMessage{{Role: "narrator", Content: "hi"}})
	assert.True(t, store.IsValidation(err))
}

func TestResponseText(t *testing.T) {
	assert.Equal(t, "", responseText(nil))
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("Breathe "), genai.Text("slowly. ")}},
	}}}
	assert.Equal(t, "Breathe slowly.", responseText(resp))
}

func TestNewLLMService_RequiresKey(t *testing.T) {
	_, err := NewLLMService(context.Background(), "", "", logging.Nop())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestUpstreamError(t *testing.T) {
	err := upstream("gemini", errProvider)
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "gemini", ue.Service)
	assert.ErrorIs(t, err, errProvider)
}
