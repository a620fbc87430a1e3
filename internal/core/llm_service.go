package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"mindfulspace.app/backend/internal/logging"
	"mindfulspace.app/backend/internal/store"
)

const (
	defaultChatModelName      = "gemini-1.5-flash-latest"
	defaultEmbeddingModelName = "text-embedding-004"

	emptyCompletionReply = "I'm sorry, I couldn't generate a response at this time. Please try again."
)

// ChatMessage is one turn of a provider-neutral chat transcript.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionOptions struct {
	Model             string
	Temperature       *float32
	SystemInstruction string
}

// Completer turns a transcript into the assistant's next message.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type LLMService struct {
	client    *genai.Client
	chatModel string
	log       *logging.Logger
}

func NewLLMService(ctx context.Context, apiKey, chatModel string, log *logging.Logger) (*LLMService, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if chatModel == "" {
		chatModel = defaultChatModelName
	}
	return &LLMService{client: client, chatModel: chatModel, log: log}, nil
}

func (s *LLMService) Close() {
	if s.client == nil {
		return
	}
	if err := s.client.Close(); err != nil {
		s.log.Warn().Err(err).Msg("error closing GenAI client")
		return
	}
	s.log.Info().Msg("GenAI client closed")
}

func (s *LLMService) Embed(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(defaultEmbeddingModelName)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, upstream("gemini", fmt.Errorf("embedding request failed: %w", err))
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, upstream("gemini", fmt.Errorf("no embedding data received"))
	}
	return res.Embedding.Values, nil
}

func (s *LLMService) Complete(ctx context.Context, messages []ChatMessage, opts CompletionOptions) (string, error) {
	system, history, last, err := buildTranscript(messages)
	if err != nil {
		return "", err
	}

	name := s.chatModel
	if opts.Model != "" {
		name = opts.Model
	}
	model := s.client.GenerativeModel(name)
	if instruction := joinNonEmpty("\n\n", opts.SystemInstruction, system); instruction != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(instruction)}}
	}
	if opts.Temperature != nil {
		model.SetTemperature(*opts.Temperature)
	}

	session := model.StartChat()
	session.History = history
	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return "", upstream("gemini", fmt.Errorf("chat SendMessage failed: %w", err))
	}

	text := responseText(resp)
	if text == "" {
		s.log.Warn().Str("model", name).Msg("gemini response was empty or had no text parts")
		return emptyCompletionReply, nil
	}
	return text, nil
}

// buildTranscript maps chat roles onto Gemini's: system turns become the system
// instruction, assistant turns become "model", and the final turn must come
// from the user.
func buildTranscript(messages []ChatMessage) (system string, history []*genai.Content, last *genai.Content, err error) {
	var systemParts []string
	for _, m := range messages {
		var role string
		switch store.Role(m.Role) {
		case store.RoleSystem:
			if m.Content != "" {
				systemParts = append(systemParts, m.Content)
			}
			continue
		case store.RoleUser:
			role = "user"
		case store.RoleAssistant:
			role = "model"
		case store.RoleTool:
			continue
		default:
			return "", nil, nil, &store.ValidationError{Field: "role", Message: fmt.Sprintf("unsupported role %q", m.Role)}
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}

	if len(history) == 0 {
		return "", nil, nil, &store.ValidationError{Field: "messages", Message: "at least one user message is required"}
	}
	last = history[len(history)-1]
	if last.Role != "user" {
		return "", nil, nil, &store.ValidationError{Field: "messages", Message: "last message must come from the user"}
	}
	return strings.Join(systemParts, "\n\n"), history[:len(history)-1], last, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}

func joinNonEmpty(sep string, parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
