package core

import (
	"context"
	"fmt"
	"strings"

	"mindfulspace.app/backend/internal/logging"
	"mindfulspace.app/backend/internal/store"
)

const (
	companionSystemInstruction = "You are an empathetic emotional companion for the MindfulSpace app. " +
		"Listen carefully, validate the user's feelings and offer gentle, practical support. " +
		"You never give medical diagnoses and you do not replace professional care. " +
		"If the user mentions self-harm or being in danger, encourage them to contact local emergency services or a crisis line right away."

	defaultLanguage      = "es"
	defaultTemperature   = float32(0.7)
	conversationHistory  = 20 // Messages sent to the provider when replying in a conversation
	conversationFallback = "I'm sorry, I encountered an error while processing your request."
)

var languageNames = map[string]string{
	"es": "Spanish",
	"en": "English",
}

type ChatService struct {
	llm           Completer
	guide         *GuideService
	conversations *store.ConversationLog
	log           *logging.Logger
}

// NewChatService wires the chat flows. llm and guide may be nil when no AI
// provider is configured.
func NewChatService(llm Completer, guide *GuideService, conversations *store.ConversationLog, log *logging.Logger) *ChatService {
	return &ChatService{
		llm:           llm,
		guide:         guide,
		conversations: conversations,
		log:           log,
	}
}

type CompanionRequest struct {
	Message  string        `json:"message"`
	History  []ChatMessage `json:"history"`
	Language string        `json:"language"`
}

// Companion answers one message of the chat companion screen.
func (s *ChatService) Companion(ctx context.Context, req CompanionRequest) (string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return "", &store.ValidationError{Field: "message", Message: "is required"}
	}
	if s.llm == nil {
		return "", upstream("chat", ErrNotConfigured)
	}

	language := req.Language
	if language == "" {
		language = defaultLanguage
	}
	if name, ok := languageNames[language]; ok {
		language = name
	}
	instruction := companionSystemInstruction + " Always answer in " + language + "."

	if s.guide != nil {
		// Suggestions are optional; the reply goes out without them.
		guideContext, err := s.guide.PromptContext(ctx, req.Message)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to get exercise suggestions, proceeding without them")
		}
		instruction = joinNonEmpty("\n\n", instruction, guideContext)
	}

	messages := make([]ChatMessage, 0, len(req.History)+1)
	messages = append(messages, req.History...)
	messages = append(messages, ChatMessage{Role: string(store.RoleUser), Content: req.Message})

	return s.llm.Complete(ctx, messages, CompletionOptions{SystemInstruction: instruction})
}

type ProxyRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Model       string        `json:"model"`
	Temperature *float32      `json:"temperature"`
}

// Proxy forwards a raw transcript to the provider. Models outside the
// provider's family fall back to the configured default.
func (s *ChatService) Proxy(ctx context.Context, req ProxyRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", &store.ValidationError{Field: "messages", Message: "must not be empty"}
	}
	if s.llm == nil {
		return "", upstream("chat", ErrNotConfigured)
	}
	opts := CompletionOptions{Temperature: req.Temperature}
	if opts.Temperature == nil {
		t := defaultTemperature
		opts.Temperature = &t
	}
	if strings.HasPrefix(req.Model, "gemini-") {
		opts.Model = req.Model
	}
	return s.llm.Complete(ctx, req.Messages, opts)
}

// Reply appends the user's message to a conversation, asks the provider for an
// answer over the recent history and appends that answer. It returns nil, nil
// when the conversation does not exist.
func (s *ChatService) Reply(ctx context.Context, conversationID, content string) (*store.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &store.ValidationError{Field: "content", Message: "is required"}
	}
	if s.llm == nil {
		return nil, upstream("chat", ErrNotConfigured)
	}

	userMsg, err := s.conversations.AddMessage(ctx, conversationID, store.Message{Role: store.RoleUser, Content: content})
	if err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}
	if userMsg == nil {
		return nil, nil
	}

	conv, err := s.conversations.Lookup(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, nil
	}

	history := make([]ChatMessage, 0, conversationHistory)
	for _, m := range conv.RecentMessages(conversationHistory) {
		if m.Role == store.RoleTool || m.Content == "" {
			continue
		}
		history = append(history, ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	answer, err := s.llm.Complete(ctx, history, CompletionOptions{SystemInstruction: companionSystemInstruction})
	if err != nil {
		s.log.Error().Err(err).Str("conversation", conversationID).Msg("error generating assistant reply")
		return nil, err
	}
	if answer == "" {
		answer = conversationFallback
	}

	modelMsg, err := s.conversations.AddMessage(ctx, conversationID, store.Message{Role: store.RoleAssistant, Content: answer})
	if err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}
	return modelMsg, nil
}
