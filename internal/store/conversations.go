package store

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

const conversationsKey = "db_conversations"

// Advance moves the call to next. Statuses never go backwards.
func (tc *ToolCall) Advance(next ToolStatus) error {
	if !next.Valid() {
		return invalid("status", "unknown tool call status "+string(next))
	}
	current := tc.Status
	if current == "" {
		current = ToolPending
	}
	if next.rank() < current.rank() {
		return invalid("status", "cannot move tool call from "+string(current)+" to "+string(next))
	}
	tc.Status = next
	return nil
}

var failurePattern = regexp.MustCompile(`(?i)error|failed`)

// Failed reports whether the results describe a logical failure, independent of
// the transport status.
func (tc ToolCall) Failed() bool {
	switch r := tc.Results.(type) {
	case nil:
		return false
	case string:
		var parsed map[string]any
		if json.Unmarshal([]byte(r), &parsed) == nil {
			if ok, present := parsed["success"].(bool); present {
				return !ok
			}
		}
		return failurePattern.MatchString(r)
	case map[string]any:
		ok, present := r["success"].(bool)
		return present && !ok
	}
	return false
}

// Validate checks a message before it is appended.
func (m Message) Validate() error {
	if !m.Role.Valid() {
		return invalid("role", "must be one of user, assistant, system, tool")
	}
	if strings.TrimSpace(m.Content) == "" && len(m.ToolCalls) == 0 {
		return invalid("content", "is required unless tool_calls are present")
	}
	for _, tc := range m.ToolCalls {
		if tc.Name == "" {
			return invalid("tool_calls.name", "is required")
		}
		if tc.Status != "" && !tc.Status.Valid() {
			return invalid("tool_calls.status", "unknown status "+string(tc.Status))
		}
	}
	return nil
}

// ConversationLog stores every conversation under one key. Messages are
// append-only.
type ConversationLog struct {
	db *Database
}

func (db *Database) Conversations() *ConversationLog {
	return &ConversationLog{db: db}
}

func (l *ConversationLog) lock() func() {
	m := l.db.lockFor(conversationsKey)
	m.Lock()
	return m.Unlock
}

func (l *ConversationLog) load(ctx context.Context) ([]Conversation, error) {
	raw, ok, err := l.db.kv.Get(ctx, conversationsKey)
	if err != nil {
		return nil, &StorageError{Op: "read", Key: conversationsKey, Err: err}
	}
	if !ok {
		return []Conversation{}, nil
	}
	var convs []Conversation
	if err := json.Unmarshal([]byte(raw), &convs); err != nil {
		return nil, &StorageError{Op: "decode", Key: conversationsKey, Err: err}
	}
	return convs, nil
}

func (l *ConversationLog) save(ctx context.Context, convs []Conversation) error {
	raw, err := json.Marshal(convs)
	if err != nil {
		return &StorageError{Op: "encode", Key: conversationsKey, Err: err}
	}
	if err := l.db.kv.Set(ctx, conversationsKey, string(raw)); err != nil {
		return &StorageError{Op: "write", Key: conversationsKey, Err: err}
	}
	return nil
}

// List returns all conversations, or only those of agentName when it is set.
func (l *ConversationLog) List(ctx context.Context, agentName string) ([]Conversation, error) {
	unlock := l.lock()
	convs, err := l.load(ctx)
	unlock()
	if err != nil {
		return nil, err
	}
	if agentName == "" {
		return convs, nil
	}
	out := make([]Conversation, 0, len(convs))
	for _, c := range convs {
		if c.AgentName == agentName {
			out = append(out, c)
		}
	}
	return out, nil
}

// Lookup returns the persisted conversation or nil.
func (l *ConversationLog) Lookup(ctx context.Context, id string) (*Conversation, error) {
	unlock := l.lock()
	defer unlock()
	convs, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		if convs[i].ID == id {
			c := convs[i]
			if c.Messages == nil {
				c.Messages = []Message{}
			}
			return &c, nil
		}
	}
	return nil, nil
}

// Get is Lookup with a fallback: an unknown id yields an empty conversation that
// is not persisted.
func (l *ConversationLog) Get(ctx context.Context, id string) (*Conversation, error) {
	c, err := l.Lookup(ctx, id)
	if err != nil || c != nil {
		return c, err
	}
	return &Conversation{ID: id, Messages: []Message{}}, nil
}

func (l *ConversationLog) Create(ctx context.Context, agentName string, metadata any) (*Conversation, error) {
	conv := Conversation{
		ID:          l.db.newID(),
		AgentName:   agentName,
		Metadata:    metadata,
		Messages:    []Message{},
		CreatedDate: l.db.now().UTC(),
	}

	unlock := l.lock()
	defer unlock()
	convs, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	convs = append(convs, conv)
	if err := l.save(ctx, convs); err != nil {
		return nil, err
	}
	return &conv, nil
}

// AddMessage appends msg to the conversation and returns it with its timestamp
// set. It returns nil, nil when the conversation does not exist.
func (l *ConversationLog) AddMessage(ctx context.Context, conversationID string, msg Message) (*Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = l.db.now().UTC()
	}
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].Status == "" {
			msg.ToolCalls[i].Status = ToolPending
		}
	}

	unlock := l.lock()
	defer unlock()
	convs, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		if convs[i].ID != conversationID {
			continue
		}
		convs[i].Messages = append(convs[i].Messages, msg)
		if err := l.save(ctx, convs); err != nil {
			return nil, err
		}
		return &msg, nil
	}
	return nil, nil
}

// Count returns the number of persisted conversations.
func (l *ConversationLog) Count(ctx context.Context) (int, error) {
	convs, err := l.List(ctx, "")
	if err != nil {
		return 0, err
	}
	return len(convs), nil
}

// RecentMessages returns at most n trailing messages. n <= 0 returns all.
func (c *Conversation) RecentMessages(n int) []Message {
	if n <= 0 || n >= len(c.Messages) {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}
