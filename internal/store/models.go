package store

import "time"

// Document is one persisted entity: the store-owned "id" and "created_date"
// fields plus whatever the caller supplied.
type Document map[string]any

const (
	FieldID          = "id"
	FieldCreatedDate = "created_date"
	// FieldCreatedAt is the legacy creation field written by older servers.
	FieldCreatedAt = "created_at"
)

// ID returns the document id, or "" when absent.
func (d Document) ID() string {
	id, _ := d[FieldID].(string)
	return id
}

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// ToolStatus only moves forward: pending, running, completed.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
)

func (s ToolStatus) rank() int {
	switch s {
	case ToolPending:
		return 0
	case ToolRunning:
		return 1
	case ToolCompleted:
		return 2
	}
	return -1
}

func (s ToolStatus) Valid() bool { return s.rank() >= 0 }

// UserRole is the closed set of profile roles.
type UserRole string

const (
	UserRoleClient UserRole = "client"
	UserRoleExpert UserRole = "expert"
)

// NormalizeUserRole maps raw input onto a UserRole. "both" is accepted as an
// alias of expert.
func NormalizeUserRole(s string) (UserRole, bool) {
	switch s {
	case "client":
		return UserRoleClient, true
	case "expert", "both":
		return UserRoleExpert, true
	}
	return "", false
}

type Conversation struct {
	ID          string    `json:"id"`
	AgentName   string    `json:"agent_name,omitempty"`
	Metadata    any       `json:"metadata,omitempty"`
	Messages    []Message `json:"messages"`
	CreatedDate time.Time `json:"created_date,omitzero"`
}

type Message struct {
	Role      Role       `json:"role"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Timestamp time.Time  `json:"timestamp,omitzero"`
}

type ToolCall struct {
	Name            string     `json:"name"`
	Status          ToolStatus `json:"status"`
	ArgumentsString string     `json:"arguments_string,omitempty"`
	// Results is either a string or a structured payload.
	Results any `json:"results,omitempty"`
}
