package session

import (
	"github.com/google/uuid"
)

// DefaultSessionName is the display name attached to replayed calls.
const DefaultSessionName = "Session Replay"

// Context is the replay provenance attached to every outgoing call of one run.
// It is created once and never modified afterwards.
type Context struct {
	SessionID string `json:"session_id" yaml:"session_id"`
	Name      string `json:"name" yaml:"name"`
}

// NewContext creates a replay context with a freshly generated session id.
func NewContext(name string) Context {
	if name == "" {
		name = DefaultSessionName
	}
	return Context{
		SessionID: uuid.NewString(),
		Name:      name,
	}
}
