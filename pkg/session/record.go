package session

import (
	"time"
)

// Header and property names used by the logging proxy for session tracing.
const (
	HeaderSessionID   = "Helicone-Session-Id"
	HeaderSessionName = "Helicone-Session-Name"
	HeaderSessionPath = "Helicone-Session-Path"
	HeaderAuth        = "Helicone-Auth"
)

// Record represents one captured call belonging to a logged session
type Record struct {
	ID            string    `json:"id" yaml:"id"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	SessionID     string    `json:"session_id" yaml:"session_id"`
	SignedBodyURL string    `json:"signed_body_url" yaml:"-"`
	RequestPath   string    `json:"request_path" yaml:"request_path"`
	HierarchyPath string    `json:"hierarchy_path" yaml:"hierarchy_path"`
	Usage         Usage     `json:"usage" yaml:"usage"`
}

// Usage carries cost and token counters. It is informational only and
// never consulted when ordering or dispatching.
type Usage struct {
	Cost             float64 `json:"cost,omitempty" yaml:"cost,omitempty"`
	PromptTokens     int64   `json:"prompt_tokens,omitempty" yaml:"prompt_tokens,omitempty"`
	CompletionTokens int64   `json:"completion_tokens,omitempty" yaml:"completion_tokens,omitempty"`
	TotalTokens      int64   `json:"total_tokens,omitempty" yaml:"total_tokens,omitempty"`
}

// IsZero reports whether no counter is set.
func (u Usage) IsZero() bool {
	return u.Cost == 0 && u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens == 0
}

// Normalize returns a copy of the record with its hierarchy path canonicalized.
func (r Record) Normalize() Record {
	r.HierarchyPath = NormalizePath(r.HierarchyPath)
	return r
}

// Label returns a short identifier for display purposes.
func (r *Record) Label() string {
	if r.ID != "" {
		return r.ID
	}
	return r.CreatedAt.UTC().Format(time.RFC3339Nano)
}
