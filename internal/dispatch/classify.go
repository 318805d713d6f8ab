package dispatch

import (
	"fmt"
	"strings"

	"github.com/funnyzak/replaytap/pkg/session"
)

// ClassifierOptions holds the markers used to recognise call kinds
type ClassifierOptions struct {
	ChatMarker      string
	EmbeddingMarker string
	IgnorableTypes  []string
}

// Classifier assigns exactly one kind to every record
type Classifier struct {
	chatMarker      string
	embeddingMarker string
	ignorable       map[string]struct{}
}

// UnclassifiedRequestError reports a record that matches no known call kind.
// It is logged and recorded, never fatal.
type UnclassifiedRequestError struct {
	RecordID    string
	RequestPath string
	BodyType    string
}

func (e *UnclassifiedRequestError) Error() string {
	if e.BodyType != "" {
		return fmt.Sprintf("record %s: unclassified request %s (type %q)", e.RecordID, e.RequestPath, e.BodyType)
	}
	return fmt.Sprintf("record %s: unclassified request %s", e.RecordID, e.RequestPath)
}

// NewClassifier creates a classifier. Empty markers never match.
func NewClassifier(opts ClassifierOptions) *Classifier {
	c := &Classifier{
		chatMarker:      opts.ChatMarker,
		embeddingMarker: opts.EmbeddingMarker,
		ignorable:       make(map[string]struct{}, len(opts.IgnorableTypes)),
	}
	for _, t := range opts.IgnorableTypes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			c.ignorable[t] = struct{}{}
		}
	}
	return c
}

// Classify decides the kind of a record. The first matching rule wins:
// chat marker in the request path, embedding marker in the request path,
// ignorable body type, otherwise unclassified.
func (c *Classifier) Classify(requestPath string, b session.Body) session.Kind {
	switch {
	case c.chatMarker != "" && strings.Contains(requestPath, c.chatMarker):
		return session.KindChat
	case c.embeddingMarker != "" && strings.Contains(requestPath, c.embeddingMarker):
		return session.KindEmbedding
	case c.isIgnorable(b.Type()):
		return session.KindIgnorable
	default:
		return session.KindUnclassified
	}
}

// Body types are matched case-insensitively.
func (c *Classifier) isIgnorable(t string) bool {
	if t == "" {
		return false
	}
	_, ok := c.ignorable[strings.ToLower(t)]
	return ok
}
