package session

import (
	"github.com/tidwall/gjson"
)

// IgnorableVectorDB marks payloads produced by vector store calls.
const IgnorableVectorDB = "vector_db"

// Body is the raw JSON request payload that gets replayed.
//
// Shapes seen in captured sessions:
//
//	chat:      {"model": "...", "messages": [...]}
//	embedding: {"model": "...", "input": ...}
//	marker:    {"type": "vector_db", ...}
type Body []byte

// Valid reports whether the payload is a JSON object.
func (b Body) Valid() bool {
	return len(b) > 0 && gjson.ValidBytes(b) && gjson.ParseBytes(b).IsObject()
}

// Model returns the model name or an empty string.
func (b Body) Model() string {
	return gjson.GetBytes(b, "model").String()
}

// Type returns the declared payload type marker, if any.
func (b Body) Type() string {
	return gjson.GetBytes(b, "type").String()
}

// Messages returns the chat messages array.
func (b Body) Messages() gjson.Result {
	return gjson.GetBytes(b, "messages")
}

// Input returns the embedding input value.
func (b Body) Input() gjson.Result {
	return gjson.GetBytes(b, "input")
}

// SystemMessageIndex returns the index of the first system message or -1.
func (b Body) SystemMessageIndex() int {
	msgs := b.Messages()
	if !msgs.IsArray() {
		return -1
	}
	idx := -1
	i := 0
	msgs.ForEach(func(_, msg gjson.Result) bool {
		if msg.Get("role").String() == "system" {
			idx = i
			return false
		}
		i++
		return true
	})
	return idx
}
