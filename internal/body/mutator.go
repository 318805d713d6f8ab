package body

import (
	"fmt"
	"strconv"

	"github.com/funnyzak/replaytap/pkg/session"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// MutatorOptions configures the chat body mutation
type MutatorOptions struct {
	Enable        bool
	SystemSuffix  string
	SystemContent string
}

// Mutator applies the system instruction rewrite to chat bodies.
//
// The rewrite is not idempotent: applying it twice appends the suffix
// twice. Callers apply it exactly once per record.
type Mutator struct {
	enabled bool
	suffix  string
	content string
}

// NewMutator creates a mutator
func NewMutator(opts MutatorOptions) *Mutator {
	return &Mutator{
		enabled: opts.Enable,
		suffix:  opts.SystemSuffix,
		content: opts.SystemContent,
	}
}

// Enabled reports whether Apply changes anything.
func (m *Mutator) Enabled() bool {
	return m != nil && m.enabled
}

// Apply returns the mutated body and whether it was changed. The first
// system message gets the suffix appended to its content; when there is no
// system message one is prepended. Bodies without a messages array are
// returned untouched.
func (m *Mutator) Apply(b session.Body) (session.Body, bool, error) {
	if !m.Enabled() {
		return b, false, nil
	}
	msgs := b.Messages()
	if !msgs.IsArray() {
		return b, false, nil
	}

	if idx := b.SystemMessageIndex(); idx >= 0 {
		out, err := m.appendSuffix(b, idx)
		if err != nil {
			return b, false, err
		}
		return out, true, nil
	}

	out, err := m.prependSystem(b, msgs)
	if err != nil {
		return b, false, err
	}
	return out, true, nil
}

func (m *Mutator) appendSuffix(b session.Body, idx int) (session.Body, error) {
	key := "messages." + strconv.Itoa(idx) + ".content"
	content := gjson.GetBytes(b, key)

	var (
		out []byte
		err error
	)
	switch {
	case content.IsArray():
		// multi-part content: add the suffix as a trailing text part
		part, perr := sjson.Set(`{"type":"text"}`, "text", m.suffix)
		if perr != nil {
			return nil, perr
		}
		out, err = sjson.SetRawBytes(b, key+".-1", []byte(part))
	default:
		out, err = sjson.SetBytes(b, key, content.String()+m.suffix)
	}
	if err != nil {
		return nil, fmt.Errorf("append system suffix: %w", err)
	}
	return session.Body(out), nil
}

func (m *Mutator) prependSystem(b session.Body, msgs gjson.Result) (session.Body, error) {
	system, err := sjson.Set(`{"role":"system"}`, "content", m.content)
	if err != nil {
		return nil, err
	}

	list := []byte("[]")
	list, err = sjson.SetRawBytes(list, "-1", []byte(system))
	if err != nil {
		return nil, fmt.Errorf("prepend system message: %w", err)
	}
	for _, msg := range msgs.Array() {
		list, err = sjson.SetRawBytes(list, "-1", []byte(msg.Raw))
		if err != nil {
			return nil, fmt.Errorf("prepend system message: %w", err)
		}
	}

	out, err := sjson.SetRawBytes(b, "messages", list)
	if err != nil {
		return nil, fmt.Errorf("prepend system message: %w", err)
	}
	return session.Body(out), nil
}
