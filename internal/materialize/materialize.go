// Package materialize folds events into the client document.
//
// Apply is pure: it never mutates its input document and the result shares
// no memory with it. Replaying the same events always yields a document with
// the same canonical encoding.
package materialize

import (
	"fmt"

	"github.com/roach88/evstore/internal/ir"
	"github.com/roach88/evstore/internal/schema"
)

// ErrUnknownEvent is returned when an event name has no reducer.
var ErrUnknownEvent = schema.ErrUnknownEvent

// Materializer reduces events of one document schema.
type Materializer struct {
	schema *schema.Schema
}

// New creates a Materializer for s. A nil schema uses schema.Default().
func New(s *schema.Schema) *Materializer {
	if s == nil {
		s = schema.Default()
	}
	return &Materializer{schema: s}
}

// Schema returns the document schema.
func (m *Materializer) Schema() *schema.Schema {
	return m.schema
}

// Default returns the document before any event.
func (m *Materializer) Default() ir.Object {
	return m.schema.Defaults()
}

// Apply returns doc with ev applied.
func (m *Materializer) Apply(doc ir.Object, ev ir.Event) (ir.Object, error) {
	switch ev.Name {
	case m.schema.SetEvent():
		out := doc.Clone()
		if out == nil {
			out = ir.Object{}
		}
		for k, v := range ev.Args.Clone() {
			out[k] = v
		}
		return out, nil
	case m.schema.ResetEvent():
		return m.schema.Defaults(), nil
	default:
		return nil, fmt.Errorf("apply seq %d: %w: %q", ev.Seq, ErrUnknownEvent, ev.Name)
	}
}

// Replay folds events, in order, starting from the default document.
func (m *Materializer) Replay(events []ir.Event) (ir.Object, error) {
	doc := m.Default()
	for _, ev := range events {
		next, err := m.Apply(doc, ev)
		if err != nil {
			return nil, err
		}
		doc = next
	}
	return doc, nil
}
