// Package schema holds the CUE definition of a store's client document.
//
// A schema names one document, e.g. uiState, defined as #uiState. The
// definition gives the document's fields, their types and defaults. Two
// events are derived from the name:
//
//	uiStateSet    args are a subset of the fields, shallow-merged
//	uiStateReset  no args, document returns to its defaults
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/evstore/internal/ir"
)

// DefaultDocument is the document name of the embedded schema.
const DefaultDocument = "uiState"

//go:embed default.cue
var defaultSource string

// ErrUnknownEvent is returned for event names the schema does not derive.
var ErrUnknownEvent = errors.New("unknown event")

// Schema is a compiled document definition.
//
// Thread-safety: safe for concurrent use. A cue.Context is not, so every
// evaluation holds mu.
type Schema struct {
	name string

	mu  sync.Mutex
	ctx *cue.Context
	def cue.Value

	defaults ir.Object
}

// ValidationError reports args that do not fit the document definition.
type ValidationError struct {
	Event   string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ValidationError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s:%d:%d: %s: %s",
			e.Event, e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Event, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Event, e.Field, e.Message)
}

// Default returns the embedded uiState schema.
func Default() *Schema {
	s, err := Compile(DefaultDocument, "default.cue", defaultSource)
	if err != nil {
		panic(fmt.Sprintf("schema: embedded definition: %v", err))
	}
	return s
}

// Load compiles the CUE file at path and selects the #<document> definition.
func Load(path, document string) (*Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Compile(document, path, string(src))
}

// Compile compiles src and selects the #<document> definition. The
// definition must be a struct whose defaults are concrete.
func Compile(document, filename, src string) (*Schema, error) {
	if document == "" {
		return nil, fmt.Errorf("schema: document name is required")
	}

	ctx := cuecontext.New()
	root := ctx.CompileString(src, cue.Filename(filename))
	if err := root.Err(); err != nil {
		return nil, formatCUEError(document, err)
	}

	def := root.LookupPath(cue.ParsePath("#" + document))
	if !def.Exists() {
		return nil, fmt.Errorf("schema: definition #%s not found in %s", document, filename)
	}
	if def.IncompleteKind() != cue.StructKind {
		return nil, fmt.Errorf("schema: #%s must be a struct, got %v", document, def.IncompleteKind())
	}

	// Unifying with an empty struct resolves every field to its default.
	doc := def.Unify(ctx.CompileString("{}"))
	data, err := doc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("schema: #%s defaults are not concrete: %w", document, formatCUEError(document, err))
	}
	defaults, err := ir.ParseObject(data)
	if err != nil {
		return nil, fmt.Errorf("schema: #%s defaults: %w", document, err)
	}

	return &Schema{
		name:     document,
		ctx:      ctx,
		def:      def,
		defaults: defaults,
	}, nil
}

// Name returns the document name.
func (s *Schema) Name() string {
	return s.name
}

// SetEvent is the name of the shallow-merge event.
func (s *Schema) SetEvent() string {
	return s.name + "Set"
}

// ResetEvent is the name of the reset-to-defaults event.
func (s *Schema) ResetEvent() string {
	return s.name + "Reset"
}

// Defaults returns a copy of the default document.
func (s *Schema) Defaults() ir.Object {
	return s.defaults.Clone()
}

// Validate checks args for the named event.
func (s *Schema) Validate(name string, args ir.Object) error {
	switch name {
	case s.SetEvent():
		return s.validateFields(name, args)
	case s.ResetEvent():
		if len(args) != 0 {
			return &ValidationError{Event: name, Message: "takes no args"}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

// validateFields unifies each arg with its field definition. Only fields
// present in args are checked; absent ones keep their current value.
func (s *Schema) validateFields(name string, args ir.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range args.SortedKeys() {
		field := s.def.LookupPath(cue.MakePath(cue.Str(key)))
		if !field.Exists() {
			return &ValidationError{Event: name, Field: key, Message: "field not allowed"}
		}

		v := field.Unify(s.ctx.Encode(ir.ToAny(args[key])))
		if err := v.Validate(cue.Concrete(true)); err != nil {
			verr := &ValidationError{Event: name, Field: key, Message: err.Error()}
			if errs := cueerrors.Errors(err); len(errs) > 0 {
				verr.Message = errs[0].Error()
				if pos := cueerrors.Positions(errs[0]); len(pos) > 0 {
					verr.Pos = pos[0]
				}
			}
			return verr
		}
	}
	return nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(document string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &ValidationError{
			Event:   "#" + document,
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
