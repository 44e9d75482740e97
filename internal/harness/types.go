package harness

import "github.com/roach88/evstore/internal/ir"

// TraceEvent is one replayed event as the reader saw it.
type TraceEvent struct {
	Seq  uint64    `json:"seq"`
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Args ir.Object `json:"args"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace is the reader's replay of the log.
	Trace []TraceEvent `json:"trace"`

	// Document is the reader's materialized document.
	Document ir.Object `json:"document"`

	// States holds the final state of each writer session, in order.
	States []string `json:"states"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		States: []string{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
