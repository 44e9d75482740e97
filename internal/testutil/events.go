package testutil

import (
	"fmt"
	"strings"

	"github.com/roach88/evstore/internal/ir"
)

// NewEvent builds a fully formed event with its content-addressed ID.
func NewEvent(seq uint64, name string, args ir.Object) ir.Event {
	if args == nil {
		args = ir.Object{}
	}
	id, err := ir.EventID(name, args, seq)
	if err != nil {
		panic(err)
	}
	return ir.Event{Seq: seq, ID: id, Name: name, Args: args, SessionID: DefaultSessionID}
}

// Draft is the draft text of burst event i: "attempt=A;event=i;" plus
// padding bytes of 'x'.
func Draft(attempt string, i, padding int) string {
	return fmt.Sprintf("attempt=%s;event=%d;%s", attempt, i, strings.Repeat("x", padding))
}

// DraftEvents returns n uiStateSet events with seqs 1..n carrying Draft text.
func DraftEvents(attempt string, n, padding int) []ir.Event {
	events := make([]ir.Event, n)
	for i := range events {
		events[i] = NewEvent(uint64(i+1), "uiStateSet", ir.Object{"draft": ir.String(Draft(attempt, i, padding))})
	}
	return events
}
