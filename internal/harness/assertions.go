package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/evstore/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Tail of the trace for context
}

// maxTraceContext caps how many trailing events an AssertionError prints.
const maxTraceContext = 5

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		tail := e.Trace
		if len(tail) > maxTraceContext {
			tail = tail[len(tail)-maxTraceContext:]
		}
		fmt.Fprintf(&buf, "\nLast %d of %d events:\n", len(tail), len(e.Trace))
		for _, ev := range tail {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", ev.Seq, ev.Name, ir.MustMarshalCanonical(ev.Args))
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertDocument:
			err = assertDocument(result, a)
		case AssertEventCount:
			err = assertEventCount(result, a)
		case AssertEventOrder:
			err = assertEventOrder(result, a)
		case AssertLastEvent:
			err = assertLastEvent(result, a)
		case AssertShutdownState:
			err = assertShutdownState(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertDocument(result *Result, a Assertion) error {
	expected, err := convertArgs(a.Expect)
	if err != nil {
		return err
	}
	if !matchFields(result.Document, expected) {
		return &AssertionError{
			Type:     AssertDocument,
			Expected: fmt.Sprintf("document containing %s", ir.MustMarshalCanonical(expected)),
			Actual:   string(ir.MustMarshalCanonical(result.Document)),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertEventCount(result *Result, a Assertion) error {
	if len(result.Trace) != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d events", a.Count),
			Actual:   fmt.Sprintf("%d events", len(result.Trace)),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertEventOrder checks that the log starts with exactly these names.
func assertEventOrder(result *Result, a Assertion) error {
	actual := make([]string, 0, len(a.Events))
	for i := 0; i < len(a.Events) && i < len(result.Trace); i++ {
		actual = append(actual, result.Trace[i].Name)
	}
	if strings.Join(actual, ",") != strings.Join(a.Events, ",") {
		return &AssertionError{
			Type:     AssertEventOrder,
			Expected: strings.Join(a.Events, " -> "),
			Actual:   strings.Join(actual, " -> "),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertLastEvent(result *Result, a Assertion) error {
	if len(result.Trace) == 0 {
		return &AssertionError{Type: AssertLastEvent, Expected: a.Event, Actual: "empty log"}
	}
	last := result.Trace[len(result.Trace)-1]
	expected, err := convertArgs(a.Expect)
	if err != nil {
		return err
	}
	if last.Name != a.Event || !matchFields(last.Args, expected) {
		return &AssertionError{
			Type:     AssertLastEvent,
			Expected: fmt.Sprintf("%s %s", a.Event, ir.MustMarshalCanonical(expected)),
			Actual:   fmt.Sprintf("%s %s", last.Name, ir.MustMarshalCanonical(last.Args)),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertShutdownState(result *Result, a Assertion) error {
	for i, state := range result.States {
		if state != a.State {
			return &AssertionError{
				Type:     AssertShutdownState,
				Expected: fmt.Sprintf("every session %s", a.State),
				Actual:   fmt.Sprintf("session %d %s", i, state),
			}
		}
	}
	return nil
}

// matchFields reports whether every expected field is present in actual
// with an identical canonical encoding.
func matchFields(actual, expected ir.Object) bool {
	for k, want := range expected {
		got, ok := actual[k]
		if !ok || !ir.Equal(got, want) {
			return false
		}
	}
	return true
}
