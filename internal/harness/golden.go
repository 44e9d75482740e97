package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/evstore/internal/ir"
)

// Snapshot is the comparable part of a scenario run: what a fresh reader
// observed after every writer shut down.
type Snapshot struct {
	Scenario string       `json:"scenario"`
	Trace    []TraceEvent `json:"trace"`
	Document ir.Object    `json:"document"`
	States   []string     `json:"states"`
}

// canonical converts the snapshot to an ir.Object so it encodes through
// ir.MarshalCanonical.
func (s *Snapshot) canonical() ir.Object {
	trace := make(ir.List, len(s.Trace))
	for i, ev := range s.Trace {
		args := ev.Args
		if args == nil {
			args = ir.Object{}
		}
		trace[i] = ir.Object{
			"seq":  ir.Int(int64(ev.Seq)),
			"id":   ir.String(ev.ID),
			"name": ir.String(ev.Name),
			"args": args,
		}
	}

	states := make(ir.List, len(s.States))
	for i, st := range s.States {
		states[i] = ir.String(st)
	}

	doc := s.Document
	if doc == nil {
		doc = ir.Object{}
	}
	return ir.Object{
		"scenario": ir.String(s.Scenario),
		"trace":    trace,
		"document": doc,
		"states":   states,
	}
}

// RunWithGolden executes a scenario in baseDir and compares the reader's
// snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, baseDir string) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, baseDir)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against the named golden file
// without re-running anything.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := SnapshotJSON(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}

// SnapshotJSON is the canonical golden encoding of result under name.
func SnapshotJSON(name string, result *Result) ([]byte, error) {
	snapshot := Snapshot{
		Scenario: name,
		Trace:    result.Trace,
		Document: result.Document,
		States:   result.States,
	}
	return ir.MarshalCanonical(snapshot.canonical())
}
