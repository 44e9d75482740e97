// Package harness runs YAML scenarios against real stores and compares the
// outcome with golden files.
//
// # Scenario Format
//
//	name: draft_edits
//	description: "What this scenario validates"
//	backend: sqlite          # optional, default sqlite
//	sync: full               # optional
//	sessions:                # writer sessions, run one after another
//	  - commits:
//	      - event: uiStateSet
//	        args: { draft: "h" }
//	      - event: uiStateSet
//	        args: { draft: 5 }
//	        expect_error: invalid_event
//	    burst: { attempt: A, count: 200, padding: 64 }
//	    await: false         # wait for each commit before the next
//	assertions:
//	  - type: document
//	    expect: { draft: "h" }
//	  - type: event_count
//	    count: 201
//
// Each session opens the store for writing, commits, bursts, then shuts down.
// After the last session a read-only reader opens the store; its replayed
// events and document are what assertions and golden files see.
//
// # Assertion Types
//
//   - document: the reader's document contains the expected fields
//   - event_count: the log holds exactly count events
//   - event_order: event names at seq 1..n, in order
//   - last_event: the last event has the given name and args (subset)
//   - shutdown_state: every writer session ended in the given state
//
// # Golden Files
//
// Golden files live in testdata/golden/{name}.golden and hold the canonical
// JSON of the replayed events, the final document and the session states.
// Regenerate with:
//
//	go test ./internal/harness -update
package harness
