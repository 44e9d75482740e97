package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines one end-to-end store run.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend is the storage kind. Empty means sqlite.
	Backend string `yaml:"backend,omitempty"`

	// Sync is the storage durability mode. Empty means full.
	Sync string `yaml:"sync,omitempty"`

	// Sessions run in order; each holds the store lock for its duration.
	Sessions []Session `yaml:"sessions"`

	// Assertions validate the reader's view after the last session.
	Assertions []Assertion `yaml:"assertions"`

	// SessionID is stamped on every event for byte-stable logs.
	// Empty uses testutil.DefaultSessionID.
	SessionID string `yaml:"session_id,omitempty"`
}

// Session is one writer: open, commit, shut down.
type Session struct {
	// Commits are issued in order.
	Commits []CommitStep `yaml:"commits,omitempty"`

	// Burst, if set, follows Commits.
	Burst *Burst `yaml:"burst,omitempty"`

	// Await makes each commit wait for durability before the next one.
	// The default issues everything and relies on Shutdown to drain.
	Await bool `yaml:"await,omitempty"`
}

// CommitStep is a single Commit call.
type CommitStep struct {
	Event string                 `yaml:"event"`
	Args  map[string]interface{} `yaml:"args"`

	// ExpectError names the error Commit must return: invalid_event,
	// not_accepting or read_only. Empty means the commit must be admitted.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Burst commits Count uiStateSet events whose draft is
// "attempt=<Attempt>;event=<i>;" followed by Padding bytes.
type Burst struct {
	Attempt string `yaml:"attempt"`
	Count   int    `yaml:"count"`
	Padding int    `yaml:"padding"`
}

// Assertion validates the final log or document.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Expect holds expected fields (document, last_event). Subset match.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is the expected event count (event_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected name sequence (event_order).
	Events []string `yaml:"events,omitempty"`

	// Event is the expected event name (last_event).
	Event string `yaml:"event,omitempty"`

	// State is the expected terminal state (shutdown_state).
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertDocument      = "document"
	AssertEventCount    = "event_count"
	AssertEventOrder    = "event_order"
	AssertLastEvent     = "last_event"
	AssertShutdownState = "shutdown_state"
)

// Expected commit errors.
const (
	ExpectInvalidEvent = "invalid_event"
	ExpectNotAccepting = "not_accepting"
	ExpectReadOnly     = "read_only"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Sessions) == 0 {
		return fmt.Errorf("sessions list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, session := range s.Sessions {
		if len(session.Commits) == 0 && session.Burst == nil {
			return fmt.Errorf("sessions[%d]: commits or burst is required", i)
		}
		for j, step := range session.Commits {
			if step.Event == "" {
				return fmt.Errorf("sessions[%d].commits[%d]: event is required", i, j)
			}
			switch step.ExpectError {
			case "", ExpectInvalidEvent, ExpectNotAccepting, ExpectReadOnly:
			default:
				return fmt.Errorf("sessions[%d].commits[%d]: unknown expect_error %q", i, j, step.ExpectError)
			}
		}
		if b := session.Burst; b != nil && b.Count <= 0 {
			return fmt.Errorf("sessions[%d].burst: count must be positive", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertDocument:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for document", index)
		}
	case AssertEventCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertEventOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for event_order", index)
		}
	case AssertLastEvent:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for last_event", index)
		}
	case AssertShutdownState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for shutdown_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
