package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one commit"
sessions:
  - commits:
      - event: uiStateSet
        args: { draft: "x" }
assertions:
  - type: event_count
    count: 1
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	require.Len(t, scenario.Sessions, 1)
	require.Len(t, scenario.Sessions[0].Commits, 1)
	assert.Equal(t, "uiStateSet", scenario.Sessions[0].Commits[0].Event)
	assert.Equal(t, "x", scenario.Sessions[0].Commits[0].Args["draft"])
	assert.Equal(t, AssertEventCount, scenario.Assertions[0].Type)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Burst(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: burst
description: "burst only"
backend: fs
sync: "off"
sessions:
  - burst: { attempt: "A", count: 10, padding: 4 }
assertions:
  - type: event_count
    count: 10
`))
	require.NoError(t, err)
	assert.Equal(t, "fs", scenario.Backend)
	assert.Equal(t, "off", scenario.Sync)
	require.NotNil(t, scenario.Sessions[0].Burst)
	assert.Equal(t, Burst{Attempt: "A", Count: 10, Padding: 4}, *scenario.Sessions[0].Burst)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    minimalScenario + "\nflow_token: x\n",
			wantErr: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: `
description: "d"
sessions: [{ commits: [{ event: uiStateSet }] }]
assertions: [{ type: event_count, count: 1 }]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			yaml: `
name: n
sessions: [{ commits: [{ event: uiStateSet }] }]
assertions: [{ type: event_count, count: 1 }]
`,
			wantErr: "description is required",
		},
		{
			name: "no sessions",
			yaml: `
name: n
description: "d"
assertions: [{ type: event_count, count: 1 }]
`,
			wantErr: "sessions list is required",
		},
		{
			name: "empty session",
			yaml: `
name: n
description: "d"
sessions: [{ await: true }]
assertions: [{ type: event_count, count: 1 }]
`,
			wantErr: "sessions[0]: commits or burst is required",
		},
		{
			name: "commit without event",
			yaml: `
name: n
description: "d"
sessions: [{ commits: [{ args: { draft: "x" } }] }]
assertions: [{ type: event_count, count: 1 }]
`,
			wantErr: "sessions[0].commits[0]: event is required",
		},
		{
			name: "unknown expect_error",
			yaml: `
name: n
description: "d"
sessions: [{ commits: [{ event: uiStateSet, expect_error: boom }] }]
assertions: [{ type: event_count, count: 1 }]
`,
			wantErr: `unknown expect_error "boom"`,
		},
		{
			name: "zero burst",
			yaml: `
name: n
description: "d"
sessions: [{ burst: { attempt: A, count: 0 } }]
assertions: [{ type: event_count, count: 1 }]
`,
			wantErr: "sessions[0].burst: count must be positive",
		},
		{
			name: "no assertions",
			yaml: `
name: n
description: "d"
sessions: [{ commits: [{ event: uiStateSet }] }]
`,
			wantErr: "assertions list is required",
		},
		{
			name: "unknown assertion",
			yaml: `
name: n
description: "d"
sessions: [{ commits: [{ event: uiStateSet }] }]
assertions: [{ type: trace_contains }]
`,
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name: "document without expect",
			yaml: `
name: n
description: "d"
sessions: [{ commits: [{ event: uiStateSet }] }]
assertions: [{ type: document }]
`,
			wantErr: "expect is required for document",
		},
		{
			name: "event_order without events",
			yaml: `
name: n
description: "d"
sessions: [{ commits: [{ event: uiStateSet }] }]
assertions: [{ type: event_order }]
`,
			wantErr: "events list is required",
		},
		{
			name: "last_event without event",
			yaml: `
name: n
description: "d"
sessions: [{ commits: [{ event: uiStateSet }] }]
assertions: [{ type: last_event }]
`,
			wantErr: "event is required for last_event",
		},
		{
			name: "shutdown_state without state",
			yaml: `
name: n
description: "d"
sessions: [{ commits: [{ event: uiStateSet }] }]
assertions: [{ type: shutdown_state }]
`,
			wantErr: "state is required for shutdown_state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
