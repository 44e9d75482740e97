package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Scenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario, t.TempDir())
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_BurstSurvivesShutdown(t *testing.T) {
	for _, backend := range []string{"sqlite", "fs", "bolt"} {
		t.Run(backend, func(t *testing.T) {
			scenario := &Scenario{
				Name:        "burst_" + backend,
				Description: "unawaited burst",
				Backend:     backend,
				Sessions: []Session{
					{Burst: &Burst{Attempt: "T", Count: 100, Padding: 256}},
				},
				Assertions: []Assertion{
					{Type: AssertEventCount, Count: 100},
				},
			}

			result, err := Run(scenario, t.TempDir())
			require.NoError(t, err)
			require.True(t, result.Pass, "errors: %v", result.Errors)

			require.Len(t, result.Trace, 100)
			for i, ev := range result.Trace {
				assert.Equal(t, uint64(i+1), ev.Seq)
			}
			assert.Contains(t, result.Document.Str("draft"), "attempt=T;event=99;")
			assert.Equal(t, []string{"closed"}, result.States)
		})
	}
}

func TestRun_FailedAssertion(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_count",
		Description: "count mismatch is reported",
		Sessions: []Session{
			{Commits: []CommitStep{{Event: "uiStateSet", Args: map[string]interface{}{"draft": "a"}}}},
		},
		Assertions: []Assertion{
			{Type: AssertEventCount, Count: 2},
		},
	}

	result, err := Run(scenario, t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Expected: 2 events")
}

func TestRun_UnexpectedCommitError(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected_rejection",
		Description: "a rejection nobody expected fails the run",
		Sessions: []Session{
			{Commits: []CommitStep{{Event: "uiStateSet", Args: map[string]interface{}{"draft": 1}}}},
		},
		Assertions: []Assertion{
			{Type: AssertEventCount, Count: 0},
		},
	}

	result, err := Run(scenario, t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "sessions[0].commits[0]: unexpected error")
}

func TestRun_UnknownBackend(t *testing.T) {
	scenario := &Scenario{
		Name:        "nowhere",
		Description: "store cannot open",
		Backend:     "tape",
		Sessions: []Session{
			{Commits: []CommitStep{{Event: "uiStateSet"}}},
		},
		Assertions: []Assertion{{Type: AssertEventCount}},
	}

	_, err := Run(scenario, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session 0")
}

func TestCheckCommitError(t *testing.T) {
	assert.Empty(t, checkCommitError("", nil))
	assert.Contains(t, checkCommitError(ExpectInvalidEvent, nil), "expected invalid_event error")
}
