package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenarioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "confirm_order.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "confirm_order", scenario.Name)
	assert.Len(t, scenario.Flow, 2)
	assert.Len(t, scenario.Assertions, 4)
	assert.Len(t, scenario.Seed.TransitionRows(), 2)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadScenario_UnknownFieldRejected(t *testing.T) {
	path := writeScenarioFile(t, `
name: typo
description: has a typo
flows:
  - process: {}
assertions:
  - type: event_status_count
    status: completed
`)
	_, err := LoadScenario(path)
	assert.Error(t, err, "unknown top-level key must be rejected")
}

func TestLoadScenario_RequiresName(t *testing.T) {
	path := writeScenarioFile(t, `
description: no name
flow:
  - process: {}
assertions:
  - type: event_status_count
    status: completed
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestLoadScenario_StepMustBeSingleAction(t *testing.T) {
	path := writeScenarioFile(t, `
name: bad-step
description: step sets two actions
flow:
  - process: {}
    retry:
      event_id: evt-1
assertions:
  - type: event_status_count
    status: completed
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of")
}

func TestLoadScenario_UnknownAssertionType(t *testing.T) {
	path := writeScenarioFile(t, `
name: bad-assert
description: assertion type is unknown
flow:
  - process: {}
assertions:
  - type: trace_contains
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown assertion type")
}
