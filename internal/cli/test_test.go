package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docreduce/internal/harness"
)

const passingScenario = `name: three_increments
steps:
  - action: INCREMENT
    repeat: 3
assertions:
  - type: state
    expect: { count: 3 }
  - type: revision
    expect: 3
`

const failingScenario = `name: wrong_count
steps:
  - action: INCREMENT
assertions:
  - type: state
    expect: { count: 2 }
`

// writeScenario writes content to dir/name.yaml.
func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, NewTestCommand(newTestOptions(t)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, NewTestCommand(newTestOptions(t)), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := execute(t, NewTestCommand(newTestOptions(t)), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyScenariosDirJSON(t *testing.T) {
	opts := newTestOptions(t)
	opts.Format = "json"

	out, err := execute(t, NewTestCommand(opts), t.TempDir())
	require.NoError(t, err)

	result := decodeData[TestResult](t, out)
	assert.Equal(t, 0, result.Total)
}

func TestTestCommandRepositoryScenarios(t *testing.T) {
	out, err := execute(t, NewTestCommand(newTestOptions(t)), "../../testdata/scenarios")
	require.NoError(t, err, out)
	assert.Contains(t, out, "ok   skip_coalescing")
	assert.Contains(t, out, "Test Summary: 5 passed, 0 failed, 5 total")
	assert.Contains(t, out, "All scenarios passed")
}

func TestTestCommandFailure(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "passing", passingScenario)
	writeScenario(t, dir, "failing", failingScenario)

	out, err := execute(t, NewTestCommand(newTestOptions(t)), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "ok   three_increments")
	assert.Contains(t, out, "FAIL wrong_count")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommandFailureJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "failing", failingScenario)
	opts := newTestOptions(t)
	opts.Format = "json"

	out, err := execute(t, NewTestCommand(opts), dir)
	require.Error(t, err)
	assert.Contains(t, out, `"code": "E_TEST_FAILED"`)

	result := decodeData[TestResult](t, out)
	require.Len(t, result.Scenarios, 1)
	assert.False(t, result.Scenarios[0].Pass)
	assert.NotEmpty(t, result.Scenarios[0].Errors)
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "passing", passingScenario)
	writeScenario(t, dir, "failing", failingScenario)

	out, err := execute(t, NewTestCommand(newTestOptions(t)), dir, "--filter", "pass*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")
	assert.NotContains(t, out, "wrong_count")

	_, err = execute(t, NewTestCommand(newTestOptions(t)), dir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandInvalidScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken", "description: no name\n")

	out, err := execute(t, NewTestCommand(newTestOptions(t)), dir)
	require.Error(t, err)
	assert.Contains(t, out, "FAIL broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandGoldenFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "passing", passingScenario)
	goldenPath := filepath.Join(dir, "golden", "passing.golden")

	out, err := execute(t, NewTestCommand(newTestOptions(t)), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "three_increments (golden updated)")

	scenario, err := harness.LoadScenario(path)
	require.NoError(t, err)
	result, err := harness.Run(scenario)
	require.NoError(t, err)
	want, err := harness.TraceJSON(scenario.Name, result)
	require.NoError(t, err)
	got, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	t.Run("match", func(t *testing.T) {
		opts := newTestOptions(t)
		opts.Format = "json"
		out, err := execute(t, NewTestCommand(opts), dir)
		require.NoError(t, err)
		result := decodeData[TestResult](t, out)
		require.Len(t, result.Scenarios, 1)
		assert.Equal(t, "match", result.Scenarios[0].Golden)
	})

	t.Run("mismatch", func(t *testing.T) {
		require.NoError(t, os.WriteFile(goldenPath, []byte("{}"), 0644))
		out, err := execute(t, NewTestCommand(newTestOptions(t)), dir)
		require.Error(t, err)
		assert.Contains(t, out, "trace does not match golden file")
	})
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("testdata", "scenarios", "golden", "undo.golden"),
		goldenFilePath(filepath.Join("testdata", "scenarios", "undo.yaml")))
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "a", passingScenario)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yml"), []byte(passingScenario), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	writeScenario(t, filepath.Join(dir, "golden"), "ignored", passingScenario)

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, "b.yml")}, files)
}
