package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestOptions returns text-mode options backed by a fresh database.
func newTestOptions(t *testing.T) *RootOptions {
	t.Helper()
	return &RootOptions{Format: "text", Database: filepath.Join(t.TempDir(), "test.db")}
}

// execute runs cmd with args and returns what it wrote to stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeData unmarshals the data payload of a JSON CLIResponse.
func decodeData[T any](t *testing.T, out string) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp.Data
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "docreduce", cmd.Use)
	assert.Contains(t, cmd.Long, "LOAD_STATE checkpoint")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"init", "dispatch", "replay", "log", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	dbFlag := cmd.PersistentFlags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue, "falls back to the configured database")

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestDispatchCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	dispatchCmd, _, err := cmd.Find([]string{"dispatch"})
	require.NoError(t, err)

	tests := []struct {
		flag string
		def  string
	}{
		{"input", ""},
		{"scope", "global"},
		{"skip", "0"},
		{"ignore-skip", "false"},
		{"memoize", "false"},
	}
	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			f := dispatchCmd.Flags().Lookup(tt.flag)
			require.NotNil(t, f)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestInitCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	initCmd, _, err := cmd.Find([]string{"init"})
	require.NoError(t, err)

	typeFlag := initCmd.Flags().Lookup("type")
	require.NotNil(t, typeFlag)
	assert.Equal(t, "docreduce/counter", typeFlag.DefValue)
}

func TestRootCommandInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	_, err := execute(t, cmd, "init", "notes", "--format", "xml", "--db", filepath.Join(t.TempDir(), "test.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRootCommandConfigFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "from-config.db")
	cfgPath := filepath.Join(dir, "docreduce.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("format: json\ndatabase: "+dbPath+"\n"), 0644))

	out, err := execute(t, NewRootCommand(), "init", "notes", "--config", cfgPath)
	require.NoError(t, err)

	result := decodeData[InitResult](t, out)
	assert.Equal(t, "notes", result.ID)
	assert.FileExists(t, dbPath, "database comes from the config file")

	t.Run("flags override the file", func(t *testing.T) {
		out, err := execute(t, NewRootCommand(), "log", "notes", "--config", cfgPath, "--format", "text")
		require.NoError(t, err)
		assert.Contains(t, out, "notes [global] log: 0 operation(s)")
	})
}

func TestRootCommandMissingConfigFile(t *testing.T) {
	_, err := execute(t, NewRootCommand(), "log", "notes", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}
