package parfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleParFile = `# simulation input parameters
SIMULATION_TYPE                 = 1
SAVE_FORWARD                    = .false.  # undo attenuation
NSTEP                           = 4800
DT                              = 0.05d0
NPROC                           = 4
`

func writeParFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Par_file")
	require.NoError(t, os.WriteFile(path, []byte(sampleParFile), 0o644))
	return path
}

func TestGet(t *testing.T) {
	t.Parallel()

	path := writeParFile(t)

	val, err := Get(path, "SIMULATION_TYPE")
	require.NoError(t, err)
	assert.Equal(t, "1", val)

	// Trailing comments are stripped from the value.
	val, err = Get(path, "SAVE_FORWARD")
	require.NoError(t, err)
	assert.Equal(t, ".false.", val)

	_, err = Get(path, "ABSENT_KEY")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ABSENT_KEY"`)
}

func TestGet_KeyPrefixDoesNotMatch(t *testing.T) {
	t.Parallel()

	path := writeParFile(t)
	// NSTEP declares a value; the shorter key NS must not match that line.
	_, err := Get(path, "NS")
	require.Error(t, err)
}

func TestSet_PatchesOnlyTheValueToken(t *testing.T) {
	t.Parallel()

	path := writeParFile(t)
	require.NoError(t, Set(path, "SIMULATION_TYPE", "3"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "SIMULATION_TYPE                 = 3\n")
	// Every other line is byte-identical.
	assert.Contains(t, content, "# simulation input parameters\n")
	assert.Contains(t, content, "NSTEP                           = 4800\n")
	assert.Contains(t, content, "DT                              = 0.05d0\n")
}

func TestSet_KeepsTrailingCommentColumn(t *testing.T) {
	t.Parallel()

	path := writeParFile(t)
	require.NoError(t, Set(path, "SAVE_FORWARD", ".true."))

	val, err := Get(path, "SAVE_FORWARD")
	require.NoError(t, err)
	assert.Equal(t, ".true.", val)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SAVE_FORWARD                    = .true.   # undo attenuation\n")
}

func TestSet_AbsentKeyFails(t *testing.T) {
	t.Parallel()

	path := writeParFile(t)
	err := Set(path, "ABSENT_KEY", "1")
	require.Error(t, err)

	// The file is untouched on failure.
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, sampleParFile, string(data))
}
