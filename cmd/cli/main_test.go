package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/waveflow/internal/cli"
)

func TestRun_HelpExitsCleanly(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, run(&out, []string{"help"}))
	assert.Contains(t, out.String(), "Usage:")
}

func TestRun_UnknownCommandReturnsExitError(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	err := run(&out, []string{"frobnicate"})
	require.Error(t, err)

	exitErr, ok := err.(*cli.ExitError)
	require.True(t, ok)
	assert.Equal(t, 2, exitErr.Code)
}

func TestRun_SetupCreatesParameterDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	var out bytes.Buffer
	require.NoError(t, run(&out, []string{"setup", "-w", dir}))
	assert.FileExists(t, filepath.Join(dir, "parameters.hcl"))
}

func TestRun_PreconditionBecomesExitCodeTwo(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parameters.hcl"), []byte("nt = 1\n"), 0o644))

	var out bytes.Buffer
	err := run(&out, []string{"setup", "-w", dir})
	require.Error(t, err)

	exitErr, ok := err.(*cli.ExitError)
	require.True(t, ok)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, exitErr.Message, "already exists")
}
