package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/waveflow/internal/app"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Harness bundles a temporary working directory, a captured-output App built
// on the fake catalog, and the trace directory the fake components write to.
type Harness struct {
	Dir      string
	TraceDir string
	Out      *SafeBuffer
	App      *app.App
}

// NewHarness builds a ready-to-use App over a fresh temp working directory,
// writing the given parameter document body. The document may reference
// {{TRACE}}, which is replaced with the harness trace directory.
func NewHarness(t *testing.T, params string) *Harness {
	t.Helper()

	dir := t.TempDir()
	traceDir := filepath.Join(dir, "trace")
	require.NoError(t, os.MkdirAll(traceDir, 0o755))

	params = expandTrace(params, traceDir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parameters.hcl"), []byte(params), 0o644))

	out := &SafeBuffer{}
	cfg, err := app.NewConfig(app.Config{
		WorkDir:   dir,
		LogLevel:  "debug",
		LogFormat: "text",
	})
	require.NoError(t, err)

	return &Harness{
		Dir:      dir,
		TraceDir: traceDir,
		Out:      out,
		App:      app.NewApp(out, cfg, Catalog()),
	}
}

// Reopen builds a second App over the same working directory, simulating a
// new process invocation (resume after a crash or a clean halt).
func (h *Harness) Reopen(t *testing.T, mutate func(*app.Config)) *app.App {
	t.Helper()
	cfg, err := app.NewConfig(app.Config{
		WorkDir:   h.Dir,
		LogLevel:  "debug",
		LogFormat: "text",
	})
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}
	return app.NewApp(h.Out, cfg, Catalog())
}

// StagesRan reads back the stage trace the fake workflow appends to.
func (h *Harness) StagesRan(t *testing.T) []string {
	t.Helper()
	return ReadTrace(t, h.TraceDir)
}

// FailStage arranges for the named fake stage to fail until ClearFailures.
func (h *Harness) FailStage(t *testing.T, stage string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.TraceDir, "fail_"+stage), nil, 0o644))
}

// ClearFailures removes all injected stage failures.
func (h *Harness) ClearFailures(t *testing.T) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(h.TraceDir, "fail_*"))
	require.NoError(t, err)
	for _, m := range matches {
		require.NoError(t, os.Remove(m))
	}
}
