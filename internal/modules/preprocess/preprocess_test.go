package preprocess

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// inlineSys satisfies the system contract without leaving the process.
type inlineSys struct {
	workers int
}

func (s *inlineSys) Variant() string                   { return "inline" }
func (s *inlineSys) Manifest() *manifest.Set           { return manifest.New("system.inline") }
func (s *inlineSys) Configure(*paramfile.Values) error { return nil }
func (s *inlineSys) Check(context.Context) error       { return nil }
func (s *inlineSys) Workers() int                      { return s.workers }
func (s *inlineSys) MPIExec() string                   { return "" }
func (s *inlineSys) Submit(ctx context.Context, run func(context.Context) error) error {
	return run(ctx)
}

var _ registry.SystemComponent = (*inlineSys)(nil)

func preprocessValues(scratch string) *paramfile.Values {
	vals := paramfile.NewValues()
	vals.SetParam("MISFIT", cty.StringVal("Waveform"))
	vals.SetPath("SCRATCH", cty.StringVal(scratch))
	return vals
}

func configuredDefault(t *testing.T) *Default {
	t.Helper()
	d := &Default{}
	require.NoError(t, d.Configure(preprocessValues(t.TempDir())))
	require.NoError(t, d.Prepare(context.Background()))
	return d
}

func TestDefault_CheckRejectsUnknownMisfit(t *testing.T) {
	t.Parallel()

	d := &Default{}
	require.NoError(t, d.Configure(preprocessValues(t.TempDir())))
	require.NoError(t, d.Check(context.Background()))
	assert.Equal(t, "waveform", d.Misfit)

	d.Misfit = "envelope"
	require.Error(t, d.Check(context.Background()))
}

func TestDefault_PrepareCreatesTraceLayout(t *testing.T) {
	t.Parallel()

	d := configuredDefault(t)
	for _, kind := range []string{"obs", "syn", "adj"} {
		info, err := os.Stat(filepath.Join(d.Scratch, "traces", kind))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestDefault_QuantifyWaveformMisfit(t *testing.T) {
	t.Parallel()

	d := configuredDefault(t)

	// obs = [1, 2], syn = [2, 4]: residual [1, 2], misfit 0.5*(1+4) = 2.5.
	require.NoError(t, writeTrace(filepath.Join(d.tracesDir("obs"), "AA.S0001"), []float64{1, 2}))
	require.NoError(t, writeTrace(filepath.Join(d.tracesDir("syn"), "AA.S0001"), []float64{2, 4}))

	sys := &inlineSys{workers: 2}
	require.NoError(t, d.Quantify(context.Background(), sys))
	assert.InDelta(t, 2.5, d.LastMisfit, 1e-12)

	adj, err := readTrace(filepath.Join(d.tracesDir("adj"), "AA.S0001.adj"))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, adj)

	summary, err := os.ReadFile(filepath.Join(d.Scratch, "misfit.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "traces 1")
	assert.Contains(t, string(summary), "misfit 2.5")
}

func TestDefault_QuantifySumsOverTraces(t *testing.T) {
	t.Parallel()

	d := configuredDefault(t)
	for _, name := range []string{"AA.S0001", "AA.S0002", "BB.S0001"} {
		require.NoError(t, writeTrace(filepath.Join(d.tracesDir("obs"), name), []float64{0}))
		require.NoError(t, writeTrace(filepath.Join(d.tracesDir("syn"), name), []float64{2}))
	}

	require.NoError(t, d.Quantify(context.Background(), &inlineSys{workers: 2}))
	// Each trace contributes 0.5*2^2 = 2.
	assert.InDelta(t, 6.0, d.LastMisfit, 1e-12)
}

func TestDefault_QuantifyFailsWithoutObservedTraces(t *testing.T) {
	t.Parallel()

	d := configuredDefault(t)
	err := d.Quantify(context.Background(), &inlineSys{workers: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no observed traces")
}

func TestDefault_QuantifySampleCountMismatch(t *testing.T) {
	t.Parallel()

	d := configuredDefault(t)
	require.NoError(t, writeTrace(filepath.Join(d.tracesDir("obs"), "AA.S0001"), []float64{1, 2, 3}))
	require.NoError(t, writeTrace(filepath.Join(d.tracesDir("syn"), "AA.S0001"), []float64{1}))

	err := d.Quantify(context.Background(), &inlineSys{workers: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample count mismatch")
}

func writeStations(t *testing.T, rows string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "STATIONS"), []byte(rows), 0o644))
	return dir
}

func TestNoise_PrepareLoadsStationTable(t *testing.T) {
	t.Parallel()

	dataDir := writeStations(t, `S0001 AA 0.0 0.0 0.0 0.0
S0002 AA 1.0 0.0 0.0 0.0
S0001 BB 2.0 0.0 0.0 0.0
`)
	vals := preprocessValues(t.TempDir())
	vals.SetPath("SPECFEM_DATA", cty.StringVal(dataDir))

	n := &Noise{}
	require.NoError(t, n.Configure(vals))
	require.NoError(t, n.Check(context.Background()))
	require.NoError(t, n.Prepare(context.Background()))

	assert.Equal(t, []string{"AA.S0001", "AA.S0002", "BB.S0001"}, n.Stations)
}

func TestNoise_CheckRequiresStationsFile(t *testing.T) {
	t.Parallel()

	vals := preprocessValues(t.TempDir())
	vals.SetPath("SPECFEM_DATA", cty.StringVal(t.TempDir()))

	n := &Noise{}
	require.NoError(t, n.Configure(vals))
	err := n.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STATIONS")
}

func TestNoise_QuantifyRequiresPreparedStations(t *testing.T) {
	t.Parallel()

	n := &Noise{}
	require.NoError(t, n.Configure(preprocessValues(t.TempDir())))
	err := n.Quantify(context.Background(), &inlineSys{workers: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no stations loaded")
}
