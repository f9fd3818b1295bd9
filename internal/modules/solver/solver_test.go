package solver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/parfile"
	"github.com/vk/waveflow/internal/paramfile"
)

func solverValues(t *testing.T, dataDir string) *paramfile.Values {
	t.Helper()
	vals := paramfile.NewValues()
	vals.SetParam("NT", cty.NumberIntVal(4800))
	vals.SetParam("DT", cty.NumberFloatVal(0.05))
	vals.SetParam("NTASK", cty.NumberIntVal(2))
	vals.SetParam("FORMAT", cty.StringVal("SU"))
	vals.SetParam("F0", cty.NumberFloatVal(8.0))
	vals.SetPath("SPECFEM_BIN", cty.StringVal("/opt/specfem/bin"))
	vals.SetPath("SPECFEM_DATA", cty.StringVal(dataDir))
	vals.SetPath("SCRATCH", cty.StringVal("./scratch"))
	return vals
}

func writeTestParFile(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	content := `SIMULATION_TYPE                 = 1
SAVE_FORWARD                    = .false.
NSTEP                           = 100
DT                              = 1.0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Par_file"), []byte(content), 0o644))
	return dir
}

func TestSpecfem3D_ManifestJoinsBaseRequirements(t *testing.T) {
	t.Parallel()

	s := &Specfem3D{}
	keys := map[string]manifest.Entry{}
	for _, e := range s.Manifest().Entries() {
		keys[e.Key] = e
	}

	// Base requirements come through the join; F0 is the variant's own.
	for _, want := range []string{"NT", "DT", "NTASK", "FORMAT", "SPECFEM_BIN", "SPECFEM_DATA", "SCRATCH", "F0"} {
		_, ok := keys[want]
		assert.True(t, ok, "missing %s", want)
	}
	assert.True(t, keys["F0"].Required)
	assert.Equal(t, "solver.specfem3d", keys["NT"].Owner)
}

func TestSpecfem3D_ConfigureNormalizesFormat(t *testing.T) {
	t.Parallel()

	s := &Specfem3D{}
	require.NoError(t, s.Configure(solverValues(t, "/data")))

	assert.Equal(t, 4800, s.Base.NT)
	assert.Equal(t, 0.05, s.Base.DT)
	assert.Equal(t, 2, s.Base.NTask)
	assert.Equal(t, "su", s.Base.Format)
	assert.Equal(t, 8.0, s.F0)
	assert.Equal(t, filepath.Join("/data", "Par_file"), s.Base.ParFile())
}

func TestSpecfem3D_CheckCrossFieldRules(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	s := &Specfem3D{}
	require.NoError(t, s.Configure(solverValues(t, "/data")))
	require.NoError(t, s.Check(ctx))

	s.Base.NT = 0
	require.ErrorContains(t, s.Check(ctx), "NT must be positive")
	s.Base.NT = 4800

	s.F0 = 0
	require.ErrorContains(t, s.Check(ctx), "F0 must be positive")
	s.F0 = 8.0

	s.Base.Format = "ascii"
	require.ErrorContains(t, s.Check(ctx), `FORMAT must be "su"`)
}

func TestSpecfem2D_CheckAcceptsAsciiFormat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	vals := solverValues(t, "/data")
	vals.SetParam("FORMAT", cty.StringVal("ascii"))

	s := &Specfem2D{}
	require.NoError(t, s.Configure(vals))
	require.NoError(t, s.Check(ctx))

	s.Base.Format = "segy"
	require.Error(t, s.Check(ctx))
}

func TestSpecfem3D_SyncTimeSteppingPatchesParFile(t *testing.T) {
	t.Parallel()

	dataDir := writeTestParFile(t)
	s := &Specfem3D{}
	require.NoError(t, s.Configure(solverValues(t, dataDir)))

	require.NoError(t, s.syncTimeStepping())

	par := s.Base.ParFile()
	nstep, err := parfile.Get(par, "NSTEP")
	require.NoError(t, err)
	assert.Equal(t, "4800", nstep)
	dt, err := parfile.Get(par, "DT")
	require.NoError(t, err)
	assert.Equal(t, "0.05", dt)
}

func TestSpecfem3D_SetModeFlipsSimulationFlags(t *testing.T) {
	t.Parallel()

	dataDir := writeTestParFile(t)
	s := &Specfem3D{}
	require.NoError(t, s.Configure(solverValues(t, dataDir)))
	par := s.Base.ParFile()

	// Forward runs save the wavefield for the later adjoint.
	require.NoError(t, s.setMode("1", true))
	mode, err := parfile.Get(par, "SIMULATION_TYPE")
	require.NoError(t, err)
	assert.Equal(t, "1", mode)
	fwd, err := parfile.Get(par, "SAVE_FORWARD")
	require.NoError(t, err)
	assert.Equal(t, ".true.", fwd)

	require.NoError(t, s.setMode("3", false))
	mode, err = parfile.Get(par, "SIMULATION_TYPE")
	require.NoError(t, err)
	assert.Equal(t, "3", mode)
	fwd, err = parfile.Get(par, "SAVE_FORWARD")
	require.NoError(t, err)
	assert.Equal(t, ".false.", fwd)
}

func TestBase_TaskDirLayout(t *testing.T) {
	t.Parallel()

	b := &Base{Scratch: "/scratch"}
	assert.Equal(t, filepath.Join("/scratch", "solver", "000007"), b.TaskDir(7))
}
