package optimize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/waveflow/internal/paramfile"
)

func optimizeValues(scratch string) *paramfile.Values {
	vals := paramfile.NewValues()
	vals.SetParam("STEP_LEN", cty.NumberFloatVal(0.5))
	vals.SetParam("MEMORY", cty.NumberIntVal(3))
	vals.SetPath("SCRATCH", cty.StringVal(scratch))
	return vals
}

func configuredGradient(t *testing.T) *Gradient {
	t.Helper()
	g := &Gradient{}
	require.NoError(t, g.Configure(optimizeValues(t.TempDir())))
	return g
}

func TestGradient_Check(t *testing.T) {
	t.Parallel()

	g := configuredGradient(t)
	require.NoError(t, g.Check(context.Background()))

	g.StepLen = 0
	require.Error(t, g.Check(context.Background()))
}

func TestGradient_ComputeDirectionNegatesGradient(t *testing.T) {
	t.Parallel()

	g := configuredGradient(t)
	require.NoError(t, writeVector(g.vectorPath("gradient"), []float64{1, -2, 3}))

	require.NoError(t, g.ComputeDirection(context.Background()))

	dir, err := readVector(g.vectorPath("direction"))
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 2, -3}, dir)
}

func TestGradient_ApplyUpdateStepsModel(t *testing.T) {
	t.Parallel()

	g := configuredGradient(t)
	require.NoError(t, writeVector(g.vectorPath("model"), []float64{10, 20}))
	require.NoError(t, writeVector(g.vectorPath("direction"), []float64{2, -4}))

	require.NoError(t, g.ApplyUpdate(context.Background()))

	model, err := readVector(g.vectorPath("model"))
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 18}, model)
	assert.Equal(t, 1, g.Iteration)
}

func TestGradient_ApplyUpdateLengthMismatch(t *testing.T) {
	t.Parallel()

	g := configuredGradient(t)
	require.NoError(t, writeVector(g.vectorPath("model"), []float64{1, 2, 3}))
	require.NoError(t, writeVector(g.vectorPath("direction"), []float64{1}))

	err := g.ApplyUpdate(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, g.Iteration)
}

func configuredLBFGS(t *testing.T) *LBFGS {
	t.Helper()
	l := &LBFGS{}
	require.NoError(t, l.Configure(optimizeValues(t.TempDir())))
	return l
}

func TestLBFGS_Check(t *testing.T) {
	t.Parallel()

	l := configuredLBFGS(t)
	require.NoError(t, l.Check(context.Background()))
	assert.Equal(t, 3, l.Memory)

	l.Memory = 0
	require.Error(t, l.Check(context.Background()))
}

func TestLBFGS_FirstIterationIsSteepestDescent(t *testing.T) {
	t.Parallel()

	l := configuredLBFGS(t)
	require.NoError(t, writeVector(l.Base.vectorPath("gradient"), []float64{2, -2}))

	require.NoError(t, l.ComputeDirection(context.Background()))

	dir, err := readVector(l.Base.vectorPath("direction"))
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, 2}, dir)

	// The gradient is stored as history for the next iteration.
	prev, err := readVector(l.Base.vectorPath("gradient_prev"))
	require.NoError(t, err)
	assert.Equal(t, []float64{2, -2}, prev)
}

func TestLBFGS_SecondIterationScalesByCurvature(t *testing.T) {
	t.Parallel()

	l := configuredLBFGS(t)
	// History: prev gradient [2], current [1]. With step_len 0.5:
	// y = -1, s·y = -0.5*2*(-1) = 1, y·y = 1, gamma = 1.
	require.NoError(t, writeVector(l.Base.vectorPath("gradient_prev"), []float64{2}))
	require.NoError(t, writeVector(l.Base.vectorPath("gradient"), []float64{1}))

	require.NoError(t, l.ComputeDirection(context.Background()))

	dir, err := readVector(l.Base.vectorPath("direction"))
	require.NoError(t, err)
	require.Len(t, dir, 1)
	assert.InDelta(t, -1.0, dir[0], 1e-12)
}

func TestLBFGS_GradientLengthChangeFails(t *testing.T) {
	t.Parallel()

	l := configuredLBFGS(t)
	require.NoError(t, writeVector(l.Base.vectorPath("gradient_prev"), []float64{1, 2}))
	require.NoError(t, writeVector(l.Base.vectorPath("gradient"), []float64{1}))

	err := l.ComputeDirection(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gradient length changed")
}
