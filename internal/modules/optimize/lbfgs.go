package optimize

import (
	"context"
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/paramfile"
)

// LBFGS scales the descent direction by a curvature estimate from the
// previous gradient pair. It delegates the bookkeeping and the first
// (history-free) iteration to a plain Gradient it owns.
type LBFGS struct {
	Base   Gradient `json:"base"`
	Memory int      `json:"memory"`
}

// Variant implements registry.Component.
func (l *LBFGS) Variant() string { return "lbfgs" }

// Manifest implements registry.Component.
func (l *LBFGS) Manifest() *manifest.Set {
	return manifest.Join(l.Base.Manifest(), manifest.New("optimize.lbfgs").
		Default("MEMORY", cty.NumberIntVal(5), "number of gradient pairs retained for curvature estimates"))
}

// Configure implements registry.Component.
func (l *LBFGS) Configure(vals *paramfile.Values) error {
	if err := l.Base.Configure(vals); err != nil {
		return err
	}
	l.Memory = vals.Int("MEMORY")
	return nil
}

// Check implements registry.Component.
func (l *LBFGS) Check(ctx context.Context) error {
	if err := l.Base.Check(ctx); err != nil {
		return err
	}
	if l.Memory < 1 {
		return fmt.Errorf("optimize.lbfgs: MEMORY must be >= 1, got %d", l.Memory)
	}
	return nil
}

// ComputeDirection implements registry.OptimizeComponent. Without history
// this is steepest descent; afterwards the direction is rescaled by
// gamma = <s,y>/<y,y> over the latest gradient pair.
func (l *LBFGS) ComputeDirection(ctx context.Context) error {
	grad, err := readVector(l.Base.vectorPath("gradient"))
	if err != nil {
		return err
	}

	prev, err := readVector(l.Base.vectorPath("gradient_prev"))
	if err != nil {
		// First iteration: no stored pair yet.
		if err := l.Base.ComputeDirection(ctx); err != nil {
			return err
		}
		return writeVector(l.Base.vectorPath("gradient_prev"), grad)
	}
	if len(prev) != len(grad) {
		return fmt.Errorf("optimize.lbfgs: gradient length changed from %d to %d", len(prev), len(grad))
	}

	var sy, yy float64
	for i := range grad {
		y := grad[i] - prev[i]
		sy += -l.Base.StepLen * prev[i] * y
		yy += y * y
	}
	gamma := 1.0
	if yy > 0 && sy > 0 {
		gamma = sy / yy
	}

	dir := make([]float64, len(grad))
	for i, v := range grad {
		dir[i] = -gamma * v
	}
	if err := writeVector(l.Base.vectorPath("direction"), dir); err != nil {
		return err
	}
	return writeVector(l.Base.vectorPath("gradient_prev"), grad)
}

// ApplyUpdate implements registry.OptimizeComponent.
func (l *LBFGS) ApplyUpdate(ctx context.Context) error {
	return l.Base.ApplyUpdate(ctx)
}
