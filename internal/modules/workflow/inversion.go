package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/waveflow/internal/ctxlog"
	"github.com/vk/waveflow/internal/flow"
	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// Inversion is one full gradient-descent iteration: the Forward stages it
// delegates to, then adjoint simulation, kernel postprocessing, and a model
// update. It owns a Forward and reuses its stage functions directly.
type Inversion struct {
	Base    Forward `json:"base"`
	Output  string  `json:"output"`
	Scratch string  `json:"scratch"`

	co collaborators
}

// Variant implements registry.Component.
func (w *Inversion) Variant() string { return "inversion" }

// Manifest implements registry.Component.
func (w *Inversion) Manifest() *manifest.Set {
	return manifest.Join(w.Base.Manifest(), manifest.New("workflow.inversion").
		DefaultPath("OUTPUT", "./output", "directory receiving the final model and run summary").
		DefaultPath("SCRATCH", "./scratch", "scratch area shared with solver and optimize"))
}

// Configure implements registry.Component.
func (w *Inversion) Configure(vals *paramfile.Values) error {
	if err := w.Base.Configure(vals); err != nil {
		return err
	}
	w.Output = vals.PathOf("OUTPUT")
	w.Scratch = vals.PathOf("SCRATCH")
	return nil
}

// Check implements registry.Component.
func (w *Inversion) Check(ctx context.Context) error {
	return w.Base.Check(ctx)
}

// Bind implements registry.WorkflowComponent.
func (w *Inversion) Bind(reg *registry.Registry, ckpt func(context.Context) error) error {
	co, err := bind(reg, ckpt, true)
	if err != nil {
		return err
	}
	w.co = co
	return w.Base.Bind(reg, ckpt)
}

// Checkpoint implements registry.WorkflowComponent.
func (w *Inversion) Checkpoint(ctx context.Context) error {
	if !w.co.bound() {
		return errUnbound
	}
	return w.co.ckpt(ctx)
}

// Flow implements registry.WorkflowComponent.
func (w *Inversion) Flow() flow.Flow {
	return flow.Flow{
		{Name: "setup", Run: w.Base.setup},
		{Name: "generate_data", Run: w.Base.generateData},
		{Name: "generate_synthetics", Run: w.Base.generateSynthetics},
		{Name: "evaluate_misfit", Run: w.Base.evaluateMisfit},
		{Name: "evaluate_gradient", Run: w.evaluateGradient},
		{Name: "process_kernels", Run: w.processKernels},
		{Name: "compute_direction", Run: w.computeDirection},
		{Name: "apply_update", Run: w.applyUpdate},
		{Name: "finalize", Run: w.finalize},
	}
}

func (w *Inversion) evaluateGradient(ctx context.Context) error {
	if !w.co.bound() {
		return errUnbound
	}
	return w.co.sol.Adjoint(ctx, w.co.sys)
}

func (w *Inversion) processKernels(ctx context.Context) error {
	if !w.co.bound() {
		return errUnbound
	}
	return w.co.post.WriteGradient(ctx)
}

func (w *Inversion) computeDirection(ctx context.Context) error {
	if !w.co.bound() {
		return errUnbound
	}
	return w.co.opt.ComputeDirection(ctx)
}

func (w *Inversion) applyUpdate(ctx context.Context) error {
	if !w.co.bound() {
		return errUnbound
	}
	return w.co.opt.ApplyUpdate(ctx)
}

// finalize exports the updated model and forces one last out-of-band
// checkpoint so the exported artifacts and the saved state agree.
func (w *Inversion) finalize(ctx context.Context) error {
	if !w.co.bound() {
		return errUnbound
	}
	if err := os.MkdirAll(w.Output, 0o755); err != nil {
		return err
	}
	// The optimizer leaves the updated model on the shared scratch area.
	src := filepath.Join(w.Scratch, "optimize", "model.txt")
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("export model: %w", err)
	}
	dst := filepath.Join(w.Output, "model_final.txt")
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Final model exported.", "path", dst)
	return w.co.ckpt(ctx)
}
