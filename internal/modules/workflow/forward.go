package workflow

import (
	"context"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/waveflow/internal/ctxlog"
	"github.com/vk/waveflow/internal/flow"
	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// Forward runs the simulation-and-misfit half of the pipeline: prepare,
// optionally generate observed data from the target model, run the forward
// simulations, evaluate the misfit.
type Forward struct {
	GenerateObs bool `json:"generate_obs"`

	co collaborators
}

// Variant implements registry.Component.
func (w *Forward) Variant() string { return "forward" }

// Manifest implements registry.Component.
func (w *Forward) Manifest() *manifest.Set {
	return manifest.New("workflow.forward").
		Default("GENERATE_OBS", cty.False, "simulate observed data from the target model instead of expecting it on scratch")
}

// Configure implements registry.Component.
func (w *Forward) Configure(vals *paramfile.Values) error {
	w.GenerateObs = vals.Bool("GENERATE_OBS")
	return nil
}

// Check implements registry.Component.
func (w *Forward) Check(ctx context.Context) error { return nil }

// Bind implements registry.WorkflowComponent.
func (w *Forward) Bind(reg *registry.Registry, ckpt func(context.Context) error) error {
	co, err := bind(reg, ckpt, false)
	if err != nil {
		return err
	}
	w.co = co
	return nil
}

// Checkpoint implements registry.WorkflowComponent.
func (w *Forward) Checkpoint(ctx context.Context) error {
	if !w.co.bound() {
		return errUnbound
	}
	return w.co.ckpt(ctx)
}

// Flow implements registry.WorkflowComponent.
func (w *Forward) Flow() flow.Flow {
	return flow.Flow{
		{Name: "setup", Run: w.setup},
		{Name: "generate_data", Run: w.generateData},
		{Name: "generate_synthetics", Run: w.generateSynthetics},
		{Name: "evaluate_misfit", Run: w.evaluateMisfit},
	}
}

func (w *Forward) setup(ctx context.Context) error {
	if !w.co.bound() {
		return errUnbound
	}
	return w.co.prep.Prepare(ctx)
}

func (w *Forward) generateData(ctx context.Context) error {
	if !w.co.bound() {
		return errUnbound
	}
	if !w.GenerateObs {
		ctxlog.FromContext(ctx).Info("Using operator-provided observed data.")
		return nil
	}
	return w.co.sol.GenerateData(ctx, w.co.sys)
}

func (w *Forward) generateSynthetics(ctx context.Context) error {
	if !w.co.bound() {
		return errUnbound
	}
	return w.co.sol.Forward(ctx, w.co.sys)
}

func (w *Forward) evaluateMisfit(ctx context.Context) error {
	if !w.co.bound() {
		return errUnbound
	}
	return w.co.prep.Quantify(ctx, w.co.sys)
}
