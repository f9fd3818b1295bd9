package registry

import (
	"context"

	"github.com/vk/waveflow/internal/flow"
	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/paramfile"
)

// Component is the contract every slot variant satisfies. Registering a
// component never validates it; validation is an explicit later step so
// `configure` can introspect manifests before any values exist.
type Component interface {
	// Variant is the registered name, e.g. "specfem3d".
	Variant() string
	// Manifest returns the component's requirement declarations, including
	// anything inherited from a delegated-to base variant. It must be
	// stable across calls.
	Manifest() *manifest.Set
	// Configure binds validated document values into the component.
	Configure(vals *paramfile.Values) error
	// Check runs cross-field consistency checks the declarative manifest
	// cannot express. Called once per loaded registry.
	Check(ctx context.Context) error
}

// SystemComponent abstracts where and how the pipeline actually executes:
// in-process, or handed to a cluster scheduler.
type SystemComponent interface {
	Component
	// Submit hands the assembled run off for execution and blocks until it
	// finishes. Retries of failed jobs are this collaborator's business,
	// never the core's.
	Submit(ctx context.Context, run func(context.Context) error) error
	// Workers is the parallelism hint for components that fan out
	// embarrassingly parallel sub-tasks within a stage.
	Workers() int
	// MPIExec is the command prefix for launching solver executables,
	// e.g. "mpiexec -n 4". Empty means launch directly.
	MPIExec() string
}

// WorkflowComponent exposes the ordered flow the stage driver executes.
type WorkflowComponent interface {
	Component
	// Flow returns the named stage sequence. Stage functions close over the
	// collaborators received through Bind.
	Flow() flow.Flow
	// Bind wires the workflow to its collaborators and to an out-of-band
	// checkpoint hook. Called at submit and again after a checkpoint load,
	// since collaborator references do not survive serialization.
	Bind(reg *Registry, checkpoint func(context.Context) error) error
	// Checkpoint forces an out-of-band save of the live registry. Usable
	// mid-stage; the routine driver checkpoint after each stage does not
	// go through it.
	Checkpoint(ctx context.Context) error
}

// SolverComponent drives the external wave-propagation executables.
type SolverComponent interface {
	Component
	// GenerateData produces observed data from the target model.
	GenerateData(ctx context.Context, sys SystemComponent) error
	// Forward runs the forward simulation for every source.
	Forward(ctx context.Context, sys SystemComponent) error
	// Adjoint runs the adjoint simulation from prepared adjoint sources.
	Adjoint(ctx context.Context, sys SystemComponent) error
}

// PreprocessComponent turns raw traces into misfit and adjoint sources.
type PreprocessComponent interface {
	Component
	// Prepare performs one-time setup (station tables, filter design).
	Prepare(ctx context.Context) error
	// Quantify compares observed and synthetic traces, writing misfit and
	// adjoint sources. May fan out per source, bounded by the system hint.
	Quantify(ctx context.Context, sys SystemComponent) error
}

// OptimizeComponent owns the model-update side of an inversion.
type OptimizeComponent interface {
	Component
	// ComputeDirection turns the current gradient into a search direction.
	ComputeDirection(ctx context.Context) error
	// ApplyUpdate steps the model along the search direction.
	ApplyUpdate(ctx context.Context) error
}

// PostprocessComponent regularizes raw kernels into a usable gradient.
type PostprocessComponent interface {
	Component
	WriteGradient(ctx context.Context) error
}
