// Package system provides the execution collaborators: where the assembled
// pipeline run actually executes. The local variant runs in-process; cluster
// variants would hand the same closure to a scheduler.
package system

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/waveflow/internal/ctxlog"
	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// Register adds the system variants to the catalog.
func Register(cat *registry.Catalog) {
	cat.Add(registry.System, "local", func() registry.Component { return &Local{} })
}

// Local executes the pipeline inside the orchestrator process. Stages still
// run strictly sequentially; NPROC only bounds the per-stage task fan-out
// of components that parallelize internally.
type Local struct {
	NProc   int    `json:"nproc"`
	Launch  string `json:"mpiexec"`
	LastRun string `json:"last_run_id,omitempty"`
}

// Variant implements registry.Component.
func (l *Local) Variant() string { return "local" }

// Manifest implements registry.Component.
func (l *Local) Manifest() *manifest.Set {
	return manifest.New("system.local").
		Default("NPROC", cty.NumberIntVal(1), "parallel tasks allowed within one stage").
		Default("MPIEXEC", cty.StringVal(""), "command prefix for solver executables, e.g. \"mpiexec -n 4\"")
}

// Configure implements registry.Component.
func (l *Local) Configure(vals *paramfile.Values) error {
	l.NProc = vals.Int("NPROC")
	l.Launch = vals.String("MPIEXEC")
	return nil
}

// Check implements registry.Component.
func (l *Local) Check(ctx context.Context) error {
	if l.NProc < 1 {
		return fmt.Errorf("system.local: NPROC must be >= 1, got %d", l.NProc)
	}
	return nil
}

// Submit runs the pipeline closure to completion in this process. Each
// submission is tagged with a fresh run ID so interleaved log streams from
// repeated resumes stay attributable.
func (l *Local) Submit(ctx context.Context, run func(context.Context) error) error {
	l.LastRun = uuid.NewString()
	logger := ctxlog.FromContext(ctx).With("run_id", l.LastRun)
	logger.Info("Executing pipeline in-process.", "workers", l.NProc)
	err := run(ctxlog.WithLogger(ctx, logger))
	if err != nil {
		logger.Error("Pipeline run failed.", "error", err)
		return err
	}
	logger.Info("Pipeline run finished.")
	return nil
}

// Workers implements registry.SystemComponent.
func (l *Local) Workers() int { return l.NProc }

// MPIExec implements registry.SystemComponent.
func (l *Local) MPIExec() string { return l.Launch }
