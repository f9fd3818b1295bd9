package solver

import (
	"context"
	"fmt"
	"strconv"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/parfile"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// Specfem3D drives SPECFEM3D Cartesian. Simulation modes are selected by
// patching the solver's own Par_file before each launch, the way an operator
// would by hand. Only the `su` trace format is supported.
type Specfem3D struct {
	Base Base    `json:"base"`
	F0   float64 `json:"f0"`
}

// Variant implements registry.Component.
func (s *Specfem3D) Variant() string { return "specfem3d" }

// Manifest implements registry.Component.
func (s *Specfem3D) Manifest() *manifest.Set {
	return manifest.Join(s.Base.manifest(), manifest.New("solver.specfem3d").
		Require("F0", cty.Number, "dominant source frequency in Hz"))
}

// Configure implements registry.Component.
func (s *Specfem3D) Configure(vals *paramfile.Values) error {
	s.Base.configure(vals)
	s.F0 = vals.Float("F0")
	return nil
}

// Check implements registry.Component.
func (s *Specfem3D) Check(ctx context.Context) error {
	if err := s.Base.check(s.Variant()); err != nil {
		return err
	}
	if s.F0 <= 0 {
		return fmt.Errorf("solver.specfem3d: F0 must be positive, got %v", s.F0)
	}
	if s.Base.Format != "su" {
		return fmt.Errorf("solver.specfem3d: FORMAT must be \"su\", got %q", s.Base.Format)
	}
	return nil
}

// syncTimeStepping pushes NT/DT from the parameter document into the
// Par_file, so the document stays the single source of truth.
func (s *Specfem3D) syncTimeStepping() error {
	par := s.Base.ParFile()
	if err := parfile.Set(par, "NSTEP", strconv.Itoa(s.Base.NT)); err != nil {
		return err
	}
	return parfile.Set(par, "DT", strconv.FormatFloat(s.Base.DT, 'g', -1, 64))
}

func (s *Specfem3D) setMode(simulationType string, saveForward bool) error {
	par := s.Base.ParFile()
	if err := parfile.Set(par, "SIMULATION_TYPE", simulationType); err != nil {
		return err
	}
	forward := ".false."
	if saveForward {
		forward = ".true."
	}
	return parfile.Set(par, "SAVE_FORWARD", forward)
}

// GenerateData meshes the target model and runs a forward simulation to
// produce the observed dataset.
func (s *Specfem3D) GenerateData(ctx context.Context, sys registry.SystemComponent) error {
	if err := s.mesh(ctx, sys); err != nil {
		return err
	}
	return s.Forward(ctx, sys)
}

func (s *Specfem3D) mesh(ctx context.Context, sys registry.SystemComponent) error {
	if err := s.Base.runTasks(ctx, sys, "xmeshfem3D"); err != nil {
		return err
	}
	return s.Base.runTasks(ctx, sys, "xgenerate_databases")
}

// Forward implements registry.SolverComponent.
func (s *Specfem3D) Forward(ctx context.Context, sys registry.SystemComponent) error {
	if err := s.syncTimeStepping(); err != nil {
		return err
	}
	if err := s.setMode("1", true); err != nil {
		return err
	}
	return s.Base.runTasks(ctx, sys, "xspecfem3D")
}

// Adjoint implements registry.SolverComponent.
func (s *Specfem3D) Adjoint(ctx context.Context, sys registry.SystemComponent) error {
	if err := s.setMode("3", false); err != nil {
		return err
	}
	return s.Base.runTasks(ctx, sys, "xspecfem3D")
}
