package solver

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/parfile"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// Specfem2D drives SPECFEM2D. Meshing and database generation are a single
// executable here, otherwise the variant is Base behavior unchanged.
type Specfem2D struct {
	Base Base `json:"base"`
}

// Variant implements registry.Component.
func (s *Specfem2D) Variant() string { return "specfem2d" }

// Manifest implements registry.Component.
func (s *Specfem2D) Manifest() *manifest.Set {
	return manifest.Join(s.Base.manifest(), manifest.New("solver.specfem2d"))
}

// Configure implements registry.Component.
func (s *Specfem2D) Configure(vals *paramfile.Values) error {
	s.Base.configure(vals)
	return nil
}

// Check implements registry.Component.
func (s *Specfem2D) Check(ctx context.Context) error {
	if err := s.Base.check(s.Variant()); err != nil {
		return err
	}
	switch s.Base.Format {
	case "su", "ascii":
	default:
		return fmt.Errorf("solver.specfem2d: FORMAT must be \"su\" or \"ascii\", got %q", s.Base.Format)
	}
	return nil
}

func (s *Specfem2D) setMode(simulationType string, saveForward bool) error {
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

// GenerateData implements registry.SolverComponent.
func (s *Specfem2D) GenerateData(ctx context.Context, sys registry.SystemComponent) error {
	if err := s.Base.runTasks(ctx, sys, "xmeshfem2D"); err != nil {
		return err
	}
	return s.Forward(ctx, sys)
}

// Forward implements registry.SolverComponent.
func (s *Specfem2D) Forward(ctx context.Context, sys registry.SystemComponent) error {
	par := s.Base.ParFile()
	if err := parfile.Set(par, "NSTEP", strconv.Itoa(s.Base.NT)); err != nil {
		return err
	}
	if err := parfile.Set(par, "DT", strconv.FormatFloat(s.Base.DT, 'g', -1, 64)); err != nil {
		return err
	}
	if err := s.setMode("1", true); err != nil {
		return err
	}
	return s.Base.runTasks(ctx, sys, "xspecfem2D")
}

// Adjoint implements registry.SolverComponent.
func (s *Specfem2D) Adjoint(ctx context.Context, sys registry.SystemComponent) error {
	if err := s.setMode("3", false); err != nil {
		return err
	}
	return s.Base.runTasks(ctx, sys, "xspecfem2D")
}
