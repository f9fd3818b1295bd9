// Package solver drives the external wave-propagation executables. Variants
// share the Base behavior by explicit delegation: each concrete variant owns
// a Base, joins its manifest onto Base's, and calls into it directly, so the
// merged requirement set stays auditable from plain code.
package solver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"

	"github.com/vk/waveflow/internal/ctxlog"
	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// Register adds the solver variants to the catalog.
func Register(cat *registry.Catalog) {
	cat.Add(registry.Solver, "specfem2d", func() registry.Component { return &Specfem2D{} })
	cat.Add(registry.Solver, "specfem3d", func() registry.Component { return &Specfem3D{} })
}

// Base holds the configuration and behavior every SPECFEM-style solver
// shares: the time-stepping setup, the task layout on scratch, and the
// fan-out machinery that launches one external simulation per source.
type Base struct {
	NTask   int     `json:"ntask"`
	NT      int     `json:"nt"`
	DT      float64 `json:"dt"`
	Format  string  `json:"format"`
	Bin     string  `json:"specfem_bin"`
	Data    string  `json:"specfem_data"`
	Scratch string  `json:"scratch"`
}

func (b *Base) manifest() *manifest.Set {
	return manifest.New("solver.base").
		Require("NT", cty.Number, "number of time steps per simulation").
		Require("DT", cty.Number, "simulation time step in seconds").
		Default("NTASK", cty.NumberIntVal(1), "number of sources, i.e. independent simulation tasks").
		Default("FORMAT", cty.StringVal("su"), "seismic trace format written by the solver").
		RequirePath("SPECFEM_BIN", "directory holding the solver executables").
		RequirePath("SPECFEM_DATA", "directory with Par_file, STATIONS and source files").
		DefaultPath("SCRATCH", "./scratch", "scratch area for per-task run directories")
}

func (b *Base) configure(vals *paramfile.Values) {
	b.NTask = vals.Int("NTASK")
	b.NT = vals.Int("NT")
	b.DT = vals.Float("DT")
	b.Format = strings.ToLower(vals.String("FORMAT"))
	b.Bin = vals.PathOf("SPECFEM_BIN")
	b.Data = vals.PathOf("SPECFEM_DATA")
	b.Scratch = vals.PathOf("SCRATCH")
}

func (b *Base) check(variant string) error {
	if b.NT <= 0 {
		return fmt.Errorf("solver.%s: NT must be positive, got %d", variant, b.NT)
	}
	if b.DT <= 0 {
		return fmt.Errorf("solver.%s: DT must be positive, got %v", variant, b.DT)
	}
	if b.NTask < 1 {
		return fmt.Errorf("solver.%s: NTASK must be >= 1, got %d", variant, b.NTask)
	}
	return nil
}

// ParFile is the solver control file under the SPECFEM data directory.
func (b *Base) ParFile() string {
	return filepath.Join(b.Data, "Par_file")
}

// TaskDir is the per-source run directory on scratch.
func (b *Base) TaskDir(task int) string {
	return filepath.Join(b.Scratch, "solver", fmt.Sprintf("%06d", task))
}

// runTasks launches the named executable once per source, bounded by the
// system worker hint. It blocks until every task has finished: the driver
// checkpoints right after the stage returns, and a checkpoint over a
// half-finished fan-out would lose work on resume.
func (b *Base) runTasks(ctx context.Context, sys registry.SystemComponent, executable string) error {
	logger := ctxlog.FromContext(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sys.Workers())

	for task := 0; task < b.NTask; task++ {
		g.Go(func() error {
			dir := b.TaskDir(task)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			args := strings.Fields(sys.MPIExec())
			args = append(args, filepath.Join(b.Bin, executable))

			logFile, err := os.Create(filepath.Join(dir, executable+".log"))
			if err != nil {
				return err
			}
			defer logFile.Close()

			cmd := exec.CommandContext(gctx, args[0], args[1:]...)
			cmd.Dir = dir
			cmd.Stdout = logFile
			cmd.Stderr = logFile
			logger.Debug("Launching solver task.", "executable", executable, "task", task)
			if err := cmd.Run(); err != nil {
				return fmt.Errorf("task %d: %s: %w (see %s)", task, executable, err, logFile.Name())
			}
			return nil
		})
	}
	return g.Wait()
}
