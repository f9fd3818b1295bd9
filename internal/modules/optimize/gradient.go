// Package optimize owns the model-update side of an inversion. Models,
// gradients, and search directions are exchanged with the external solver
// toolchain as ASCII vector files on scratch; the variants here implement
// the update rules over those files.
package optimize

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/waveflow/internal/ctxlog"
	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// Register adds the optimize variants to the catalog.
func Register(cat *registry.Catalog) {
	cat.Add(registry.Optimize, "gradient", func() registry.Component { return &Gradient{} })
	cat.Add(registry.Optimize, "lbfgs", func() registry.Component { return &LBFGS{} })
}

// Gradient is plain steepest descent with a fixed step length.
type Gradient struct {
	StepLen   float64 `json:"step_len"`
	Scratch   string  `json:"scratch"`
	Iteration int     `json:"iteration"`
}

// Variant implements registry.Component.
func (g *Gradient) Variant() string { return "gradient" }

// Manifest implements registry.Component.
func (g *Gradient) Manifest() *manifest.Set {
	return manifest.New("optimize.gradient").
		Default("STEP_LEN", cty.NumberFloatVal(0.05), "fixed step length applied along the search direction").
		DefaultPath("SCRATCH", "./scratch", "scratch area holding model/gradient/direction vectors")
}

// Configure implements registry.Component.
func (g *Gradient) Configure(vals *paramfile.Values) error {
	g.StepLen = vals.Float("STEP_LEN")
	g.Scratch = vals.PathOf("SCRATCH")
	return nil
}

// Check implements registry.Component.
func (g *Gradient) Check(ctx context.Context) error {
	if g.StepLen <= 0 {
		return fmt.Errorf("optimize.gradient: STEP_LEN must be positive, got %v", g.StepLen)
	}
	return nil
}

func (g *Gradient) dir() string { return filepath.Join(g.Scratch, "optimize") }

func (g *Gradient) vectorPath(name string) string {
	return filepath.Join(g.dir(), name+".txt")
}

// ComputeDirection implements registry.OptimizeComponent: the steepest
// descent direction is the negated gradient.
func (g *Gradient) ComputeDirection(ctx context.Context) error {
	grad, err := readVector(g.vectorPath("gradient"))
	if err != nil {
		return err
	}
	dir := make([]float64, len(grad))
	for i, v := range grad {
		dir[i] = -v
	}
	return writeVector(g.vectorPath("direction"), dir)
}

// ApplyUpdate implements registry.OptimizeComponent: step the model along
// the stored direction and advance the iteration count.
func (g *Gradient) ApplyUpdate(ctx context.Context) error {
	model, err := readVector(g.vectorPath("model"))
	if err != nil {
		return err
	}
	dir, err := readVector(g.vectorPath("direction"))
	if err != nil {
		return err
	}
	if len(model) != len(dir) {
		return fmt.Errorf("optimize: model has %d entries, direction %d", len(model), len(dir))
	}
	for i := range model {
		model[i] += g.StepLen * dir[i]
	}
	if err := writeVector(g.vectorPath("model"), model); err != nil {
		return err
	}
	g.Iteration++
	ctxlog.FromContext(ctx).Info("Model updated.", "iteration", g.Iteration, "step_len", g.StepLen)
	return nil
}

// readVector parses an ASCII vector file, one value per line.
func readVector(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, v)
	}
	return out, scanner.Err()
}

func writeVector(path string, vec []float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	for _, v := range vec {
		fmt.Fprintf(&b, "%.12g\n", v)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
