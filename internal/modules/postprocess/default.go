// Package postprocess turns the raw per-source kernels the adjoint
// simulations leave on scratch into the single gradient the optimizer
// consumes.
package postprocess

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/waveflow/internal/ctxlog"
	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// Register adds the postprocess variants to the catalog.
func Register(cat *registry.Catalog) {
	cat.Add(registry.Postprocess, "default", func() registry.Component { return &Default{} })
}

// Default sums event kernels into a gradient, with an optional uniform
// scale factor standing in for mask/precondition steps.
type Default struct {
	Scale   float64 `json:"scale"`
	Scratch string  `json:"scratch"`
}

// Variant implements registry.Component.
func (d *Default) Variant() string { return "default" }

// Manifest implements registry.Component.
func (d *Default) Manifest() *manifest.Set {
	return manifest.New("postprocess.default").
		Default("SCALE", cty.NumberFloatVal(1.0), "uniform factor applied to the summed kernels").
		DefaultPath("SCRATCH", "./scratch", "scratch area holding per-task kernels")
}

// Configure implements registry.Component.
func (d *Default) Configure(vals *paramfile.Values) error {
	d.Scale = vals.Float("SCALE")
	d.Scratch = vals.PathOf("SCRATCH")
	return nil
}

// Check implements registry.Component.
func (d *Default) Check(ctx context.Context) error {
	if d.Scale == 0 {
		return fmt.Errorf("postprocess.default: SCALE must be non-zero")
	}
	return nil
}

// WriteGradient implements registry.PostprocessComponent: sum
// scratch/solver/*/kernel.txt into scratch/optimize/gradient.txt.
func (d *Default) WriteGradient(ctx context.Context) error {
	kernels, err := filepath.Glob(filepath.Join(d.Scratch, "solver", "*", "kernel.txt"))
	if err != nil {
		return err
	}
	sort.Strings(kernels)
	if len(kernels) == 0 {
		return fmt.Errorf("postprocess.default: no kernels under %s", filepath.Join(d.Scratch, "solver"))
	}

	var sum []float64
	for _, path := range kernels {
		kernel, err := readKernel(path)
		if err != nil {
			return err
		}
		if sum == nil {
			sum = make([]float64, len(kernel))
		}
		if len(kernel) != len(sum) {
			return fmt.Errorf("%s: kernel has %d entries, expected %d", path, len(kernel), len(sum))
		}
		for i, v := range kernel {
			sum[i] += v
		}
	}
	for i := range sum {
		sum[i] *= d.Scale
	}

	out := filepath.Join(d.Scratch, "optimize", "gradient.txt")
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	for _, v := range sum {
		fmt.Fprintf(&b, "%.12g\n", v)
	}
	if err := os.WriteFile(out, []byte(b.String()), 0o644); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Gradient assembled.", "kernels", len(kernels), "entries", len(sum))
	return nil
}

func readKernel(path string) ([]float64, error) {
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
