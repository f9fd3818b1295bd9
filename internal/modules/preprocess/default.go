// Package preprocess turns raw solver traces into misfit values and adjoint
// sources. The default variant implements the plain waveform-difference
// misfit over ASCII traces; the noise variant layers ambient-noise handling
// on top of it by delegation.
package preprocess

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/zclconf/go-cty/cty"
	"golang.org/x/sync/errgroup"

	"github.com/vk/waveflow/internal/ctxlog"
	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// Register adds the preprocess variants to the catalog.
func Register(cat *registry.Catalog) {
	cat.Add(registry.Preprocess, "default", func() registry.Component { return &Default{} })
	cat.Add(registry.Preprocess, "noise", func() registry.Component { return &Noise{} })
}

// Default compares observed and synthetic traces sample by sample. The
// residual becomes the adjoint source; half its squared norm the misfit.
type Default struct {
	Misfit     string  `json:"misfit"`
	Scratch    string  `json:"scratch"`
	LastMisfit float64 `json:"last_misfit"`
}

// Variant implements registry.Component.
func (d *Default) Variant() string { return "default" }

// Manifest implements registry.Component.
func (d *Default) Manifest() *manifest.Set {
	return manifest.New("preprocess.default").
		Default("MISFIT", cty.StringVal("waveform"), "misfit functional applied to trace pairs").
		DefaultPath("SCRATCH", "./scratch", "scratch area holding the traces/{obs,syn,adj} layout")
}

// Configure implements registry.Component.
func (d *Default) Configure(vals *paramfile.Values) error {
	d.Misfit = strings.ToLower(vals.String("MISFIT"))
	d.Scratch = vals.PathOf("SCRATCH")
	return nil
}

// Check implements registry.Component.
func (d *Default) Check(ctx context.Context) error {
	if d.Misfit != "waveform" {
		return fmt.Errorf("preprocess.default: unsupported MISFIT %q (only \"waveform\")", d.Misfit)
	}
	return nil
}

func (d *Default) tracesDir(kind string) string {
	return filepath.Join(d.Scratch, "traces", kind)
}

// Prepare implements registry.PreprocessComponent.
func (d *Default) Prepare(ctx context.Context) error {
	for _, kind := range []string{"obs", "syn", "adj"} {
		if err := os.MkdirAll(d.tracesDir(kind), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Quantify implements registry.PreprocessComponent. Trace pairs are
// independent, so they fan out bounded by the system worker hint; the stage
// does not return until every pair is written.
func (d *Default) Quantify(ctx context.Context, sys registry.SystemComponent) error {
	obsFiles, err := filepath.Glob(filepath.Join(d.tracesDir("obs"), "*"))
	if err != nil {
		return err
	}
	sort.Strings(obsFiles)
	if len(obsFiles) == 0 {
		return fmt.Errorf("preprocess.default: no observed traces under %s", d.tracesDir("obs"))
	}

	var (
		mu    sync.Mutex
		total float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sys.Workers())
	for _, obsPath := range obsFiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			name := filepath.Base(obsPath)
			misfit, err := d.residual(name)
			if err != nil {
				return fmt.Errorf("trace %s: %w", name, err)
			}
			mu.Lock()
			total += misfit
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	d.LastMisfit = total
	ctxlog.FromContext(ctx).Info("Misfit evaluated.", "traces", len(obsFiles), "misfit", total)
	return d.writeSummary(total, len(obsFiles))
}

// residual writes the adjoint source for one trace pair and returns its
// misfit contribution.
func (d *Default) residual(name string) (float64, error) {
	obs, err := readTrace(filepath.Join(d.tracesDir("obs"), name))
	if err != nil {
		return 0, err
	}
	syn, err := readTrace(filepath.Join(d.tracesDir("syn"), name))
	if err != nil {
		return 0, err
	}
	if len(obs) != len(syn) {
		return 0, fmt.Errorf("sample count mismatch: obs %d, syn %d", len(obs), len(syn))
	}

	adj := make([]float64, len(obs))
	misfit := 0.0
	for i := range obs {
		r := syn[i] - obs[i]
		adj[i] = r
		misfit += 0.5 * r * r
	}
	return misfit, writeTrace(filepath.Join(d.tracesDir("adj"), name+".adj"), adj)
}

func (d *Default) writeSummary(total float64, traces int) error {
	path := filepath.Join(d.Scratch, "misfit.txt")
	body := fmt.Sprintf("traces %d\nmisfit %.12g\n", traces, total)
	return os.WriteFile(path, []byte(body), 0o644)
}

// readTrace parses an ASCII trace, one sample per line.
func readTrace(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var samples []float64
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
		samples = append(samples, v)
	}
	return samples, scanner.Err()
}

func writeTrace(path string, samples []float64) error {
	var b strings.Builder
	for _, v := range samples {
		fmt.Fprintf(&b, "%.12g\n", v)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
