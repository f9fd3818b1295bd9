package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/waveflow/internal/flow"
	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// FakeStages is the fixed flow of the fake workflow variant.
var FakeStages = []string{"alpha", "beta", "gamma", "delta"}

// expandTrace substitutes the {{TRACE}} placeholder in parameter documents.
func expandTrace(params, traceDir string) string {
	return strings.ReplaceAll(params, "{{TRACE}}", traceDir)
}

// ReadTrace returns the stage names appended to the trace log, in order.
// Missing trace files read as an empty run.
func ReadTrace(t *testing.T, traceDir string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(traceDir, "stages.log"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Fields(string(data))
}

// Catalog returns a variant catalog of fakes covering every slot. Each fake
// registers under "fake" and under the slot's default choice, so documents
// that omit a slot still resolve.
func Catalog() *registry.Catalog {
	cat := registry.NewCatalog()
	for _, name := range []string{"fake", "local"} {
		cat.Add(registry.System, name, func() registry.Component { return &FakeSystem{NWorkers: 1} })
	}
	cat.Add(registry.Workflow, "fake", func() registry.Component { return &FakeWorkflow{} })
	cat.Add(registry.Solver, "fake", func() registry.Component { return &FakeLeaf{Slot: "solver"} })
	for _, name := range []string{"fake", "default"} {
		cat.Add(registry.Preprocess, name, func() registry.Component { return &FakeLeaf{Slot: "preprocess"} })
		cat.Add(registry.Postprocess, name, func() registry.Component { return &FakeLeaf{Slot: "postprocess"} })
	}
	for _, name := range []string{"fake", "gradient"} {
		cat.Add(registry.Optimize, name, func() registry.Component { return &FakeLeaf{Slot: "optimize"} })
	}
	return cat
}

// DefaultParams is a parameter document selecting the fake variant in every
// slot. The {{TRACE}} placeholder is filled in by the harness.
const DefaultParams = `
workflow = "fake"
solver = "fake"
system = "fake"
preprocess = "fake"
optimize = "fake"
postprocess = "fake"

paths {
  trace_dir = "{{TRACE}}"
}
`

// FakeSystem runs submissions inline and counts them.
type FakeSystem struct {
	NWorkers    int `json:"workers"`
	Submissions int `json:"submissions"`
}

func (s *FakeSystem) Variant() string { return "fake" }

func (s *FakeSystem) Manifest() *manifest.Set { return manifest.New("system.fake") }

func (s *FakeSystem) Configure(vals *paramfile.Values) error { return nil }

func (s *FakeSystem) Check(ctx context.Context) error { return nil }

func (s *FakeSystem) Submit(ctx context.Context, run func(context.Context) error) error {
	s.Submissions++
	return run(ctx)
}

func (s *FakeSystem) Workers() int { return s.NWorkers }

func (s *FakeSystem) MPIExec() string { return "" }

// FakeWorkflow appends each executed stage name to TRACE_DIR/stages.log and
// fails any stage for which a fail_<stage> marker file exists. State lives on
// disk so a reloaded instance behaves identically without in-memory wiring.
type FakeWorkflow struct {
	TraceDir string `json:"trace_dir"`

	ckpt func(context.Context) error
}

func (w *FakeWorkflow) Variant() string { return "fake" }

func (w *FakeWorkflow) Manifest() *manifest.Set {
	return manifest.New("workflow.fake").
		RequirePath("TRACE_DIR", "directory receiving the stage execution trace")
}

func (w *FakeWorkflow) Configure(vals *paramfile.Values) error {
	w.TraceDir = vals.PathOf("TRACE_DIR")
	return nil
}

func (w *FakeWorkflow) Check(ctx context.Context) error {
	if w.TraceDir == "" {
		return fmt.Errorf("fake workflow: trace_dir not configured")
	}
	return nil
}

func (w *FakeWorkflow) Bind(reg *registry.Registry, ckpt func(context.Context) error) error {
	w.ckpt = ckpt
	return nil
}

func (w *FakeWorkflow) Checkpoint(ctx context.Context) error {
	if w.ckpt == nil {
		return fmt.Errorf("fake workflow: checkpoint hook not bound")
	}
	return w.ckpt(ctx)
}

func (w *FakeWorkflow) Flow() flow.Flow {
	f := make(flow.Flow, 0, len(FakeStages))
	for _, name := range FakeStages {
		f = append(f, flow.Stage{Name: name, Run: w.stage(name)})
	}
	return f
}

func (w *FakeWorkflow) stage(name string) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, err := os.Stat(filepath.Join(w.TraceDir, "fail_"+name)); err == nil {
			return fmt.Errorf("injected failure in stage %s", name)
		}
		f, err := os.OpenFile(filepath.Join(w.TraceDir, "stages.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = fmt.Fprintln(f, name)
		return err
	}
}

// FakeLeaf fills the solver, preprocess, optimize, and postprocess slots with
// no-op capability methods. Calls records which capability methods ran.
type FakeLeaf struct {
	Slot  string   `json:"slot"`
	Calls []string `json:"calls"`
}

func (l *FakeLeaf) Variant() string { return "fake" }

func (l *FakeLeaf) Manifest() *manifest.Set { return manifest.New(l.Slot + ".fake") }

func (l *FakeLeaf) Configure(vals *paramfile.Values) error { return nil }

func (l *FakeLeaf) Check(ctx context.Context) error { return nil }

func (l *FakeLeaf) record(op string) error {
	l.Calls = append(l.Calls, op)
	return nil
}

func (l *FakeLeaf) GenerateData(ctx context.Context, sys registry.SystemComponent) error {
	return l.record("generate_data")
}

func (l *FakeLeaf) Forward(ctx context.Context, sys registry.SystemComponent) error {
	return l.record("forward")
}

func (l *FakeLeaf) Adjoint(ctx context.Context, sys registry.SystemComponent) error {
	return l.record("adjoint")
}

func (l *FakeLeaf) Prepare(ctx context.Context) error { return l.record("prepare") }

func (l *FakeLeaf) Quantify(ctx context.Context, sys registry.SystemComponent) error {
	return l.record("quantify")
}

func (l *FakeLeaf) ComputeDirection(ctx context.Context) error { return l.record("compute_direction") }

func (l *FakeLeaf) ApplyUpdate(ctx context.Context) error { return l.record("apply_update") }

func (l *FakeLeaf) WriteGradient(ctx context.Context) error { return l.record("write_gradient") }
