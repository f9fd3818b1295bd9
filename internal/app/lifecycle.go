package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/vk/waveflow/internal/checkpoint"
	"github.com/vk/waveflow/internal/ctxlog"
	"github.com/vk/waveflow/internal/flow"
	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/modules"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// Setup writes a blank parameter document containing only the module-choice
// keys. It refuses to overwrite an existing document unless forced.
func (a *App) Setup(ctx context.Context) error {
	ctx = a.context(ctx)
	path := a.paramPath()
	if _, err := os.Stat(path); err == nil && !a.cfg.Force {
		return &PreconditionError{Msg: fmt.Sprintf("parameter document %s already exists (use --force to overwrite)", path)}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	doc := paramfile.Render(modules.ChoiceManifest().Entries(), nil)
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Parameter document template written.", "path", path)
	a.state = Uninitialized
	return nil
}

// Configure rewrites the parameter document as the full template for the
// chosen module set: every registered component's requirements with types,
// docs and defaults. Values the operator already set are carried over.
func (a *App) Configure(ctx context.Context) error {
	ctx = a.context(ctx)
	vals, err := a.loadValues()
	if err != nil {
		return err
	}
	reg, err := a.buildRegistry(vals)
	if err != nil {
		return err
	}
	entries, err := a.mergedManifest(reg)
	if err != nil {
		return err
	}
	doc := paramfile.Render(entries, vals)
	if err := os.WriteFile(a.paramPath(), doc, 0o644); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Parameter document configured for chosen modules.", "path", a.paramPath(), "keys", len(entries))
	a.state = Uninitialized
	return nil
}

// Check validates the document and every component's cross-field hook
// without touching the working directory.
func (a *App) Check(ctx context.Context) error {
	ctx = a.context(ctx)
	vals, err := a.loadValues()
	if err != nil {
		return err
	}
	reg, err := a.buildRegistry(vals)
	if err != nil {
		return err
	}
	entries, err := a.mergedManifest(reg)
	if err != nil {
		return err
	}
	report := a.validate(ctx, entries, vals, manifest.Both)
	if err := report.Err(); err != nil {
		return err
	}
	a.anchorPaths(entries, vals)
	if err := configureComponents(reg, vals); err != nil {
		return err
	}
	if err := checkComponents(ctx, reg); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Parameter document and component checks passed.")
	return nil
}

// Init constructs the registry and writes the initial checkpoint without
// running any stage. Paths must validate; parameters may still be unset and
// are only reported.
func (a *App) Init(ctx context.Context) error {
	ctx = a.context(ctx)
	vals, err := a.loadValues()
	if err != nil {
		return err
	}
	reg, err := a.buildRegistry(vals)
	if err != nil {
		return err
	}
	entries, err := a.mergedManifest(reg)
	if err != nil {
		return err
	}
	if err := a.validate(ctx, entries, vals, manifest.PathsOnly).Err(); err != nil {
		return err
	}
	if paramReport := a.validate(ctx, entries, vals, manifest.ParamsOnly); paramReport.Fatal() {
		ctxlog.FromContext(ctx).Warn("Parameters incomplete; submit will require them.", "error", paramReport.Err())
	}
	a.anchorPaths(entries, vals)
	if err := configureComponents(reg, vals); err != nil {
		return err
	}

	wf, err := reg.Workflow()
	if err != nil {
		return err
	}
	cur, err := a.cursorFrom(vals, wf)
	if err != nil {
		return err
	}
	if err := a.prepareWorkdir(); err != nil {
		return err
	}
	if err := checkpoint.Save(ctx, a.cfg.WorkDir, reg, vals, cur); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Working directory initialized.", "workdir", a.cfg.WorkDir)
	a.state = Initialized
	return nil
}

// Submit validates fully, verifies required paths exist on disk, writes the
// initial checkpoint, and hands the flow to the system collaborator.
func (a *App) Submit(ctx context.Context) error {
	ctx = a.context(ctx)
	vals, err := a.loadValues()
	if err != nil {
		return err
	}
	reg, err := a.buildRegistry(vals)
	if err != nil {
		return err
	}
	entries, err := a.mergedManifest(reg)
	if err != nil {
		return err
	}
	if err := a.validate(ctx, entries, vals, manifest.Both).Err(); err != nil {
		return err
	}
	a.anchorPaths(entries, vals)
	if err := configureComponents(reg, vals); err != nil {
		return err
	}
	if err := requirePathsOnDisk(entries, vals); err != nil {
		return err
	}
	if err := checkComponents(ctx, reg); err != nil {
		return err
	}

	wf, err := reg.Workflow()
	if err != nil {
		return err
	}
	cur, err := a.cursorFrom(vals, wf)
	if err != nil {
		return err
	}
	cur.RunID = uuid.NewString()
	return a.execute(ctx, reg, vals, cur)
}

// Resume restores the registry and cursor from the checkpoint store and
// continues from the last completed stage. Components come back exactly as
// saved; only collaborator wiring and the cross-field checks re-run.
func (a *App) Resume(ctx context.Context) error {
	ctx = a.context(ctx)
	reg, vals, cur, err := checkpoint.Load(ctx, a.cfg.WorkDir, a.catalog)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotWorkingDirectory) {
			return &PreconditionError{Msg: fmt.Sprintf("nothing to resume in %s: %v", a.cfg.WorkDir, err)}
		}
		return err
	}
	if a.cfg.ResumeFrom != "" {
		cur.ResumeFrom = a.cfg.ResumeFrom
	}
	if a.cfg.StopAfter != "" {
		cur.StopAfter = a.cfg.StopAfter
	}

	wf, err := reg.Workflow()
	if err != nil {
		return err
	}
	if err := cur.Validate(wf.Flow()); err != nil {
		return err
	}
	if err := checkComponents(ctx, reg); err != nil {
		return err
	}
	cur.RunID = uuid.NewString()
	return a.execute(ctx, reg, vals, cur)
}

// Restart is clean followed by submit.
func (a *App) Restart(ctx context.Context) error {
	if err := a.Clean(ctx); err != nil {
		return err
	}
	return a.Submit(ctx)
}

// Clean deletes the checkpoint, logs, scratch, and output areas. The
// parameter document is never deleted. Cleaning an already-clean directory
// is a no-op, not an error.
func (a *App) Clean(ctx context.Context) error {
	ctx = a.context(ctx)
	for _, dir := range []string{
		filepath.Join(a.cfg.WorkDir, checkpoint.Dir),
		a.logsDir(),
		a.scratchDir(),
		filepath.Join(a.cfg.WorkDir, "output"),
	} {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	ctxlog.FromContext(ctx).Info("Working directory cleaned.", "workdir", a.cfg.WorkDir)
	a.state = Uninitialized
	return nil
}

// cursorFrom builds the stage cursor from the document's bounds plus any
// command-line overrides, validated against the workflow's flow.
func (a *App) cursorFrom(vals *paramfile.Values, wf registry.WorkflowComponent) (flow.Cursor, error) {
	cur := flow.Cursor{
		ResumeFrom: vals.String("RESUME_FROM"),
		StopAfter:  vals.String("STOP_AFTER"),
	}
	if a.cfg.ResumeFrom != "" {
		cur.ResumeFrom = a.cfg.ResumeFrom
	}
	if a.cfg.StopAfter != "" {
		cur.StopAfter = a.cfg.StopAfter
	}
	if err := cur.Validate(wf.Flow()); err != nil {
		return cur, err
	}
	return cur, nil
}

func (a *App) prepareWorkdir() error {
	for _, dir := range []string{a.logsDir(), a.scratchDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// execute wires the workflow, writes the initial checkpoint, and hands the
// driver loop to the system collaborator. A failure after handoff leaves
// the checkpoint from the last completed stage on disk for resume.
func (a *App) execute(ctx context.Context, reg *registry.Registry, vals *paramfile.Values, cur flow.Cursor) error {
	sys, err := reg.System()
	if err != nil {
		return err
	}
	wf, err := reg.Workflow()
	if err != nil {
		return err
	}
	if err := a.prepareWorkdir(); err != nil {
		return err
	}

	logFile, err := os.OpenFile(filepath.Join(a.logsDir(), "waveflow.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()
	runLogger := newLogger(a.cfg.LogLevel, a.cfg.LogFormat, io.MultiWriter(a.outW, logFile))
	ctx = ctxlog.WithLogger(ctx, runLogger)

	latest := cur
	save := func(ctx context.Context, c flow.Cursor) error {
		latest = c
		return checkpoint.Save(ctx, a.cfg.WorkDir, reg, vals, c)
	}
	// Out-of-band saves reuse the last persisted cursor: a mid-stage
	// checkpoint must not claim the running stage as complete.
	outOfBand := func(ctx context.Context) error {
		return checkpoint.Save(ctx, a.cfg.WorkDir, reg, vals, latest)
	}
	if err := wf.Bind(reg, outOfBand); err != nil {
		return err
	}
	if err := save(ctx, cur); err != nil {
		return err
	}

	a.state = Running
	runErr := sys.Submit(ctx, func(ctx context.Context) error {
		_, err := flow.Run(ctx, wf.Flow(), cur, save)
		return err
	})
	if runErr != nil {
		a.state = Failed
		return runErr
	}
	a.state = Completed
	return nil
}
