// Package app is the lifecycle controller: the externally-invoked state
// machine (setup, configure, init, submit, resume, restart, clean) that
// sequences registry construction, validation, checkpointing, and handoff
// to the stage driver.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/waveflow/internal/ctxlog"
	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/modules"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

// State is the lifecycle position of one App instance.
type State int

const (
	Uninitialized State = iota
	Configured
	Initialized
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Configured:
		return "configured"
	case Initialized:
		return "initialized"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// PreconditionError marks a command refused before any state mutation; the
// working directory is left exactly as found.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string { return e.Msg }

// App owns one working directory for the duration of a command. The live
// registry is constructed explicitly at init/submit/resume and passed down;
// there is no ambient component state.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	cfg     *Config
	catalog *registry.Catalog
	state   State
}

// NewApp builds an App around a variant catalog. Tests inject a catalog of
// fakes; production passes modules.Default().
func NewApp(outW io.Writer, cfg *Config, cat *registry.Catalog) *App {
	return &App{
		outW:    outW,
		logger:  newLogger(cfg.LogLevel, cfg.LogFormat, outW),
		cfg:     cfg,
		catalog: cat,
	}
}

// State reports the lifecycle state after the last command.
func (a *App) State() State { return a.state }

// Logger exposes the app logger, primarily for tests.
func (a *App) Logger() *slog.Logger { return a.logger }

// context attaches the app logger for everything below the controller.
func (a *App) context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

func (a *App) paramPath() string {
	if filepath.IsAbs(a.cfg.ParamFile) {
		return a.cfg.ParamFile
	}
	return filepath.Join(a.cfg.WorkDir, a.cfg.ParamFile)
}

func (a *App) logsDir() string    { return filepath.Join(a.cfg.WorkDir, "logs") }
func (a *App) scratchDir() string { return filepath.Join(a.cfg.WorkDir, "scratch") }

// loadValues parses the parameter document.
func (a *App) loadValues() (*paramfile.Values, error) {
	vals, err := paramfile.Load(a.paramPath())
	if err != nil {
		return nil, &PreconditionError{Msg: err.Error()}
	}
	return vals, nil
}

// buildRegistry constructs one component per slot from the document's
// slot-choice parameters. Construction does not validate the document:
// configure needs to introspect manifests before most values exist.
func (a *App) buildRegistry(vals *paramfile.Values) (*registry.Registry, error) {
	choice := modules.ChoiceManifest().Entries()
	// Fills choice defaults (system=local etc.) into the document and
	// catches a missing or mistyped module selection early.
	report := manifest.Check(choice, vals.Params(), vals.Paths(), manifest.ParamsOnly)
	if err := report.Err(); err != nil {
		return nil, err
	}

	reg := registry.New()
	for _, slot := range registry.Slots() {
		variant, err := vals.Variant(string(slot))
		if err != nil {
			return nil, err
		}
		comp, err := a.catalog.Build(slot, variant)
		if err != nil {
			return nil, err
		}
		reg.Set(slot, comp)
	}
	return reg, nil
}

// mergedManifest unions the choice manifest with every registered
// component's manifest. Conflicting duplicate declarations fail here, before
// any configuration values are considered.
func (a *App) mergedManifest(reg *registry.Registry) ([]manifest.Entry, error) {
	sets := append([]*manifest.Set{modules.ChoiceManifest()}, reg.Manifests()...)
	return manifest.Merge(sets...)
}

// validate checks the document against the merged manifest, logging the
// non-fatal findings, and returns the report.
func (a *App) validate(ctx context.Context, entries []manifest.Entry, vals *paramfile.Values, mode manifest.Mode) *manifest.Report {
	logger := ctxlog.FromContext(ctx)
	report := manifest.Check(entries, vals.Params(), vals.Paths(), mode)
	for _, key := range report.Unused {
		logger.Warn("Parameter document key is not used by any registered component.", "key", key)
	}
	if len(report.Defaulted) > 0 {
		logger.Debug("Defaults filled for unset keys.", "keys", report.Defaulted)
	}
	return report
}

// anchorPaths resolves relative path values, including filled defaults like
// "./scratch", against the working directory. Components and clean must agree
// on where derived artifacts live no matter what the process cwd is.
func (a *App) anchorPaths(entries []manifest.Entry, vals *paramfile.Values) {
	for _, e := range entries {
		if e.Kind != manifest.Path {
			continue
		}
		p := vals.PathOf(e.Key)
		if p == "" || filepath.IsAbs(p) {
			continue
		}
		vals.SetPath(e.Key, cty.StringVal(filepath.Join(a.cfg.WorkDir, p)))
	}
}

// requirePathsOnDisk verifies every required path value actually exists.
// Submit refuses to hand off before this passes: a missing input directory
// should fail in seconds, not hours into a cluster job.
func requirePathsOnDisk(entries []manifest.Entry, vals *paramfile.Values) error {
	var missing []string
	for _, e := range entries {
		if e.Kind != manifest.Path || !e.Required {
			continue
		}
		p := vals.PathOf(e.Key)
		if p == "" {
			continue // already reported as a missing key
		}
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%s)", e.Key, p))
		}
	}
	if len(missing) > 0 {
		return &PreconditionError{Msg: "required paths do not exist on disk: " + strings.Join(missing, ", ")}
	}
	return nil
}

// configureComponents binds validated values into every component.
func configureComponents(reg *registry.Registry, vals *paramfile.Values) error {
	var errs []error
	reg.Each(func(slot registry.Slot, c registry.Component) {
		if err := c.Configure(vals); err != nil {
			errs = append(errs, fmt.Errorf("slot %s (%s): %w", slot, c.Variant(), err))
		}
	})
	return errors.Join(errs...)
}

// checkComponents runs every component's cross-field consistency hook,
// accumulating failures so the operator sees them all at once.
func checkComponents(ctx context.Context, reg *registry.Registry) error {
	var errs []error
	reg.Each(func(slot registry.Slot, c registry.Component) {
		if err := c.Check(ctx); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
