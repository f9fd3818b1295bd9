// Package flow drives the ordered stage sequence a workflow component
// exposes. Stages run strictly one at a time; after every successful stage
// the caller-provided save hook persists the advanced cursor, so the
// checkpoint on disk always means "everything up to here is done".
package flow

import (
	"context"
	"fmt"

	"github.com/vk/waveflow/internal/ctxlog"
)

// Stage is one named step of a workflow's flow.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// Flow is the fixed, ordered stage sequence of a workflow variant.
type Flow []Stage

// Index returns the position of the named stage, or -1.
func (f Flow) Index(name string) int {
	for i, s := range f {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// Names returns the stage names in order.
func (f Flow) Names() []string {
	out := make([]string, len(f))
	for i, s := range f {
		out[i] = s.Name
	}
	return out
}

// Cursor records progress through a flow. Position is the index of the next
// stage to run; ResumeFrom and StopAfter are optional operator-set bounds.
type Cursor struct {
	Position   int    `json:"position"`
	ResumeFrom string `json:"resume_from,omitempty"`
	StopAfter  string `json:"stop_after,omitempty"`
	RunID      string `json:"run_id,omitempty"`
}

// Validate checks that the cursor's bounds name stages that exist.
func (c Cursor) Validate(f Flow) error {
	if c.ResumeFrom != "" && f.Index(c.ResumeFrom) < 0 {
		return fmt.Errorf("resume_from %q: no such stage (flow: %v)", c.ResumeFrom, f.Names())
	}
	if c.StopAfter != "" && f.Index(c.StopAfter) < 0 {
		return fmt.Errorf("stop_after %q: no such stage (flow: %v)", c.StopAfter, f.Names())
	}
	if c.Position < 0 || c.Position > len(f) {
		return fmt.Errorf("cursor position %d outside flow of %d stages", c.Position, len(f))
	}
	return nil
}

// StageError identifies the stage whose function failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// SaveFunc persists the cursor (and the live component state behind it)
// after a stage completes. A save failure aborts the run: continuing past an
// unrecorded stage would re-execute it on resume.
type SaveFunc func(ctx context.Context, cur Cursor) error

// Run executes the flow from the cursor's start point. ResumeFrom, when set,
// overrides the saved position. After each stage the cursor is advanced and
// saved; a StopAfter match halts cleanly once that stage has checkpointed.
// The returned cursor reflects the last persisted state.
func Run(ctx context.Context, f Flow, cur Cursor, save SaveFunc) (Cursor, error) {
	if err := cur.Validate(f); err != nil {
		return cur, err
	}
	logger := ctxlog.FromContext(ctx)

	start := cur.Position
	if cur.ResumeFrom != "" {
		start = f.Index(cur.ResumeFrom)
		// The override applies once; clear it so the persisted cursor
		// tracks real progress again.
		cur.ResumeFrom = ""
	}

	for i := start; i < len(f); i++ {
		stage := f[i]
		if err := ctx.Err(); err != nil {
			return cur, err
		}
		logger.Info("Stage started.", "stage", stage.Name, "position", i, "of", len(f))

		if err := stage.Run(ctx); err != nil {
			return cur, &StageError{Stage: stage.Name, Err: err}
		}

		cur.Position = i + 1
		if err := save(ctx, cur); err != nil {
			return cur, fmt.Errorf("checkpoint after stage %q: %w", stage.Name, err)
		}
		logger.Info("Stage completed and checkpointed.", "stage", stage.Name)

		if cur.StopAfter == stage.Name {
			logger.Info("Stop bound reached, halting flow.", "stop_after", cur.StopAfter)
			return cur, nil
		}
	}
	return cur, nil
}
