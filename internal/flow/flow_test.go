package flow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder builds a flow whose stages log their names, with optional
// injected failures, and a save hook that records every persisted cursor.
type recorder struct {
	ran    []string
	saved  []Cursor
	failAt map[string]error
}

func (r *recorder) flow(names ...string) Flow {
	f := make(Flow, 0, len(names))
	for _, name := range names {
		f = append(f, Stage{Name: name, Run: func(ctx context.Context) error {
			if err := r.failAt[name]; err != nil {
				return err
			}
			r.ran = append(r.ran, name)
			return nil
		}})
	}
	return f
}

func (r *recorder) save(_ context.Context, cur Cursor) error {
	r.saved = append(r.saved, cur)
	return nil
}

func TestRun_AllStagesInOrder(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	f := r.flow("a", "b", "c")

	cur, err := Run(context.Background(), f, Cursor{}, r.save)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, r.ran)
	assert.Equal(t, 3, cur.Position)
	// One checkpoint per completed stage.
	require.Len(t, r.saved, 3)
	assert.Equal(t, 1, r.saved[0].Position)
	assert.Equal(t, 3, r.saved[2].Position)
}

func TestRun_ResumesFromSavedPosition(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	f := r.flow("a", "b", "c", "d")

	cur, err := Run(context.Background(), f, Cursor{Position: 2}, r.save)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, r.ran)
	assert.Equal(t, 4, cur.Position)
}

func TestRun_ResumeFromOverridesPositionOnce(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	f := r.flow("a", "b", "c", "d")

	cur, err := Run(context.Background(), f, Cursor{Position: 3, ResumeFrom: "b"}, r.save)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, r.ran)
	assert.Equal(t, 4, cur.Position)
	// The override is consumed; the persisted cursors track real progress.
	for _, saved := range r.saved {
		assert.Empty(t, saved.ResumeFrom)
	}
}

func TestRun_StopAfterHaltsCleanlyAfterCheckpoint(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	f := r.flow("a", "b", "c")

	cur, err := Run(context.Background(), f, Cursor{StopAfter: "b"}, r.save)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.ran)
	assert.Equal(t, 2, cur.Position)
	require.Len(t, r.saved, 2)
}

func TestRun_StageFailureIdentifiesStageAndKeepsCursor(t *testing.T) {
	t.Parallel()

	boom := errors.New("solver exited 1")
	r := &recorder{failAt: map[string]error{"b": boom}}
	f := r.flow("a", "b", "c")

	cur, err := Run(context.Background(), f, Cursor{}, r.save)
	require.Error(t, err)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "b", se.Stage)
	assert.ErrorIs(t, err, boom)

	// The cursor still points at the failed stage: a resume re-runs it.
	assert.Equal(t, 1, cur.Position)
	assert.Equal(t, []string{"a"}, r.ran)
	require.Len(t, r.saved, 1)
}

func TestRun_SaveFailureAborts(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	f := r.flow("a", "b")

	calls := 0
	save := func(_ context.Context, _ Cursor) error {
		calls++
		return fmt.Errorf("disk full")
	}
	_, err := Run(context.Background(), f, Cursor{}, save)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `checkpoint after stage "a"`)
	assert.Equal(t, 1, calls)
	// Stage b never ran: running past an unrecorded stage would re-execute
	// it on resume.
	assert.Equal(t, []string{"a"}, r.ran)
}

func TestRun_CancelledContextStopsBetweenStages(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	r := &recorder{}
	f := Flow{
		{Name: "a", Run: func(ctx context.Context) error {
			cancel()
			r.ran = append(r.ran, "a")
			return nil
		}},
		{Name: "b", Run: func(ctx context.Context) error {
			r.ran = append(r.ran, "b")
			return nil
		}},
	}

	_, err := Run(ctx, f, Cursor{}, r.save)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, r.ran)
}

func TestCursor_Validate(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	f := r.flow("a", "b")

	require.NoError(t, Cursor{}.Validate(f))
	require.NoError(t, Cursor{Position: 2, StopAfter: "a"}.Validate(f))

	err := Cursor{ResumeFrom: "nope"}.Validate(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `resume_from "nope"`)

	err = Cursor{StopAfter: "nope"}.Validate(f)
	require.Error(t, err)

	err = Cursor{Position: 3}.Validate(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside flow")
}

func TestFlow_IndexAndNames(t *testing.T) {
	t.Parallel()

	r := &recorder{}
	f := r.flow("a", "b")
	assert.Equal(t, 1, f.Index("b"))
	assert.Equal(t, -1, f.Index("z"))
	assert.Equal(t, []string{"a", "b"}, f.Names())
}
