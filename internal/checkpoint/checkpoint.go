// Package checkpoint persists the live component registry, the resolved
// parameter document, and the stage cursor to a working directory, and
// restores them after a stop, requeue, or crash. Writes are atomic per slot:
// a kill mid-save leaves either the old or the fully written new blob on
// disk, never a torn one.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/waveflow/internal/ctxlog"
	"github.com/vk/waveflow/internal/flow"
	"github.com/vk/waveflow/internal/paramfile"
	"github.com/vk/waveflow/internal/registry"
)

const (
	// Dir is the checkpoint area under the working directory.
	Dir        = "checkpoint"
	cursorFile = "cursor.json"
	valuesFile = "values.json"
)

// ErrNotWorkingDirectory marks a resume attempt against a directory that was
// never initialized (or was cleaned).
var ErrNotWorkingDirectory = errors.New("no checkpoint: not an initialized working directory")

// CorruptError names the slot whose blob failed to restore. No automatic
// recovery is attempted; the blob is left in place for inspection.
type CorruptError struct {
	Slot registry.Slot
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt checkpoint for slot %s: %v", e.Slot, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// blob is the on-disk envelope for one slot: the variant name so load can
// reconstruct the concrete type, plus that type's own serialized state.
type blob struct {
	Variant string          `json:"variant"`
	State   json.RawMessage `json:"state"`
}

// Save snapshots the full registry, values, and cursor under workdir.
// Every slot is serialized in memory before anything touches disk, so a
// component that fails to serialize leaves the previous checkpoint
// authoritative. Each file then goes through write-temp, fsync, rename.
func Save(ctx context.Context, workdir string, reg *registry.Registry, vals *paramfile.Values, cur flow.Cursor) error {
	dir := filepath.Join(workdir, Dir)

	type pending struct {
		name string
		data []byte
	}
	var files []pending
	var saveErr error

	reg.Each(func(slot registry.Slot, c registry.Component) {
		if saveErr != nil {
			return
		}
		state, err := json.Marshal(c)
		if err != nil {
			saveErr = fmt.Errorf("serialize slot %s (%s): %w", slot, c.Variant(), err)
			return
		}
		data, err := json.MarshalIndent(blob{Variant: c.Variant(), State: state}, "", "  ")
		if err != nil {
			saveErr = fmt.Errorf("serialize slot %s (%s): %w", slot, c.Variant(), err)
			return
		}
		files = append(files, pending{name: string(slot) + ".json", data: data})
	})
	if saveErr != nil {
		return saveErr
	}

	// Snapshot values through a copy so the blob never aliases live maps.
	valsData, err := json.MarshalIndent(vals.Clone(), "", "  ")
	if err != nil {
		return fmt.Errorf("serialize parameter values: %w", err)
	}
	files = append(files, pending{name: valuesFile, data: valsData})

	curData, err := json.MarshalIndent(cur, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize cursor: %w", err)
	}
	// The cursor goes last: a crash between slot writes and the cursor
	// write leaves the previous cursor pointing at state that is still
	// valid to resume from.
	files = append(files, pending{name: cursorFile, data: curData})

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, f := range files {
		if err := atomicWrite(filepath.Join(dir, f.name), f.data); err != nil {
			return fmt.Errorf("write checkpoint %s: %w", f.name, err)
		}
	}
	ctxlog.FromContext(ctx).Debug("Checkpoint written.", "dir", dir, "position", cur.Position)
	return nil
}

// Load restores the registry, values, and cursor saved under workdir.
// Components come back exactly as serialized; no initialization logic
// re-runs. The caller re-binds collaborator references, which do not
// survive serialization.
func Load(ctx context.Context, workdir string, cat *registry.Catalog) (*registry.Registry, *paramfile.Values, flow.Cursor, error) {
	dir := filepath.Join(workdir, Dir)
	var cur flow.Cursor

	curData, err := os.ReadFile(filepath.Join(dir, cursorFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, cur, ErrNotWorkingDirectory
		}
		return nil, nil, cur, err
	}
	if err := json.Unmarshal(curData, &cur); err != nil {
		return nil, nil, cur, fmt.Errorf("corrupt cursor: %w", err)
	}

	vals := paramfile.NewValues()
	valsData, err := os.ReadFile(filepath.Join(dir, valuesFile))
	if err != nil {
		return nil, nil, cur, fmt.Errorf("read checkpointed values: %w", err)
	}
	if err := json.Unmarshal(valsData, vals); err != nil {
		return nil, nil, cur, fmt.Errorf("corrupt checkpointed values: %w", err)
	}

	reg := registry.New()
	for _, slot := range registry.Slots() {
		data, err := os.ReadFile(filepath.Join(dir, string(slot)+".json"))
		if err != nil {
			return nil, nil, cur, &CorruptError{Slot: slot, Err: err}
		}
		var b blob
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, nil, cur, &CorruptError{Slot: slot, Err: err}
		}
		comp, err := cat.Build(slot, b.Variant)
		if err != nil {
			return nil, nil, cur, &CorruptError{Slot: slot, Err: err}
		}
		if err := json.Unmarshal(b.State, comp); err != nil {
			return nil, nil, cur, &CorruptError{Slot: slot, Err: err}
		}
		reg.Set(slot, comp)
	}
	ctxlog.FromContext(ctx).Debug("Checkpoint loaded.", "dir", dir, "position", cur.Position)
	return reg, vals, cur, nil
}

// Exists reports whether workdir holds a loadable checkpoint cursor.
func Exists(workdir string) bool {
	_, err := os.Stat(filepath.Join(workdir, Dir, cursorFile))
	return err == nil
}

// atomicWrite writes data to a temporary file in the target directory,
// flushes it, and renames it into place.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
