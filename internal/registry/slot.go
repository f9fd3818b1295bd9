// Package registry holds the live component set of one pipeline: a fixed
// enumeration of named slots, the capability contract each slot requires,
// a catalog of selectable variants per slot, and the registry instance that
// owns exactly one component per slot for the lifetime of a run.
package registry

import "fmt"

// Slot is a named role in the pipeline, filled by exactly one component.
type Slot string

const (
	System      Slot = "system"
	Preprocess  Slot = "preprocess"
	Solver      Slot = "solver"
	Optimize    Slot = "optimize"
	Postprocess Slot = "postprocess"
	Workflow    Slot = "workflow"
)

// Slots returns every slot in canonical order. The order is load-bearing:
// manifest merging, template rendering, and checkpoint iteration all follow
// it so their output is deterministic.
func Slots() []Slot {
	return []Slot{System, Preprocess, Solver, Optimize, Postprocess, Workflow}
}

// ParseSlot validates a slot name.
func ParseSlot(name string) (Slot, error) {
	for _, s := range Slots() {
		if string(s) == name {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown slot %q (valid: %v)", name, Slots())
}
