package registry

import (
	"fmt"

	"github.com/vk/waveflow/internal/manifest"
)

// UnregisteredSlotError is returned when a slot has no component.
type UnregisteredSlotError struct {
	Slot Slot
}

func (e *UnregisteredSlotError) Error() string {
	return fmt.Sprintf("slot %s has no registered component", e.Slot)
}

// Registry is the live component set of one pipeline run: exactly one
// component per slot. It is an explicit context object constructed at
// init/submit/resume and passed down, never ambient global state.
type Registry struct {
	components map[Slot]Component
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{components: map[Slot]Component{}}
}

// Set installs a component into its slot, replacing any previous instance.
// Replacement happens only while configuring; resume never re-registers.
func (r *Registry) Set(slot Slot, c Component) {
	r.components[slot] = c
}

// Get returns the component filling a slot.
func (r *Registry) Get(slot Slot) (Component, error) {
	c, ok := r.components[slot]
	if !ok {
		return nil, &UnregisteredSlotError{Slot: slot}
	}
	return c, nil
}

// Has reports whether the slot is filled.
func (r *Registry) Has(slot Slot) bool {
	_, ok := r.components[slot]
	return ok
}

// Each visits the registered components in canonical slot order.
func (r *Registry) Each(fn func(Slot, Component)) {
	for _, slot := range Slots() {
		if c, ok := r.components[slot]; ok {
			fn(slot, c)
		}
	}
}

// Manifests collects every registered component's manifest in slot order,
// ready for merging.
func (r *Registry) Manifests() []*manifest.Set {
	var out []*manifest.Set
	r.Each(func(_ Slot, c Component) {
		out = append(out, c.Manifest())
	})
	return out
}

func capability[T Component](r *Registry, slot Slot) (T, error) {
	var zero T
	c, err := r.Get(slot)
	if err != nil {
		return zero, err
	}
	t, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("slot %s: variant %q does not satisfy the %s capability contract", slot, c.Variant(), slot)
	}
	return t, nil
}

// System returns the system collaborator.
func (r *Registry) System() (SystemComponent, error) {
	return capability[SystemComponent](r, System)
}

// Workflow returns the workflow collaborator.
func (r *Registry) Workflow() (WorkflowComponent, error) {
	return capability[WorkflowComponent](r, Workflow)
}

// Solver returns the solver collaborator.
func (r *Registry) Solver() (SolverComponent, error) {
	return capability[SolverComponent](r, Solver)
}

// Preprocess returns the preprocess collaborator.
func (r *Registry) Preprocess() (PreprocessComponent, error) {
	return capability[PreprocessComponent](r, Preprocess)
}

// Optimize returns the optimize collaborator.
func (r *Registry) Optimize() (OptimizeComponent, error) {
	return capability[OptimizeComponent](r, Optimize)
}

// Postprocess returns the postprocess collaborator.
func (r *Registry) Postprocess() (PostprocessComponent, error) {
	return capability[PostprocessComponent](r, Postprocess)
}
