package registry

import (
	"fmt"
	"sort"
	"strings"
)

// Factory constructs a fresh, unconfigured instance of one variant.
type Factory func() Component

// Catalog maps slot → variant name → factory. It is populated once at
// startup from the compiled-in module set; the checkpoint store also uses it
// to reconstruct concrete component types at load time.
type Catalog struct {
	factories map[Slot]map[string]Factory
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: map[Slot]map[string]Factory{}}
}

// Add registers a variant factory under a slot. Re-registering a name
// replaces the previous factory, which test fixtures rely on.
func (c *Catalog) Add(slot Slot, variant string, f Factory) {
	variant = strings.ToLower(variant)
	if c.factories[slot] == nil {
		c.factories[slot] = map[string]Factory{}
	}
	c.factories[slot][variant] = f
}

// Variants lists the registered variant names for a slot, sorted.
func (c *Catalog) Variants(slot Slot) []string {
	var out []string
	for name := range c.factories[slot] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Build instantiates the named variant for a slot.
func (c *Catalog) Build(slot Slot, variant string) (Component, error) {
	f, ok := c.factories[slot][strings.ToLower(variant)]
	if !ok {
		return nil, fmt.Errorf("slot %s: unknown variant %q (available: %v)", slot, variant, c.Variants(slot))
	}
	return f(), nil
}
