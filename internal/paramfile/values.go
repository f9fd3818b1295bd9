// Package paramfile reads and writes the operator-facing parameter document:
// a flat, case-insensitive key/value mapping split into free-form parameters
// and a paths section. The primary format is HCL; the legacy YAML format used
// by earlier pipelines loads into the identical namespace. The package also
// renders the merged requirement template served by `configure`.
package paramfile

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/waveflow/internal/manifest"
)

// Values holds the parsed parameter document. Parameters and paths live in
// separate namespaces; keys are canonicalized to upper case on entry.
type Values struct {
	params map[string]cty.Value
	paths  map[string]cty.Value
}

// NewValues returns an empty document.
func NewValues() *Values {
	return &Values{
		params: map[string]cty.Value{},
		paths:  map[string]cty.Value{},
	}
}

// Params exposes the live parameter map. Validation fills defaults into it.
func (v *Values) Params() map[string]cty.Value { return v.params }

// Paths exposes the live path map.
func (v *Values) Paths() map[string]cty.Value { return v.paths }

// SetParam stores a parameter value under the canonical key.
func (v *Values) SetParam(key string, val cty.Value) {
	v.params[manifest.Canonical(key)] = val
}

// SetPath stores a path value under the canonical key.
func (v *Values) SetPath(key string, val cty.Value) {
	v.paths[manifest.Canonical(key)] = val
}

// Param looks up a parameter. Null values count as unset.
func (v *Values) Param(key string) (cty.Value, bool) {
	val, ok := v.params[manifest.Canonical(key)]
	if !ok || val.IsNull() {
		return cty.NilVal, false
	}
	return val, true
}

// Path looks up a path entry. Null values count as unset.
func (v *Values) Path(key string) (cty.Value, bool) {
	val, ok := v.paths[manifest.Canonical(key)]
	if !ok || val.IsNull() {
		return cty.NilVal, false
	}
	return val, true
}

// String returns the parameter as a string, or "" when unset.
func (v *Values) String(key string) string {
	var out string
	if val, ok := v.Param(key); ok {
		if err := gocty.FromCtyValue(val, &out); err != nil {
			return ""
		}
	}
	return out
}

// Int returns the parameter as an int, or 0 when unset.
func (v *Values) Int(key string) int {
	var out int
	if val, ok := v.Param(key); ok {
		if err := gocty.FromCtyValue(val, &out); err != nil {
			return 0
		}
	}
	return out
}

// Float returns the parameter as a float64, or 0 when unset.
func (v *Values) Float(key string) float64 {
	var out float64
	if val, ok := v.Param(key); ok {
		if err := gocty.FromCtyValue(val, &out); err != nil {
			return 0
		}
	}
	return out
}

// Bool returns the parameter as a bool, or false when unset.
func (v *Values) Bool(key string) bool {
	var out bool
	if val, ok := v.Param(key); ok {
		if err := gocty.FromCtyValue(val, &out); err != nil {
			return false
		}
	}
	return out
}

// StringList returns a list-valued parameter, or nil when unset.
func (v *Values) StringList(key string) []string {
	val, ok := v.Param(key)
	if !ok {
		return nil
	}
	var out []string
	for it := val.ElementIterator(); it.Next(); {
		_, ev := it.Element()
		var s string
		if err := gocty.FromCtyValue(ev, &s); err != nil {
			return nil
		}
		out = append(out, s)
	}
	return out
}

// PathOf returns the path entry as a string, or "" when unset.
func (v *Values) PathOf(key string) string {
	var out string
	if val, ok := v.Path(key); ok {
		if err := gocty.FromCtyValue(val, &out); err != nil {
			return ""
		}
	}
	return out
}

// Clone returns an independent copy. The checkpoint store snapshots values
// through this so persisted state never aliases live maps.
func (v *Values) Clone() *Values {
	out := NewValues()
	for k, val := range v.params {
		out.params[k] = val
	}
	for k, val := range v.paths {
		out.paths[k] = val
	}
	return out
}

// Variant returns the component variant chosen for a slot-choice parameter,
// normalized to lower case the way variant names are registered.
func (v *Values) Variant(slotKey string) (string, error) {
	val, ok := v.Param(slotKey)
	if !ok {
		return "", fmt.Errorf("parameter %q: no component variant chosen", manifest.Canonical(slotKey))
	}
	if val.Type() != cty.String {
		return "", fmt.Errorf("parameter %q: variant name must be a string", manifest.Canonical(slotKey))
	}
	return val.AsString(), nil
}
