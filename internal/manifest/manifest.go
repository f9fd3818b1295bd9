// Package manifest implements the declarative requirement system. Every
// pipeline component exposes a Set describing the configuration keys it
// needs: parameters and filesystem paths, each with a cty type, an optional
// default, and documentation. Sets from all registered components are merged
// into one namespace and checked against the operator's parameter document
// before any external job is launched.
package manifest

import (
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Kind separates the two key namespaces of a parameter document.
type Kind int

const (
	// Param is a free-form configuration parameter.
	Param Kind = iota
	// Path is a filesystem path listed in the document's paths section.
	Path
)

func (k Kind) String() string {
	if k == Path {
		return "path"
	}
	return "parameter"
}

// Entry is a single declared requirement.
type Entry struct {
	Key      string
	Kind     Kind
	Type     cty.Type
	Required bool
	Default  cty.Value // cty.NilVal when the entry has no default
	Doc      string
	Owner    string // variant name of the component that declared it
}

// HasDefault reports whether the entry carries a usable default value.
func (e Entry) HasDefault() bool {
	return e.Default != cty.NilVal
}

// Set is one component's ordered requirement manifest. Declaration order is
// preserved so template rendering stays deterministic.
type Set struct {
	owner   string
	entries []Entry
}

// New returns an empty manifest owned by the named component variant.
func New(owner string) *Set {
	return &Set{owner: owner}
}

// Canonical normalizes a key for case-insensitive lookup.
func Canonical(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// Owner returns the variant name this manifest belongs to.
func (s *Set) Owner() string { return s.owner }

// Entries returns a copy of the declared entries in declaration order.
func (s *Set) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Set) add(e Entry) *Set {
	e.Key = Canonical(e.Key)
	e.Owner = s.owner
	for i, old := range s.entries {
		// Redeclaring a key within one manifest replaces the earlier entry.
		// This is how a variant refines a manifest obtained through Join.
		if old.Key == e.Key && old.Kind == e.Kind {
			s.entries[i] = e
			return s
		}
	}
	s.entries = append(s.entries, e)
	return s
}

// Require declares a mandatory parameter with no default.
func (s *Set) Require(key string, ty cty.Type, doc string) *Set {
	return s.add(Entry{Key: key, Kind: Param, Type: ty, Required: true, Default: cty.NilVal, Doc: doc})
}

// Optional declares an optional parameter with no default.
func (s *Set) Optional(key string, ty cty.Type, doc string) *Set {
	return s.add(Entry{Key: key, Kind: Param, Type: ty, Doc: doc})
}

// Default declares an optional parameter whose type is implied by the default.
func (s *Set) Default(key string, def cty.Value, doc string) *Set {
	return s.add(Entry{Key: key, Kind: Param, Type: def.Type(), Default: def, Doc: doc})
}

// RequirePath declares a mandatory path entry.
func (s *Set) RequirePath(key, doc string) *Set {
	return s.add(Entry{Key: key, Kind: Path, Type: cty.String, Required: true, Default: cty.NilVal, Doc: doc})
}

// OptionalPath declares an optional path entry.
func (s *Set) OptionalPath(key, doc string) *Set {
	return s.add(Entry{Key: key, Kind: Path, Type: cty.String, Doc: doc})
}

// DefaultPath declares an optional path entry with a default location.
func (s *Set) DefaultPath(key, def, doc string) *Set {
	return s.add(Entry{Key: key, Kind: Path, Type: cty.String, Default: cty.StringVal(def), Doc: doc})
}

// Join builds the manifest of a variant that delegates to a base variant:
// the base entries come first, and any key the extension redeclares replaces
// the base declaration outright. The result is owned by the extension, which
// keeps merged-requirement conflicts attributable to one concrete variant.
func Join(base, ext *Set) *Set {
	out := New(ext.owner)
	for _, e := range base.entries {
		out.add(e)
	}
	for _, e := range ext.entries {
		out.add(e)
	}
	return out
}
