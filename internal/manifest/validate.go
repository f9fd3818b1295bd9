package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Mode restricts which namespaces a check covers. The init lifecycle command
// validates paths only; submit validates both.
type Mode int

const (
	Both Mode = iota
	PathsOnly
	ParamsOnly
)

func (m Mode) covers(k Kind) bool {
	switch m {
	case PathsOnly:
		return k == Path
	case ParamsOnly:
		return k == Param
	default:
		return true
	}
}

// TypeError records a supplied value that cannot satisfy its declared type.
type TypeError struct {
	Key  string
	Kind Kind
	Want cty.Type
	Got  cty.Type
}

func (e TypeError) String() string {
	return fmt.Sprintf("%s %q: want %s, got %s", e.Kind, e.Key, e.Want.FriendlyName(), e.Got.FriendlyName())
}

// Report accumulates every problem found in one validation pass. Missing and
// TypeErrors are fatal; Unused and Defaulted are informational.
type Report struct {
	Missing    []string
	TypeErrors []TypeError
	Unused     []string
	Defaulted  []string
}

// Fatal reports whether the checked document is unusable.
func (r *Report) Fatal() bool {
	return len(r.Missing) > 0 || len(r.TypeErrors) > 0
}

// Err returns a single error enumerating every fatal problem, or nil.
func (r *Report) Err() error {
	if !r.Fatal() {
		return nil
	}
	var lines []string
	for _, k := range r.Missing {
		lines = append(lines, fmt.Sprintf("missing required key %q", k))
	}
	for _, te := range r.TypeErrors {
		lines = append(lines, te.String())
	}
	return fmt.Errorf("parameter document invalid:\n- %s", strings.Join(lines, "\n- "))
}

// Check validates supplied values against the merged requirement entries.
// It accumulates every problem rather than stopping at the first, fills
// declared defaults directly into the supplied maps, and reports unknown
// keys as warnings so forward-compatible documents keep loading.
func Check(entries []Entry, params, paths map[string]cty.Value, mode Mode) *Report {
	r := &Report{}
	declared := map[string]struct{}{}

	for _, e := range entries {
		values := params
		if e.Kind == Path {
			values = paths
		}
		declared[fmt.Sprintf("%d/%s", e.Kind, e.Key)] = struct{}{}
		if !mode.covers(e.Kind) {
			continue
		}

		val, ok := values[e.Key]
		if !ok || val == cty.NilVal || val.IsNull() {
			if e.HasDefault() {
				values[e.Key] = e.Default
				r.Defaulted = append(r.Defaulted, e.Key)
			} else if e.Required {
				r.Missing = append(r.Missing, e.Key)
			}
			continue
		}

		converted, err := convert.Convert(val, e.Type)
		if err != nil {
			r.TypeErrors = append(r.TypeErrors, TypeError{Key: e.Key, Kind: e.Kind, Want: e.Type, Got: val.Type()})
			continue
		}
		// Normalize so components read exactly the declared type.
		values[e.Key] = converted
	}

	for key := range params {
		if !mode.covers(Param) {
			break
		}
		if _, ok := declared[fmt.Sprintf("%d/%s", Param, key)]; !ok {
			r.Unused = append(r.Unused, key)
		}
	}
	for key := range paths {
		if !mode.covers(Path) {
			break
		}
		if _, ok := declared[fmt.Sprintf("%d/%s", Path, key)]; !ok {
			r.Unused = append(r.Unused, key)
		}
	}
	sort.Strings(r.Unused)
	return r
}
