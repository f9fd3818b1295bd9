package manifest

import (
	"errors"
	"fmt"
)

// ConflictError reports two components declaring the same key with
// incompatible metadata. Configuration cannot proceed: the document would be
// ambiguous about which declaration a supplied value satisfies.
type ConflictError struct {
	Key    string
	Kind   Kind
	Owners []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting requirement: %s %q declared incompatibly by %v", e.Kind, e.Key, e.Owners)
}

// Merge unions the manifests of every registered component into one ordered
// entry list. Identical duplicate declarations collapse onto the first owner.
// Duplicates that disagree on type or requiredness are collected and returned
// together as one error, so the operator sees every conflict in one pass.
func Merge(sets ...*Set) ([]Entry, error) {
	var (
		merged []Entry
		index  = map[string]int{} // "kind/key" -> position in merged
		errs   []error
	)
	for _, s := range sets {
		for _, e := range s.entries {
			id := fmt.Sprintf("%d/%s", e.Kind, e.Key)
			at, seen := index[id]
			if !seen {
				index[id] = len(merged)
				merged = append(merged, e)
				continue
			}
			prev := merged[at]
			if !prev.Type.Equals(e.Type) || prev.Required != e.Required {
				errs = append(errs, &ConflictError{
					Key:    e.Key,
					Kind:   e.Kind,
					Owners: []string{prev.Owner, e.Owner},
				})
				continue
			}
			// Compatible re-declaration. Keep the first owner and default,
			// but don't lose a default the later component provides.
			if !prev.HasDefault() && e.HasDefault() {
				prev.Default = e.Default
				merged[at] = prev
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return merged, nil
}

// IsConflict reports whether err contains a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
