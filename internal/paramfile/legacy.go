package paramfile

import (
	"fmt"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/zclconf/go-cty/cty"
)

// loadYAML reads the legacy YAML document format: a top-level mapping for
// parameters with a nested `paths:` mapping. It normalizes into the same
// namespace as the HCL format, so a pipeline configured under the old layout
// keeps working unchanged.
func loadYAML(path string) (*Values, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	vals := NewValues()
	raw := k.Raw()
	for key, entry := range raw {
		if key == "paths" {
			nested, ok := entry.(map[string]interface{})
			if !ok && entry != nil {
				return nil, fmt.Errorf("parse %s: paths section must be a mapping", path)
			}
			for pkey, pval := range nested {
				val, err := goToCty(pval)
				if err != nil {
					return nil, fmt.Errorf("parse %s: path %q: %w", path, pkey, err)
				}
				vals.SetPath(pkey, val)
			}
			continue
		}
		val, err := goToCty(entry)
		if err != nil {
			return nil, fmt.Errorf("parse %s: parameter %q: %w", path, key, err)
		}
		vals.SetParam(key, val)
	}
	return vals, nil
}

// goToCty converts the decoded YAML scalars and sequences koanf produces
// into cty values matching what the HCL loader would yield.
func goToCty(v interface{}) (cty.Value, error) {
	switch tv := v.(type) {
	case nil:
		// A bare `KEY:` line means unset.
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(tv), nil
	case bool:
		return cty.BoolVal(tv), nil
	case int:
		return cty.NumberIntVal(int64(tv)), nil
	case int64:
		return cty.NumberIntVal(tv), nil
	case float64:
		return cty.NumberFloatVal(tv), nil
	case []interface{}:
		if len(tv) == 0 {
			return cty.EmptyTupleVal, nil
		}
		elems := make([]cty.Value, 0, len(tv))
		for _, ev := range tv {
			cv, err := goToCty(ev)
			if err != nil {
				return cty.NilVal, err
			}
			elems = append(elems, cv)
		}
		return cty.TupleVal(elems), nil
	default:
		return cty.NilVal, fmt.Errorf("unsupported value type %T", v)
	}
}
