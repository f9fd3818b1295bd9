package paramfile

import (
	"encoding/json"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// The checkpoint store persists the resolved document alongside component
// state. cty values carry their type through ctyjson so a restored document
// is indistinguishable from a freshly parsed one.

type encodedValue struct {
	Type  json.RawMessage `json:"type"`
	Value json.RawMessage `json:"value"`
}

type encodedValues struct {
	Params map[string]encodedValue `json:"parameters"`
	Paths  map[string]encodedValue `json:"paths"`
}

func encodeMap(m map[string]cty.Value) (map[string]encodedValue, error) {
	out := make(map[string]encodedValue, len(m))
	for key, val := range m {
		ty, err := ctyjson.MarshalType(val.Type())
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		raw, err := ctyjson.Marshal(val, val.Type())
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = encodedValue{Type: ty, Value: raw}
	}
	return out, nil
}

func decodeMap(m map[string]encodedValue) (map[string]cty.Value, error) {
	out := make(map[string]cty.Value, len(m))
	for key, enc := range m {
		ty, err := ctyjson.UnmarshalType(enc.Type)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		val, err := ctyjson.Unmarshal(enc.Value, ty)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = val
	}
	return out, nil
}

// MarshalJSON implements json.Marshaler.
func (v *Values) MarshalJSON() ([]byte, error) {
	params, err := encodeMap(v.params)
	if err != nil {
		return nil, err
	}
	paths, err := encodeMap(v.paths)
	if err != nil {
		return nil, err
	}
	return json.Marshal(encodedValues{Params: params, Paths: paths})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Values) UnmarshalJSON(data []byte) error {
	var enc encodedValues
	if err := json.Unmarshal(data, &enc); err != nil {
		return err
	}
	params, err := decodeMap(enc.Params)
	if err != nil {
		return err
	}
	paths, err := decodeMap(enc.Paths)
	if err != nil {
		return err
	}
	v.params = params
	v.paths = paths
	return nil
}
