// Package decode implements the value decoder (spec §4.7): a strict JSON
// pass, then a permissive YAML pass, then a raw-string fallback. Decoding
// is computed fresh on every read and never cached, so no memoized value
// can outlive a cache mutation for the same id.
package decode

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Tesseract-Nexus/global-services/bws-cache/internal/secretmeta"
)

// Decode applies the three-stage policy to raw. enabled gates the whole
// pipeline: when false, Decode always returns the raw-string form (spec
// §4.7, gated by PARSE_SECRET_VALUES).
func Decode(raw string, enabled bool) *secretmeta.DecodedValue {
	if !enabled {
		return rawValue(raw)
	}

	var jsonVal any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&jsonVal); err == nil {
		if v, ok := asDecoded(jsonVal); ok {
			return v
		}
	}

	var yamlVal any
	if err := yaml.Unmarshal([]byte(raw), &yamlVal); err == nil {
		if v, ok := asDecoded(yamlVal); ok {
			return v
		}
	}

	return rawValue(raw)
}

// asDecoded converts a generically decoded value into a DecodedValue,
// only accepting object and array shapes; scalars fall through to the
// raw-string fallback since a bare decoded scalar would be ambiguous
// with the original string form.
func asDecoded(v any) (*secretmeta.DecodedValue, bool) {
	switch t := v.(type) {
	case map[string]any:
		return &secretmeta.DecodedValue{Mapping: t}, true
	case []any:
		return &secretmeta.DecodedValue{Sequence: t}, true
	default:
		return nil, false
	}
}

func rawValue(raw string) *secretmeta.DecodedValue {
	s := raw
	return &secretmeta.DecodedValue{String: &s}
}
