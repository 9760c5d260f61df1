package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes turns a YAML document into JSON so both formats go
// through the same strict decoder. It returns the detected format.
//
// .json is taken as-is, .yaml/.yml is converted. Any other extension is
// sniffed: a leading '{' means JSON, anything else is treated as YAML.
func coerceToJSONBytes(name string, data []byte) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return data, "json", nil
	case ".yaml", ".yml":
	default:
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
			return data, "json", nil
		}
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, "yaml", fmt.Errorf("yaml unmarshal: %w", err)
	}
	if v == nil {
		// Empty document decodes to an all-defaults config.
		return []byte("{}"), "yaml", nil
	}

	j, err := json.Marshal(stringKeys(v))
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, "yaml", nil
}

// stringKeys rewrites map[any]any nodes so the tree is JSON-marshalable.
// Snowflake IDs written as bare numbers stay numbers and fail strict decode
// into string fields, which points the user at quoting them.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = stringKeys(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return in
	}
}

// foldLegacyTexts moves top-level "texts_<lang>" blocks under "texts".<lang>.
// An explicit texts.<lang> entry wins. Input that is not a JSON object is
// returned unchanged for the strict decoder to report.
func foldLegacyTexts(jb []byte) []byte {
	if !bytes.Contains(jb, []byte(`"texts_`)) {
		return jb
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(jb, &top); err != nil {
		return jb
	}
	var texts map[string]json.RawMessage
	if raw, ok := top["texts"]; ok {
		if err := json.Unmarshal(raw, &texts); err != nil {
			return jb
		}
	}
	if texts == nil {
		texts = map[string]json.RawMessage{}
	}

	moved := false
	for k, v := range top {
		lang, ok := strings.CutPrefix(k, "texts_")
		if !ok || lang == "" {
			continue
		}
		if _, exists := texts[lang]; !exists {
			texts[lang] = v
		}
		delete(top, k)
		moved = true
	}
	if !moved {
		return jb
	}

	tb, err := json.Marshal(texts)
	if err != nil {
		return jb
	}
	top["texts"] = tb
	out, err := json.Marshal(top)
	if err != nil {
		return jb
	}
	return out
}
