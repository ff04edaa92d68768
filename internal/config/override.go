package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Override assigns Value at a dotted Path. Overrides are applied in slice
// order, so a later override on a prefix or extension of an earlier path
// sees the earlier result.
type Override struct {
	Path  string
	Value any
}

// ParseOverride parses "a.b=value". The value is typed like a YAML scalar,
// so "true", "3" and "0.5" become bool, int and float64.
func ParseOverride(s string) (Override, error) {
	path, raw, ok := strings.Cut(s, "=")
	path = strings.TrimSpace(path)
	if !ok || path == "" {
		return Override{}, fmt.Errorf("invalid override %q: expected key=value", s)
	}

	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return Override{}, fmt.Errorf("invalid override value for %s: %w", path, err)
	}
	if value == nil && strings.TrimSpace(raw) == "" {
		value = ""
	}
	return Override{Path: path, Value: normalize(value)}, nil
}

// ParseOverrides parses a list of "key=value" strings, keeping their order.
func ParseOverrides(items []string) ([]Override, error) {
	out := make([]Override, 0, len(items))
	for _, item := range items {
		o, err := ParseOverride(item)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
