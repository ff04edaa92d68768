package config

import (
	"fmt"
	"strings"
)

// DeepMerge returns a new tree with override layered onto base. When both
// sides hold a mapping for a key the mappings are merged recursively;
// otherwise the override value replaces the base value outright. Neither
// input is modified.
func DeepMerge(base, override map[string]any) map[string]any {
	result := cloneMap(base)
	for key, value := range override {
		baseMap, baseIsMap := result[key].(map[string]any)
		overrideMap, overrideIsMap := value.(map[string]any)
		if baseIsMap && overrideIsMap {
			result[key] = DeepMerge(baseMap, overrideMap)
			continue
		}
		result[key] = cloneValue(value)
	}
	return result
}

// lookupPath walks a dotted path through nested mappings.
func lookupPath(tree map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var current any = tree
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// setPath assigns value at a dotted path, creating intermediate mappings.
// A non-mapping intermediate is replaced by a fresh mapping; the replaced
// segment paths are returned so callers can report them.
func setPath(tree map[string]any, path string, value any) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("empty override path")
	}
	segments := strings.Split(path, ".")
	for _, s := range segments {
		if s == "" {
			return nil, fmt.Errorf("invalid override path %q", path)
		}
	}

	var replaced []string
	current := tree
	for i, segment := range segments[:len(segments)-1] {
		next, exists := current[segment]
		m, ok := next.(map[string]any)
		if !ok {
			if exists {
				replaced = append(replaced, strings.Join(segments[:i+1], "."))
			}
			m = map[string]any{}
			current[segment] = m
		}
		current = m
	}
	current[segments[len(segments)-1]] = cloneValue(value)
	return replaced, nil
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// normalize converts the map[any]any mappings yaml may produce for
// non-string keys into map[string]any, recursively.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		for i, item := range t {
			t[i] = normalize(item)
		}
		return t
	default:
		return v
	}
}
