package page

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition declares a page and its elements in pages/*.yaml.
type Definition struct {
	Name     string              `yaml:"name"`
	Path     string              `yaml:"path"`
	Title    string              `yaml:"title,omitempty"`
	Elements []ElementDefinition `yaml:"elements"`
}

// ElementDefinition declares one element. Locator accepts either a mapping
// with strategy and value or the shorthand "strategy=value".
type ElementDefinition struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Locator     *Locator `yaml:"locator,omitempty"`
}

// UnmarshalYAML accepts "strategy=value" as well as the mapping form.
func (l *Locator) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		strategy, value, ok := strings.Cut(node.Value, "=")
		if !ok {
			return fmt.Errorf("line %d: locator %q must be strategy=value", node.Line, node.Value)
		}
		st, err := ParseStrategy(strategy)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*l = Locator{Strategy: st, Value: value}
		return nil
	}

	var raw struct {
		Strategy string `yaml:"strategy"`
		Value    string `yaml:"value"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	st, err := ParseStrategy(raw.Strategy)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*l = Locator{Strategy: st, Value: raw.Value}
	return nil
}

// Validate checks names are present and unique.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("page definition has no name")
	}
	seen := make(map[string]bool, len(d.Elements))
	for i, el := range d.Elements {
		if el.Name == "" {
			return fmt.Errorf("page %s: element %d has no name", d.Name, i)
		}
		if seen[el.Name] {
			return fmt.Errorf("page %s: duplicate element %q", d.Name, el.Name)
		}
		seen[el.Name] = true
	}
	return nil
}

// LoadDefinition reads one page definition. The file name stands in for a
// missing name.
func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to read page definition: %w", err)
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("failed to parse page definition %s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// LoadDefinitions reads every *.yaml and *.yml file in dir, sorted by name.
// A missing directory yields no definitions.
func LoadDefinitions(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pages dir: %w", err)
	}

	var defs []Definition
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		def, err := LoadDefinition(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}
