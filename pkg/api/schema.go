package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	ischema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaError is one failed keyword in a validation result.
type SchemaError struct {
	Message    string `json:"message"`
	Path       string `json:"path"`
	SchemaPath string `json:"schema_path"`
}

// Result is the outcome of Check.
type Result struct {
	Valid  bool          `json:"valid"`
	Errors []SchemaError `json:"errors,omitempty"`
}

// Validator checks JSON values against schema files. Compiled schemas are
// cached by path.
type Validator struct {
	dir string

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
	inline  int
}

// NewValidator returns a validator resolving relative schema paths
// against dir.
func NewValidator(dir string) *Validator {
	return &Validator{dir: dir, schemas: make(map[string]*jsonschema.Schema)}
}

// Validate checks data against the schema file at path. The error is a
// *jsonschema.ValidationError when data does not match.
func (v *Validator) Validate(data any, path string) error {
	sch, err := v.compile(path)
	if err != nil {
		return err
	}
	return sch.Validate(normalize(data))
}

// Check is Validate reporting every failed keyword instead of an error.
// Schema load failures are reported as a single error entry.
func (v *Validator) Check(data any, path string) Result {
	return result(v.Validate(data, path))
}

// CheckDocument validates data against an in-memory schema, such as one
// built by SchemaFromExample.
func (v *Validator) CheckDocument(data, schema any) Result {
	sch, err := v.compileDocument(schema)
	if err != nil {
		return result(err)
	}
	return result(sch.Validate(normalize(data)))
}

func (v *Validator) compile(path string) (*jsonschema.Schema, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.dir, path)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if sch, ok := v.schemas[path]; ok {
		return sch, nil
	}
	sch, err := jsonschema.NewCompiler().Compile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", path, err)
	}
	v.schemas[path] = sch
	return sch, nil
}

func (v *Validator) compileDocument(schema any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}

	v.mu.Lock()
	v.inline++
	loc := fmt.Sprintf("mem://inline/%d.json", v.inline)
	v.mu.Unlock()

	c := jsonschema.NewCompiler()
	if err := c.AddResource(loc, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema: %w", err)
	}
	sch, err := c.Compile(loc)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	return sch, nil
}

func result(err error) Result {
	if err == nil {
		return Result{Valid: true}
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return Result{Errors: []SchemaError{{Message: err.Error()}}}
	}
	var out []SchemaError
	var walk func(jsonschema.OutputUnit)
	walk = func(u jsonschema.OutputUnit) {
		if u.Error != nil {
			out = append(out, SchemaError{
				Message:    u.Error.String(),
				Path:       u.InstanceLocation,
				SchemaPath: u.KeywordLocation,
			})
		}
		for _, nested := range u.Errors {
			walk(nested)
		}
	}
	walk(*verr.BasicOutput())
	return Result{Errors: out}
}

// normalize round-trips typed Go values, such as structs, through JSON so
// the validator sees maps and slices.
func normalize(data any) any {
	switch data.(type) {
	case nil, bool, string, json.Number, float64, int, int64, map[string]any, []any:
		return data
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	v, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return data
	}
	return v
}

// SchemaFromExample infers a schema from a decoded JSON sample. Arrays are
// typed by their first item; an empty array accepts any item. Properties
// are not marked required since one sample cannot show optionality.
func SchemaFromExample(example any) *ischema.Schema {
	switch v := example.(type) {
	case nil:
		return &ischema.Schema{Type: "null"}
	case bool:
		return &ischema.Schema{Type: "boolean"}
	case string:
		return &ischema.Schema{Type: "string"}
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return &ischema.Schema{Type: "integer"}
		}
		return &ischema.Schema{Type: "number"}
	case int, int32, int64:
		return &ischema.Schema{Type: "integer"}
	case float32, float64:
		return &ischema.Schema{Type: "number"}
	case map[string]any:
		props := ischema.NewProperties()
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			props.Set(k, SchemaFromExample(v[k]))
		}
		return &ischema.Schema{Type: "object", Properties: props}
	case []any:
		items := ischema.TrueSchema
		if len(v) > 0 {
			items = SchemaFromExample(v[0])
		}
		return &ischema.Schema{Type: "array", Items: items}
	default:
		return &ischema.Schema{}
	}
}
