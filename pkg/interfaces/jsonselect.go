package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/gjson"

	"github.com/pipevine/pipevine/pkg/workflow"
)

// JSONSelect extracts a value from a JSON document by gjson path. The source
// may be a file artifact produced upstream, a raw JSON string, or any value
// marshalable to JSON; the latter lets it reach into structured in-memory
// outputs without a serialization node in between.
type JSONSelect struct {
	sig *workflow.Signature
}

// NewJSONSelect declares a selector. Inputs: source (any, required) and
// path (string, required, normally a static parameter). Output: value (any).
func NewJSONSelect() *JSONSelect {
	return &JSONSelect{
		sig: workflow.MustSignature(
			[]workflow.PortSpec{
				{Name: "source", Type: workflow.TypeAny, Required: true},
				{Name: "path", Type: workflow.TypeString, Required: true},
			},
			[]workflow.PortSpec{
				{Name: "value", Type: workflow.TypeAny},
			},
		),
	}
}

// Name implements workflow.Interface.
func (j *JSONSelect) Name() string {
	return "jsonselect"
}

// Signature implements workflow.Interface.
func (j *JSONSelect) Signature() *workflow.Signature {
	return j.sig
}

// Run loads the source document and evaluates the path against it. A path
// matching nothing is an error.
func (j *JSONSelect) Run(_ context.Context, req *workflow.RunRequest) (map[string]interface{}, error) {
	path, ok := req.InputString("path")
	if !ok {
		return nil, fmt.Errorf("jsonselect: input %q must be a string", "path")
	}

	doc, err := loadDocument(req.Inputs["source"])
	if err != nil {
		return nil, fmt.Errorf("jsonselect: %w", err)
	}
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("jsonselect: source is not valid JSON")
	}

	result := gjson.GetBytes(doc, path)
	if !result.Exists() {
		return nil, fmt.Errorf("jsonselect: path %q matched nothing", path)
	}
	return map[string]interface{}{"value": result.Value()}, nil
}

// loadDocument turns a source value into JSON bytes. A string naming an
// existing file is read from disk; any other string is taken as the document
// itself; everything else is marshaled.
func loadDocument(source interface{}) ([]byte, error) {
	switch v := source.(type) {
	case string:
		if _, err := os.Stat(v); err == nil {
			data, err := os.ReadFile(v)
			if err != nil {
				return nil, fmt.Errorf("reading source file %s: %w", v, err)
			}
			return data, nil
		}
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshaling source value: %w", err)
		}
		return data, nil
	}
}
