package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pipevine/pipevine/pkg/workflow"
)

// GrabSpec declares how a DataGrabber locates source files.
type GrabSpec struct {
	// BaseDirectory anchors every template expansion. Relative match results
	// are returned as absolute paths under it.
	BaseDirectory string

	// Template is a printf-style pattern, e.g. "%s/func/%s.nii", expanded
	// once per argument row and matched as a glob.
	Template string

	// Args maps each output port to its argument rows. Each row entry names
	// an input field; a field holding a list expands the row once per
	// element. Matches from all rows of a port are concatenated in order.
	Args map[string][][]string
}

// DataGrabber resolves files already on disk into workflow artifacts. It has
// no side effects and produces nothing itself, so it is the standard head
// node for pipelines over pre-existing datasets.
type DataGrabber struct {
	name string
	sig  *workflow.Signature
	spec GrabSpec
}

// NewDataGrabber builds a grabber interface. Every output must be a file or
// file list and must have at least one argument row; every row entry must
// name a declared input.
func NewDataGrabber(name string, sig *workflow.Signature, spec GrabSpec) (*DataGrabber, error) {
	if !workflow.ValidName(name) {
		return nil, fmt.Errorf("datagrabber: invalid interface name %q", name)
	}
	if spec.BaseDirectory == "" {
		return nil, fmt.Errorf("datagrabber %s: base directory is required", name)
	}
	if spec.Template == "" {
		return nil, fmt.Errorf("datagrabber %s: template is required", name)
	}
	for _, out := range sig.Outputs() {
		if !out.Type.IsFileType() {
			return nil, fmt.Errorf("datagrabber %s: output %q must be a file or file list, got %s", name, out.Name, out.Type)
		}
		rows, ok := spec.Args[out.Name]
		if !ok || len(rows) == 0 {
			return nil, fmt.Errorf("datagrabber %s: output %q has no argument rows", name, out.Name)
		}
		for _, row := range rows {
			for _, field := range row {
				if _, ok := sig.Input(field); !ok {
					return nil, fmt.Errorf("datagrabber %s: output %q references undeclared input %q", name, out.Name, field)
				}
			}
		}
	}
	for port := range spec.Args {
		if _, ok := sig.Output(port); !ok {
			return nil, fmt.Errorf("datagrabber %s: argument rows for undeclared output %q", name, port)
		}
	}
	return &DataGrabber{name: name, sig: sig, spec: spec}, nil
}

// Name implements workflow.Interface.
func (d *DataGrabber) Name() string {
	return d.name
}

// Fingerprint implements workflow.Fingerprinter over the grab configuration.
func (d *DataGrabber) Fingerprint() string {
	data, _ := json.Marshal(d.spec)
	return string(data)
}

// Signature implements workflow.Interface.
func (d *DataGrabber) Signature() *workflow.Signature {
	return d.sig
}

// Run expands the template for every argument row and globs the results.
// A pattern matching nothing is an error: silently empty inputs are far
// harder to debug downstream than a failed grab.
func (d *DataGrabber) Run(_ context.Context, req *workflow.RunRequest) (map[string]interface{}, error) {
	outputs := make(map[string]interface{}, len(d.spec.Args))
	for _, spec := range d.sig.Outputs() {
		var matches []string
		for _, row := range d.spec.Args[spec.Name] {
			expansions, err := d.expandRow(row, req.Inputs)
			if err != nil {
				return nil, fmt.Errorf("datagrabber %s: output %q: %w", d.name, spec.Name, err)
			}
			for _, values := range expansions {
				pattern := filepath.Join(d.spec.BaseDirectory, fmt.Sprintf(d.spec.Template, values...))
				found, err := filepath.Glob(pattern)
				if err != nil {
					return nil, fmt.Errorf("datagrabber %s: output %q: bad pattern %q: %w", d.name, spec.Name, pattern, err)
				}
				if len(found) == 0 {
					return nil, fmt.Errorf("datagrabber %s: output %q: no files match %q", d.name, spec.Name, pattern)
				}
				sort.Strings(found)
				matches = append(matches, found...)
			}
		}
		switch spec.Type {
		case workflow.TypeFile:
			if len(matches) > 1 {
				return nil, fmt.Errorf("datagrabber %s: output %q: %d files matched, want one", d.name, spec.Name, len(matches))
			}
			outputs[spec.Name] = matches[0]
		default:
			outputs[spec.Name] = matches
		}
	}
	return outputs, nil
}

// expandRow resolves a row's fields against the inputs. A list-valued field
// multiplies the row, preserving element order, so a single row can cover a
// whole set of sessions or runs.
func (d *DataGrabber) expandRow(row []string, inputs map[string]interface{}) ([][]interface{}, error) {
	expansions := [][]interface{}{{}}
	for _, field := range row {
		value, ok := inputs[field]
		if !ok {
			return nil, fmt.Errorf("argument field %q was not resolved", field)
		}
		var choices []interface{}
		if list, isList := asStringList(value); isList {
			for _, item := range list {
				choices = append(choices, item)
			}
		} else {
			choices = []interface{}{value}
		}
		next := make([][]interface{}, 0, len(expansions)*len(choices))
		for _, prefix := range expansions {
			for _, choice := range choices {
				values := make([]interface{}, len(prefix), len(prefix)+1)
				copy(values, prefix)
				next = append(next, append(values, choice))
			}
		}
		expansions = next
	}
	return expansions, nil
}
