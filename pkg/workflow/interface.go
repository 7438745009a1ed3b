package workflow

import "context"

// Interface is the uniform node-execution contract. A node kind conforms by
// declaring its typed ports through Signature and performing its external
// computation in Run. The engine never interprets what Run computes; it only
// resolves inputs, checks the declared outputs, and caches the result.
//
// Run is expected to be deterministic given identical inputs and parameters.
// The caching layer relies on this precondition.
type Interface interface {
	// Name identifies the interface kind. It participates in cache keys
	// together with the configuration fingerprint, so two interfaces with
	// different behavior must differ in name or fingerprint.
	Name() string

	// Signature returns the declared port registry. The returned signature
	// must be stable for the lifetime of the interface.
	Signature() *Signature

	// Run performs the computation. Inputs in the request satisfy every
	// required input port. File artifacts must be written under
	// req.WorkDir; the returned map must populate every declared output.
	Run(ctx context.Context, req *RunRequest) (map[string]interface{}, error)
}

// Fingerprinter is implemented by interfaces whose behavior is shaped by
// configuration beyond the node's parameters and resolved inputs: a command
// line, a filesystem template, a declared field set. The fingerprint
// participates in cache keys so that two same-named interfaces configured
// differently never share a cache entry. Names alone cannot carry this:
// definition files derive interface names from node names, which are only
// unique within one workflow level.
type Fingerprinter interface {
	// Fingerprint returns a stable rendering of the configuration.
	Fingerprint() string
}

// RunRequest carries everything an interface needs for one execution.
type RunRequest struct {
	// NodeID is the execution-graph identity of the node being run.
	NodeID string
	// Inputs maps every resolved input port to its value: connection values,
	// static parameters, and defaults merged, connections taking precedence
	// per the single-producer rule.
	Inputs map[string]interface{}
	// Params holds only the statically bound parameters, for interfaces that
	// distinguish configuration from data.
	Params map[string]interface{}
	// WorkDir is the node's private working directory. It exists and is
	// owned exclusively by this execution.
	WorkDir string
}

// InputString returns a string-typed input, with ok=false when absent or of
// another type.
func (r *RunRequest) InputString(name string) (string, bool) {
	v, ok := r.Inputs[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// InputStrings returns a filelist/array input coerced to []string. JSON
// round-trips turn string slices into []interface{}, so both shapes are
// accepted.
func (r *RunRequest) InputStrings(name string) ([]string, bool) {
	v, ok := r.Inputs[name]
	if !ok {
		return nil, false
	}
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
