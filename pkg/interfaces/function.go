package interfaces

import (
	"context"
	"fmt"

	"github.com/pipevine/pipevine/pkg/workflow"
)

// RunFunc is the body of a Function interface. It receives the merged,
// resolved inputs and must return a value for every declared output.
type RunFunc func(ctx context.Context, req *workflow.RunRequest) (map[string]interface{}, error)

// Function wraps an in-process Go function as a node interface. It is the
// cheapest way to splice custom logic between external steps without paying
// for process spawning or artifact serialization.
type Function struct {
	name string
	sig  *workflow.Signature
	fn   RunFunc
}

// NewFunction builds a function interface around fn. A Go function body has
// no marshalable configuration, so the name alone identifies the behavior in
// cache keys: give behaviorally distinct functions distinct names.
func NewFunction(name string, sig *workflow.Signature, fn RunFunc) (*Function, error) {
	if !workflow.ValidName(name) {
		return nil, fmt.Errorf("function: invalid interface name %q", name)
	}
	if fn == nil {
		return nil, fmt.Errorf("function %s: nil run func", name)
	}
	return &Function{name: name, sig: sig, fn: fn}, nil
}

// Name implements workflow.Interface.
func (f *Function) Name() string {
	return f.name
}

// Signature implements workflow.Interface.
func (f *Function) Signature() *workflow.Signature {
	return f.sig
}

// Run implements workflow.Interface.
func (f *Function) Run(ctx context.Context, req *workflow.RunRequest) (map[string]interface{}, error) {
	return f.fn(ctx, req)
}
