// Package interfaces provides the built-in node kinds: identity pass-through
// fields, external command execution, in-process functions, templated
// file-system grabbing, and JSON artifact selection. Each conforms to the
// workflow.Interface contract; the engine treats them no differently from
// caller-supplied interfaces.
package interfaces

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pipevine/pipevine/pkg/workflow"
)

// Identity passes declared fields through unchanged. It is the usual way to
// give a workflow a single well-known entry node: feed the identity's fields
// by parameter, iterable, or connection and fan its outputs out to internal
// consumers.
type Identity struct {
	sig *workflow.Signature
}

// NewIdentity declares an identity interface over the given fields. Every
// field is both an optional input and an output of the same type.
func NewIdentity(fields map[string]workflow.PortType) (*Identity, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("identity: at least one field is required")
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	sig := workflow.NewSignature()
	for _, name := range names {
		if err := sig.AddInput(workflow.PortSpec{Name: name, Type: fields[name]}); err != nil {
			return nil, err
		}
		if err := sig.AddOutput(workflow.PortSpec{Name: name, Type: fields[name]}); err != nil {
			return nil, err
		}
	}
	return &Identity{sig: sig}, nil
}

// Name implements workflow.Interface.
func (i *Identity) Name() string {
	return "identity"
}

// Fingerprint implements workflow.Fingerprinter over the declared field set.
// Every identity shares the name, so only the fields distinguish them.
func (i *Identity) Fingerprint() string {
	specs := i.sig.Inputs()
	segs := make([]string, len(specs))
	for idx, spec := range specs {
		segs[idx] = spec.Name + ":" + string(spec.Type)
	}
	return strings.Join(segs, ",")
}

// Signature implements workflow.Interface.
func (i *Identity) Signature() *workflow.Signature {
	return i.sig
}

// Run copies every field from input to output. A field nobody populated is
// an error: some downstream consumer declared a dependency on it.
func (i *Identity) Run(_ context.Context, req *workflow.RunRequest) (map[string]interface{}, error) {
	outputs := make(map[string]interface{}, len(req.Inputs))
	for _, spec := range i.sig.Outputs() {
		value, ok := req.Inputs[spec.Name]
		if !ok {
			return nil, fmt.Errorf("identity: field %q was not resolved", spec.Name)
		}
		outputs[spec.Name] = value
	}
	return outputs, nil
}
