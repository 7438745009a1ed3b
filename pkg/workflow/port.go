package workflow

import (
	"fmt"
	"sort"
)

// PortType classifies the value carried by a port.
type PortType string

const (
	// TypeString carries a text value.
	TypeString PortType = "string"
	// TypeInt carries an integer value.
	TypeInt PortType = "int"
	// TypeFloat carries a floating point value.
	TypeFloat PortType = "float"
	// TypeBool carries a boolean value.
	TypeBool PortType = "bool"
	// TypeFile carries a reference to a single file-system artifact.
	TypeFile PortType = "file"
	// TypeFileList carries an ordered list of file-system artifacts.
	TypeFileList PortType = "filelist"
	// TypeAny is compatible with every other type.
	TypeAny PortType = "any"
)

// validPortTypes are the allowed port types.
var validPortTypes = map[PortType]bool{
	TypeString:   true,
	TypeInt:      true,
	TypeFloat:    true,
	TypeBool:     true,
	TypeFile:     true,
	TypeFileList: true,
	TypeAny:      true,
}

// Compatible reports whether a value produced as type `from` may feed a port
// declared as type `to`. TypeAny matches everything; all other types must
// match exactly.
func Compatible(from, to PortType) bool {
	if from == TypeAny || to == TypeAny {
		return true
	}
	return from == to
}

// IsFileType reports whether the type refers to on-disk artifacts.
func (t PortType) IsFileType() bool {
	return t == TypeFile || t == TypeFileList
}

// PortSpec declares a single named, typed port on an interface.
type PortSpec struct {
	Name     string
	Type     PortType
	Required bool
	// Default is used when an optional input is neither connected nor bound
	// by a parameter. Ignored for outputs.
	Default interface{}
}

// Signature is the statically declared port registry of an interface: its
// named typed inputs and outputs. Ports are registered once, at interface
// construction time; connect operations are checked against the signature
// immediately, so unknown names are rejected at definition time.
type Signature struct {
	inputs  map[string]PortSpec
	outputs map[string]PortSpec
}

// NewSignature creates an empty signature.
func NewSignature() *Signature {
	return &Signature{
		inputs:  make(map[string]PortSpec),
		outputs: make(map[string]PortSpec),
	}
}

// AddInput registers an input port. Registering the same name twice is an
// error: a port is declared exactly once.
func (s *Signature) AddInput(spec PortSpec) error {
	if err := validatePortSpec(spec); err != nil {
		return err
	}
	if _, exists := s.inputs[spec.Name]; exists {
		return fmt.Errorf("signature: input port %q already declared", spec.Name)
	}
	s.inputs[spec.Name] = spec
	return nil
}

// AddOutput registers an output port.
func (s *Signature) AddOutput(spec PortSpec) error {
	if err := validatePortSpec(spec); err != nil {
		return err
	}
	if _, exists := s.outputs[spec.Name]; exists {
		return fmt.Errorf("signature: output port %q already declared", spec.Name)
	}
	s.outputs[spec.Name] = spec
	return nil
}

// Input returns the spec for a named input port.
func (s *Signature) Input(name string) (PortSpec, bool) {
	spec, ok := s.inputs[name]
	return spec, ok
}

// Output returns the spec for a named output port.
func (s *Signature) Output(name string) (PortSpec, bool) {
	spec, ok := s.outputs[name]
	return spec, ok
}

// Inputs returns all input specs sorted by name.
func (s *Signature) Inputs() []PortSpec {
	return sortedSpecs(s.inputs)
}

// Outputs returns all output specs sorted by name.
func (s *Signature) Outputs() []PortSpec {
	return sortedSpecs(s.outputs)
}

func sortedSpecs(m map[string]PortSpec) []PortSpec {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	specs := make([]PortSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, m[name])
	}
	return specs
}

func validatePortSpec(spec PortSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("signature: empty port name")
	}
	if !validIdentifierRegex.MatchString(spec.Name) {
		return fmt.Errorf("signature: invalid port name %q (must start with a letter, contain only alphanumerics and underscore)", spec.Name)
	}
	if !validPortTypes[spec.Type] {
		return fmt.Errorf("signature: port %q has invalid type %q", spec.Name, spec.Type)
	}
	return nil
}

// MustSignature builds a signature from input and output specs, panicking on
// a declaration error. Intended for interface constructors whose port sets
// are fixed at compile time.
func MustSignature(inputs, outputs []PortSpec) *Signature {
	sig := NewSignature()
	for _, spec := range inputs {
		if err := sig.AddInput(spec); err != nil {
			panic(err)
		}
	}
	for _, spec := range outputs {
		if err := sig.AddOutput(spec); err != nil {
			panic(err)
		}
	}
	return sig
}
