package workflow

import (
	"fmt"
	"sort"

	"github.com/pipevine/pipevine/pkg/errors"
)

// Node represents one externally-executed computation with a statically
// declared port signature. It is created at workflow-definition time and
// mutated only before the execution graph is built: parameters may be set and
// iterables declared. The graph builder snapshots node state, so later
// mutation has no effect on a built graph.
type Node struct {
	name      string
	iface     Interface
	params    map[string]interface{}
	iterables map[string][]interface{}
}

// NewNode creates a node wrapping the given interface.
func NewNode(name string, iface Interface) (*Node, error) {
	if !ValidName(name) {
		return nil, errors.NewConfigurationError(name, "invalid node name (must start with a letter, contain only alphanumerics and underscore)")
	}
	if iface == nil {
		return nil, errors.NewConfigurationError(name, "node interface cannot be nil")
	}
	return &Node{
		name:      name,
		iface:     iface,
		params:    make(map[string]interface{}),
		iterables: make(map[string][]interface{}),
	}, nil
}

// Name returns the node's name within its workflow.
func (n *Node) Name() string {
	return n.name
}

// Interface returns the node's interface.
func (n *Node) Interface() Interface {
	return n.iface
}

// SetParam binds a scalar configuration value to an input port at definition
// time. The port must exist on the interface signature. A port bound by a
// parameter may not also receive a connection; Connect and graph validation
// enforce that a port has exactly one producer.
func (n *Node) SetParam(field string, value interface{}) error {
	if _, ok := n.iface.Signature().Input(field); !ok {
		return errors.NewConfigurationError(
			n.name+"."+field,
			"unknown input port on interface %s", n.iface.Name())
	}
	n.params[field] = value
	return nil
}

// Param returns the value bound to an input port, if any.
func (n *Node) Param(field string) (interface{}, bool) {
	v, ok := n.params[field]
	return v, ok
}

// Params returns a copy of the node's parameter map.
func (n *Node) Params() map[string]interface{} {
	out := make(map[string]interface{}, len(n.params))
	for k, v := range n.params {
		out[k] = v
	}
	return out
}

// setIterable records an ordered candidate list for an input port. Callers go
// through Workflow.SetIterable, which also checks the port has no incoming
// connection.
func (n *Node) setIterable(field string, values []interface{}) error {
	if _, ok := n.iface.Signature().Input(field); !ok {
		return errors.NewConfigurationError(
			n.name+"."+field,
			"unknown input port on interface %s", n.iface.Name())
	}
	if len(values) == 0 {
		return errors.NewConfigurationError(n.name+"."+field, "iterable requires at least one candidate value")
	}
	vals := make([]interface{}, len(values))
	copy(vals, values)
	n.iterables[field] = vals
	return nil
}

// Iterables returns the node's iterable fields sorted by name, each with a
// copy of its candidate values.
func (n *Node) Iterables() []IterableSpec {
	fields := make([]string, 0, len(n.iterables))
	for f := range n.iterables {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	specs := make([]IterableSpec, 0, len(fields))
	for _, f := range fields {
		vals := make([]interface{}, len(n.iterables[f]))
		copy(vals, n.iterables[f])
		specs = append(specs, IterableSpec{Field: f, Values: vals})
	}
	return specs
}

// HasIterable reports whether the field carries an iterable declaration.
func (n *Node) HasIterable(field string) bool {
	_, ok := n.iterables[field]
	return ok
}

// clone produces an independently mutable copy sharing the (immutable)
// interface.
func (n *Node) clone() *Node {
	params := make(map[string]interface{}, len(n.params))
	for k, v := range n.params {
		params[k] = v
	}
	iterables := make(map[string][]interface{}, len(n.iterables))
	for k, v := range n.iterables {
		vals := make([]interface{}, len(v))
		copy(vals, v)
		iterables[k] = vals
	}
	return &Node{name: n.name, iface: n.iface, params: params, iterables: iterables}
}

// memberName implements Member.
func (n *Node) memberName() string {
	return n.name
}

// IterableSpec is one declared parameter sweep: a field and its ordered
// candidate values.
type IterableSpec struct {
	Field  string
	Values []interface{}
}

func (s IterableSpec) String() string {
	return fmt.Sprintf("%s=%v", s.Field, s.Values)
}
