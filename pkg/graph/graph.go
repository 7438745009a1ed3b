// Package graph turns nested workflow definitions into one flattened,
// validated, cycle-free execution graph. Building a graph never executes a
// node: structural violations surface as ConfigurationError or CycleError
// before any work is scheduled.
package graph

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pipevine/pipevine/pkg/errors"
	"github.com/pipevine/pipevine/pkg/workflow"
)

// ExecNode is one concrete, schedulable node of the execution graph. Its
// identity is stable: the originating definition path plus the iterable-value
// tuple that produced it, so two expansions of the same template node are
// distinguishable and independently cacheable.
type ExecNode struct {
	// ID is the unique execution-graph identity.
	ID string
	// DefPath is the dotted definition path relative to the root workflow
	// (e.g. "preproc.realign").
	DefPath string
	// Iface is the node's interface.
	Iface workflow.Interface
	// Params holds the resolved static parameters, including the iterable
	// value assigned to this clone.
	Params map[string]interface{}
	// Tuple records the iterable bindings that produced this clone.
	Tuple Tuple
	// Ins and Outs are the node's incoming and outgoing edges.
	Ins  []*Edge
	Outs []*Edge
}

// Edge connects an output port of one execution node to an input port of
// another.
type Edge struct {
	From     *ExecNode
	FromPort string
	To       *ExecNode
	ToPort   string
}

// Binding assigns one iterable field a concrete value.
type Binding struct {
	// Source is the definition path of the node that declared the iterable.
	Source string
	// Field is the iterable field name.
	Field string
	// Value is the candidate value for this clone's lineage.
	Value interface{}
}

// Tuple is an ordered set of bindings, sorted by (Source, Field). Ordering is
// part of the clone's identity.
type Tuple []Binding

// Value returns the bound value for an iterable field. ok is false when the
// field is unbound, and also when independent sweeps from different source
// nodes bind the same field name: such a lookup has no single answer and the
// caller must qualify it by source. Used by the output router to substitute
// naming templates.
func (t Tuple) Value(field string) (interface{}, bool) {
	bindings := t.Bindings(field)
	if len(bindings) != 1 {
		return nil, false
	}
	return bindings[0].Value, true
}

// Bindings returns every binding of the given field name. A cross-product
// tuple holds at most one binding per (source, field), so two results always
// come from two different declaring nodes.
func (t Tuple) Bindings(field string) []Binding {
	var out []Binding
	for _, b := range t {
		if b.Field == field {
			out = append(out, b)
		}
	}
	return out
}

// SourceValue returns the value bound by one specific declaring node.
func (t Tuple) SourceValue(source, field string) (interface{}, bool) {
	for _, b := range t {
		if b.Source == source && b.Field == field {
			return b.Value, true
		}
	}
	return nil, false
}

var unsafeIdentChars = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// Suffix renders the tuple as a deterministic identity suffix, one
// "_field_value" segment per binding.
func (t Tuple) Suffix() string {
	if len(t) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, b := range t {
		sb.WriteString("_")
		sb.WriteString(b.Field)
		sb.WriteString("_")
		sb.WriteString(unsafeIdentChars.ReplaceAllString(fmt.Sprint(b.Value), "-"))
	}
	return sb.String()
}

// restrict returns the sub-tuple containing only bindings whose spec key is
// in keys, preserving order.
func (t Tuple) restrict(keys map[string]bool) Tuple {
	var out Tuple
	for _, b := range t {
		if keys[b.Source+"."+b.Field] {
			out = append(out, b)
		}
	}
	return out
}

func (t Tuple) key() string {
	segs := make([]string, len(t))
	for i, b := range t {
		segs[i] = fmt.Sprintf("%s.%s=%v", b.Source, b.Field, b.Value)
	}
	return strings.Join(segs, ";")
}

// Graph is the flattened, cycle-free execution graph.
type Graph struct {
	nodes map[string]*ExecNode
	order []string
}

// Node returns the execution node with the given identity.
func (g *Graph) Node(id string) (*ExecNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all execution nodes in deterministic order.
func (g *Graph) Nodes() []*ExecNode {
	out := make([]*ExecNode, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the number of execution nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) addNode(n *ExecNode) {
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
}

func (g *Graph) addEdge(from *ExecNode, fromPort string, to *ExecNode, toPort string) {
	e := &Edge{From: from, FromPort: fromPort, To: to, ToPort: toPort}
	from.Outs = append(from.Outs, e)
	to.Ins = append(to.Ins, e)
}

// Build flattens the root workflow, expands iterables, and validates the
// result. The returned graph is immutable and ready to schedule.
func Build(root *workflow.Workflow) (*Graph, error) {
	if err := root.Validate(); err != nil {
		return nil, err
	}
	defs, edges := flatten(root)
	sorted, err := topoSort(defs, edges)
	if err != nil {
		return nil, err
	}
	g := expand(sorted, edges)
	if err := validate(g); err != nil {
		return nil, err
	}
	return g, nil
}

// defNode is a flattened definition node: a leaf node of the workflow tree
// addressed by its dotted path.
type defNode struct {
	path string
	node *workflow.Node
}

// defEdge is a flattened connection between definition paths.
type defEdge struct {
	fromPath, fromPort string
	toPath, toPort     string
}

// flatten walks the workflow tree and produces path-addressed leaf nodes and
// prefix-qualified connections. Exposed aliases were already resolved to
// canonical member paths at connect time.
func flatten(root *workflow.Workflow) ([]*defNode, []defEdge) {
	var defs []*defNode
	var edges []defEdge
	flattenInto(root, "", &defs, &edges)
	return defs, edges
}

func flattenInto(w *workflow.Workflow, prefix string, defs *[]*defNode, edges *[]defEdge) {
	for _, m := range w.Members() {
		switch mm := m.(type) {
		case *workflow.Node:
			*defs = append(*defs, &defNode{path: prefix + mm.Name(), node: mm})
		case *workflow.Workflow:
			flattenInto(mm, prefix+mm.Name()+".", defs, edges)
		}
	}
	for _, conn := range w.Connections() {
		*edges = append(*edges, defEdge{
			fromPath: prefix + conn.From.Node,
			fromPort: conn.From.Port,
			toPath:   prefix + conn.To.Node,
			toPort:   conn.To.Port,
		})
	}
}

// topoSort orders definition nodes with Kahn's algorithm. Any node left with
// unresolved in-degree after a stable pass signals a cycle.
func topoSort(defs []*defNode, edges []defEdge) ([]*defNode, error) {
	byPath := make(map[string]*defNode, len(defs))
	inDegree := make(map[string]int, len(defs))
	adjacency := make(map[string][]string)
	for _, d := range defs {
		byPath[d.path] = d
		inDegree[d.path] = 0
	}
	for _, e := range edges {
		adjacency[e.fromPath] = append(adjacency[e.fromPath], e.toPath)
		inDegree[e.toPath]++
	}

	var queue []string
	for _, d := range defs {
		if inDegree[d.path] == 0 {
			queue = append(queue, d.path)
		}
	}

	var sorted []*defNode
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		sorted = append(sorted, byPath[current])
		for _, neighbor := range adjacency[current] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(sorted) != len(defs) {
		var remaining []string
		for path, degree := range inDegree {
			if degree > 0 {
				remaining = append(remaining, path)
			}
		}
		sort.Strings(remaining)
		return nil, &errors.CycleError{Nodes: remaining}
	}
	return sorted, nil
}
