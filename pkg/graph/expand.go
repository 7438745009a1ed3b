package graph

import (
	"sort"
)

// iterSpec is one declared sweep on a definition node, keyed by
// "sourcePath.field".
type iterSpec struct {
	source string
	field  string
	values []interface{}
}

func (s iterSpec) key() string {
	return s.source + "." + s.field
}

// expand turns templated definition nodes into concrete execution nodes, one
// per entry of the cross-product of every iterable reachable through forward
// connections. Expansion is sticky: once introduced it propagates downstream
// until the graph terminates. Two independent sweeps meeting at the same
// downstream node multiply into their joint cross-product; lineages are never
// merged.
//
// defs must be in topological order.
func expand(defs []*defNode, edges []defEdge) *Graph {
	// Specs reaching each definition node: its own sweeps plus the union of
	// everything reaching its upstream producers.
	upstream := make(map[string][]string)
	for _, e := range edges {
		upstream[e.toPath] = append(upstream[e.toPath], e.fromPath)
	}

	reach := make(map[string]map[string]iterSpec, len(defs))
	for _, d := range defs {
		specs := make(map[string]iterSpec)
		for _, up := range upstream[d.path] {
			for key, spec := range reach[up] {
				specs[key] = spec
			}
		}
		for _, it := range d.node.Iterables() {
			spec := iterSpec{source: d.path, field: it.Field, values: it.Values}
			specs[spec.key()] = spec
		}
		reach[d.path] = specs
	}

	g := &Graph{nodes: make(map[string]*ExecNode)}
	// Index clones by (definition path, tuple key) so edges can be re-pointed
	// lineage to lineage. cloneOrder keeps enumeration deterministic.
	clones := make(map[string]map[string]*ExecNode, len(defs))
	cloneOrder := make(map[string][]*ExecNode, len(defs))

	for _, d := range defs {
		specs := sortedSpecs(reach[d.path])
		clones[d.path] = make(map[string]*ExecNode)
		for _, tuple := range crossProduct(specs) {
			params := d.node.Params()
			for _, b := range tuple {
				if b.Source == d.path {
					params[b.Field] = b.Value
				}
			}
			n := &ExecNode{
				ID:      d.path + tuple.Suffix(),
				DefPath: d.path,
				Iface:   d.node.Interface(),
				Params:  params,
				Tuple:   tuple,
			}
			g.addNode(n)
			clones[d.path][tuple.key()] = n
			cloneOrder[d.path] = append(cloneOrder[d.path], n)
		}
	}

	for _, e := range edges {
		fromKeys := specKeys(reach[e.fromPath])
		for _, to := range cloneOrder[e.toPath] {
			// The producing clone is the one whose tuple is the restriction
			// of the consumer's tuple to the specs reaching the producer.
			from := clones[e.fromPath][to.Tuple.restrict(fromKeys).key()]
			g.addEdge(from, e.fromPort, to, e.toPort)
		}
	}

	return g
}

func sortedSpecs(m map[string]iterSpec) []iterSpec {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	specs := make([]iterSpec, 0, len(keys))
	for _, key := range keys {
		specs = append(specs, m[key])
	}
	return specs
}

func specKeys(m map[string]iterSpec) map[string]bool {
	keys := make(map[string]bool, len(m))
	for key := range m {
		keys[key] = true
	}
	return keys
}

// crossProduct enumerates every tuple over the given specs, preserving value
// order within each spec. With no specs it yields a single empty tuple.
func crossProduct(specs []iterSpec) []Tuple {
	tuples := []Tuple{nil}
	for _, spec := range specs {
		next := make([]Tuple, 0, len(tuples)*len(spec.values))
		for _, base := range tuples {
			for _, value := range spec.values {
				tuple := make(Tuple, len(base), len(base)+1)
				copy(tuple, base)
				tuple = append(tuple, Binding{Source: spec.source, Field: spec.field, Value: value})
				next = append(next, tuple)
			}
		}
		tuples = next
	}
	return tuples
}
