package graph

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// ExportDOT writes the flattened, expanded topology in Graphviz DOT form.
// The export reflects the exact graph the scheduler would run, produced
// without executing any node.
func (g *Graph) ExportDOT(w io.Writer) error {
	var sb strings.Builder
	sb.WriteString("digraph pipeline {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, fontname=\"Helvetica\"];\n")
	for _, n := range g.Nodes() {
		label := n.DefPath
		if suffix := n.Tuple.Suffix(); suffix != "" {
			label += "\\n" + strings.TrimPrefix(suffix, "_")
		}
		sb.WriteString(fmt.Sprintf("  %q [label=%q];\n", n.ID, label))
	}
	for _, n := range g.Nodes() {
		for _, e := range n.Outs {
			sb.WriteString(fmt.Sprintf("  %q -> %q [label=%q];\n",
				e.From.ID, e.To.ID, e.FromPort+" -> "+e.ToPort))
		}
	}
	sb.WriteString("}\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

// WriteDOTFile renders the graph to a file.
func (g *Graph) WriteDOTFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create graph file: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := g.ExportDOT(f); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	return nil
}
