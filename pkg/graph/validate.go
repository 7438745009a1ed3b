package graph

import (
	"github.com/pipevine/pipevine/pkg/errors"
)

// validate rejects invalid expanded topologies before any execution starts:
// every required input on every node must be satisfied by exactly one
// connection, static parameter, or declared default, and no port may have
// more than one producer. Connect already enforces port existence and
// single-producer within one composition tree; this pass re-checks the final
// graph so violations introduced by late parameter mutation cannot slip
// through.
func validate(g *Graph) error {
	for _, n := range g.Nodes() {
		connected := make(map[string]int)
		for _, in := range n.Ins {
			connected[in.ToPort]++
		}
		for port, count := range connected {
			if count > 1 {
				return errors.NewConfigurationError(
					n.ID+"."+port, "destination port has %d connections, want at most 1", count)
			}
			if _, bound := n.Params[port]; bound {
				return errors.NewConfigurationError(
					n.ID+"."+port, "port is both connected and bound by a parameter")
			}
		}
		for _, spec := range n.Iface.Signature().Inputs() {
			if !spec.Required {
				continue
			}
			if connected[spec.Name] > 0 {
				continue
			}
			if _, bound := n.Params[spec.Name]; bound {
				continue
			}
			if spec.Default != nil {
				continue
			}
			return errors.NewConfigurationError(
				n.ID+"."+spec.Name, "required input is not satisfied by any connection, parameter, or default")
		}
	}
	return nil
}
