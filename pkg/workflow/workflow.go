package workflow

import (
	stderrors "errors"
	"sort"
	"strings"

	"github.com/pipevine/pipevine/pkg/errors"
)

// Member is a node or sub-workflow held by a workflow. The interface is
// sealed: only *Node and *Workflow implement it.
type Member interface {
	memberName() string
}

// Workflow is a named, composable container of member nodes and
// sub-workflows plus their internal connections. A workflow may expose a
// subset of member ports under its own aliases so peers can connect to it as
// if it were a single node. Internal connections never reference members
// outside the workflow.
type Workflow struct {
	name    string
	members map[string]Member
	order   []string
	conns   []*Connection
	exposed map[string]PortAddr
}

// NewWorkflow creates an empty workflow with the given name.
func NewWorkflow(name string) (*Workflow, error) {
	if !ValidName(name) {
		return nil, errors.NewConfigurationError(name, "invalid workflow name (must start with a letter, contain only alphanumerics and underscore)")
	}
	return &Workflow{
		name:    name,
		members: make(map[string]Member),
		exposed: make(map[string]PortAddr),
	}, nil
}

// Name returns the workflow's name.
func (w *Workflow) Name() string {
	return w.name
}

// memberName implements Member.
func (w *Workflow) memberName() string {
	return w.name
}

// AddNode adds a member node. Member names are unique within a workflow.
func (w *Workflow) AddNode(node *Node) error {
	if node == nil {
		return stderrors.New("cannot add nil node")
	}
	return w.add(node)
}

// AddWorkflow nests a sub-workflow as a member.
func (w *Workflow) AddWorkflow(sub *Workflow) error {
	if sub == nil {
		return stderrors.New("cannot add nil workflow")
	}
	return w.add(sub)
}

func (w *Workflow) add(m Member) error {
	name := m.memberName()
	if _, exists := w.members[name]; exists {
		return errors.NewConfigurationError(w.name+"."+name, "duplicate member name")
	}
	w.members[name] = m
	w.order = append(w.order, name)
	return nil
}

// Member returns the named member, if present.
func (w *Workflow) Member(name string) (Member, bool) {
	m, ok := w.members[name]
	return m, ok
}

// Members returns members in insertion order.
func (w *Workflow) Members() []Member {
	out := make([]Member, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, w.members[name])
	}
	return out
}

// Connections returns a copy of the workflow's internal connections. Node
// paths in the returned connections are canonical (exposed aliases resolved).
func (w *Workflow) Connections() []*Connection {
	out := make([]*Connection, len(w.conns))
	copy(out, w.conns)
	return out
}

// Connect records typed edges between member ports. Each link is validated
// immediately against the interface signatures: unknown ports, type
// mismatches, and destination ports that already have a producer (connection
// or static parameter) are rejected with a ConfigurationError. No execution
// occurs.
//
// Fan-out is legal: one source port may feed any number of destinations.
// Fan-in is not: a destination port takes its value from exactly one
// producer.
func (w *Workflow) Connect(links ...Link) error {
	for _, link := range links {
		fromPath, fromPort, ok := splitRef(link.From)
		if !ok {
			return errors.NewConfigurationError(link.From, "malformed source reference (want node.port)")
		}
		toPath, toPort, ok := splitRef(link.To)
		if !ok {
			return errors.NewConfigurationError(link.To, "malformed destination reference (want node.port)")
		}

		fromSpec, fromAddr, err := w.resolve(strings.Split(fromPath, "."), fromPort, true)
		if err != nil {
			return err
		}
		toSpec, toAddr, err := w.resolve(strings.Split(toPath, "."), toPort, false)
		if err != nil {
			return err
		}

		if !Compatible(fromSpec.Type, toSpec.Type) {
			return errors.NewConfigurationError(
				link.From+" -> "+link.To,
				"type mismatch: %s is %s, %s is %s", link.From, fromSpec.Type, link.To, toSpec.Type)
		}

		if w.hasProducer(strings.Split(toAddr.Node, "."), toAddr.Port) {
			return errors.NewConfigurationError(link.To, "destination port already has a connection")
		}
		destNode, err := w.nodeAt(strings.Split(toAddr.Node, "."))
		if err != nil {
			return err
		}
		if _, bound := destNode.Param(toAddr.Port); bound {
			return errors.NewConfigurationError(link.To, "destination port is already bound by a static parameter")
		}
		if destNode.HasIterable(toAddr.Port) {
			return errors.NewConfigurationError(link.To, "destination port carries an iterable and cannot also be connected")
		}

		w.conns = append(w.conns, &Connection{From: fromAddr, To: toAddr})
	}
	return nil
}

// resolve walks a dotted member path down the workflow tree and returns the
// port spec together with the canonical address (aliases resolved) relative
// to this workflow. output selects whether the port is looked up among
// outputs or inputs; when addressing a sub-workflow directly (a single path
// segment naming a nested workflow), the port names an exposed alias.
func (w *Workflow) resolve(pathSegs []string, port string, output bool) (PortSpec, PortAddr, error) {
	if len(pathSegs) == 0 || pathSegs[0] == "" {
		return PortSpec{}, PortAddr{}, errors.NewConfigurationError(port, "empty member path")
	}
	head := pathSegs[0]
	m, ok := w.members[head]
	if !ok {
		return PortSpec{}, PortAddr{}, errors.NewConfigurationError(
			w.name+"."+head, "unknown member")
	}

	switch mm := m.(type) {
	case *Node:
		if len(pathSegs) > 1 {
			return PortSpec{}, PortAddr{}, errors.NewConfigurationError(
				strings.Join(pathSegs, "."), "%s is a node, not a workflow", head)
		}
		var spec PortSpec
		if output {
			spec, ok = mm.Interface().Signature().Output(port)
		} else {
			spec, ok = mm.Interface().Signature().Input(port)
		}
		if !ok {
			kind := "input"
			if output {
				kind = "output"
			}
			return PortSpec{}, PortAddr{}, errors.NewConfigurationError(
				head+"."+port, "unknown %s port on interface %s", kind, mm.Interface().Name())
		}
		return spec, PortAddr{Node: head, Port: port}, nil

	case *Workflow:
		if len(pathSegs) == 1 {
			// Addressing the sub-workflow as if it were a node: the port
			// must be an exposed alias.
			target, ok := mm.exposed[port]
			if !ok {
				return PortSpec{}, PortAddr{}, errors.NewConfigurationError(
					head+"."+port, "workflow %s does not expose port %q", head, port)
			}
			spec, addr, err := mm.resolve(strings.Split(target.Node, "."), target.Port, output)
			if err != nil {
				return PortSpec{}, PortAddr{}, err
			}
			return spec, PortAddr{Node: head + "." + addr.Node, Port: addr.Port}, nil
		}
		spec, addr, err := mm.resolve(pathSegs[1:], port, output)
		if err != nil {
			return PortSpec{}, PortAddr{}, err
		}
		return spec, PortAddr{Node: head + "." + addr.Node, Port: addr.Port}, nil

	default:
		return PortSpec{}, PortAddr{}, errors.NewConfigurationError(head, "unsupported member kind")
	}
}

// nodeAt returns the node at a canonical dotted path.
func (w *Workflow) nodeAt(pathSegs []string) (*Node, error) {
	if len(pathSegs) == 0 {
		return nil, errors.NewConfigurationError(w.name, "empty node path")
	}
	m, ok := w.members[pathSegs[0]]
	if !ok {
		return nil, errors.NewConfigurationError(w.name+"."+pathSegs[0], "unknown member")
	}
	switch mm := m.(type) {
	case *Node:
		if len(pathSegs) > 1 {
			return nil, errors.NewConfigurationError(strings.Join(pathSegs, "."), "%s is a node, not a workflow", pathSegs[0])
		}
		return mm, nil
	case *Workflow:
		if len(pathSegs) == 1 {
			return nil, errors.NewConfigurationError(pathSegs[0], "%s is a workflow, not a node", pathSegs[0])
		}
		return mm.nodeAt(pathSegs[1:])
	default:
		return nil, errors.NewConfigurationError(pathSegs[0], "unsupported member kind")
	}
}

// hasProducer reports whether the canonical destination port already receives
// a connection, at this level or inside the nested workflow owning it.
func (w *Workflow) hasProducer(pathSegs []string, port string) bool {
	addr := PortAddr{Node: strings.Join(pathSegs, "."), Port: port}
	for _, conn := range w.conns {
		if conn.To == addr {
			return true
		}
	}
	if len(pathSegs) > 1 {
		if sub, ok := w.members[pathSegs[0]].(*Workflow); ok {
			return sub.hasProducer(pathSegs[1:], port)
		}
	}
	return false
}

// Expose re-exports a member's port under a workflow-level alias, so external
// connections can address workflow.alias without knowing internal structure.
// The target is a qualified "node.port" reference; it may name an input or an
// output.
func (w *Workflow) Expose(alias, target string) error {
	if !ValidName(alias) {
		return errors.NewConfigurationError(alias, "invalid alias name")
	}
	if _, exists := w.exposed[alias]; exists {
		return errors.NewConfigurationError(w.name+"."+alias, "alias already exposed")
	}
	path, port, ok := splitRef(target)
	if !ok {
		return errors.NewConfigurationError(target, "malformed expose target (want node.port)")
	}
	segs := strings.Split(path, ".")
	_, addr, err := w.resolve(segs, port, false)
	if err != nil {
		// Not an input; the alias may re-export an output.
		var outErr error
		_, addr, outErr = w.resolve(segs, port, true)
		if outErr != nil {
			return err
		}
	}
	w.exposed[alias] = addr
	return nil
}

// Exposed returns the exposed aliases sorted by name.
func (w *Workflow) Exposed() map[string]PortAddr {
	out := make(map[string]PortAddr, len(w.exposed))
	for alias, addr := range w.exposed {
		out[alias] = addr
	}
	return out
}

// SetIterable declares an ordered candidate list on a member node's field.
// Only fields without an incoming connection may be iterable: a field is
// either computed upstream or varied by a sweep, never both.
func (w *Workflow) SetIterable(nodePath, field string, values []interface{}) error {
	segs := strings.Split(nodePath, ".")
	node, err := w.nodeAt(segs)
	if err != nil {
		return err
	}
	if w.hasProducer(segs, field) {
		return errors.NewConfigurationError(nodePath+"."+field, "iterable field already has an incoming connection")
	}
	return node.setIterable(field, values)
}

// Clone produces a deep, independently mutable copy of the workflow under a
// new root name. Node identities inside the clone are rooted at the new name;
// every internal connection and exposure is preserved; the original is
// unaffected.
func (w *Workflow) Clone(newName string) (*Workflow, error) {
	if !ValidName(newName) {
		return nil, errors.NewConfigurationError(newName, "invalid workflow name")
	}
	return w.cloneAs(newName), nil
}

func (w *Workflow) cloneAs(name string) *Workflow {
	cp := &Workflow{
		name:    name,
		members: make(map[string]Member, len(w.members)),
		order:   append([]string(nil), w.order...),
		exposed: make(map[string]PortAddr, len(w.exposed)),
	}
	for memberName, m := range w.members {
		switch mm := m.(type) {
		case *Node:
			cp.members[memberName] = mm.clone()
		case *Workflow:
			cp.members[memberName] = mm.cloneAs(mm.name)
		}
	}
	cp.conns = make([]*Connection, len(w.conns))
	for i, conn := range w.conns {
		c := *conn
		cp.conns[i] = &c
	}
	for alias, addr := range w.exposed {
		cp.exposed[alias] = addr
	}
	return cp
}

// Validate checks composition invariants that can be broken after Connect:
// a parameter set on a port that later received a connection, or a duplicate
// destination introduced through separate nesting levels. Violations are
// accumulated and returned as a single ConfigurationError.
func (w *Workflow) Validate() error {
	var violations []string
	seen := make(map[string]bool)
	w.validateInto("", seen, &violations)
	if len(violations) > 0 {
		sort.Strings(violations)
		return errors.NewConfigurationError(w.name, "%s", strings.Join(violations, "; "))
	}
	return nil
}

func (w *Workflow) validateInto(prefix string, seen map[string]bool, violations *[]string) {
	for _, conn := range w.conns {
		dest := prefix + conn.To.Node + "." + conn.To.Port
		if seen[dest] {
			*violations = append(*violations, "destination port "+dest+" has more than one connection")
		}
		seen[dest] = true

		node, err := w.nodeAt(strings.Split(conn.To.Node, "."))
		if err != nil {
			continue
		}
		if _, bound := node.Param(conn.To.Port); bound {
			*violations = append(*violations, "port "+dest+" is both connected and bound by a parameter")
		}
		if node.HasIterable(conn.To.Port) {
			*violations = append(*violations, "port "+dest+" is both connected and iterable")
		}
	}
	for _, name := range w.order {
		if sub, ok := w.members[name].(*Workflow); ok {
			sub.validateInto(prefix+name+".", seen, violations)
		}
	}
}
