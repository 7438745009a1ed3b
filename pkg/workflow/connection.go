package workflow

import "strings"

// PortAddr addresses a port on a member node, using a dotted node path
// relative to the workflow that owns the connection (e.g. node "realign" or
// "preproc.realign").
type PortAddr struct {
	Node string
	Port string
}

// String returns the qualified "node.path.port" form.
func (a PortAddr) String() string {
	return a.Node + "." + a.Port
}

// Connection is a typed edge from an output port of one member to an input
// port of another, both within the same workflow. A destination port receives
// at most one connection; fan-out from a source port is unrestricted.
type Connection struct {
	From PortAddr
	To   PortAddr
}

// Link is the connect-time form of a connection: qualified "node.port" or
// "sub.node.port" strings. The last segment names the port; everything before
// it is the member path.
type Link struct {
	From string
	To   string
}

// splitRef splits a qualified reference into its node path and port name.
// ok is false when there is no path component.
func splitRef(ref string) (nodePath, port string, ok bool) {
	idx := strings.LastIndex(ref, ".")
	if idx <= 0 || idx == len(ref)-1 {
		return "", "", false
	}
	return ref[:idx], ref[idx+1:], true
}
