package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipevine/pipevine/pkg/errors"
)

type stubIface struct {
	name string
	sig  *Signature
}

func (s *stubIface) Name() string          { return s.name }
func (s *stubIface) Signature() *Signature { return s.sig }
func (s *stubIface) Run(_ context.Context, _ *RunRequest) (map[string]interface{}, error) {
	return nil, nil
}

func stub(name string, inputs, outputs []PortSpec) *stubIface {
	return &stubIface{name: name, sig: MustSignature(inputs, outputs)}
}

// passthrough declares one file input and one file output, the smallest
// useful processing step.
func passthrough(name string) *stubIface {
	return stub(name,
		[]PortSpec{{Name: "in_file", Type: TypeFile, Required: true}},
		[]PortSpec{{Name: "out_file", Type: TypeFile}})
}

func mustNode(t *testing.T, name string, iface Interface) *Node {
	t.Helper()
	n, err := NewNode(name, iface)
	require.NoError(t, err)
	return n
}

func TestConnect_Simple(t *testing.T) {
	wf, err := NewWorkflow("pipe")
	require.NoError(t, err)

	require.NoError(t, wf.AddNode(mustNode(t, "a", passthrough("step"))))
	require.NoError(t, wf.AddNode(mustNode(t, "b", passthrough("step"))))

	err = wf.Connect(Link{From: "a.out_file", To: "b.in_file"})
	require.NoError(t, err)

	conns := wf.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, PortAddr{Node: "a", Port: "out_file"}, conns[0].From)
	assert.Equal(t, PortAddr{Node: "b", Port: "in_file"}, conns[0].To)
}

func TestConnect_UnknownPort(t *testing.T) {
	wf, _ := NewWorkflow("pipe")
	require.NoError(t, wf.AddNode(mustNode(t, "a", passthrough("step"))))
	require.NoError(t, wf.AddNode(mustNode(t, "b", passthrough("step"))))

	err := wf.Connect(Link{From: "a.nope", To: "b.in_file"})
	require.Error(t, err)

	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "unknown output port")
}

func TestConnect_UnknownMember(t *testing.T) {
	wf, _ := NewWorkflow("pipe")
	require.NoError(t, wf.AddNode(mustNode(t, "a", passthrough("step"))))

	err := wf.Connect(Link{From: "a.out_file", To: "ghost.in_file"})
	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "unknown member")
}

func TestConnect_TypeMismatch(t *testing.T) {
	wf, _ := NewWorkflow("pipe")
	producer := stub("producer", nil, []PortSpec{{Name: "count", Type: TypeInt}})
	consumer := stub("consumer",
		[]PortSpec{{Name: "in_file", Type: TypeFile, Required: true}}, nil)

	require.NoError(t, wf.AddNode(mustNode(t, "p", producer)))
	require.NoError(t, wf.AddNode(mustNode(t, "c", consumer)))

	err := wf.Connect(Link{From: "p.count", To: "c.in_file"})
	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "type mismatch")
}

func TestConnect_AnyTypeIsCompatible(t *testing.T) {
	wf, _ := NewWorkflow("pipe")
	producer := stub("producer", nil, []PortSpec{{Name: "value", Type: TypeAny}})
	consumer := stub("consumer",
		[]PortSpec{{Name: "in_file", Type: TypeFile, Required: true}}, nil)

	require.NoError(t, wf.AddNode(mustNode(t, "p", producer)))
	require.NoError(t, wf.AddNode(mustNode(t, "c", consumer)))

	assert.NoError(t, wf.Connect(Link{From: "p.value", To: "c.in_file"}))
}

func TestConnect_FanInRejected(t *testing.T) {
	wf, _ := NewWorkflow("pipe")
	require.NoError(t, wf.AddNode(mustNode(t, "a", passthrough("step"))))
	require.NoError(t, wf.AddNode(mustNode(t, "b", passthrough("step"))))
	require.NoError(t, wf.AddNode(mustNode(t, "c", passthrough("step"))))

	require.NoError(t, wf.Connect(Link{From: "a.out_file", To: "c.in_file"}))

	err := wf.Connect(Link{From: "b.out_file", To: "c.in_file"})
	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "already has a connection")
}

func TestConnect_FanOutAllowed(t *testing.T) {
	wf, _ := NewWorkflow("pipe")
	require.NoError(t, wf.AddNode(mustNode(t, "a", passthrough("step"))))
	require.NoError(t, wf.AddNode(mustNode(t, "b", passthrough("step"))))
	require.NoError(t, wf.AddNode(mustNode(t, "c", passthrough("step"))))

	err := wf.Connect(
		Link{From: "a.out_file", To: "b.in_file"},
		Link{From: "a.out_file", To: "c.in_file"},
	)
	assert.NoError(t, err)
	assert.Len(t, wf.Connections(), 2)
}

func TestConnect_ParamBoundPortRejected(t *testing.T) {
	wf, _ := NewWorkflow("pipe")
	a := mustNode(t, "a", passthrough("step"))
	b := mustNode(t, "b", passthrough("step"))
	require.NoError(t, b.SetParam("in_file", "/data/fixed.nii"))
	require.NoError(t, wf.AddNode(a))
	require.NoError(t, wf.AddNode(b))

	err := wf.Connect(Link{From: "a.out_file", To: "b.in_file"})
	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "already bound by a static parameter")
}

func TestConnect_MalformedReference(t *testing.T) {
	wf, _ := NewWorkflow("pipe")
	require.NoError(t, wf.AddNode(mustNode(t, "a", passthrough("step"))))

	err := wf.Connect(Link{From: "a", To: "a.in_file"})
	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "malformed source reference")
}

func TestConnect_NestedQualifiedPath(t *testing.T) {
	inner, _ := NewWorkflow("inner")
	require.NoError(t, inner.AddNode(mustNode(t, "first", passthrough("step"))))
	require.NoError(t, inner.AddNode(mustNode(t, "second", passthrough("step"))))
	require.NoError(t, inner.Connect(Link{From: "first.out_file", To: "second.in_file"}))

	outer, _ := NewWorkflow("outer")
	require.NoError(t, outer.AddNode(mustNode(t, "head", passthrough("step"))))
	require.NoError(t, outer.AddWorkflow(inner))

	err := outer.Connect(Link{From: "head.out_file", To: "inner.first.in_file"})
	require.NoError(t, err)

	conns := outer.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, "inner.first", conns[0].To.Node)
}

func TestExpose_AliasResolution(t *testing.T) {
	inner, _ := NewWorkflow("inner")
	require.NoError(t, inner.AddNode(mustNode(t, "first", passthrough("step"))))
	require.NoError(t, inner.Expose("source_file", "first.in_file"))

	outer, _ := NewWorkflow("outer")
	require.NoError(t, outer.AddNode(mustNode(t, "head", passthrough("step"))))
	require.NoError(t, outer.AddWorkflow(inner))

	// Connecting to the exposed alias lands on the canonical inner port.
	require.NoError(t, outer.Connect(Link{From: "head.out_file", To: "inner.source_file"}))

	conns := outer.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, PortAddr{Node: "inner.first", Port: "in_file"}, conns[0].To)
}

func TestExpose_OutputAlias(t *testing.T) {
	inner, _ := NewWorkflow("inner")
	require.NoError(t, inner.AddNode(mustNode(t, "last", passthrough("step"))))
	require.NoError(t, inner.Expose("result", "last.out_file"))

	outer, _ := NewWorkflow("outer")
	require.NoError(t, outer.AddWorkflow(inner))
	require.NoError(t, outer.AddNode(mustNode(t, "tail", passthrough("step"))))

	require.NoError(t, outer.Connect(Link{From: "inner.result", To: "tail.in_file"}))

	conns := outer.Connections()
	require.Len(t, conns, 1)
	assert.Equal(t, PortAddr{Node: "inner.last", Port: "out_file"}, conns[0].From)
}

func TestExpose_Errors(t *testing.T) {
	wf, _ := NewWorkflow("inner")
	require.NoError(t, wf.AddNode(mustNode(t, "first", passthrough("step"))))

	require.Error(t, wf.Expose("bad alias", "first.in_file"))
	require.Error(t, wf.Expose("alias", "first.missing"))

	require.NoError(t, wf.Expose("alias", "first.in_file"))
	err := wf.Expose("alias", "first.in_file")
	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "already exposed")
}

func TestSetIterable_ConnectedFieldRejected(t *testing.T) {
	wf, _ := NewWorkflow("pipe")
	require.NoError(t, wf.AddNode(mustNode(t, "a", passthrough("step"))))
	require.NoError(t, wf.AddNode(mustNode(t, "b", passthrough("step"))))
	require.NoError(t, wf.Connect(Link{From: "a.out_file", To: "b.in_file"}))

	err := wf.SetIterable("b", "in_file", []interface{}{"x", "y"})
	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "already has an incoming connection")
}

func TestConnect_IterableFieldRejected(t *testing.T) {
	wf, _ := NewWorkflow("pipe")
	require.NoError(t, wf.AddNode(mustNode(t, "a", passthrough("step"))))
	require.NoError(t, wf.AddNode(mustNode(t, "b", passthrough("step"))))
	require.NoError(t, wf.SetIterable("b", "in_file", []interface{}{"x", "y"}))

	err := wf.Connect(Link{From: "a.out_file", To: "b.in_file"})
	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "carries an iterable")
}

func TestSetIterable_NestedPath(t *testing.T) {
	inner, _ := NewWorkflow("inner")
	require.NoError(t, inner.AddNode(mustNode(t, "first", passthrough("step"))))

	outer, _ := NewWorkflow("outer")
	require.NoError(t, outer.AddWorkflow(inner))

	require.NoError(t, outer.SetIterable("inner.first", "in_file", []interface{}{"x"}))

	node, err := inner.nodeAt([]string{"first"})
	require.NoError(t, err)
	assert.True(t, node.HasIterable("in_file"))
}

func TestClone_Independent(t *testing.T) {
	inner, _ := NewWorkflow("inner")
	require.NoError(t, inner.AddNode(mustNode(t, "first", passthrough("step"))))
	require.NoError(t, inner.AddNode(mustNode(t, "second", passthrough("step"))))
	require.NoError(t, inner.Connect(Link{From: "first.out_file", To: "second.in_file"}))
	require.NoError(t, inner.Expose("entry", "first.in_file"))

	original, _ := NewWorkflow("volanalysis")
	require.NoError(t, original.AddWorkflow(inner))
	require.NoError(t, original.SetIterable("inner.first", "in_file", []interface{}{"a", "b"}))

	cloned, err := original.Clone("surfanalysis")
	require.NoError(t, err)
	assert.Equal(t, "surfanalysis", cloned.Name())

	// Isomorphic topology.
	clonedInner, ok := cloned.Member("inner")
	require.True(t, ok)
	clonedSub, ok := clonedInner.(*Workflow)
	require.True(t, ok)
	assert.Len(t, clonedSub.Connections(), 1)
	assert.Contains(t, clonedSub.Exposed(), "entry")

	// Mutating the clone leaves the original untouched.
	clonedNode, err := clonedSub.nodeAt([]string{"second"})
	require.NoError(t, err)
	require.NoError(t, clonedNode.SetParam("in_file", "changed"))

	origSub := original.members["inner"].(*Workflow)
	origNode, err := origSub.nodeAt([]string{"second"})
	require.NoError(t, err)
	_, bound := origNode.Param("in_file")
	assert.False(t, bound)
}

func TestClone_InvalidName(t *testing.T) {
	wf, _ := NewWorkflow("pipe")
	_, err := wf.Clone("1bad")
	require.Error(t, err)
}

func TestValidate_ParamSetAfterConnect(t *testing.T) {
	wf, _ := NewWorkflow("pipe")
	a := mustNode(t, "a", passthrough("step"))
	b := mustNode(t, "b", passthrough("step"))
	require.NoError(t, wf.AddNode(a))
	require.NoError(t, wf.AddNode(b))
	require.NoError(t, wf.Connect(Link{From: "a.out_file", To: "b.in_file"}))

	// Connect already happened; a late SetParam breaks the single-producer
	// invariant and must be caught by Validate.
	require.NoError(t, b.SetParam("in_file", "/data/late.nii"))

	err := wf.Validate()
	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "both connected and bound by a parameter")
}

func TestDuplicateMemberName(t *testing.T) {
	wf, _ := NewWorkflow("pipe")
	require.NoError(t, wf.AddNode(mustNode(t, "a", passthrough("step"))))
	err := wf.AddNode(mustNode(t, "a", passthrough("step")))
	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "duplicate member name")
}

func TestNodeSetParam_UnknownPort(t *testing.T) {
	n := mustNode(t, "a", passthrough("step"))
	err := n.SetParam("missing", 1)
	require.Error(t, err)
}

func TestNodeParams_Copy(t *testing.T) {
	n := mustNode(t, "a", passthrough("step"))
	require.NoError(t, n.SetParam("in_file", "x"))

	params := n.Params()
	params["in_file"] = "mutated"

	v, _ := n.Param("in_file")
	assert.Equal(t, "x", v)
}
