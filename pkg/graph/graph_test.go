package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipevine/pipevine/pkg/errors"
	"github.com/pipevine/pipevine/pkg/workflow"
)

type stubIface struct {
	name string
	sig  *workflow.Signature
}

func (s *stubIface) Name() string                   { return s.name }
func (s *stubIface) Signature() *workflow.Signature { return s.sig }
func (s *stubIface) Run(_ context.Context, _ *workflow.RunRequest) (map[string]interface{}, error) {
	return nil, nil
}

// step takes one optional string input and produces one string output, so
// chains can be assembled without worrying about required-input validation.
func step() *stubIface {
	return &stubIface{name: "step", sig: workflow.MustSignature(
		[]workflow.PortSpec{{Name: "value", Type: workflow.TypeString}},
		[]workflow.PortSpec{{Name: "result", Type: workflow.TypeString}},
	)}
}

func addNode(t *testing.T, wf *workflow.Workflow, name string) {
	t.Helper()
	n, err := workflow.NewNode(name, step())
	require.NoError(t, err)
	require.NoError(t, wf.AddNode(n))
}

func chain3(t *testing.T) *workflow.Workflow {
	t.Helper()
	wf, err := workflow.NewWorkflow("pipe")
	require.NoError(t, err)
	addNode(t, wf, "a")
	addNode(t, wf, "b")
	addNode(t, wf, "c")
	require.NoError(t, wf.Connect(
		workflow.Link{From: "a.result", To: "b.value"},
		workflow.Link{From: "b.result", To: "c.value"},
	))
	return wf
}

func TestBuild_FlattenNestedPaths(t *testing.T) {
	inner, err := workflow.NewWorkflow("preproc")
	require.NoError(t, err)
	addNode(t, inner, "realign")
	addNode(t, inner, "smooth")
	require.NoError(t, inner.Connect(workflow.Link{From: "realign.result", To: "smooth.value"}))

	root, err := workflow.NewWorkflow("level1")
	require.NoError(t, err)
	addNode(t, root, "head")
	require.NoError(t, root.AddWorkflow(inner))
	require.NoError(t, root.Connect(workflow.Link{From: "head.result", To: "preproc.realign.value"}))

	g, err := Build(root)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())

	_, ok := g.Node("head")
	assert.True(t, ok)
	_, ok = g.Node("preproc.realign")
	assert.True(t, ok)
	smooth, ok := g.Node("preproc.smooth")
	require.True(t, ok)

	// Dependencies follow both the nested and the cross-level connections.
	require.Len(t, smooth.Ins, 1)
	assert.Equal(t, "preproc.realign", smooth.Ins[0].From.ID)
}

func TestBuild_Cycle(t *testing.T) {
	wf, err := workflow.NewWorkflow("pipe")
	require.NoError(t, err)
	addNode(t, wf, "a")
	addNode(t, wf, "b")
	require.NoError(t, wf.Connect(
		workflow.Link{From: "a.result", To: "b.value"},
		workflow.Link{From: "b.result", To: "a.value"},
	))

	_, err = Build(wf)
	var cycleErr *errors.CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b"}, cycleErr.Nodes)
}

func TestExpand_ChainMultiplies(t *testing.T) {
	wf := chain3(t)
	require.NoError(t, wf.SetIterable("a", "value", []interface{}{"s01", "s02"}))

	g, err := Build(wf)
	require.NoError(t, err)

	// Two candidate values on the head of a 3-chain expand the whole chain:
	// six execution nodes.
	assert.Equal(t, 6, g.Len())

	n, ok := g.Node("a_value_s01")
	require.True(t, ok)
	assert.Equal(t, "a", n.DefPath)
	assert.Equal(t, "s01", n.Params["value"])

	// Lineage edges: the s02 clone of c consumes the s02 clone of b.
	c2, ok := g.Node("c_value_s02")
	require.True(t, ok)
	require.Len(t, c2.Ins, 1)
	assert.Equal(t, "b_value_s02", c2.Ins[0].From.ID)
}

func TestExpand_DownstreamHasNoOwnBinding(t *testing.T) {
	wf := chain3(t)
	require.NoError(t, wf.SetIterable("a", "value", []interface{}{"x"}))

	g, err := Build(wf)
	require.NoError(t, err)

	// Downstream clones carry the tuple in their identity but not in their
	// parameters; only the declaring node gets the value bound.
	b, ok := g.Node("b_value_x")
	require.True(t, ok)
	_, bound := b.Params["value"]
	assert.False(t, bound)
	v, ok := b.Tuple.Value("value")
	require.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestExpand_JointCrossProduct(t *testing.T) {
	wf, err := workflow.NewWorkflow("pipe")
	require.NoError(t, err)
	addNode(t, wf, "left")
	addNode(t, wf, "right")

	join := &stubIface{name: "join", sig: workflow.MustSignature(
		[]workflow.PortSpec{
			{Name: "lhs", Type: workflow.TypeString},
			{Name: "rhs", Type: workflow.TypeString},
		},
		[]workflow.PortSpec{{Name: "result", Type: workflow.TypeString}},
	)}
	jn, err := workflow.NewNode("join", join)
	require.NoError(t, err)
	require.NoError(t, wf.AddNode(jn))

	require.NoError(t, wf.Connect(
		workflow.Link{From: "left.result", To: "join.lhs"},
		workflow.Link{From: "right.result", To: "join.rhs"},
	))
	require.NoError(t, wf.SetIterable("left", "value", []interface{}{"a", "b"}))
	require.NoError(t, wf.SetIterable("right", "value", []interface{}{1, 2, 3}))

	g, err := Build(wf)
	require.NoError(t, err)

	// 2 left clones + 3 right clones + 6 join clones.
	assert.Equal(t, 11, g.Len())

	// Each join clone consumes exactly one left lineage and one right
	// lineage, never a merge.
	for _, n := range g.Nodes() {
		if n.DefPath != "join" {
			continue
		}
		require.Len(t, n.Ins, 2)
		require.Len(t, n.Tuple, 2)
	}

	n, ok := g.Node("join_value_b_value_2")
	require.True(t, ok)
	require.Len(t, n.Ins, 2)
}

func TestExpand_NoIterables(t *testing.T) {
	wf := chain3(t)
	g, err := Build(wf)
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())

	a, ok := g.Node("a")
	require.True(t, ok)
	assert.Empty(t, a.Tuple)
}

func TestTupleSuffix_SanitizesValues(t *testing.T) {
	tuple := Tuple{{Source: "a", Field: "path", Value: "/data/sub 01.nii"}}
	assert.Equal(t, "_path_-data-sub-01-nii", tuple.Suffix())
}

func TestTupleValue_AmbiguousAcrossSources(t *testing.T) {
	tuple := Tuple{
		{Source: "left", Field: "value", Value: "a"},
		{Source: "right", Field: "value", Value: 2},
	}

	// Two sweeps binding the same field name have no single value: the
	// unqualified lookup refuses to pick one.
	_, ok := tuple.Value("value")
	assert.False(t, ok)
	assert.Len(t, tuple.Bindings("value"), 2)

	v, ok := tuple.SourceValue("left", "value")
	require.True(t, ok)
	assert.Equal(t, "a", v)
	v, ok = tuple.SourceValue("right", "value")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = tuple.SourceValue("middle", "value")
	assert.False(t, ok)
}

func TestValidate_RequiredInputUnsatisfied(t *testing.T) {
	wf, err := workflow.NewWorkflow("pipe")
	require.NoError(t, err)

	needy := &stubIface{name: "needy", sig: workflow.MustSignature(
		[]workflow.PortSpec{{Name: "must", Type: workflow.TypeString, Required: true}},
		[]workflow.PortSpec{{Name: "result", Type: workflow.TypeString}},
	)}
	n, err := workflow.NewNode("n", needy)
	require.NoError(t, err)
	require.NoError(t, wf.AddNode(n))

	_, err = Build(wf)
	var cfgErr *errors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "required input")
}

func TestValidate_DefaultSatisfiesRequiredInput(t *testing.T) {
	wf, err := workflow.NewWorkflow("pipe")
	require.NoError(t, err)

	defaulted := &stubIface{name: "defaulted", sig: workflow.MustSignature(
		[]workflow.PortSpec{{Name: "must", Type: workflow.TypeString, Required: true, Default: "fallback"}},
		[]workflow.PortSpec{{Name: "result", Type: workflow.TypeString}},
	)}
	n, err := workflow.NewNode("n", defaulted)
	require.NoError(t, err)
	require.NoError(t, wf.AddNode(n))

	_, err = Build(wf)
	assert.NoError(t, err)
}

func TestExportDOT(t *testing.T) {
	wf := chain3(t)
	require.NoError(t, wf.SetIterable("a", "value", []interface{}{"s01"}))

	g, err := Build(wf)
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, g.ExportDOT(&sb))
	dot := sb.String()

	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, "a_value_s01")
	assert.Contains(t, dot, "->")
	assert.Contains(t, dot, "result")
}
