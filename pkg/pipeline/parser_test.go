package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipevine/pipevine/pkg/graph"
	"github.com/pipevine/pipevine/pkg/workflow"
)

const sampleDefinition = `
version: "1"
workflow:
  name: wordstats
  nodes:
    - name: subjects
      interface: identity
      fields:
        subject: string
    - name: grab
      interface: datagrabber
      base_directory: /data/corpus
      template: "%s/*.txt"
      inputs:
        subject: string
      outputs:
        documents: filelist
      template_args:
        documents: [[subject]]
  workflows:
    - name: analyze
      nodes:
        - name: tokenize
          interface: command
          program: tokenize
          args: ["--min-length", "${min_length}", "--out", "tokens.json", "${documents}"]
          inputs:
            documents: filelist
            min_length: int?
          outputs:
            tokens: file
          artifacts:
            tokens: "tokens.json"
          params:
            min_length: "= 2 + 1"
        - name: meanlen
          interface: jsonselect
          params:
            path: "summary.mean"
      connections:
        - from: tokenize.tokens
          to: meanlen.source
      expose:
        - alias: documents
          target: tokenize.documents
  connections:
    - from: subjects.subject
      to: grab.subject
    - from: grab.documents
      to: analyze.documents
  iterables:
    - node: subjects
      field: subject
      values: [s01, s02]
sink:
  base_directory: /data/results
  container: wordstats_output
  rules:
    - node: analyze.tokenize
      port: tokens
      dest: "${subject}/tokens"
`

func TestParse_FullDefinition(t *testing.T) {
	wf, sinkCfg, err := Parse([]byte(sampleDefinition))
	require.NoError(t, err)
	assert.Equal(t, "wordstats", wf.Name())

	// Static parameter written as an expression is evaluated at parse time.
	sub, ok := wf.Member("analyze")
	require.True(t, ok)
	analyze := sub.(*workflow.Workflow)
	tokenizeMember, ok := analyze.Member("tokenize")
	require.True(t, ok)
	minLength, bound := tokenizeMember.(*workflow.Node).Param("min_length")
	require.True(t, bound)
	assert.EqualValues(t, 3, minLength)

	require.NotNil(t, sinkCfg)
	assert.Equal(t, "/data/results", sinkCfg.BaseDirectory)
	assert.Equal(t, "wordstats_output", sinkCfg.Container)
	require.Len(t, sinkCfg.Rules, 1)
	assert.Equal(t, "analyze.tokenize", sinkCfg.Rules[0].Node)

	// The parsed composition builds into an expanded execution graph: two
	// subjects sweep the whole four-node chain.
	g, err := graph.Build(wf)
	require.NoError(t, err)
	assert.Equal(t, 8, g.Len())

	_, ok = g.Node("analyze.tokenize_subject_s02")
	assert.True(t, ok)
}

func TestParse_NoSink(t *testing.T) {
	def := `
version: "1"
workflow:
  name: tiny
  nodes:
    - name: fields
      interface: identity
      fields:
        subject: string
      params:
        subject: s01
`
	wf, sinkCfg, err := Parse([]byte(def))
	require.NoError(t, err)
	assert.Nil(t, sinkCfg)
	assert.Equal(t, "tiny", wf.Name())
}

func TestParse_SchemaRejectsUnknownKeys(t *testing.T) {
	def := `
version: "1"
workflow:
  name: tiny
  nodes:
    - name: fields
      interface: identity
      fields:
        subject: string
      bogus_key: true
`
	_, _, err := Parse([]byte(def))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match schema")
}

func TestParse_SchemaRejectsUnknownInterface(t *testing.T) {
	def := `
version: "1"
workflow:
  name: tiny
  nodes:
    - name: n
      interface: teleport
`
	_, _, err := Parse([]byte(def))
	require.Error(t, err)
}

func TestParse_SchemaRejectsBadPortType(t *testing.T) {
	def := `
version: "1"
workflow:
  name: tiny
  nodes:
    - name: n
      interface: command
      program: tool
      inputs:
        data: blob
      outputs:
        out: file
      artifacts:
        out: "out.txt"
`
	_, _, err := Parse([]byte(def))
	require.Error(t, err)
}

func TestParse_InvalidExpression(t *testing.T) {
	def := `
version: "1"
workflow:
  name: tiny
  nodes:
    - name: fields
      interface: identity
      fields:
        subject: string
      params:
        subject: "= 1 +"
`
	_, _, err := Parse([]byte(def))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid expression")
}

func TestParse_ConnectionErrorsSurface(t *testing.T) {
	def := `
version: "1"
workflow:
  name: tiny
  nodes:
    - name: fields
      interface: identity
      fields:
        subject: string
  connections:
    - from: fields.subject
      to: fields.ghost
`
	_, _, err := Parse([]byte(def))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown input port")
}

func TestParse_EmptyDefinition(t *testing.T) {
	_, _, err := Parse(nil)
	require.Error(t, err)
}

func TestEvalParam(t *testing.T) {
	v, err := evalParam("= 2.0 - 2.0/28")
	require.NoError(t, err)
	assert.InDelta(t, 2.0-2.0/28, v.(float64), 1e-12)

	// Non-expression values pass through untouched.
	v, err = evalParam("plain")
	require.NoError(t, err)
	assert.Equal(t, "plain", v)

	v, err = evalParam(42)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	_, err = evalParam("=")
	require.Error(t, err)
}
