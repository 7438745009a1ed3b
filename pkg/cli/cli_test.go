package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDefinition = `
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

const cyclicDefinition = `
version: "1"
workflow:
  name: cyclic
  nodes:
    - name: a
      interface: identity
      fields:
        value: string
    - name: b
      interface: identity
      fields:
        value: string
  connections:
    - from: a.value
      to: b.value
    - from: b.value
      to: a.value
`

func writeDefinition(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand_ValidDefinition(t *testing.T) {
	path := writeDefinition(t, validDefinition)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Execution graph valid")
}

func TestValidateCommand_CycleRejected(t *testing.T) {
	path := writeDefinition(t, cyclicDefinition)

	out, err := execute(t, "validate", path, "--verbose")
	require.Error(t, err)
	assert.Contains(t, out, "Graph validation failed")
	assert.Contains(t, out, "cycle")
}

func TestValidateCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestGraphCommand_WritesDOT(t *testing.T) {
	path := writeDefinition(t, validDefinition)

	out, err := execute(t, "graph", path)
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, "fields")
}

func TestGraphCommand_OutputFile(t *testing.T) {
	path := writeDefinition(t, validDefinition)
	dotPath := filepath.Join(t.TempDir(), "pipeline.dot")

	_, err := execute(t, "graph", path, "--output", dotPath)
	require.NoError(t, err)

	data, err := os.ReadFile(dotPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "digraph")
}

func TestRunCommand_ExecutesPipeline(t *testing.T) {
	path := writeDefinition(t, validDefinition)

	out, err := execute(t, "run", path, "--workdir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "1 succeeded")
}

func TestRunCommand_RequiresWorkdir(t *testing.T) {
	path := writeDefinition(t, validDefinition)

	_, err := execute(t, "run", path)
	require.Error(t, err)
}
