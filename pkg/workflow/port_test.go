package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompatible(t *testing.T) {
	assert.True(t, Compatible(TypeFile, TypeFile))
	assert.True(t, Compatible(TypeAny, TypeFile))
	assert.True(t, Compatible(TypeInt, TypeAny))
	assert.False(t, Compatible(TypeFile, TypeFileList))
	assert.False(t, Compatible(TypeString, TypeInt))
}

func TestPortType_IsFileType(t *testing.T) {
	assert.True(t, TypeFile.IsFileType())
	assert.True(t, TypeFileList.IsFileType())
	assert.False(t, TypeString.IsFileType())
	assert.False(t, TypeAny.IsFileType())
}

func TestSignature_DuplicatePort(t *testing.T) {
	sig := NewSignature()
	require.NoError(t, sig.AddInput(PortSpec{Name: "in_file", Type: TypeFile}))
	err := sig.AddInput(PortSpec{Name: "in_file", Type: TypeFile})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already declared")
}

func TestSignature_InvalidPort(t *testing.T) {
	sig := NewSignature()
	assert.Error(t, sig.AddInput(PortSpec{Name: "", Type: TypeFile}))
	assert.Error(t, sig.AddInput(PortSpec{Name: "1bad", Type: TypeFile}))
	assert.Error(t, sig.AddInput(PortSpec{Name: "ok", Type: PortType("blob")}))
}

func TestSignature_SortedSpecs(t *testing.T) {
	sig := NewSignature()
	require.NoError(t, sig.AddInput(PortSpec{Name: "zeta", Type: TypeString}))
	require.NoError(t, sig.AddInput(PortSpec{Name: "alpha", Type: TypeString}))

	inputs := sig.Inputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, "alpha", inputs[0].Name)
	assert.Equal(t, "zeta", inputs[1].Name)
}
