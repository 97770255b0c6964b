package segloss

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

const deltaForTests = 1e-6

// inputNode Creates float64 input node holding provided values
func inputNode(g *gorgonia.ExprGraph, name string, backing []float64, shape ...int) *gorgonia.Node {
	data := make([]float64, len(backing))
	copy(data, backing)
	value := tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
	return gorgonia.NewTensor(g, tensor.Float64, len(shape), gorgonia.WithShape(shape...), gorgonia.WithName(name), gorgonia.WithValue(value))
}

// evalFloat64s Runs graph and returns flattened values of provided node
func evalFloat64s(t *testing.T, g *gorgonia.ExprGraph, n *gorgonia.Node) []float64 {
	t.Helper()
	values, err := RunGraph(g, n)
	require.NoError(t, err)
	require.Len(t, values, 1)
	data, err := ValueToFloat64s(values[0])
	require.NoError(t, err)
	return data
}
