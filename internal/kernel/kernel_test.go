package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tensorgen/internal/analyzer"
	"tensorgen/internal/parser"
	"tensorgen/internal/ranges"
	"tensorgen/internal/tensor"
)

func synth(t *testing.T, src string) *Program {
	t.Helper()
	p := parser.New(src)
	eq, err := p.ParseEquation()
	require.NoError(t, err)
	st, err := analyzer.Analyze(eq)
	require.NoError(t, err)
	require.NoError(t, ranges.Solve(st))
	return Synthesize(st, Capabilities{})
}

func TestInterpretMatrixMultiply(t *testing.T) {
	prog := synth(t, "C[i,j] := A[i,k] * B[k,j]")

	a, err := tensor.NewArray(2, 2)
	require.NoError(t, err)
	require.NoError(t, a.Set(1, 0, 0))
	require.NoError(t, a.Set(2, 0, 1))
	require.NoError(t, a.Set(3, 1, 0))
	require.NoError(t, a.Set(4, 1, 1))

	b, err := tensor.NewArray(2, 2)
	require.NoError(t, err)
	require.NoError(t, b.Set(1, 0, 0))
	require.NoError(t, b.Set(0, 0, 1))
	require.NoError(t, b.Set(0, 1, 0))
	require.NoError(t, b.Set(1, 1, 1))

	z, err := tensor.NewArray(2, 2)
	require.NoError(t, err)

	args := Args{Arrays: map[string]*tensor.Array{"A": a, "B": b}}
	require.NoError(t, BindAxisLengths(prog, args))
	require.NoError(t, Interpret(prog, z, args, nil))

	v, err := z.At(0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)

	v, err = z.At(1, 1)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v)
}

func TestInterpretReductionSum(t *testing.T) {
	prog := synth(t, "s := sum(A[i])")

	a, err := tensor.NewArray(3)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, a.Set(float64(i+1), i))
	}

	z, err := tensor.NewArray()
	require.NoError(t, err)

	args := Args{Arrays: map[string]*tensor.Array{"A": a}}
	require.NoError(t, BindAxisLengths(prog, args))
	require.NoError(t, Interpret(prog, z, args, nil))

	v, err := z.At()
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)
}

func TestPrintRendersLoopNest(t *testing.T) {
	prog := synth(t, "C[i,j] := A[i,k] * B[k,j]")
	src := Print(prog)
	assert.Contains(t, src, "for i :=")
	assert.Contains(t, src, "for k :=")
}

func TestRegistryRoundTrip(t *testing.T) {
	prog := synth(t, "C[i,j] := A[i,k] * B[k,j]")
	reg := NewRegistry()
	reg.Store(prog)

	got, ok := reg.Lookup(prog.Fingerprint)
	assert.True(t, ok)
	assert.Same(t, prog, got)

	_, ok = reg.Lookup("nonexistent")
	assert.False(t, ok)
}
