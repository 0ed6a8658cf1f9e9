package grad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tensorgen/internal/analyzer"
	"tensorgen/internal/kernel"
	"tensorgen/internal/parser"
	"tensorgen/internal/ranges"
	"tensorgen/internal/tensor"
)

func TestGradientSymbolicDotProduct(t *testing.T) {
	p := parser.New("s := sum(A[i] * B[i])")
	eq, err := p.ParseEquation()
	require.NoError(t, err)
	st, err := analyzer.Analyze(eq)
	require.NoError(t, err)
	require.NoError(t, ranges.Solve(st))
	fwd := kernel.Synthesize(st, kernel.Capabilities{})

	a, err := tensor.NewArray(2)
	require.NoError(t, err)
	require.NoError(t, a.Set(3, 0))
	require.NoError(t, a.Set(5, 1))
	b, err := tensor.NewArray(2)
	require.NoError(t, err)
	require.NoError(t, b.Set(7, 0))
	require.NoError(t, b.Set(11, 1))

	args := kernel.Args{Arrays: map[string]*tensor.Array{"A": a, "B": b}}
	require.NoError(t, kernel.BindAxisLengths(fwd, args))

	g, err := Synthesize(st, fwd, Symbolic)
	require.NoError(t, err)
	require.NotNil(t, g)

	dZ, err := tensor.NewArray()
	require.NoError(t, err)
	require.NoError(t, dZ.Set(1))

	grads, err := g.Compute(dZ, args)
	require.NoError(t, err)

	// d(sum(A*B))/dA[i] = B[i]
	dA0, err := grads["A"].At(0)
	require.NoError(t, err)
	assert.Equal(t, 7.0, dA0)
	dB1, err := grads["B"].At(1)
	require.NoError(t, err)
	assert.Equal(t, 5.0, dB1)
}

func TestGradientDualModeMatchesSymbolic(t *testing.T) {
	p := parser.New("s := sum(A[i] * B[i])")
	eq, err := p.ParseEquation()
	require.NoError(t, err)
	st, err := analyzer.Analyze(eq)
	require.NoError(t, err)
	require.NoError(t, ranges.Solve(st))
	fwd := kernel.Synthesize(st, kernel.Capabilities{})

	a, err := tensor.NewArray(2)
	require.NoError(t, err)
	require.NoError(t, a.Set(3, 0))
	require.NoError(t, a.Set(5, 1))
	b, err := tensor.NewArray(2)
	require.NoError(t, err)
	require.NoError(t, b.Set(7, 0))
	require.NoError(t, b.Set(11, 1))

	args := kernel.Args{Arrays: map[string]*tensor.Array{"A": a, "B": b}}
	require.NoError(t, kernel.BindAxisLengths(fwd, args))

	g, err := Synthesize(st, fwd, Dual)
	require.NoError(t, err)

	dZ, err := tensor.NewArray()
	require.NoError(t, err)
	require.NoError(t, dZ.Set(1))

	grads, err := g.Compute(dZ, args)
	require.NoError(t, err)

	dA0, err := grads["A"].At(0)
	require.NoError(t, err)
	assert.Equal(t, 7.0, dA0)
}

// A repeated array occurrence at two different index positions in the same
// equation must attribute each occurrence's own partial to its own slice of
// dA, not the combined total to a single slice: dual and symbolic must
// still agree (spec.md 8 property 6) when that happens.
func TestGradientDualMatchesSymbolicForRepeatedArrayOccurrence(t *testing.T) {
	p := parser.New("Z[i] := A[i] * A[i+1]")
	eq, err := p.ParseEquation()
	require.NoError(t, err)
	st, err := analyzer.Analyze(eq)
	require.NoError(t, err)
	require.NoError(t, ranges.Solve(st))
	fwd := kernel.Synthesize(st, kernel.Capabilities{})

	a, err := tensor.NewArray(3)
	require.NoError(t, err)
	require.NoError(t, a.Set(3, 0))
	require.NoError(t, a.Set(5, 1))
	require.NoError(t, a.Set(7, 2))

	args := kernel.Args{Arrays: map[string]*tensor.Array{"A": a}}
	require.NoError(t, kernel.BindAxisLengths(fwd, args))

	dZ, err := tensor.NewArray(2)
	require.NoError(t, err)
	require.NoError(t, dZ.Set(1, 0))
	require.NoError(t, dZ.Set(0, 1))

	symGrad, err := Synthesize(st, fwd, Symbolic)
	require.NoError(t, err)
	symGrads, err := symGrad.Compute(dZ, args)
	require.NoError(t, err)

	dualGrad, err := Synthesize(st, fwd, Dual)
	require.NoError(t, err)
	dualGrads, err := dualGrad.Compute(dZ, args)
	require.NoError(t, err)

	symA0, err := symGrads["A"].At(0)
	require.NoError(t, err)
	symA1, err := symGrads["A"].At(1)
	require.NoError(t, err)
	dualA0, err := dualGrads["A"].At(0)
	require.NoError(t, err)
	dualA1, err := dualGrads["A"].At(1)
	require.NoError(t, err)

	// dZ[0]=1 seeds Z[0]=A[0]*A[1]: d/dA[0]=A[1]=5, d/dA[1]=A[0]=3.
	assert.Equal(t, 5.0, symA0)
	assert.Equal(t, 3.0, symA1)
	assert.Equal(t, symA0, dualA0)
	assert.Equal(t, symA1, dualA1)
}

func TestSynthesizeSkipsWhenNoGradFlagSet(t *testing.T) {
	p := parser.New("Y[i,j] := A[i,j] .* B[i,j]")
	eq, err := p.ParseEquation()
	require.NoError(t, err)
	st, err := analyzer.Analyze(eq)
	require.NoError(t, err)
	require.NoError(t, ranges.Solve(st))
	fwd := kernel.Synthesize(st, kernel.Capabilities{})

	g, err := Synthesize(st, fwd, Symbolic)
	require.NoError(t, err)
	assert.Nil(t, g)
}
