package threading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tensorgen/internal/analyzer"
	"tensorgen/internal/kernel"
	"tensorgen/internal/parser"
	"tensorgen/internal/ranges"
	"tensorgen/internal/store"
	"tensorgen/internal/tensor"
)

func compileMatMul(t *testing.T) (*store.Store, *kernel.Program, kernel.Args, *tensor.Array) {
	t.Helper()
	p := parser.New("Z[i,k] := A[i,j] * B[j,k]")
	eq, err := p.ParseEquation()
	require.NoError(t, err)
	st, err := analyzer.Analyze(eq)
	require.NoError(t, err)

	a, err := tensor.NewArray(8, 4)
	require.NoError(t, err)
	b, err := tensor.NewArray(4, 8)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		for j := 0; j < 4; j++ {
			require.NoError(t, a.Set(float64(i+j), i, j))
		}
	}
	for j := 0; j < 4; j++ {
		for k := 0; k < 8; k++ {
			require.NoError(t, b.Set(float64(j-k), j, k))
		}
	}

	require.NoError(t, ranges.Solve(st))

	prog := kernel.Synthesize(st, kernel.Capabilities{})
	args := kernel.Args{Arrays: map[string]*tensor.Array{"A": a, "B": b}, Scalar: map[string]float64{}}
	require.NoError(t, kernel.BindAxisLengths(prog, args))

	z, err := tensor.NewArray(8, 8)
	require.NoError(t, err)
	return st, prog, args, z
}

// Threading equivalence (spec.md 8, property 4): results with threading
// disabled and enabled must be bit-identical for this integer-valued
// equation.
func TestThreadingEquivalence(t *testing.T) {
	stSeq, progSeq, argsSeq, zSeq := compileMatMul(t)
	seq := &Threader{Enabled: false}
	require.NoError(t, seq.Run(stSeq, progSeq, zSeq, argsSeq))

	stPar, progPar, argsPar, zPar := compileMatMul(t)
	par := &Threader{Enabled: true, MinWork: 2}
	require.NoError(t, par.Run(stPar, progPar, zPar, argsPar))

	for i := 0; i < 8; i++ {
		for k := 0; k < 8; k++ {
			want, err := zSeq.At(i, k)
			require.NoError(t, err)
			got, err := zPar.At(i, k)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestReductionSplitComposesAccumulator(t *testing.T) {
	_, prog, args, z := compileMatMul(t)
	require.NoError(t, RunReductionSplit(prog, z, args, "j", 2))

	_, full, fullArgs, zFull := compileMatMul(t)
	require.NoError(t, kernel.Interpret(full, zFull, fullArgs, nil))

	for i := 0; i < 8; i++ {
		for k := 0; k < 8; k++ {
			want, err := zFull.At(i, k)
			require.NoError(t, err)
			got, err := z.At(i, k)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}
