package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tensorgen/internal/parser"
	"tensorgen/internal/store"
)

func parseEquation(t *testing.T, src string) *store.Store {
	t.Helper()
	p := parser.New(src)
	eq, err := p.ParseEquation()
	require.NoError(t, err)
	st, err := Analyze(eq)
	require.NoError(t, err)
	return st
}

func TestAnalyzeMatrixMultiply(t *testing.T) {
	st := parseEquation(t, "C[i,j] := A[i,k] * B[k,j]")

	assert.Equal(t, "C", st.LeftArray)
	assert.Equal(t, []string{"i", "j"}, st.LeftInd)
	assert.Equal(t, []string{"k"}, st.RedInd)
	assert.ElementsMatch(t, []string{"A", "B"}, st.Arrays)
	assert.True(t, st.Flags.Has(store.NewArray))
	assert.True(t, st.ArrayIndices["A"]["i"])
	assert.True(t, st.ArrayIndices["B"]["j"])
}

func TestAnalyzeAccumulate(t *testing.T) {
	st := parseEquation(t, "total[i] += A[i,j]")
	assert.True(t, st.Flags.Has(store.PlusEquals))
	assert.False(t, st.Flags.Has(store.NewArray))
}

func TestAnalyzeScalarReduction(t *testing.T) {
	st := parseEquation(t, "s := A[i] * A[i]")
	assert.Equal(t, "s", st.LeftScalar)
	assert.Equal(t, []string{"i"}, st.RedInd)
	assert.Equal(t, []string{"A"}, st.Arrays)
}

func TestAnalyzeReductionCall(t *testing.T) {
	st := parseEquation(t, "s := sum(A[i,j])")
	assert.Equal(t, "+", st.RedFun)
	assert.ElementsMatch(t, []string{"i", "j"}, st.RedInd)
}

func TestAnalyzeShiftedIndex(t *testing.T) {
	st := parseEquation(t, "Y[i] := X[i+1]")
	assert.True(t, st.ShiftedInd["i"])
}

func TestAnalyzeRepeatedLHSIndexSetsZeroFlag(t *testing.T) {
	st := parseEquation(t, "D[i,i] := A[i]")
	assert.True(t, st.Flags.Has(store.Zero))
}

func TestAnalyzeEntangledIndexProducesPairConstraint(t *testing.T) {
	st := parseEquation(t, "Y[k] := X[i+j]")
	require.Len(t, st.PairConstraints, 1)
	assert.Equal(t, "i", st.PairConstraints[0].IndexA)
	assert.Equal(t, "j", st.PairConstraints[0].IndexB)
}

func TestAnalyzeSelfReferenceOnCreateFails(t *testing.T) {
	p := parser.New("A[i] := A[i] + 1")
	eq, err := p.ParseEquation()
	require.NoError(t, err)
	_, err = Analyze(eq)
	assert.Error(t, err)
}

func TestAnalyzeBroadcastSuppressesAVXAndGrad(t *testing.T) {
	st := parseEquation(t, "Y[i,j] := A[i,j] .* B[i,j]")
	assert.True(t, st.Flags.Has(store.NoAVX))
	assert.True(t, st.Flags.Has(store.NoGrad))
}
