package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tensorgen/internal/analyzer"
	"tensorgen/internal/parser"
	"tensorgen/internal/ranges"
)

func planFor(t *testing.T, src string) *Plan {
	t.Helper()
	p := parser.New(src)
	eq, err := p.ParseEquation()
	require.NoError(t, err)
	st, err := analyzer.Analyze(eq)
	require.NoError(t, err)
	require.NoError(t, ranges.Solve(st))
	plan, err := Plan(st, Capabilities{})
	require.NoError(t, err)
	return plan
}

func TestPlanMatrixMultiplyAxes(t *testing.T) {
	plan := planFor(t, "C[i,j] := A[i,k] * B[k,j]")
	assert.Equal(t, []string{"axis_i", "axis_j"}, plan.OutAxes)
	assert.Equal(t, "float64", plan.ElementType)
}

func TestPlanAssertsAxisStartsAtOneWithoutOffsetArrays(t *testing.T) {
	plan := planFor(t, "C[i,j] := A[i,k] * B[k,j]")
	found := false
	for _, f := range plan.Fragments {
		if f == "assert axis_i starts at 1" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPlanEmitsZeroFillWhenZeroFlagSet(t *testing.T) {
	plan := planFor(t, "D[i,i] := A[i]")
	found := false
	for _, f := range plan.Fragments {
		if f == "fill!(D, zero(float64))" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPlanRejectsNonUnitLiteralAxis(t *testing.T) {
	p := parser.New("C[i,2] := A[i,k]")
	eq, err := p.ParseEquation()
	require.NoError(t, err)
	st, err := analyzer.Analyze(eq)
	require.NoError(t, err)
	require.NoError(t, ranges.Solve(st))
	_, err = Plan(st, Capabilities{})
	assert.Error(t, err)
}
