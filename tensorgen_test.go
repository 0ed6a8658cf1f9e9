package tensorgen

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tensorgen/internal/options"
	"tensorgen/internal/tensor"
)

func mustArray(t *testing.T, rows [][]float64) *tensor.Array {
	t.Helper()
	a, err := tensor.NewArray(len(rows), len(rows[0]))
	require.NoError(t, err)
	for i, row := range rows {
		for j, v := range row {
			require.NoError(t, a.Set(v, i, j))
		}
	}
	return a
}

// Scenario 1: contraction correctness (spec.md 8, property 1 and
// scenario 1): Z[i,k] := A[i,j] * B[j,k] equals matrix multiplication.
func TestScenarioMatrixMultiply(t *testing.T) {
	k, err := Compile("Z[i,k] := A[i,j] * B[j,k]")
	require.NoError(t, err)

	a := mustArray(t, [][]float64{{1, 2}, {3, 4}})
	b := mustArray(t, [][]float64{{5, 6}, {7, 8}})

	z, err := k.Forward(a, b)
	require.NoError(t, err)

	want := [][]float64{{19, 22}, {43, 50}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			v, err := z.At(i, j)
			require.NoError(t, err)
			assert.Equal(t, want[i][j], v)
		}
	}
}

// Scenario 2: scalar reduction, s := A[i] * A[i] with A = [1,2,3] gives 14.
func TestScenarioScalarReduction(t *testing.T) {
	k, err := Compile("s := A[i] * A[i]")
	require.NoError(t, err)

	a, err := tensor.NewArray(3)
	require.NoError(t, err)
	for i, v := range []float64{1, 2, 3} {
		require.NoError(t, a.Set(v, i))
	}

	z, err := k.Forward(a)
	require.NoError(t, err)
	v, err := z.At()
	require.NoError(t, err)
	assert.Equal(t, 14.0, v)
}

// Scenario 3: affine-shifted indices with ranges inferred from the array
// shapes: Z[i,j] := A[i+x,j+y] * K[x,y], A a 5x5 of ones, K a 3x3 of ones
// gives a 3x3 of nines.
func TestScenarioAffineShiftConvolution(t *testing.T) {
	k, err := Compile("Z[i,j] := A[i+x,j+y] * K[x,y]")
	require.NoError(t, err)

	a, err := tensor.NewArray(5, 5)
	require.NoError(t, err)
	a.Fill(1)
	kern, err := tensor.NewArray(3, 3)
	require.NoError(t, err)
	kern.Fill(1)

	z, err := k.Forward(a, kern)
	require.NoError(t, err)
	require.Equal(t, []int{3, 3}, z.Shape())
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v, err := z.At(i, j)
			require.NoError(t, err)
			assert.Equal(t, 9.0, v)
		}
	}
}

// Scenario 4: lifted scalars, an elementwise affine map Z[i,j] := $alpha *
// A[i,j] + $beta (no reduction index, so each lifted scalar applies exactly
// once per output element).
func TestScenarioLiftedScalars(t *testing.T) {
	k, err := Compile("Z[i,j] := $alpha * A[i,j] + $beta")
	require.NoError(t, err)

	a := mustArray(t, [][]float64{{1, 2}, {3, 4}})

	z, err := k.Forward(a, tensor.Scalar(2), tensor.Scalar(1))
	require.NoError(t, err)

	want := [][]float64{{3, 5}, {7, 9}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			v, err := z.At(i, j)
			require.NoError(t, err)
			assert.Equal(t, want[i][j], v)
		}
	}
}

// Scenario 5: non-sum reduction, Z[i] := max(A[i,j]) over j.
func TestScenarioMaxReduction(t *testing.T) {
	k, err := Compile("Z[i] := max(A[i,j])")
	require.NoError(t, err)

	a := mustArray(t, [][]float64{{1, 9, 2}, {8, 3, 7}})
	z, err := k.Forward(a)
	require.NoError(t, err)

	v0, err := z.At(0)
	require.NoError(t, err)
	v1, err := z.At(1)
	require.NoError(t, err)
	assert.Equal(t, 9.0, v0)
	assert.Equal(t, 8.0, v1)
}

// Accumulate law (spec.md 8, property 3): Z := A*B followed by Z += C*D
// equals Z = A*B + C*D starting from the same Z.
func TestAccumulateLaw(t *testing.T) {
	kCreate, err := Compile("Z[i,k] := A[i,j] * B[j,k]")
	require.NoError(t, err)
	kAccum, err := Compile("Z[i,k] += C[i,j] * D[j,k]")
	require.NoError(t, err)

	a := mustArray(t, [][]float64{{1, 2}, {3, 4}})
	b := mustArray(t, [][]float64{{5, 6}, {7, 8}})
	c := mustArray(t, [][]float64{{2, 0}, {1, 1}})
	d := mustArray(t, [][]float64{{1, 1}, {0, 2}})

	z, err := kCreate.Forward(a, b)
	require.NoError(t, err)
	z, err = kAccum.ForwardInto(z, c, d)
	require.NoError(t, err)

	ab := [][]float64{{19, 22}, {43, 50}}
	cd := [][]float64{{2, 2}, {1, 3}}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			v, err := z.At(i, j)
			require.NoError(t, err)
			assert.Equal(t, ab[i][j]+cd[i][j], v)
		}
	}
}

// Scenario 6: gradient consistency. Forward Z[i,k] := A[i,j]*B[j,k],
// backward on loss sum(Z) with A=[[1,2]], B=[[3],[4]] gives
// dA=[[3,4]], dB=[[1],[2]].
func TestScenarioGradientMatMul(t *testing.T) {
	k, err := Compile("Z[i,k] := A[i,j] * B[j,k]", Grad(options.GradSymbolic))
	require.NoError(t, err)

	a, err := tensor.NewArray(1, 2)
	require.NoError(t, err)
	require.NoError(t, a.Set(1, 0, 0))
	require.NoError(t, a.Set(2, 0, 1))
	b, err := tensor.NewArray(2, 1)
	require.NoError(t, err)
	require.NoError(t, b.Set(3, 0, 0))
	require.NoError(t, b.Set(4, 1, 0))

	z, err := k.Forward(a, b)
	require.NoError(t, err)

	dZ, err := tensor.NewArray(1, 1)
	require.NoError(t, err)
	dZ.Fill(1) // d(sum(Z))/dZ = 1 everywhere

	grads, err := k.Backward(dZ, a, b)
	require.NoError(t, err)
	require.Len(t, grads, 2)

	dA, dB := grads[0], grads[1]
	got00, _ := dA.At(0, 0)
	got01, _ := dA.At(0, 1)
	assert.Equal(t, 3.0, got00)
	assert.Equal(t, 4.0, got01)

	gotB0, _ := dB.At(0, 0)
	gotB1, _ := dB.At(1, 0)
	assert.Equal(t, 1.0, gotB0)
	assert.Equal(t, 2.0, gotB1)

	_ = z
}

// Gradient consistency across strategies (spec.md 8, property 6): the
// symbolic and dual-number gradients must agree.
func TestGradientSymbolicAgreesWithDual(t *testing.T) {
	sym, err := Compile("Z[i,k] := A[i,j] * B[j,k]", Grad(options.GradSymbolic))
	require.NoError(t, err)
	dual, err := Compile("Z[i,k] := A[i,j] * B[j,k]", Grad(options.GradDual))
	require.NoError(t, err)

	a := mustArray(t, [][]float64{{1, 2}, {3, 4}})
	b := mustArray(t, [][]float64{{5, 6}, {7, 8}})

	_, err = sym.Forward(a, b)
	require.NoError(t, err)
	_, err = dual.Forward(a, b)
	require.NoError(t, err)

	dZ, err := tensor.NewArray(2, 2)
	require.NoError(t, err)
	dZ.Fill(1)

	gSym, err := sym.Backward(dZ, a, b)
	require.NoError(t, err)
	gDual, err := dual.Backward(dZ, a, b)
	require.NoError(t, err)

	for n := range gSym {
		for i := 0; i < 2; i++ {
			for j := 0; j < 2; j++ {
				vs, _ := gSym[n].At(i, j)
				vd, _ := gDual[n].At(i, j)
				assert.InDelta(t, vs, vd, 1e-9)
			}
		}
	}
}

// Negative: self-reference on create.
func TestNegativeSelfReferenceOnCreate(t *testing.T) {
	_, err := Compile("Z[i,k] := Z[i,j] * B[j,k]")
	assert.Error(t, err)
}

// Negative: an out-of-domain option value must fail at Compile time
// (spec.md 4.A: "fails ... on unknown options or invalid values"), not
// silently succeed.
func TestNegativeIllegalOptionValue(t *testing.T) {
	_, err := Compile("Z[i,k] := A[i,j] * B[j,k]", Threads(-5))
	assert.Error(t, err)

	_, err = Compile("Z[i,k] := A[i,j] * B[j,k]", CUDA(-1))
	assert.Error(t, err)

	_, err = Compile("Z[i,k] := A[i,j] * B[j,k]", AVX(-2))
	assert.Error(t, err)
}

// Negative: j never given a range, appears only inside an entangled
// affine expression alongside i, which also has no range.
func TestNegativeUnconstrainedIndex(t *testing.T) {
	_, err := Compile("Z[i] := A[i+j]")
	assert.Error(t, err)
}

// j not declared, but not reduced explicitly either: accepted as a
// reduction index, computing the row sum.
func TestImplicitReductionEqualsRowSum(t *testing.T) {
	k, err := Compile("Z[i] := A[i,j]")
	require.NoError(t, err)

	a := mustArray(t, [][]float64{{1, 2, 3}, {4, 5, 6}})
	z, err := k.Forward(a)
	require.NoError(t, err)

	v0, _ := z.At(0)
	v1, _ := z.At(1)
	assert.Equal(t, 6.0, v0)
	assert.Equal(t, 15.0, v1)
}

// Threading equivalence at the public API level (spec.md 8, property 4).
func TestThreadsOnOffEquivalence(t *testing.T) {
	seq, err := Compile("Z[i,k] := A[i,j] * B[j,k]", NoThreads())
	require.NoError(t, err)
	par, err := Compile("Z[i,k] := A[i,j] * B[j,k]", Threads(2))
	require.NoError(t, err)

	a, err := tensor.NewArray(16, 4)
	require.NoError(t, err)
	b, err := tensor.NewArray(4, 16)
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		for j := 0; j < 4; j++ {
			require.NoError(t, a.Set(float64(i*3+j), i, j))
		}
	}
	for j := 0; j < 4; j++ {
		for kk := 0; kk < 16; kk++ {
			require.NoError(t, b.Set(float64(j-kk), j, kk))
		}
	}

	zSeq, err := seq.Forward(a, b)
	require.NoError(t, err)
	zPar, err := par.Forward(a, b)
	require.NoError(t, err)

	for i := 0; i < 16; i++ {
		for kk := 0; kk < 16; kk++ {
			vs, _ := zSeq.At(i, kk)
			vp, _ := zPar.At(i, kk)
			assert.Equal(t, vs, vp)
		}
	}
}

func TestRankMismatchIsARuntimeError(t *testing.T) {
	k, err := Compile("Z[i,k] := A[i,j] * B[j,k]")
	require.NoError(t, err)

	bad, err := tensor.NewArray(2, 2, 2)
	require.NoError(t, err)
	b, err := tensor.NewArray(2, 2)
	require.NoError(t, err)

	_, err = k.Forward(bad, b)
	assert.Error(t, err)
}

func TestWithRangeSuppliesUnresolvableIndex(t *testing.T) {
	k, err := Compile("total := A[i+j]", WithRange("j", 0, 2))
	require.NoError(t, err)

	a, err := tensor.NewArray(5)
	require.NoError(t, err)
	a.Fill(1)
	z, err := k.Forward(a)
	require.NoError(t, err)
	v, err := z.At()
	require.NoError(t, err)
	assert.True(t, v > 0 && !math.IsNaN(v))
}

func TestSourceAndGradSource(t *testing.T) {
	k, err := Compile("Z[i,k] := A[i,j] * B[j,k]", Grad(options.GradSymbolic))
	require.NoError(t, err)
	assert.NotEmpty(t, k.Source())
	assert.NotEmpty(t, k.GradSource())

	noGrad, err := Compile("Z[i,k] := A[i,j] * B[j,k]")
	require.NoError(t, err)
	assert.Empty(t, noGrad.GradSource())
}

func TestHookFragmentsOneFrameworkEnabled(t *testing.T) {
	k, err := Compile("Z[i,k] := A[i,j] * B[j,k]", Grad(options.GradSymbolic), EnableAdjointFramework())
	require.NoError(t, err)
	frags := k.HookFragments()
	require.Len(t, frags, 1)
	assert.Contains(t, frags[0].Source, "adjoint.Register")
}
