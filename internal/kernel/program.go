// Package kernel implements component E: it turns a range-solved Store
// into an explicit loop-nest Program, which can either be
// interpreted directly (the reference runtime) or printed as readable Go
// source (the "emits a callable" analogue for a reader).
package kernel

import (
	"tensorgen/internal/ast"
	"tensorgen/internal/store"
)

// Variant names one of the three kernel specializations of spec.md 4.E.
type Variant int

const (
	VariantScalar Variant = iota
	VariantVector
	VariantGPU
)

func (v Variant) String() string {
	switch v {
	case VariantVector:
		return "vector"
	case VariantGPU:
		return "gpu"
	default:
		return "scalar"
	}
}

// Capabilities mirrors spec.md 4.E's visibility checks as explicit flags
// rather than reflection over the caller's import graph (Design Note,
// spec.md 9).
type Capabilities struct {
	AVXVisible  bool
	GPUVisible  bool
	AVXUnroll   int  // 0 disables; >0 both enables and sets the unroll factor
	CUDAEnabled bool
}

// Program is the synthesized loop nest for one equation.
type Program struct {
	LeftArray  string
	LeftScalar string
	LeftRaw    []ast.IndexArg

	Outer     []string // free (non-reduction) index symbols, outer-loop order
	Reduction []string // reduction index symbols, inner-loop order
	RedFun    string

	RHS ast.Expr

	AxisDefs map[string]store.AxisDef

	PlusEquals bool // equation was `+=`: keep starts non-nil from the first call
	Variant    Variant
	SIMDUnroll int
	GPU        bool

	Fingerprint string
}

// Synthesize builds a Program from a fully analyzed and range-solved
// Store. It does not allocate or execute anything; Interpret and Print
// consume the result.
func Synthesize(st *store.Store, caps Capabilities) *Program {
	p := &Program{
		LeftArray:   st.LeftArray,
		LeftScalar:  st.LeftScalar,
		LeftRaw:     st.LeftRaw,
		Outer:       append([]string(nil), st.LeftInd...),
		Reduction:   append([]string(nil), st.RedInd...),
		RedFun:      st.RedFun,
		RHS:         st.Right,
		AxisDefs:    st.AxisDefs,
		PlusEquals:  st.Flags.Has(store.PlusEquals),
		Fingerprint: st.Fingerprint(),
	}

	switch {
	case caps.CUDAEnabled && caps.GPUVisible:
		p.Variant = VariantGPU
		p.GPU = true
	case caps.AVXUnroll > 0 && caps.AVXVisible && !st.Flags.Has(store.NoAVX):
		p.Variant = VariantVector
		p.SIMDUnroll = caps.AVXUnroll
	default:
		p.Variant = VariantScalar
	}

	return p
}
