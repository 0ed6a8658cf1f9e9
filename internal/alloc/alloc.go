// Package alloc implements component D: given a fully range-solved Store,
// it infers the output element type, plans the output axes, and emits the
// allocation (plus zero-fill) fragment, per spec.md 4.D.
package alloc

import (
	"fmt"

	"tensorgen/internal/ast"
	tgerrors "tensorgen/internal/errors"
	"tensorgen/internal/store"
)

// Capabilities records which host facilities the allocator may assume are
// visible, per Design Note ("Reliance on name-based visibility of optional
// backends ... re-express as explicit feature flags"). OffsetArrays is
// false by default: Go slices are always zero-origin, so there is no
// offset-array facility to query, and the "assert every axis starts at 1"
// path of spec.md 4.D.3 always fires.
type Capabilities struct {
	OffsetArrays bool
}

// Plan is the allocator's output: the inferred element type, the output
// axis list in LHS order, and the emitted preamble fragments (axis-start
// assertions, the allocation call, the zero-fill).
type Plan struct {
	ElementType string // always "float64" in this implementation; kept as a field per spec.md 4.D.1's TYP binding
	OutAxes     []string
	Fragments   []string
}

// Plan runs only when st.Flags.Has(store.NewArray); it is a programmer
// error to call it otherwise.
func Plan(st *store.Store, caps Capabilities) (*Plan, error) {
	p := &Plan{ElementType: "float64"}

	// 4.D.2 Output-axis planning: a symbol -> axis_i; a literal 1 -> unit range.
	for _, idx := range st.LeftRaw {
		switch {
		case idx.Literal != nil:
			if *idx.Literal != 1 {
				return nil, &tgerrors.CompilerError{
					Level:    tgerrors.Error,
					Code:     tgerrors.ECUnsupportedEquation,
					Message:  fmt.Sprintf("left-hand side axis pin %d is not supported; only 1 (unit range) is", *idx.Literal),
					Position: idx.Pos,
				}
			}
			p.OutAxes = append(p.OutAxes, "1:1")
		case idx.Symbol != "":
			if _, ok := st.AxisDefs[idx.Symbol]; !ok {
				return nil, &tgerrors.CompilerError{
					Level:    tgerrors.Error,
					Code:     tgerrors.ECUnconstrainedIndex,
					Message:  fmt.Sprintf("no resolved axis for left-hand side index %s", idx.Symbol),
					Position: idx.Pos,
				}
			}
			p.OutAxes = append(p.OutAxes, "axis_"+idx.Symbol)
		default:
			return nil, unsupportedOutAxis(idx)
		}
	}

	// 4.D.3 OffsetArray detection: with no offset-array facility, one
	// "assert axis_<i> starts at 1" text fragment is emitted per free index.
	// No axis is rewritten to 1:length(axis); OutAxes keeps axis_<i>.
	if !caps.OffsetArrays {
		for _, idx := range st.LeftInd {
			p.Fragments = append(p.Fragments, fmt.Sprintf("assert axis_%s starts at 1", idx))
		}
	}

	// 4.D.4 Allocation.
	allocExpr := fmt.Sprintf("similar([], %s)", p.ElementType)
	if len(st.Arrays) > 0 {
		allocExpr = fmt.Sprintf("similar(%s, %s, (%s))", st.Arrays[0], p.ElementType, joinAxes(p.OutAxes))
	}
	if hasNamedAxes(st) {
		allocExpr = "named(" + allocExpr + ")"
	}
	p.Fragments = append(p.Fragments, fmt.Sprintf("%s := %s", st.LeftArray, allocExpr))

	// 4.D.5 Zero flag.
	if st.Flags.Has(store.Zero) {
		p.Fragments = append(p.Fragments, fmt.Sprintf("fill!(%s, zero(%s))", st.LeftArray, p.ElementType))
	}

	return p, nil
}

func hasNamedAxes(st *store.Store) bool {
	return len(st.LeftNames) > 0
}

func joinAxes(axes []string) string {
	out := ""
	for i, a := range axes {
		if i > 0 {
			out += ","
		}
		out += a
	}
	return out
}

func unsupportedOutAxis(idx ast.IndexArg) error {
	return &tgerrors.CompilerError{
		Level:    tgerrors.Error,
		Code:     tgerrors.ECUnsupportedEquation,
		Message:  fmt.Sprintf("left-hand side index position %q is not a symbol or the literal 1", idx.String()),
		Position: idx.Pos,
	}
}
