package store

import "fmt"

// RangeExpr is one candidate range for an index: either "the k-th axis of
// array Array, shifted by Shift and strided by Scale" (an array-derived
// range) or a literal/user-declared bound.
type RangeExpr struct {
	Array string // empty for a literal/user-declared range
	Axis  int
	Shift int64 // additive offset implied by `i+c`
	Scale int64 // multiplicative stride implied by `a*i`; 1 if none

	Lo, Hi    int64 // used when Array == ""
	IsLiteral bool
}

func (r RangeExpr) String() string {
	if r.IsLiteral {
		return fmt.Sprintf("%d:%d", r.Lo, r.Hi)
	}
	base := fmt.Sprintf("axis(%s,%d)", r.Array, r.Axis)
	if r.Scale != 1 {
		base = fmt.Sprintf("%s÷%d", base, r.Scale)
	}
	if r.Shift != 0 {
		base = fmt.Sprintf("%s-(%d)", base, r.Shift)
	}
	return base
}

// PairConstraint records an entangled affine access, e.g. `A[i+j]`, where
// neither index's range can be determined in isolation (spec.md 3).
type PairConstraint struct {
	IndexA, IndexB string
	RangeA, RangeB RangeExpr
}

// AxisDef is a resolved index -> concrete range binding, the output of
// constraint solving (spec.md 4.C step 4): `axis_i := range_expr`.
type AxisDef struct {
	Index string
	// Range is the nominal range: for a strict-agreement index it's the
	// first candidate; for an intersected (shifted) index it's one
	// representative candidate, kept for display and fingerprinting.
	Range RangeExpr
	// Candidates holds every contributing range when Range was chosen by
	// intersection (a shifted index); len(Candidates) > 1 signals that the
	// runtime emission must narrow to the common sub-range rather than use
	// Range directly.
	Candidates []RangeExpr
	// Asserted is non-empty when the solver picked strict agreement: every
	// later candidate must equal Range at runtime, and Asserted records the
	// human-readable assertion emitted into OutPre.
	Asserted []string
}
