// Package store holds the Store value, the single mutable bag of analysis
// results threaded through every compiler phase (spec.md 3). Per Design
// Note guidance ("if a single mutable structure is preferred for
// compactness, keep it but document the phase order as a precondition on
// each field"), Store stays one struct; the precondition is documented here
// once rather than per field:
//
//	options (A) -> analyzer (B) -> ranges (C) -> alloc (D) -> kernel (E) -> grad (F) -> hooks (G)
//
// Each phase reads fields written by earlier phases and appends its own,
// with two exceptions: ranges.Solve (C) adds entries to Constraints, which
// the analyzer (B) and call-site range declarations fill first, and
// kernel.BindAxisLengths (E) overwrites AxisDefs entries in place with the
// bounds derived from the actual argument shapes.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"tensorgen/internal/ast"
)

// Store is created fresh per Compile call and discarded after emission.
type Store struct {
	Flags FlagSet

	// --- populated by the analyzer (B) ---
	LeftRaw    []ast.IndexArg    // LHS index expressions exactly as written
	LeftInd    []string          // free index symbols, first-appearance order
	LeftArray  string            // LHS array name (user-supplied or generated "Z")
	LeftScalar string            // set instead of LeftArray when LHS is a bare scalar
	LeftNames  map[string]string // index symbol -> keyword axis label

	Right     ast.Expr // canonicalized RHS
	RightInd  []string // every index on the RHS, first-appearance order
	RedInd    []string // RightInd \ LeftInd: reduction indices (deterministic: first-appearance)
	SharedInd []string // indices appearing in every RHS array

	Arrays  []string // RHS array names, first-appearance order
	Scalars []string // lifted scalar names, first-appearance order

	// ArrayIndices maps each RHS array name to the set of index symbols it
	// is indexed by (order not significant; used only for sharedind's
	// intersection in internal/ranges).
	ArrayIndices map[string]map[string]bool

	ShiftedInd map[string]bool // indices that appeared inside a non-trivial affine expr

	// --- constraints: filled by the analyzer (B), extended and solved into
	// AxisDefs by the range solver (C) ---
	Constraints     map[string][]RangeExpr
	PairConstraints []PairConstraint
	AxisDefs        map[string]AxisDef

	RedFun string // reduction operator, default "+"
	Cost   float64

	// --- emitted fragments, populated across B-G ---
	OutPre  []string // preliminaries executed in the caller's scope (rank checks, assertions, lifts)
	OutEval []string // the main emitted expression body
	OutTop  []string // top-level definitions (kernel/gradient registrations)
}

// New creates an empty Store ready for the analyzer.
func New() *Store {
	return &Store{
		LeftNames:    map[string]string{},
		ShiftedInd:   map[string]bool{},
		Constraints:  map[string][]RangeExpr{},
		AxisDefs:     map[string]AxisDef{},
		ArrayIndices: map[string]map[string]bool{},
		RedFun:       "+",
	}
}

// AddLeftInd appends idx to LeftInd if not already present.
func (s *Store) AddLeftInd(idx string) {
	if !contains(s.LeftInd, idx) {
		s.LeftInd = append(s.LeftInd, idx)
	}
}

// AddRightInd appends idx to RightInd if not already present.
func (s *Store) AddRightInd(idx string) {
	if !contains(s.RightInd, idx) {
		s.RightInd = append(s.RightInd, idx)
	}
}

// AddArray appends name to Arrays if not already present.
func (s *Store) AddArray(name string) {
	if !contains(s.Arrays, name) {
		s.Arrays = append(s.Arrays, name)
	}
}

// AddScalar appends name to Scalars if not already present.
func (s *Store) AddScalar(name string) {
	if !contains(s.Scalars, name) {
		s.Scalars = append(s.Scalars, name)
	}
}

// AddConstraint records a candidate range for idx.
func (s *Store) AddConstraint(idx string, r RangeExpr) {
	s.Constraints[idx] = append(s.Constraints[idx], r)
}

// AddArrayIndex records that array is indexed by idx somewhere on the RHS.
func (s *Store) AddArrayIndex(array, idx string) {
	if s.ArrayIndices[array] == nil {
		s.ArrayIndices[array] = map[string]bool{}
	}
	s.ArrayIndices[array][idx] = true
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// ComputeRedInd sets RedInd = RightInd \ LeftInd, preserving RightInd's
// first-appearance order (Open Question in spec.md 9: "implementers should
// fix a deterministic order").
func (s *Store) ComputeRedInd() {
	s.RedInd = nil
	for _, idx := range s.RightInd {
		if !contains(s.LeftInd, idx) {
			s.RedInd = append(s.RedInd, idx)
		}
	}
}

// Fingerprint returns a stable hash of the canonicalized Store, used by the
// kernel registry to key compiled programs by equation identity rather than
// by a gensym'd name (Design Note, spec.md 9: "re-express as a registry
// mapping equation fingerprints to compiled kernels, keyed by a stable hash
// of the canonicalized Store").
func (s *Store) Fingerprint() string {
	var b strings.Builder
	fmt.Fprintf(&b, "left=%s scalar=%s flags=%s redfun=%s\n", s.LeftArray, s.LeftScalar, s.Flags, s.RedFun)
	fmt.Fprintf(&b, "leftind=%v redind=%v arrays=%v scalars=%v\n", s.LeftInd, s.RedInd, s.Arrays, s.Scalars)
	if s.Right != nil {
		fmt.Fprintf(&b, "rhs=%s\n", s.Right.String())
	}
	for _, idx := range append(append([]string{}, s.LeftInd...), s.RedInd...) {
		if def, ok := s.AxisDefs[idx]; ok {
			fmt.Fprintf(&b, "axis[%s]=%s\n", idx, def.Range)
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:16]
}

// Dump renders a human-readable summary of the Store, used by the `verbose`
// option (spec.md 4.A) and the CLI's -verbose flag.
func (s *Store) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "flags:        %s\n", s.Flags)
	if s.LeftScalar != "" {
		fmt.Fprintf(&b, "lhs:          scalar %s\n", s.LeftScalar)
	} else {
		fmt.Fprintf(&b, "lhs:          %s%v\n", s.LeftArray, s.LeftRaw)
	}
	fmt.Fprintf(&b, "leftind:      %v\n", s.LeftInd)
	fmt.Fprintf(&b, "redind:       %v\n", s.RedInd)
	fmt.Fprintf(&b, "sharedind:    %v\n", s.SharedInd)
	fmt.Fprintf(&b, "arrays:       %v\n", s.Arrays)
	fmt.Fprintf(&b, "scalars:      %v\n", s.Scalars)
	fmt.Fprintf(&b, "shiftedind:   %v\n", keysOf(s.ShiftedInd))
	fmt.Fprintf(&b, "redfun:       %s\n", s.RedFun)
	fmt.Fprintf(&b, "cost:         %.1f\n", s.Cost)
	for idx, def := range s.AxisDefs {
		fmt.Fprintf(&b, "axis_%s :=    %s\n", idx, def.Range)
	}
	return b.String()
}

func keysOf(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	return out
}
