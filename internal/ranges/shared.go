package ranges

import (
	"github.com/bits-and-blooms/bitset"

	"tensorgen/internal/store"
)

// SharedIndices implements spec.md 3's invariant 4: sharedind is the
// intersection of index sets across all RHS arrays (empty if there are no
// RHS arrays). It follows the dataflow gen/kill idiom from
// godoctor/analysis/dataflow (one bitset per array over a dense index-ID
// space, intersected pairwise) rather than repeated map-intersection,
// since that is the pack's own precedent for exactly this shape of
// problem: a handful of per-entity occurrence sets that need intersecting.
func SharedIndices(st *store.Store) []string {
	if len(st.Arrays) == 0 {
		return nil
	}

	id := make(map[string]uint, len(st.RightInd))
	for i, idx := range st.RightInd {
		id[idx] = uint(i)
	}

	var acc *bitset.BitSet
	for _, arr := range st.Arrays {
		bs := new(bitset.BitSet)
		for idx := range st.ArrayIndices[arr] {
			bs.Set(id[idx])
		}
		if acc == nil {
			acc = bs
		} else {
			acc = acc.Intersection(bs)
		}
	}
	if acc == nil {
		return nil
	}

	var out []string
	for _, idx := range st.RightInd {
		if acc.Test(id[idx]) {
			out = append(out, idx)
		}
	}
	return out
}
