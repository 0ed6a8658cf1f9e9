// Package threading implements the `threader` collaborator spec.md treats
// as fixed and external (spec.md 1, 6): it calls a kernel one or more
// times over sub-ranges of the outer axis product, honoring the `keep`
// contract of spec.md 5 exactly. internal/kernel and internal/grad own the
// actual loop-nest semantics; this package only decides how many times,
// and over which sub-ranges, to call them.
package threading

import (
	"context"

	"golang.org/x/sync/errgroup"

	"tensorgen/internal/kernel"
	"tensorgen/internal/store"
	"tensorgen/internal/tensor"
)

// BlockBase is the numerator of spec.md 4.E's `block_threshold = BLOCK_BASE
// ÷ cost` formula, used when threading is auto (MinWork == 0).
const BlockBase = 4096

// Threader is the reference realization of spec.md 6's `threader(kernel,
// storage_tag, Z, (As…), (outer_axes), (reduction_axes); block, keep)`
// contract. It is deliberately simple: the "interesting" compiler logic is
// entirely upstream of this package (spec.md 1: "the final code emitter /
// runtime ... is treated as a fixed threading primitive").
type Threader struct {
	Enabled bool
	MinWork int // 0 means auto: derive from Store.Cost per spec.md 4.E
}

// Run drives p against z and args, splitting the outermost free axis across
// goroutines when enabled and that axis is longer than the block
// threshold. Run never splits a reduction axis; RunReductionSplit does
// that, sequentially.
func (t *Threader) Run(st *store.Store, p *kernel.Program, z *tensor.Array, args kernel.Args) error {
	if !t.Enabled || len(p.Outer) == 0 {
		return kernel.Interpret(p, z, args, t.keepFor(p))
	}

	axis := p.Outer[0]
	def, ok := p.AxisDefs[axis]
	if !ok || !def.Range.IsLiteral {
		return kernel.Interpret(p, z, args, t.keepFor(p))
	}

	threshold := t.blockThreshold(st)
	length := int(def.Range.Hi - def.Range.Lo)
	if length <= threshold {
		return kernel.Interpret(p, z, args, t.keepFor(p))
	}

	splits := (length + threshold - 1) / threshold
	if splits < 2 {
		return kernel.Interpret(p, z, args, t.keepFor(p))
	}
	return t.runSplitOnFreeAxis(p, z, args, axis, def, splits)
}

// blockThreshold implements `BLOCK_BASE ÷ cost`, floored at 1 so a
// pathologically expensive RHS still splits into at least unit blocks
// rather than dividing by zero.
func (t *Threader) blockThreshold(st *store.Store) int {
	if t.MinWork > 0 {
		return t.MinWork
	}
	if st.Cost <= 0 {
		return BlockBase
	}
	threshold := int(BlockBase / st.Cost)
	if threshold < 1 {
		threshold = 1
	}
	return threshold
}

// runSplitOnFreeAxis splits axis into `splits` disjoint sub-ranges and runs
// each concurrently: per spec.md 5, splitting along a free axis means each
// sub-kernel writes a disjoint slice of Z, so every sub-call passes the
// same keep as the unsplit call would (t.keepFor: nil for := and =, true
// for +=).
func (t *Threader) runSplitOnFreeAxis(p *kernel.Program, z *tensor.Array, args kernel.Args, axis string, def store.AxisDef, splits int) error {
	lo, hi := def.Range.Lo, def.Range.Hi
	total := hi - lo
	chunk := (total + int64(splits) - 1) / int64(splits)

	g, _ := errgroup.WithContext(context.Background())
	for s := 0; s < splits; s++ {
		subLo := lo + int64(s)*chunk
		subHi := subLo + chunk
		if subHi > hi {
			subHi = hi
		}
		if subLo >= subHi {
			continue
		}
		g.Go(func() error {
			sub := *p
			sub.AxisDefs = cloneAxisDefs(p.AxisDefs)
			sub.AxisDefs[axis] = store.AxisDef{
				Index: axis,
				Range: store.RangeExpr{IsLiteral: true, Lo: subLo, Hi: subHi},
			}
			return kernel.Interpret(&sub, z, args, t.keepFor(p))
		})
	}
	return g.Wait()
}

// keepFor resolves the three-valued keep signal for an unsplit (or
// free-axis-split) call: `+=` equations continue from Z's existing
// contents; fresh `:=`/`=` computations start clean.
func (t *Threader) keepFor(p *kernel.Program) *bool {
	if p.PlusEquals {
		v := true
		return &v
	}
	return nil
}

func cloneAxisDefs(in map[string]store.AxisDef) map[string]store.AxisDef {
	out := make(map[string]store.AxisDef, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// RunReductionSplit runs p over `splits` sequential sub-ranges of a
// reduction axis, passing keep=nil to the first and keep=true to every
// subsequent call so the accumulator composes (spec.md 5: "the first
// sub-kernel is called with keep=nothing, subsequent ones with keep=true").
// Exposed separately from Run (which only ever splits free axes) because
// reduction-axis splitting is never safe to parallelize here: composing
// accumulators requires each sub-call to see the previous one's result in
// Z before it runs.
func RunReductionSplit(p *kernel.Program, z *tensor.Array, args kernel.Args, axis string, splits int) error {
	def, ok := p.AxisDefs[axis]
	if !ok || !def.Range.IsLiteral {
		return kernel.Interpret(p, z, args, nil)
	}
	lo, hi := def.Range.Lo, def.Range.Hi
	total := hi - lo
	chunk := (total + int64(splits) - 1) / int64(splits)

	for s := 0; s < splits; s++ {
		subLo := lo + int64(s)*chunk
		subHi := subLo + chunk
		if subHi > hi {
			subHi = hi
		}
		if subLo >= subHi {
			continue
		}
		sub := *p
		sub.AxisDefs = cloneAxisDefs(p.AxisDefs)
		sub.AxisDefs[axis] = store.AxisDef{
			Index: axis,
			Range: store.RangeExpr{IsLiteral: true, Lo: subLo, Hi: subHi},
		}
		var keep *bool
		if s > 0 {
			v := true
			keep = &v
		}
		if err := kernel.Interpret(&sub, z, args, keep); err != nil {
			return err
		}
	}
	return nil
}
