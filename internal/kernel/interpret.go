package kernel

import (
	"fmt"
	"math"

	"tensorgen/internal/eval"
	"tensorgen/internal/store"
	"tensorgen/internal/tensor"
)

var initByRedFun = map[string]float64{
	"+": 0, "*": 1, "max": math.Inf(-1), "min": math.Inf(1),
}

func redOp(fn string) func(a, b float64) float64 {
	switch fn {
	case "*":
		return func(a, b float64) float64 { return a * b }
	case "max":
		return math.Max
	case "min":
		return math.Min
	default:
		return func(a, b float64) float64 { return a + b }
	}
}

// Args bundles the concrete runtime arguments a Program is interpreted
// against: every array and scalar name the RHS and LHS can reference.
type Args struct {
	Arrays map[string]*tensor.Array
	Scalar map[string]float64
}

// Interpret executes p directly against z (the allocated output) and args,
// implementing the kernel body template of spec.md 4.E. keep mirrors the
// three-valued threading signal: nil means fresh computation, non-nil means
// continue accumulating into the existing contents of z (used for `+=` and
// for threaded sub-range composition).
func Interpret(p *Program, z *tensor.Array, args Args, keep *bool) error {
	env := eval.NewEnv()
	for name, a := range args.Arrays {
		env.Arrays[name] = a
	}
	for name, v := range args.Scalar {
		env.Scalar[name] = v
	}

	return loopOuter(p, z, env, 0, keep)
}

func loopOuter(p *Program, z *tensor.Array, env *eval.Env, depth int, keep *bool) error {
	if depth == len(p.Outer) {
		return evalAtPoint(p, z, env, keep)
	}
	idx := p.Outer[depth]
	lo, hi, err := axisBounds(p, idx)
	if err != nil {
		return err
	}
	for v := lo; v < hi; v++ {
		env.Index[idx] = v
		if err := loopOuter(p, z, env, depth+1, keep); err != nil {
			return err
		}
	}
	return nil
}

func evalAtPoint(p *Program, z *tensor.Array, env *eval.Env, keep *bool) error {
	leftIdx, err := leftIndices(p, env)
	if err != nil {
		return err
	}

	if len(p.Reduction) == 0 {
		v, err := eval.Eval(p.RHS, env)
		if err != nil {
			return err
		}
		if keep == nil {
			return z.Set(v, leftIdx...)
		}
		old, err := z.At(leftIdx...)
		if err != nil {
			return err
		}
		return z.Set(redOp(p.RedFun)(old, v), leftIdx...)
	}

	acc := initByRedFun[p.RedFun]
	if keep != nil {
		acc, err = z.At(leftIdx...)
		if err != nil {
			return err
		}
	}
	if err := loopReduction(p, env, 0, &acc); err != nil {
		return err
	}
	return z.Set(acc, leftIdx...)
}

func loopReduction(p *Program, env *eval.Env, depth int, acc *float64) error {
	if depth == len(p.Reduction) {
		v, err := eval.Eval(p.RHS, env)
		if err != nil {
			return err
		}
		*acc = redOp(p.RedFun)(*acc, v)
		return nil
	}
	idx := p.Reduction[depth]
	lo, hi, err := axisBounds(p, idx)
	if err != nil {
		return err
	}
	for v := lo; v < hi; v++ {
		env.Index[idx] = v
		if err := loopReduction(p, env, depth+1, acc); err != nil {
			return err
		}
	}
	return nil
}

func axisBounds(p *Program, idx string) (lo, hi int, err error) {
	def, ok := p.AxisDefs[idx]
	if !ok {
		return 0, 0, fmt.Errorf("kernel: no axis binding for index %s", idx)
	}
	if def.Range.IsLiteral {
		return int(def.Range.Lo), int(def.Range.Hi), nil
	}
	return 0, 0, fmt.Errorf("kernel: axis for %s must be bound to a concrete length before interpretation (see BindAxisLengths)", idx)
}

// LeftIndices resolves p's left-hand side index list against env's current
// index bindings; exported for internal/grad, which walks the same axis
// loops while accumulating gradient contributions.
func LeftIndices(p *Program, env *eval.Env) ([]int, error) {
	return leftIndices(p, env)
}

func leftIndices(p *Program, env *eval.Env) ([]int, error) {
	if p.LeftScalar != "" {
		return nil, nil
	}
	idx := make([]int, 0, len(p.LeftRaw))
	for _, raw := range p.LeftRaw {
		if raw.Literal != nil {
			idx = append(idx, int(*raw.Literal)-1)
			continue
		}
		v, ok := env.Index[raw.Symbol]
		if !ok {
			return nil, fmt.Errorf("kernel: left-hand index %s has no bound value", raw.Symbol)
		}
		idx = append(idx, v)
	}
	return idx, nil
}

// BindAxisLengths fills in concrete [0,length) bounds for every axis whose
// range was derived from an array's shape rather than a literal, using the
// same argument set Interpret will run against. Synthesize leaves
// AxisDefs exactly as the range solver produced them (symbolic axis(A,k)
// references); BindAxisLengths is the one place those become concrete
// integers, right before interpretation.
func BindAxisLengths(p *Program, args Args) error {
	for idx, def := range p.AxisDefs {
		if def.Range.IsLiteral {
			continue
		}
		arr, ok := args.Arrays[def.Range.Array]
		if !ok {
			return fmt.Errorf("kernel: axis %s references unbound array %s", idx, def.Range.Array)
		}
		n, err := arr.AxisLen(def.Range.Axis)
		if err != nil {
			return err
		}
		lo, hi := boundsForShift(def.Range, n)
		if len(def.Candidates) > 1 {
			for _, c := range def.Candidates[1:] {
				carr, ok := args.Arrays[c.Array]
				if !ok {
					return fmt.Errorf("kernel: axis %s references unbound array %s", idx, c.Array)
				}
				cn, err := carr.AxisLen(c.Axis)
				if err != nil {
					return err
				}
				clo, chi := boundsForShift(c, cn)
				if clo > lo {
					lo = clo
				}
				if chi < hi {
					hi = chi
				}
			}
		}
		def.Range = store.RangeExpr{IsLiteral: true, Lo: int64(lo), Hi: int64(hi)}
		p.AxisDefs[idx] = def
	}
	return nil
}

func boundsForShift(r store.RangeExpr, axisLen int) (lo, hi int) {
	// The axis ranges over array positions [0, axisLen); a shifted access
	// A[scale*i + shift] is valid while 0 <= scale*i+shift < axisLen.
	scale := r.Scale
	if scale == 0 {
		scale = 1
	}
	lo = 0
	hi = axisLen
	if scale == 1 {
		lo = int(math.Max(0, float64(-r.Shift)))
		hi = int(math.Min(float64(axisLen), float64(axisLen)-float64(r.Shift)))
		return
	}
	s, c := float64(scale), float64(r.Shift)
	a, b := -c/s, (float64(axisLen)-1-c)/s
	if scale < 0 {
		a, b = b, a
	}
	lo = int(math.Max(0, math.Ceil(a)))
	hi = int(math.Floor(b)) + 1
	return
}
