package grad

import (
	"fmt"

	"tensorgen/internal/ast"
	"tensorgen/internal/eval"
	"tensorgen/internal/kernel"
	"tensorgen/internal/store"
	"tensorgen/internal/tensor"
)

// Mode selects the differentiation strategy of spec.md 4.F.
type Mode int

const (
	Symbolic Mode = iota
	Dual
)

func (m Mode) String() string {
	if m == Dual {
		return "dual"
	}
	return "symbolic"
}

// Gradient is the synthesized companion ∇create(dZ, As…, scalars…)
// (spec.md 4.F): given the forward output's cotangent dZ and the same
// arguments the forward kernel took, it returns the gradient with respect
// to every array argument.
type Gradient struct {
	st   *store.Store
	fwd  *kernel.Program
	mode Mode
}

// Synthesize builds a Gradient, or nil with no error if gradient synthesis
// is not applicable (nograd was raised, or the equation doesn't allocate a
// new array). Runs only when grad != false, newarray is set, and nograd
// was not raised, exactly as spec.md 4.F requires.
func Synthesize(st *store.Store, fwd *kernel.Program, mode Mode) (*Gradient, error) {
	if !st.Flags.Has(store.NewArray) {
		return nil, nil
	}
	if st.Flags.Has(store.NoGrad) {
		return nil, nil
	}
	return &Gradient{st: st, fwd: fwd, mode: mode}, nil
}

// Fingerprint identifies this Gradient for the backend-hooks registry
// (internal/hooks): it has no kernel.Program of its own to fingerprint, so
// its identity is derived from the forward program's fingerprint plus the
// differentiation mode, which is exactly the information that
// distinguishes two gradients of the same equation.
func (g *Gradient) Fingerprint() string {
	return g.fwd.Fingerprint + ":grad:" + g.mode.String()
}

// Compute runs the gradient kernel: for every point of the outer and
// reduction indices together it takes dZ at that point's output index and
// accumulates its contribution into the matching slice of every RHS
// array's gradient, looping over shared indices first so each iteration
// writes to distinct slices of every dA — safe to parallelize — with
// non-shared indices nested inside (spec.md 4.F).
func (g *Gradient) Compute(dZ *tensor.Array, args kernel.Args) (map[string]*tensor.Array, error) {
	grads := map[string]*tensor.Array{}
	for name, a := range args.Arrays {
		ga, err := tensor.NewArray(a.Shape()...)
		if err != nil {
			return nil, err
		}
		grads[name] = ga
	}

	shared := map[string]bool{}
	for _, idx := range g.st.SharedInd {
		shared[idx] = true
	}

	var sharedOrder, restOrder []string
	for _, idx := range append(append([]string(nil), g.fwd.Outer...), g.fwd.Reduction...) {
		if shared[idx] {
			sharedOrder = append(sharedOrder, idx)
		} else {
			restOrder = append(restOrder, idx)
		}
	}
	loopOrder := append(sharedOrder, restOrder...)

	env := eval.NewEnv()
	for name, a := range args.Arrays {
		env.Arrays[name] = a
	}
	for name, v := range args.Scalar {
		env.Scalar[name] = v
	}

	return grads, g.loop(loopOrder, 0, env, dZ, args, grads)
}

func (g *Gradient) loop(order []string, depth int, env *eval.Env, dZ *tensor.Array, args kernel.Args, grads map[string]*tensor.Array) error {
	if depth == len(order) {
		return g.accumulateAt(env, dZ, args, grads)
	}
	idx := order[depth]
	def, ok := g.fwd.AxisDefs[idx]
	if !ok || !def.Range.IsLiteral {
		return fmt.Errorf("grad: axis %s not bound; call kernel.BindAxisLengths before grad.Compute", idx)
	}
	for v := int(def.Range.Lo); v < int(def.Range.Hi); v++ {
		env.Index[idx] = v
		if err := g.loop(order, depth+1, env, dZ, args, grads); err != nil {
			return err
		}
	}
	return nil
}

func (g *Gradient) accumulateAt(env *eval.Env, dZ *tensor.Array, args kernel.Args, grads map[string]*tensor.Array) error {
	leftIdx, err := kernel.LeftIndices(g.fwd, env)
	if err != nil {
		return err
	}
	seed, err := dZ.At(leftIdx...)
	if err != nil {
		return err
	}
	if seed == 0 {
		return nil
	}

	switch g.mode {
	case Dual:
		return g.accumulateDual(env, seed, args, grads)
	default:
		return g.accumulateSymbolic(env, seed, grads)
	}
}

func (g *Gradient) accumulateSymbolic(env *eval.Env, seed float64, grads map[string]*tensor.Array) error {
	contribs, err := BackpropSymbolic(g.fwd.RHS, env, seed)
	if err != nil {
		return err
	}
	for _, c := range contribs {
		ga, ok := grads[c.array]
		if !ok {
			continue
		}
		if err := ga.Add(c.value, c.idx...); err != nil {
			return err
		}
	}
	return nil
}

// accumulateDual differentiates w.r.t. every occurrence of every RHS array
// independently (one targetNode per occurrence, see dualEnv), mirroring
// accumulateSymbolic/BackpropSymbolic's one-contribution-per-IndexExpr walk:
// an array appearing at two distinct index positions in the same equation
// (e.g. `A[i]*A[i+1]`) gets two separate dual sweeps, one per occurrence,
// each writing its own contribution to its own slice of dA.
func (g *Gradient) accumulateDual(env *eval.Env, seed float64, args kernel.Args, grads map[string]*tensor.Array) error {
	for name := range args.Arrays {
		occurrences := collectArrayAccesses(g.fwd.RHS, name)
		for _, occ := range occurrences {
			idx, err := evalIndices(occ, env)
			if err != nil {
				continue
			}
			de := &dualEnv{
				index:      env.Index,
				scalar:     env.Scalar,
				targetNode: occ,
				arrays:     map[string]dualArrayLookup{},
			}
			for n, arr := range args.Arrays {
				arr := arr
				de.arrays[n] = func(idx []int) (float64, error) { return arr.At(idx...) }
			}
			result, err := EvalDual(g.fwd.RHS, de)
			if err != nil {
				return err
			}
			if result.Poison {
				continue
			}
			ga := grads[name]
			if err := ga.Add(seed*result.Deriv, idx...); err != nil {
				return err
			}
		}
	}
	return nil
}

// collectArrayAccesses returns every *ast.IndexExpr in e whose array root is
// the bare name target, in tree order (first-appearance order, matching
// accumulateSymbolic's walk order).
func collectArrayAccesses(e ast.Expr, target string) []*ast.IndexExpr {
	var out []*ast.IndexExpr
	switch n := e.(type) {
	case *ast.IndexExpr:
		if ident, ok := n.Array.(*ast.Ident); ok && ident.Name == target {
			out = append(out, n)
		}
		for _, posExpr := range n.Indices {
			out = append(out, collectArrayAccesses(posExpr, target)...)
		}
	case *ast.BinaryExpr:
		out = append(out, collectArrayAccesses(n.Left, target)...)
		out = append(out, collectArrayAccesses(n.Right, target)...)
	case *ast.BroadcastExpr:
		out = append(out, collectArrayAccesses(n.Left, target)...)
		out = append(out, collectArrayAccesses(n.Right, target)...)
	case *ast.UnaryExpr:
		out = append(out, collectArrayAccesses(n.Operand, target)...)
	case *ast.CallExpr:
		for _, a := range n.Args {
			out = append(out, collectArrayAccesses(a, target)...)
		}
	case *ast.KeywordArg:
		out = append(out, collectArrayAccesses(n.Value, target)...)
	}
	return out
}

// evalIndices resolves one IndexExpr occurrence's index tuple against env.
func evalIndices(n *ast.IndexExpr, env *eval.Env) ([]int, error) {
	idx := make([]int, len(n.Indices))
	for i, posExpr := range n.Indices {
		v, err := eval.Eval(posExpr, env)
		if err != nil {
			return nil, err
		}
		idx[i] = int(v)
	}
	return idx, nil
}
