package grad

import (
	"fmt"
	"math"

	"tensorgen/internal/ast"
)

// Number is a forward-mode dual number: Val carries the ordinary value,
// Deriv carries the partial derivative with respect to whichever
// perturbation is currently active. Poison marks a subterm that defeats
// dual-number differentiation (spec.md 7's unsupported-for-dual kind); it
// propagates through every arithmetic operation like NaN does.
type Number struct {
	Val, Deriv float64
	Poison     bool
}

// ErrUnsupportedForDual describes a construct that defeats dual-number
// differentiation. EvalDual does not return it: it marks such a construct
// by returning a Number with Poison set, and accumulateDual skips poisoned
// results, so only the affected occurrence loses its gradient, not the
// whole equation.
type ErrUnsupportedForDual struct {
	Construct string
}

func (e *ErrUnsupportedForDual) Error() string {
	return fmt.Sprintf("construct %q defeats dual-number differentiation", e.Construct)
}

func dNum(v float64) Number { return Number{Val: v} }

func dAdd(a, b Number) Number {
	return Number{Val: a.Val + b.Val, Deriv: a.Deriv + b.Deriv, Poison: a.Poison || b.Poison}
}

func dSub(a, b Number) Number {
	return Number{Val: a.Val - b.Val, Deriv: a.Deriv - b.Deriv, Poison: a.Poison || b.Poison}
}

func dMul(a, b Number) Number {
	return Number{
		Val:    a.Val * b.Val,
		Deriv:  a.Deriv*b.Val + a.Val*b.Deriv,
		Poison: a.Poison || b.Poison,
	}
}

func dDiv(a, b Number) Number {
	return Number{
		Val:    a.Val / b.Val,
		Deriv:  (a.Deriv*b.Val - a.Val*b.Deriv) / (b.Val * b.Val),
		Poison: a.Poison || b.Poison,
	}
}

func dPow(a, b Number) Number {
	// Only the common case (exponent constant w.r.t. the active
	// perturbation) is differentiated exactly; otherwise poison.
	if b.Deriv != 0 {
		return Number{Val: math.Pow(a.Val, b.Val), Poison: true}
	}
	return Number{
		Val:    math.Pow(a.Val, b.Val),
		Deriv:  b.Val * math.Pow(a.Val, b.Val-1) * a.Deriv,
		Poison: a.Poison,
	}
}

var dualUnary = map[string]func(Number) Number{
	"exp": func(x Number) Number { v := math.Exp(x.Val); return Number{Val: v, Deriv: v * x.Deriv, Poison: x.Poison} },
	"log": func(x Number) Number {
		return Number{Val: math.Log(x.Val), Deriv: x.Deriv / x.Val, Poison: x.Poison}
	},
	"sin": func(x Number) Number {
		return Number{Val: math.Sin(x.Val), Deriv: math.Cos(x.Val) * x.Deriv, Poison: x.Poison}
	},
	"cos": func(x Number) Number {
		return Number{Val: math.Cos(x.Val), Deriv: -math.Sin(x.Val) * x.Deriv, Poison: x.Poison}
	},
	"sqrt": func(x Number) Number {
		v := math.Sqrt(x.Val)
		return Number{Val: v, Deriv: x.Deriv / (2 * v), Poison: x.Poison}
	},
	"tanh": func(x Number) Number {
		v := math.Tanh(x.Val)
		return Number{Val: v, Deriv: (1 - v*v) * x.Deriv, Poison: x.Poison}
	},
	"sigmoid": func(x Number) Number {
		v := 1 / (1 + math.Exp(-x.Val))
		return Number{Val: v, Deriv: v * (1 - v) * x.Deriv, Poison: x.Poison}
	},
}

// dualEnv binds identifiers for an EvalDual evaluation: index values are
// plain ints (not differentiated), scalars are constants, and the
// perturbation is live on exactly one occurrence — targetNode, identified
// by AST node identity rather than array name, so that an array appearing
// at more than one index position in the same equation (e.g. `A[i]*A[i+1]`)
// gets one independent ε per occurrence rather than one shared ε that would
// conflate the two occurrences' partials (spec.md 4.F: "independent dual
// perturbations").
type dualEnv struct {
	index      map[string]int
	scalar     map[string]float64
	arrays     map[string]dualArrayLookup
	targetNode *ast.IndexExpr
}

type dualArrayLookup func(idx []int) (float64, error)

// EvalDual evaluates e in dual-number arithmetic with the perturbation
// active on exactly the occurrence env.targetNode, per spec.md 4.F's dual
// strategy: "Rewrite the RHS so each array access A[inds] becomes
// (A[inds] + ε_A)."
func EvalDual(e ast.Expr, env *dualEnv) (Number, error) {
	switch n := e.(type) {
	case *ast.Ident:
		if v, ok := env.scalar[n.Name]; ok {
			return dNum(v), nil
		}
		if v, ok := env.index[n.Name]; ok {
			return dNum(float64(v)), nil
		}
		return Number{}, fmt.Errorf("grad: unbound identifier %s", n.Name)

	case *ast.IntLit:
		return dNum(float64(n.Value)), nil

	case *ast.UnaryExpr:
		v, err := EvalDual(n.Operand, env)
		if err != nil {
			return Number{}, err
		}
		if n.Op == "-" {
			return Number{Val: -v.Val, Deriv: -v.Deriv, Poison: v.Poison}, nil
		}
		return v, nil

	case *ast.BinaryExpr:
		return evalDualBinary(n, env)

	case *ast.CallExpr:
		return evalDualCall(n, env)

	case *ast.IndexExpr:
		return evalDualIndex(n, env)

	case *ast.BroadcastExpr, *ast.TupleExpr, *ast.FieldAccessExpr:
		return Number{Poison: true}, nil

	case *ast.KeywordArg:
		return EvalDual(n.Value, env)
	}

	return Number{}, fmt.Errorf("grad: unsupported expression %s", e.String())
}

func evalDualBinary(n *ast.BinaryExpr, env *dualEnv) (Number, error) {
	switch n.Op {
	case "==", "!=", "<", "<=", ">", ">=":
		return Number{Poison: true}, nil
	}
	l, err := EvalDual(n.Left, env)
	if err != nil {
		return Number{}, err
	}
	r, err := EvalDual(n.Right, env)
	if err != nil {
		return Number{}, err
	}
	switch n.Op {
	case "+":
		return dAdd(l, r), nil
	case "-":
		return dSub(l, r), nil
	case "*":
		return dMul(l, r), nil
	case "/":
		return dDiv(l, r), nil
	case "^":
		return dPow(l, r), nil
	}
	return Number{}, fmt.Errorf("grad: unsupported operator %q", n.Op)
}

func evalDualCall(n *ast.CallExpr, env *dualEnv) (Number, error) {
	fn, ok := dualUnary[n.Callee]
	if !ok || len(n.Args) != 1 {
		return Number{Poison: true}, nil
	}
	arg, err := EvalDual(n.Args[0], env)
	if err != nil {
		return Number{}, err
	}
	return fn(arg), nil
}

func evalDualIndex(n *ast.IndexExpr, env *dualEnv) (Number, error) {
	ident, ok := n.Array.(*ast.Ident)
	if !ok {
		return Number{}, fmt.Errorf("grad: array reference root is not a bare name")
	}
	lookup, ok := env.arrays[ident.Name]
	if !ok {
		return Number{}, fmt.Errorf("grad: unbound array %s", ident.Name)
	}
	idx := make([]int, len(n.Indices))
	for i, posExpr := range n.Indices {
		v, err := EvalDual(posExpr, env)
		if err != nil {
			return Number{}, err
		}
		idx[i] = int(v.Val)
	}
	val, err := lookup(idx)
	if err != nil {
		return Number{}, err
	}
	if n == env.targetNode {
		return Number{Val: val, Deriv: 1}, nil
	}
	return Number{Val: val}, nil
}
