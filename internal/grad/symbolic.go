package grad

import (
	"fmt"
	"math"

	"tensorgen/internal/ast"
	"tensorgen/internal/eval"
)

// contribution is one (array, index tuple, amount) accumulation produced
// while walking the RHS backward from the caller's seed.
type contribution struct {
	array string
	idx   []int
	value float64
}

// BackpropSymbolic implements spec.md 4.F's symbolic strategy without
// materializing an intermediate derivative expression tree: for each
// (array, index-tuple) appearance of an array in the RHS it accumulates
// seed * d(rhs)/d(that appearance) via the same rule table spec.md
// describes (sum, product, power, a fixed set of elementary functions),
// applied node-by-node in reverse as the recursion unwinds — the standard
// reverse-mode construction, here specialized to a single scalar output
// per call rather than a general computation tape.
func BackpropSymbolic(e ast.Expr, env *eval.Env, seed float64) ([]contribution, error) {
	var out []contribution
	err := backprop(e, env, seed, &out)
	return out, err
}

func backprop(e ast.Expr, env *eval.Env, seed float64, out *[]contribution) error {
	if seed == 0 {
		return nil
	}
	switch n := e.(type) {
	case *ast.Ident, *ast.IntLit:
		return nil

	case *ast.UnaryExpr:
		if n.Op == "-" {
			return backprop(n.Operand, env, -seed, out)
		}
		return backprop(n.Operand, env, seed, out)

	case *ast.BinaryExpr:
		return backpropBinary(n, env, seed, out)

	case *ast.CallExpr:
		return backpropCall(n, env, seed, out)

	case *ast.IndexExpr:
		idx, name, err := indexOf(n, env)
		if err != nil {
			return err
		}
		*out = append(*out, contribution{array: name, idx: idx, value: seed})
		return nil

	case *ast.KeywordArg:
		return backprop(n.Value, env, seed, out)
	}

	return fmt.Errorf("grad: symbolic differentiation does not support %s", e.String())
}

func backpropBinary(n *ast.BinaryExpr, env *eval.Env, seed float64, out *[]contribution) error {
	switch n.Op {
	case "==", "!=", "<", "<=", ">", ">=":
		return nil // comparisons carry no gradient
	case "+":
		if err := backprop(n.Left, env, seed, out); err != nil {
			return err
		}
		return backprop(n.Right, env, seed, out)
	case "-":
		if err := backprop(n.Left, env, seed, out); err != nil {
			return err
		}
		return backprop(n.Right, env, -seed, out)
	case "*":
		lv, err := eval.Eval(n.Left, env)
		if err != nil {
			return err
		}
		rv, err := eval.Eval(n.Right, env)
		if err != nil {
			return err
		}
		if err := backprop(n.Left, env, seed*rv, out); err != nil {
			return err
		}
		return backprop(n.Right, env, seed*lv, out)
	case "/":
		lv, err := eval.Eval(n.Left, env)
		if err != nil {
			return err
		}
		rv, err := eval.Eval(n.Right, env)
		if err != nil {
			return err
		}
		if err := backprop(n.Left, env, seed/rv, out); err != nil {
			return err
		}
		return backprop(n.Right, env, -seed*lv/(rv*rv), out)
	case "^":
		lv, err := eval.Eval(n.Left, env)
		if err != nil {
			return err
		}
		rv, err := eval.Eval(n.Right, env)
		if err != nil {
			return err
		}
		return backprop(n.Left, env, seed*rv*math.Pow(lv, rv-1), out)
	}
	return fmt.Errorf("grad: unsupported operator %q", n.Op)
}

var elementaryDeriv = map[string]func(x float64) float64{
	"exp":  math.Exp,
	"log":  func(x float64) float64 { return 1 / x },
	"sin":  math.Cos,
	"cos":  func(x float64) float64 { return -math.Sin(x) },
	"sqrt": func(x float64) float64 { return 1 / (2 * math.Sqrt(x)) },
	"tanh": func(x float64) float64 { t := math.Tanh(x); return 1 - t*t },
	"sigmoid": func(x float64) float64 {
		s := 1 / (1 + math.Exp(-x))
		return s * (1 - s)
	},
}

func backpropCall(n *ast.CallExpr, env *eval.Env, seed float64, out *[]contribution) error {
	deriv, ok := elementaryDeriv[n.Callee]
	if !ok || len(n.Args) != 1 {
		return fmt.Errorf("grad: symbolic differentiation does not support call %s", n.Callee)
	}
	v, err := eval.Eval(n.Args[0], env)
	if err != nil {
		return err
	}
	return backprop(n.Args[0], env, seed*deriv(v), out)
}

func indexOf(n *ast.IndexExpr, env *eval.Env) ([]int, string, error) {
	ident, ok := n.Array.(*ast.Ident)
	if !ok {
		return nil, "", fmt.Errorf("grad: array reference root is not a bare name")
	}
	idx := make([]int, len(n.Indices))
	for i, posExpr := range n.Indices {
		v, err := eval.Eval(posExpr, env)
		if err != nil {
			return nil, "", err
		}
		idx[i] = int(v)
	}
	return idx, ident.Name, nil
}
