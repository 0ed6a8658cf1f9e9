package analyzer

import (
	"fmt"

	"tensorgen/internal/ast"
	tgerrors "tensorgen/internal/errors"
)

// Form is the affine decomposition of one index-position expression against
// a particular array axis, per spec.md 4.B "Affine index decomposition":
//
//	bare symbol i            -> Form{Var: "i", Scale: 1}
//	i + c / c + i             -> Form{Var: "i", Scale: 1, Shift: c}
//	a*i + c                    -> Form{Var: "i", Scale: a, Shift: c}
//	i + j (both unknown)       -> Form{Var: "i", Var2: "j"}  (entangled)
//	integer literal            -> Form{Literal: true}
type Form struct {
	Var, Var2 string
	Scale     int64
	Shift     int64
	Literal   bool
	LitValue  int64
}

func (f Form) Entangled() bool { return f.Var2 != "" }

// decomposeAffine recognizes the index-position grammar of spec.md 4.B.
func decomposeAffine(e ast.Expr) (Form, error) {
	switch n := e.(type) {
	case *ast.Ident:
		return Form{Var: n.Name, Scale: 1}, nil

	case *ast.IntLit:
		return Form{Literal: true, LitValue: n.Value}, nil

	case *ast.UnaryExpr:
		if n.Op != "-" {
			return Form{}, unsupportedIndexExpr(n)
		}
		inner, err := decomposeAffine(n.Operand)
		if err != nil {
			return Form{}, err
		}
		if inner.Entangled() {
			return Form{}, unsupportedIndexExpr(n)
		}
		if inner.Literal {
			inner.LitValue = -inner.LitValue
			return inner, nil
		}
		inner.Scale = -inner.Scale
		inner.Shift = -inner.Shift
		return inner, nil

	case *ast.BinaryExpr:
		left, err := decomposeAffine(n.Left)
		if err != nil {
			return Form{}, err
		}
		right, err := decomposeAffine(n.Right)
		if err != nil {
			return Form{}, err
		}
		switch n.Op {
		case "+":
			return combineAdd(left, right, n)
		case "-":
			right.Scale = -right.Scale
			right.Shift = -right.Shift
			right.LitValue = -right.LitValue
			return combineAdd(left, right, n)
		case "*":
			return combineMul(left, right, n)
		default:
			return Form{}, unsupportedIndexExpr(n)
		}
	}

	return Form{}, unsupportedIndexExpr(e)
}

func combineAdd(a, b Form, at ast.Node) (Form, error) {
	switch {
	case a.Literal && b.Literal:
		return Form{Literal: true, LitValue: a.LitValue + b.LitValue}, nil
	case a.Literal && !b.Literal && !b.Entangled():
		b.Shift += a.LitValue
		return b, nil
	case b.Literal && !a.Literal && !a.Entangled():
		a.Shift += b.LitValue
		return a, nil
	case !a.Literal && !b.Literal && !a.Entangled() && !b.Entangled() && a.Scale == 1 && b.Scale == 1 && a.Shift == 0 && b.Shift == 0:
		// i + j: neither index resolvable alone.
		return Form{Var: a.Var, Var2: b.Var}, nil
	}
	return Form{}, unsupportedIndexExpr(at)
}

func combineMul(a, b Form, at ast.Node) (Form, error) {
	switch {
	case a.Literal && b.Literal:
		return Form{Literal: true, LitValue: a.LitValue * b.LitValue}, nil
	case a.Literal && !b.Literal && !b.Entangled():
		b.Scale *= a.LitValue
		b.Shift *= a.LitValue
		return b, nil
	case b.Literal && !a.Literal && !a.Entangled():
		a.Scale *= b.LitValue
		a.Shift *= b.LitValue
		return a, nil
	}
	return Form{}, unsupportedIndexExpr(at)
}

func unsupportedIndexExpr(n ast.Node) error {
	return &tgerrors.CompilerError{
		Level:    tgerrors.Error,
		Code:     tgerrors.ECUnsupportedIndexExpr,
		Message:  fmt.Sprintf("index expression %q is not affine in at most one symbol", n.String()),
		Position: n.NodePos(),
	}
}
