package analyzer

import (
	"fmt"

	"tensorgen/internal/ast"
	tgerrors "tensorgen/internal/errors"
	"tensorgen/internal/store"
)

// canon carries the mutable state of one RHS walk. It plays the role spec.md
// 9's Design Note asks for: "re-express as an explicit visitor whose return
// is (rewritten_tree, flag_delta, new_facts) rather than relying on hidden
// mutation" — canonicalize always returns the rewritten subtree, and every
// Store fact it learns (arrays, indices, constraints, cost) is appended
// explicitly at the point of discovery rather than mutated behind the
// visitor's back.
type canon struct {
	st         *store.Store
	errs       []*tgerrors.CompilerError
	genCounter int
}

func newCanon(st *store.Store) *canon {
	return &canon{st: st}
}

func (c *canon) fail(code tgerrors.Code, pos ast.Position, msg string) {
	c.errs = append(c.errs, &tgerrors.CompilerError{Level: tgerrors.Error, Code: code, Message: msg, Position: pos})
}

func (c *canon) freshSymbol() string {
	c.genCounter++
	return fmt.Sprintf("_t%d", c.genCounter)
}

// canonicalize performs the seven RHS rewrites of spec.md 4.B, in order,
// bottom-up.
func (c *canon) canonicalize(e ast.Expr) ast.Expr {
	switch n := e.(type) {
	case *ast.Ident:
		return n

	case *ast.IntLit:
		return n

	case *ast.BadExpr:
		return n

	case *ast.ScalarInterp:
		// Step 6: scalar interpolation. `$x` becomes a plain reference to x.
		c.st.AddScalar(n.Name)
		return &ast.Ident{Pos: n.Pos, End: n.End, Name: n.Name}

	case *ast.UnaryExpr:
		c.st.Cost += opCost(n.Op)
		operand := c.canonicalize(n.Operand)
		return &ast.UnaryExpr{Pos: n.Pos, End: n.End, Op: n.Op, Operand: operand}

	case *ast.BinaryExpr:
		// Step 2: comparison operators trigger structural suppression.
		if isComparison(n.Op) {
			c.st.Flags.Set(store.NoAVX)
		}
		c.st.Cost += opCost(n.Op)
		left := c.canonicalize(n.Left)
		right := c.canonicalize(n.Right)
		return &ast.BinaryExpr{Pos: n.Pos, End: n.End, Op: n.Op, Left: left, Right: right}

	case *ast.BroadcastExpr:
		// Step 2: broadcast-dot syntax triggers noavx and nograd.
		c.st.Flags.Set(store.NoAVX)
		c.st.Flags.Set(store.NoGrad)
		c.st.Cost += opCost(n.Op)
		left := c.canonicalize(n.Left)
		right := c.canonicalize(n.Right)
		return &ast.BroadcastExpr{Pos: n.Pos, End: n.End, Op: n.Op, Left: left, Right: right}

	case *ast.TupleExpr:
		// Step 2: tuple construction triggers noavx.
		c.st.Flags.Set(store.NoAVX)
		elems := make([]ast.Expr, len(n.Elems))
		for i, el := range n.Elems {
			elems[i] = c.canonicalize(el)
		}
		return &ast.TupleExpr{Pos: n.Pos, End: n.End, Elems: elems}

	case *ast.FieldAccessExpr:
		// Step 1: subfield access triggers noavx and nograd.
		c.st.Flags.Set(store.NoAVX)
		c.st.Flags.Set(store.NoGrad)
		target := c.canonicalize(n.Target)
		return &ast.FieldAccessExpr{Pos: n.Pos, End: n.End, Target: target, Field: n.Field}

	case *ast.KeywordArg:
		c.st.Flags.Set(store.NoAVX)
		value := c.canonicalize(n.Value)
		return &ast.KeywordArg{Pos: n.Pos, End: n.End, Name: n.Name, Value: value}

	case *ast.CallExpr:
		c.st.Cost += callCost(n.Callee)
		args := make([]ast.Expr, len(n.Args))
		for i, a := range n.Args {
			args[i] = c.canonicalize(a)
		}
		return &ast.CallExpr{Pos: n.Pos, End: n.End, Callee: n.Callee, Args: args}

	case *ast.IndexExpr:
		return c.canonicalizeIndex(n)
	}

	return e
}

func isComparison(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

// canonicalizeIndex implements steps 1, 3 and 5 of spec.md 4.B for one
// array reference `A[e1,...,en]`.
func (c *canon) canonicalizeIndex(n *ast.IndexExpr) ast.Expr {
	// Step 1: nested indexing (A[...][...]) is subfield-like; flag before lifting.
	if _, nested := n.Array.(*ast.IndexExpr); nested {
		c.st.Flags.Set(store.NoAVX)
		c.st.Flags.Set(store.NoGrad)
	}

	arrayExpr := c.canonicalize(n.Array)

	// Step 3: function-of-array lifting. Any array reference whose root is
	// not a bare name is lifted into a fresh symbol bound in OutPre.
	ident, isIdent := arrayExpr.(*ast.Ident)
	if !isIdent {
		sym := c.freshSymbol()
		c.st.OutPre = append(c.st.OutPre, fmt.Sprintf("%s := %s", sym, arrayExpr.String()))
		ident = &ast.Ident{Pos: n.Pos, End: n.End, Name: sym}
	}
	arrayName := ident.Name
	c.st.AddArray(arrayName)
	c.st.OutPre = append(c.st.OutPre, fmt.Sprintf("assert rank(%s) == %d", arrayName, len(n.Indices)))

	for axis, posExpr := range n.Indices {
		form, err := decomposeAffine(posExpr)
		if err != nil {
			c.errs = append(c.errs, err.(*tgerrors.CompilerError))
			continue
		}

		switch {
		case form.Literal:
			// Constant position: contributes no index.
			continue

		case form.Entangled():
			rA := store.RangeExpr{Array: arrayName, Axis: axis}
			rB := store.RangeExpr{Array: arrayName, Axis: axis}
			c.st.PairConstraints = append(c.st.PairConstraints, store.PairConstraint{
				IndexA: form.Var, IndexB: form.Var2, RangeA: rA, RangeB: rB,
			})
			c.st.AddRightInd(form.Var)
			c.st.AddRightInd(form.Var2)
			c.st.AddArrayIndex(arrayName, form.Var)
			c.st.AddArrayIndex(arrayName, form.Var2)

		default:
			c.st.AddRightInd(form.Var)
			c.st.AddArrayIndex(arrayName, form.Var)
			if form.Scale != 1 || form.Shift != 0 {
				c.st.ShiftedInd[form.Var] = true
			}
			scale := form.Scale
			if scale == 0 {
				scale = 1
			}
			c.st.AddConstraint(form.Var, store.RangeExpr{
				Array: arrayName, Axis: axis, Shift: form.Shift, Scale: scale,
			})
		}
	}

	return &ast.IndexExpr{Pos: n.Pos, End: n.End, Array: ident, Indices: n.Indices}
}
