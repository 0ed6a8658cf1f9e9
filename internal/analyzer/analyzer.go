// Package analyzer implements component B of the compiler: it parses the
// LHS shape, canonicalizes the RHS (spec.md 4.B), and populates a
// *store.Store for the later phases to consume.
package analyzer

import (
	"fmt"

	"tensorgen/internal/ast"
	tgerrors "tensorgen/internal/errors"
	"tensorgen/internal/store"
)

var reductionCalls = map[string]string{
	"sum":  "+",
	"prod": "*",
	"max":  "max",
	"min":  "min",
}

// Analyze turns a parsed equation into a populated Store, or the first
// diagnostic encountered.
func Analyze(eq *ast.Equation) (*store.Store, error) {
	st := store.New()

	if err := analyzeLHS(st, eq); err != nil {
		return nil, err
	}

	switch eq.Op {
	case ast.OpCreate:
		st.Flags.Set(store.NewArray)
	case ast.OpAccumulate:
		st.Flags.Set(store.PlusEquals)
	}

	rhs := eq.RHS
	if call, ok := rhs.(*ast.CallExpr); ok {
		if fn, known := reductionCalls[call.Callee]; known && len(call.Args) == 1 {
			st.RedFun = fn
			rhs = call.Args[0]
		}
	}

	c := newCanon(st)
	st.Right = c.canonicalize(rhs)
	if len(c.errs) > 0 {
		return nil, c.errs[0]
	}

	st.ComputeRedInd()

	if st.Flags.Has(store.NewArray) && !eq.LHS.Generated {
		for _, arr := range st.Arrays {
			if arr == st.LeftArray {
				return nil, &tgerrors.CompilerError{
					Level:    tgerrors.Error,
					Code:     tgerrors.ECSelfReferenceOnCreate,
					Message:  fmt.Sprintf("can't create a new array %s when %s also appears on the right", st.LeftArray, st.LeftArray),
					Position: eq.LHS.NodePos(),
				}
			}
		}
	}

	return st, nil
}

func analyzeLHS(st *store.Store, eq *ast.Equation) error {
	lhs := eq.LHS

	if lhs.Scalar {
		st.LeftScalar = lhs.Array
		return nil
	}

	name := lhs.Array
	if lhs.Generated {
		name = "Z"
	}
	st.LeftArray = name
	st.LeftRaw = lhs.Indices

	seen := map[string]int{}
	for _, arg := range lhs.Indices {
		if arg.Literal != nil {
			continue
		}
		if arg.Symbol == "" {
			return &tgerrors.CompilerError{
				Level:    tgerrors.Error,
				Code:     tgerrors.ECUnsupportedEquation,
				Message:  "left-hand side index positions must be a symbol or an integer literal",
				Position: arg.Pos,
			}
		}
		seen[arg.Symbol]++
		st.AddLeftInd(arg.Symbol)
		if arg.Keyword != "" {
			st.LeftNames[arg.Symbol] = arg.Keyword
		}
	}
	for _, count := range seen {
		if count > 1 {
			st.Flags.Set(store.Zero)
		}
	}
	return nil
}
