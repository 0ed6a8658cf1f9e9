package ast

import (
	"strconv"
	"strings"
)

// AssignOp is the top-level equation operator, distinguishing create,
// overwrite and accumulate per spec.md 4.B.
type AssignOp string

const (
	OpCreate     AssignOp = ":=" // LHS := RHS, must allocate
	OpOverwrite  AssignOp = "="  // LHS = RHS, LHS already exists
	OpAccumulate AssignOp = "+=" // LHS += RHS, in-place accumulate
)

// IndexArg is one position in an LHS (or, by reuse, a nested-index list)
// index list: a plain symbol, an integer pin, or a keyword-named axis.
type IndexArg struct {
	Pos, End Position
	Keyword  string // "name" in "name=index"; empty if unnamed
	Symbol   string // index variable name; empty if Literal != nil
	Literal  *int64 // non-nil for an integer axis pin
}

func (a IndexArg) String() string {
	var s string
	switch {
	case a.Literal != nil:
		s = strconv.FormatInt(*a.Literal, 10)
	default:
		s = a.Symbol
	}
	if a.Keyword != "" {
		return a.Keyword + "=" + s
	}
	return s
}

// LHS is the left-hand side of an equation.
type LHS struct {
	Pos, End Position

	// Array is the LHS array name. Empty for a bare slot `[i,j] := ...`,
	// in which case the analyzer assigns a generated placeholder ("Z").
	Array string

	// Generated is true when Array was a bare slot (no name given).
	Generated bool

	// Indices is nil for a scalar-reduction LHS (a bare symbol, Array holds
	// the scalar's name and Scalar is true).
	Indices []IndexArg

	// Scalar is true when the LHS is a bare name, e.g. `s := A[i]*A[i]`.
	Scalar bool
}

func (l *LHS) NodePos() Position    { return l.Pos }
func (l *LHS) NodeEndPos() Position { return l.End }
func (l *LHS) String() string {
	if l.Scalar {
		return l.Array
	}
	parts := make([]string, len(l.Indices))
	for i, idx := range l.Indices {
		parts[i] = idx.String()
	}
	return l.Array + "[" + strings.Join(parts, ",") + "]"
}

// Equation is the full parsed equation: `LHS Op RHS`.
type Equation struct {
	Pos, End Position
	LHS      *LHS
	Op       AssignOp
	RHS      Expr
}

func (e *Equation) NodePos() Position    { return e.Pos }
func (e *Equation) NodeEndPos() Position { return e.End }
func (e *Equation) String() string {
	return e.LHS.String() + " " + string(e.Op) + " " + e.RHS.String()
}

// RangeDecl is an extra range declaration supplied as a call-site argument,
// e.g. `i ∈ 1:N`.
type RangeDecl struct {
	Pos, End Position
	Index    string
	Lo, Hi   Expr
}

func (r *RangeDecl) NodePos() Position    { return r.Pos }
func (r *RangeDecl) NodeEndPos() Position { return r.End }
func (r *RangeDecl) String() string {
	return r.Index + " ∈ " + r.Lo.String() + ":" + r.Hi.String()
}
