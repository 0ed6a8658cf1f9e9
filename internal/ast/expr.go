package ast

import (
	"strconv"
	"strings"
)

// Expr is any right-hand-side (or index-position) expression node.
type Expr interface {
	Node
	isExpr()
}

func (*Ident) isExpr()          {}
func (*IntLit) isExpr()         {}
func (*ScalarInterp) isExpr()   {}
func (*IndexExpr) isExpr()      {}
func (*CallExpr) isExpr()       {}
func (*KeywordArg) isExpr()     {}
func (*BinaryExpr) isExpr()     {}
func (*UnaryExpr) isExpr()      {}
func (*TupleExpr) isExpr()      {}
func (*BroadcastExpr) isExpr()  {}
func (*FieldAccessExpr) isExpr() {}
func (*BadExpr) isExpr()        {}

// Ident is a bare name: an index symbol, an array name, or a scalar.
// Primes are folded into Name by the scanner (i' -> "i′"), idempotently.
type Ident struct {
	Pos, End Position
	Name     string
}

func (i *Ident) NodePos() Position    { return i.Pos }
func (i *Ident) NodeEndPos() Position { return i.End }
func (i *Ident) String() string       { return i.Name }

// IntLit is an integer literal, used either as a literal axis pin in an
// index position or as a plain numeric constant on the RHS.
type IntLit struct {
	Pos, End Position
	Value    int64
}

func (n *IntLit) NodePos() Position    { return n.Pos }
func (n *IntLit) NodeEndPos() Position { return n.End }
func (n *IntLit) String() string       { return strconv.FormatInt(n.Value, 10) }

// ScalarInterp is `$x`: a lifted, interpolated scalar reference.
type ScalarInterp struct {
	Pos, End Position
	Name     string
}

func (s *ScalarInterp) NodePos() Position    { return s.Pos }
func (s *ScalarInterp) NodeEndPos() Position { return s.End }
func (s *ScalarInterp) String() string       { return "$" + s.Name }

// IndexExpr is an array reference `Array[Indices...]`. Array is itself an
// Expr rather than a bare name so that `f(B)[i]` parses directly; the
// analyzer's function-of-array lifting rewrites such cases into a reference
// against a fresh, bare-named symbol.
type IndexExpr struct {
	Pos, End Position
	Array    Expr
	Indices  []Expr
}

func (x *IndexExpr) NodePos() Position    { return x.Pos }
func (x *IndexExpr) NodeEndPos() Position { return x.End }
func (x *IndexExpr) String() string {
	parts := make([]string, len(x.Indices))
	for i, idx := range x.Indices {
		parts[i] = idx.String()
	}
	return x.Array.String() + "[" + strings.Join(parts, ",") + "]"
}

// CallExpr is a function call `name(args...)`.
type CallExpr struct {
	Pos, End Position
	Callee   string
	Args     []Expr
}

func (c *CallExpr) NodePos() Position    { return c.Pos }
func (c *CallExpr) NodeEndPos() Position { return c.End }
func (c *CallExpr) String() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = a.String()
	}
	return c.Callee + "(" + strings.Join(parts, ",") + ")"
}

// KeywordArg is `name = value` inside a call's argument list. Its mere
// presence triggers structural suppression (noavx) per spec.md 4.B.2.
type KeywordArg struct {
	Pos, End Position
	Name     string
	Value    Expr
}

func (k *KeywordArg) NodePos() Position    { return k.Pos }
func (k *KeywordArg) NodeEndPos() Position { return k.End }
func (k *KeywordArg) String() string       { return k.Name + "=" + k.Value.String() }

// BinaryExpr covers arithmetic (+ - * / ^) and comparison (== != < <= > >=)
// operators alike; the analyzer distinguishes them by Op when deciding
// whether to raise noavx for a comparison.
type BinaryExpr struct {
	Pos, End Position
	Op       string
	Left     Expr
	Right    Expr
}

func (b *BinaryExpr) NodePos() Position    { return b.Pos }
func (b *BinaryExpr) NodeEndPos() Position { return b.End }
func (b *BinaryExpr) String() string {
	return "(" + b.Left.String() + " " + b.Op + " " + b.Right.String() + ")"
}

// UnaryExpr is a prefix operator, e.g. unary minus.
type UnaryExpr struct {
	Pos, End Position
	Op       string
	Operand  Expr
}

func (u *UnaryExpr) NodePos() Position    { return u.Pos }
func (u *UnaryExpr) NodeEndPos() Position { return u.End }
func (u *UnaryExpr) String() string       { return u.Op + u.Operand.String() }

// TupleExpr is `(a, b, c)` tuple construction; it always triggers noavx.
type TupleExpr struct {
	Pos, End Position
	Elems    []Expr
}

func (t *TupleExpr) NodePos() Position    { return t.Pos }
func (t *TupleExpr) NodeEndPos() Position { return t.End }
func (t *TupleExpr) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// BroadcastExpr is the `.op` broadcast-dot form, e.g. `A .* B`. It triggers
// both noavx and nograd.
type BroadcastExpr struct {
	Pos, End Position
	Op       string
	Left     Expr
	Right    Expr
}

func (b *BroadcastExpr) NodePos() Position    { return b.Pos }
func (b *BroadcastExpr) NodeEndPos() Position { return b.End }
func (b *BroadcastExpr) String() string {
	return b.Left.String() + " ." + b.Op + " " + b.Right.String()
}

// FieldAccessExpr is `expr.field`, i.e. subfield access on an array
// reference. Its presence triggers both noavx and nograd.
type FieldAccessExpr struct {
	Pos, End Position
	Target   Expr
	Field    string
}

func (f *FieldAccessExpr) NodePos() Position    { return f.Pos }
func (f *FieldAccessExpr) NodeEndPos() Position { return f.End }
func (f *FieldAccessExpr) String() string       { return f.Target.String() + "." + f.Field }

// BadExpr marks a syntax error the parser recovered from.
type BadExpr struct {
	Pos, End Position
	Reason   string
}

func (b *BadExpr) NodePos() Position    { return b.Pos }
func (b *BadExpr) NodeEndPos() Position { return b.End }
func (b *BadExpr) String() string       { return "<bad:" + b.Reason + ">" }
