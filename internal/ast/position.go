// Package ast defines the syntax tree for a single tensor-contraction equation:
// the small surface a caller writes, e.g. `Z[i,k] := A[i,j] * B[j,k]`.
package ast

import "fmt"

// Position locates a token in the original equation text.
type Position struct {
	Line   int
	Column int
	Offset int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Node is implemented by every AST type. Unlike a general-purpose language
// AST, nodes here never carry attached metadata: the equation grammar is
// small enough that position information alone is sufficient for diagnostics.
type Node interface {
	NodePos() Position
	NodeEndPos() Position
	String() string
}
