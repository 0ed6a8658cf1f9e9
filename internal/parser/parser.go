// Package parser turns equation source text into the internal/ast tree.
// It stands in for the "host parser" spec.md treats as an external
// collaborator: Go has no macro facility to hand a pre-parsed syntax tree
// to a library, so tensorgen owns a small hand-written scanner + Pratt
// parser, grounded on the teacher's own internal/parser/parser_pratt.go.
// The analyzer (package internal/analyzer) never looks at source text,
// only at the *ast.Equation this package produces, preserving the
// intended boundary between "syntax" and "semantics".
package parser

import (
	"fmt"
	"strconv"

	"tensorgen/internal/ast"
	tgerrors "tensorgen/internal/errors"
)

// binaryPrecedence orders arithmetic and comparison operators; broadcast-dot
// operators bind at the same level as their plain-arithmetic counterpart.
var binaryPrecedence = map[TokenType]int{
	EQ: 1, NEQ: 1, LT: 1, LE: 1, GT: 1, GE: 1,
	PLUS: 2, MINUS: 2, DOTPLUS: 2,
	STAR: 3, SLASH: 3, DOTSTAR: 3, DOTSLASH: 3,
	CARET: 4,
}

// Parser is a recursive-descent/Pratt parser over one equation's tokens.
type Parser struct {
	tokens []Token
	pos    int
	source string
	Errors []*tgerrors.CompilerError
}

// New builds a Parser over equation source text.
func New(source string) *Parser {
	return &Parser{tokens: NewScanner(source).ScanTokens(), source: source}
}

// ParseEquation parses the entire source as one `LHS op RHS` equation.
func (p *Parser) ParseEquation() (*ast.Equation, error) {
	lhs := p.parseLHS()
	op, ok := p.parseAssignOp()
	if !ok {
		return nil, p.fail(tgerrors.ECUnsupportedEquation, p.peek().Pos,
			"expected ':=', '=' or '+=' after the left-hand side")
	}
	rhs := p.parseExpr(0)
	if !p.check(EOF) {
		return nil, p.fail(tgerrors.ECUnsupportedEquation, p.peek().Pos,
			fmt.Sprintf("unexpected trailing token %q", p.peek().Lexeme))
	}
	if len(p.Errors) > 0 {
		return nil, p.Errors[0]
	}
	eq := &ast.Equation{Pos: lhs.Pos, End: p.previous().End, LHS: lhs, Op: op, RHS: rhs}
	return eq, nil
}

// ParseExpr parses a single expression.
func (p *Parser) ParseExpr() (ast.Expr, error) {
	e := p.parseExpr(0)
	if len(p.Errors) > 0 {
		return nil, p.Errors[0]
	}
	return e, nil
}

// ParseRangeDecl parses `index ∈ lo:hi`.
func (p *Parser) ParseRangeDecl() (*ast.RangeDecl, error) {
	start := p.peek().Pos
	idx := p.expect(IDENT, "expected index symbol")
	p.expect(ELEMENT, "expected '∈' in range declaration")
	lo := p.parseExpr(2) // above comparison precedence; ':' is not an operator here
	p.expect(COLON, "expected ':' between range bounds")
	hi := p.parseExpr(2)
	if len(p.Errors) > 0 {
		return nil, p.Errors[0]
	}
	return &ast.RangeDecl{Pos: start, End: p.previous().End, Index: idx.Lexeme, Lo: lo, Hi: hi}, nil
}

// --- LHS ---

func (p *Parser) parseLHS() *ast.LHS {
	start := p.peek().Pos

	if p.check(LBRACKET) {
		indices := p.parseIndexList()
		return &ast.LHS{Pos: start, End: p.previous().End, Generated: true, Indices: indices}
	}

	name := p.expect(IDENT, "expected an array name, index list, or scalar name")
	if p.check(LBRACKET) {
		indices := p.parseIndexList()
		return &ast.LHS{Pos: start, End: p.previous().End, Array: name.Lexeme, Indices: indices}
	}
	return &ast.LHS{Pos: start, End: name.End, Array: name.Lexeme, Scalar: true}
}

func (p *Parser) parseIndexList() []ast.IndexArg {
	p.expect(LBRACKET, "expected '['")
	var args []ast.IndexArg
	if !p.check(RBRACKET) {
		for {
			args = append(args, p.parseIndexArg())
			if !p.match(COMMA) {
				break
			}
		}
	}
	p.expect(RBRACKET, "expected ']'")
	return args
}

func (p *Parser) parseIndexArg() ast.IndexArg {
	start := p.peek().Pos
	if p.check(INT) {
		tok := p.advance()
		v, _ := strconv.ParseInt(tok.Lexeme, 10, 64)
		return ast.IndexArg{Pos: start, End: tok.End, Literal: &v}
	}
	name := p.expect(IDENT, "expected an index symbol or integer")
	if p.match(ASSIGN_PLAIN) {
		idx := p.expect(IDENT, "expected an index symbol after '='")
		return ast.IndexArg{Pos: start, End: idx.End, Keyword: name.Lexeme, Symbol: idx.Lexeme}
	}
	return ast.IndexArg{Pos: start, End: name.End, Symbol: name.Lexeme}
}

func (p *Parser) parseAssignOp() (ast.AssignOp, bool) {
	switch p.peek().Type {
	case ASSIGN_CREATE:
		p.advance()
		return ast.OpCreate, true
	case ASSIGN_PLAIN:
		p.advance()
		return ast.OpOverwrite, true
	case ASSIGN_PLUS:
		p.advance()
		return ast.OpAccumulate, true
	}
	return "", false
}

// --- RHS: Pratt expression parsing ---

func (p *Parser) parseExpr(minPrec int) ast.Expr {
	left := p.parseUnary()

	for {
		tok := p.peek()
		prec, ok := binaryPrecedence[tok.Type]
		if !ok || prec < minPrec {
			break
		}
		p.advance()
		right := p.parseExpr(prec + 1)

		if isBroadcastOp(tok.Type) {
			left = &ast.BroadcastExpr{Pos: left.NodePos(), End: right.NodeEndPos(), Op: broadcastOpName(tok.Type), Left: left, Right: right}
		} else {
			left = &ast.BinaryExpr{Pos: left.NodePos(), End: right.NodeEndPos(), Op: string(tok.Type), Left: left, Right: right}
		}
	}

	return left
}

func isBroadcastOp(t TokenType) bool {
	return t == DOTSTAR || t == DOTSLASH || t == DOTPLUS
}

func broadcastOpName(t TokenType) string {
	switch t {
	case DOTSTAR:
		return "*"
	case DOTSLASH:
		return "/"
	default:
		return "+"
	}
}

func (p *Parser) parseUnary() ast.Expr {
	if p.check(MINUS) {
		tok := p.advance()
		operand := p.parseUnary()
		return &ast.UnaryExpr{Pos: tok.Pos, End: operand.NodeEndPos(), Op: "-", Operand: operand}
	}
	return p.parsePostfix(p.parsePrimary())
}

func (p *Parser) parsePostfix(expr ast.Expr) ast.Expr {
	for {
		switch {
		case p.check(LBRACKET):
			p.advance()
			var indices []ast.Expr
			if !p.check(RBRACKET) {
				for {
					indices = append(indices, p.parseExpr(0))
					if !p.match(COMMA) {
						break
					}
				}
			}
			end := p.expect(RBRACKET, "expected ']' after index list")
			expr = &ast.IndexExpr{Pos: expr.NodePos(), End: end.End, Array: expr, Indices: indices}
		case p.check(DOT):
			p.advance()
			field := p.expect(IDENT, "expected a field name after '.'")
			expr = &ast.FieldAccessExpr{Pos: expr.NodePos(), End: field.End, Target: expr, Field: field.Lexeme}
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.peek()

	switch tok.Type {
	case INT:
		p.advance()
		v, _ := strconv.ParseInt(tok.Lexeme, 10, 64)
		return &ast.IntLit{Pos: tok.Pos, End: tok.End, Value: v}

	case DOLLAR:
		p.advance()
		if !p.check(IDENT) {
			p.fail(tgerrors.ECBadInterpolation, tok.Pos, "'$' must be followed by a bare symbol")
			return &ast.BadExpr{Pos: tok.Pos, End: tok.End, Reason: "bad-interpolation"}
		}
		name := p.advance()
		return &ast.ScalarInterp{Pos: tok.Pos, End: name.End, Name: name.Lexeme}

	case LPAREN:
		p.advance()
		var elems []ast.Expr
		if !p.check(RPAREN) {
			for {
				elems = append(elems, p.parseExpr(0))
				if !p.match(COMMA) {
					break
				}
			}
		}
		end := p.expect(RPAREN, "expected ')'")
		if len(elems) == 1 {
			return elems[0]
		}
		return &ast.TupleExpr{Pos: tok.Pos, End: end.End, Elems: elems}

	case IDENT:
		p.advance()
		if p.check(LPAREN) {
			return p.parseCall(tok)
		}
		return &ast.Ident{Pos: tok.Pos, End: tok.End, Name: tok.Lexeme}
	}

	p.fail(tgerrors.ECUnsupportedEquation, tok.Pos, fmt.Sprintf("unexpected token %q in expression", tok.Lexeme))
	p.advance()
	return &ast.BadExpr{Pos: tok.Pos, End: tok.End, Reason: "unexpected-token"}
}

func (p *Parser) parseCall(name Token) ast.Expr {
	p.expect(LPAREN, "expected '('")
	var args []ast.Expr
	if !p.check(RPAREN) {
		for {
			args = append(args, p.parseCallArg())
			if !p.match(COMMA) {
				break
			}
		}
	}
	end := p.expect(RPAREN, "expected ')' after call arguments")
	return &ast.CallExpr{Pos: name.Pos, End: end.End, Callee: name.Lexeme, Args: args}
}

// parseCallArg recognizes `name = value` keyword arguments (spec.md 4.B.2:
// "keyword arguments inside calls" trigger structural suppression) ahead of
// a plain positional expression.
func (p *Parser) parseCallArg() ast.Expr {
	if p.check(IDENT) && p.peekAt(1).Type == ASSIGN_PLAIN {
		name := p.advance()
		p.advance() // '='
		value := p.parseExpr(0)
		return &ast.KeywordArg{Pos: name.Pos, End: value.NodeEndPos(), Name: name.Lexeme, Value: value}
	}
	return p.parseExpr(0)
}

// --- token stream helpers ---

func (p *Parser) peek() Token { return p.tokens[p.pos] }

func (p *Parser) peekAt(off int) Token {
	i := p.pos + off
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[i]
}

func (p *Parser) previous() Token {
	if p.pos == 0 {
		return p.tokens[0]
	}
	return p.tokens[p.pos-1]
}

func (p *Parser) check(t TokenType) bool { return p.peek().Type == t }

func (p *Parser) match(t TokenType) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) advance() Token {
	tok := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(t TokenType, msg string) Token {
	if p.check(t) {
		return p.advance()
	}
	p.fail(tgerrors.ECUnsupportedEquation, p.peek().Pos, msg)
	return p.peek()
}

func (p *Parser) fail(code tgerrors.Code, pos ast.Position, msg string) error {
	err := &tgerrors.CompilerError{Level: tgerrors.Error, Code: code, Message: msg, Position: pos}
	p.Errors = append(p.Errors, err)
	return err
}
