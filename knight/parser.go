package knight

import (
	"fmt"
	"math"
	"strconv"
)

type Parser struct {
	tokens   []Token
	currIdx  int
	srcName  string
	table    *DispatchTable
	features Features
}

// NewParser reads operator arities from table, so the grammar always agrees
// with the operators the VM will dispatch.
func NewParser(tokens []Token, table *DispatchTable) *Parser {
	p := &Parser{
		tokens:   tokens,
		currIdx:  0,
		table:    table,
		features: table.Features(),
	}
	if len(tokens) > 0 {
		p.srcName = tokens[0].Loc.FileName
	}
	return p
}

// Parse reads one expression, the whole program. Tokens after it are
// ignored unless the compliance feature is on.
func (p *Parser) Parse() Result[ASTNode] {
	res := p.expression()
	if res.IsErr() {
		return res
	}
	if p.features.Compliance && !p.isAtEnd() {
		return ResErr[ASTNode](NewParseError(fmt.Sprintf("trailing token %q after program", p.current().Value), p.current().Loc))
	}
	return res
}

// utils

func (p *Parser) isAtEnd() bool {
	return p.currIdx >= len(p.tokens) || p.tokens[p.currIdx].Kind == TokenEOF
}

func (p *Parser) current() *Token {
	if p.currIdx >= len(p.tokens) {
		return &p.tokens[len(p.tokens)-1]
	}
	return &p.tokens[p.currIdx]
}

func (p *Parser) advance() *Token {
	tok := p.current()
	if !p.isAtEnd() {
		p.currIdx++
	}
	return tok
}

func (p *Parser) check(kind TokenType) bool {
	if p.isAtEnd() {
		return false
	}
	return p.current().Kind == kind
}

func (p *Parser) incomplete(msg string) Result[ASTNode] {
	err := NewParseError(msg, p.current().Loc)
	err.Incomplete = true
	return ResErr[ASTNode](err)
}

func (p *Parser) expression() Result[ASTNode] {
	if p.isAtEnd() {
		return p.incomplete("unexpected end of input, expected an expression")
	}

	tok := p.advance()
	switch tok.Kind {
	case TokenLParen:
		return p.group(tok)
	case TokenRParen:
		inner := p.expression()
		if inner.IsErr() {
			return inner
		}
		return ResOk[ASTNode](&Group{Close: tok, Inner: inner.Value})
	case TokenInt:
		return p.integer(tok)
	case TokenFloat:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return ResErr[ASTNode](NewParseError(fmt.Sprintf("invalid float literal %s", tok.Value), tok.Loc))
		}
		return ResOk[ASTNode](&Literal{Token: tok, Value: Float(f)})
	case TokenString:
		return ResOk[ASTNode](&Literal{Token: tok, Value: Str(tok.Value)})
	case TokenIdent:
		return ResOk[ASTNode](&VariableRef{Token: tok, Name: tok.Value})
	case TokenFunc:
		return p.operator(tok)
	}
	return ResErr[ASTNode](NewParseError(fmt.Sprintf("unexpected token %q", tok.Value), tok.Loc))
}

func (p *Parser) group(open *Token) Result[ASTNode] {
	inner := p.expression()
	if inner.IsErr() {
		return inner
	}
	g := &Group{Open: open, Inner: inner.Value}
	if p.check(TokenRParen) {
		g.Close = p.advance()
	}
	return ResOk[ASTNode](g)
}

func (p *Parser) integer(tok *Token) Result[ASTNode] {
	n, err := strconv.ParseInt(tok.Value, 10, 64)
	if err != nil {
		return ResErr[ASTNode](NewParseError(fmt.Sprintf("integer literal %s is out of range", tok.Value), tok.Loc))
	}
	if p.features.Compliance && n > math.MaxInt32 {
		return ResErr[ASTNode](NewParseError(fmt.Sprintf("integer literal %s does not fit in 32 bits", tok.Value), tok.Loc))
	}
	return ResOk[ASTNode](&Literal{Token: tok, Value: Int(n)})
}

func (p *Parser) operator(tok *Token) Result[ASTNode] {
	key := tok.Key()
	b, ok := p.table.Lookup(key)
	if !ok {
		return ResErr[ASTNode](NewParseError(fmt.Sprintf("unknown operator %s", tok.Value), tok.Loc))
	}

	switch b.Form {
	case FormLiteral:
		return ResOk[ASTNode](&Literal{Token: tok, Value: literalValue(key)})
	case FormSpecial:
		switch key {
		case "=":
			return p.assignment(tok)
		case "B":
			body := p.argument(tok, b, 0)
			if body.IsErr() {
				return body
			}
			return ResOk[ASTNode](&BlockLiteral{Token: tok, Body: body.Value})
		}
	}

	call := &Call{Token: tok, Op: key, Args: make([]ASTNode, 0, b.Arity)}
	for i := 0; i < b.Arity; i++ {
		arg := p.argument(tok, b, i)
		if arg.IsErr() {
			return arg
		}
		call.Args = append(call.Args, arg.Value)
	}
	return ResOk[ASTNode](call)
}

func (p *Parser) argument(tok *Token, b *Builtin, i int) Result[ASTNode] {
	if p.isAtEnd() {
		return p.incomplete(fmt.Sprintf("missing argument %d for %s (at %s)", i+1, b.Name, tok.Loc))
	}
	return p.expression()
}

// assignment parses `= target value`. The target may be wrapped in
// parentheses; it must be an identifier.
func (p *Parser) assignment(tok *Token) Result[ASTNode] {
	b, _ := p.table.Lookup("=")
	target := p.argument(tok, b, 0)
	if target.IsErr() {
		return target
	}
	value := p.argument(tok, b, 1)
	if value.IsErr() {
		return value
	}
	return ResOk[ASTNode](&Assignment{Token: tok, Target: target.Value, Value: value.Value})
}

// assignTarget unwraps groups around an identifier.
func assignTarget(node ASTNode) *VariableRef {
	for {
		switch n := node.(type) {
		case *VariableRef:
			return n
		case *Group:
			node = n.Inner
		default:
			return nil
		}
	}
}

func literalValue(key string) Value {
	switch key {
	case "T":
		return True
	case "F":
		return False
	case "@":
		return EmptyList
	}
	return Null
}
