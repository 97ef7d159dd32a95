package knight

import (
	"fmt"
	"strings"
)

type ASTNode interface {
	GetToken() *Token
	String() string
	TypeString() string
}

// Visitor pattern for traversing the AST.
type Visitor interface {
	Visit(node ASTNode)
}

// WalkFunc is a function that can be used as a visitor.
type WalkFunc func(node ASTNode)

func (f WalkFunc) Visit(node ASTNode) {
	f(node)
}

// Walk visits node and then its children, depth first.
func Walk(node ASTNode, visitor Visitor) {
	if node == nil {
		return
	}

	visitor.Visit(node)

	switch n := node.(type) {
	case *Assignment:
		Walk(n.Target, visitor)
		Walk(n.Value, visitor)
	case *BlockLiteral:
		Walk(n.Body, visitor)
	case *Call:
		for _, arg := range n.Args {
			Walk(arg, visitor)
		}
	case *Group:
		Walk(n.Inner, visitor)
	}
}

// Literal is a constant: integer, float, string, TRUE, FALSE, NULL or @.
type Literal struct {
	Token *Token
	Value Value
}

func (l *Literal) GetToken() *Token   { return l.Token }
func (l *Literal) TypeString() string { return "Literal" }
func (l *Literal) String() string {
	if s, err := Dump(l.Value); err == nil {
		return s
	}
	return l.Token.Value
}

type VariableRef struct {
	Token *Token
	Name  string
}

func (v *VariableRef) GetToken() *Token   { return v.Token }
func (v *VariableRef) TypeString() string { return "VariableRef" }
func (v *VariableRef) String() string     { return v.Name }

// Assignment is `= name value`; it evaluates to the assigned value. Target
// is a VariableRef, possibly wrapped in groups.
type Assignment struct {
	Token  *Token
	Target ASTNode
	Value  ASTNode
}

// Variable returns the assigned variable, or nil when the target is not an
// identifier.
func (a *Assignment) Variable() *VariableRef {
	return assignTarget(a.Target)
}

func (a *Assignment) GetToken() *Token   { return a.Token }
func (a *Assignment) TypeString() string { return "Assignment" }
func (a *Assignment) String() string {
	return fmt.Sprintf("(= %s %s)", a.Target, a.Value)
}

// BlockLiteral is `BLOCK body`; the body is deferred.
type BlockLiteral struct {
	Token *Token
	Body  ASTNode
}

func (b *BlockLiteral) GetToken() *Token   { return b.Token }
func (b *BlockLiteral) TypeString() string { return "BlockLiteral" }
func (b *BlockLiteral) String() string {
	return fmt.Sprintf("(BLOCK %s)", b.Body)
}

// Call is any other operator applied to its operands. Op is the dispatch key.
type Call struct {
	Token *Token
	Op    string
	Args  []ASTNode
}

func (c *Call) GetToken() *Token   { return c.Token }
func (c *Call) TypeString() string { return "Call" }
func (c *Call) String() string {
	if len(c.Args) == 0 {
		return c.Token.Value
	}
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Token.Value)
	for _, a := range c.Args {
		parts = append(parts, a.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Group is a parenthesised expression. Open or Close is nil when the
// source had a stray or missing parenthesis.
type Group struct {
	Open  *Token
	Close *Token
	Inner ASTNode
}

func (g *Group) GetToken() *Token {
	if g.Open != nil {
		return g.Open
	}
	return g.Close
}
func (g *Group) TypeString() string { return "Group" }
func (g *Group) String() string     { return g.Inner.String() }

// Balanced reports whether both parentheses are present.
func (g *Group) Balanced() bool {
	return g.Open != nil && g.Close != nil
}
