package knight

import "fmt"

type TokenType int

const (
	TokenInt TokenType = iota
	TokenFloat
	TokenString
	TokenIdent
	TokenFunc
	TokenLParen
	TokenRParen
	TokenEOF
	TokenError
)

func (t TokenType) String() string {
	return []string{
		"TokenInt",
		"TokenFloat",
		"TokenString",
		"TokenIdent",
		"TokenFunc",
		"TokenLParen",
		"TokenRParen",
		"TokenEOF",
		"TokenError",
	}[t]
}

type Loc struct {
	FileName string `json:"fileName" cbor:"f,omitempty"`
	Line     int    `json:"line" cbor:"l"`
	ColStart int    `json:"colStart" cbor:"c"`
	ColEnd   *int   `json:"colEnd,omitempty" cbor:"e,omitempty"`
}

func (l Loc) String() string {
	if l.ColEnd != nil {
		return fmt.Sprintf("%d:%d-%d", l.Line, l.ColStart, *l.ColEnd)
	}
	return fmt.Sprintf("%d:%d", l.Line, l.ColStart)
}

// IsZero reports whether the location was never set.
func (l Loc) IsZero() bool {
	return l.Line == 0 && l.ColStart == 0
}

// Token is one lexeme. For TokenFunc the Value is the whole operator word
// ("OUTPUT", "XRANGE", "+"); Key gives the name the dispatch table uses.
type Token struct {
	Kind  TokenType `json:"kind"`
	Value string    `json:"value"`
	Loc   Loc       `json:"loc"`
}

func (t Token) Key() string {
	if t.Kind != TokenFunc {
		return t.Value
	}
	return OperatorKey(t.Value)
}

func (t Token) String() string {
	return fmt.Sprintf("%s %s", t.Kind, t.Value)
}

// OperatorKey maps an operator word to its dispatch key: word operators are
// identified by their first letter, X-prefixed extension words by the whole word.
func OperatorKey(word string) string {
	if word == "" {
		return word
	}
	if word[0] == 'X' && len(word) > 1 {
		return word
	}
	if word[0] >= 'A' && word[0] <= 'Z' {
		return word[:1]
	}
	return word
}
