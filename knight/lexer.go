package knight

import (
	"fmt"
	"strings"
)

const symbolOperators = "!~,[]+-*/%^<>?&|;=:@"

type Lexer struct {
	source   string
	srcName  string
	currIdx  int
	currChar byte
	line     int
	col      int
	tokens   []Token
	floats   bool
}

func NewLexer(srcName, source string, features Features) *Lexer {
	l := &Lexer{
		source:  source,
		srcName: srcName,
		currIdx: 0,
		line:    1,
		col:     1,
		tokens:  make([]Token, 0),
		floats:  features.Floats,
	}

	if len(source) > 0 {
		l.currChar = source[0]
	}
	return l
}

func (l *Lexer) advance() {
	if l.currChar == '\n' {
		l.line++
		l.col = 0
	}
	l.currIdx++
	if l.currIdx < len(l.source) {
		l.currChar = l.source[l.currIdx]
	} else {
		l.currChar = 0
	}
	l.col++
}

func (l *Lexer) hasChar() bool {
	return l.currIdx < len(l.source)
}

func (l *Lexer) peek(offset int) byte {
	peekIdx := l.currIdx + offset
	if peekIdx < len(l.source) {
		return l.source[peekIdx]
	}
	return 0
}

func (l *Lexer) getLoc(line, colStart int) Loc {
	loc := Loc{FileName: l.srcName, Line: line, ColStart: colStart}
	if l.line == line && l.col-1 > colStart {
		colEnd := l.col - 1
		loc.ColEnd = &colEnd
	}
	return loc
}

func (l *Lexer) addToken(kind TokenType, value string, loc Loc) {
	l.tokens = append(l.tokens, Token{Kind: kind, Value: value, Loc: loc})
}

func isLower(c byte) bool { return c >= 'a' && c <= 'z' || c == '_' }
func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Tokenize lexes the whole source. The token list always ends with TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	for l.hasChar() {
		c := l.currChar
		line, col := l.line, l.col

		switch {
		case isKnightSpace(c):
			l.advance()
		case c == '#':
			for l.hasChar() && l.currChar != '\n' {
				l.advance()
			}
		case isDigit(c):
			l.lexNumber(line, col)
		case isLower(c):
			start := l.currIdx
			for l.hasChar() && (isLower(l.currChar) || isDigit(l.currChar)) {
				l.advance()
			}
			l.addToken(TokenIdent, l.source[start:l.currIdx], l.getLoc(line, col))
		case isUpper(c):
			start := l.currIdx
			for l.hasChar() && (isUpper(l.currChar) || l.currChar == '_') {
				l.advance()
			}
			l.addToken(TokenFunc, l.source[start:l.currIdx], l.getLoc(line, col))
		case c == '\'' || c == '"':
			if err := l.lexString(line, col); err != nil {
				return l.tokens, err
			}
		case c == '(':
			l.advance()
			l.addToken(TokenLParen, "(", l.getLoc(line, col))
		case c == ')':
			l.advance()
			l.addToken(TokenRParen, ")", l.getLoc(line, col))
		case strings.IndexByte(symbolOperators, c) >= 0:
			l.advance()
			l.addToken(TokenFunc, string(c), l.getLoc(line, col))
		default:
			return l.tokens, NewParseError(fmt.Sprintf("unknown token start %q", c), Loc{FileName: l.srcName, Line: line, ColStart: col})
		}
	}
	l.addToken(TokenEOF, "", Loc{FileName: l.srcName, Line: l.line, ColStart: l.col})
	return l.tokens, nil
}

func (l *Lexer) lexNumber(line, col int) {
	start := l.currIdx
	for l.hasChar() && isDigit(l.currChar) {
		l.advance()
	}
	if l.floats && l.currChar == '.' && isDigit(l.peek(1)) {
		l.advance()
		for l.hasChar() && isDigit(l.currChar) {
			l.advance()
		}
		l.addToken(TokenFloat, l.source[start:l.currIdx], l.getLoc(line, col))
		return
	}
	l.addToken(TokenInt, l.source[start:l.currIdx], l.getLoc(line, col))
}

func (l *Lexer) lexString(line, col int) error {
	quote := l.currChar
	l.advance()
	start := l.currIdx
	for l.hasChar() && l.currChar != quote {
		l.advance()
	}
	if !l.hasChar() {
		err := NewParseError("unterminated string literal", Loc{FileName: l.srcName, Line: line, ColStart: col})
		err.Incomplete = true
		return err
	}
	value := l.source[start:l.currIdx]
	l.advance()
	l.addToken(TokenString, value, l.getLoc(line, col))
	return nil
}
