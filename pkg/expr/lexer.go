package expr

import (
	"strings"
	"unicode/utf8"

	"github.com/lemonberrylabs/condeval/pkg/types"
)

// Lexer tokenizes an expression string on demand with one token of
// lookahead.
type Lexer struct {
	input  string
	pos    int
	peeked *Token
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Next returns the next token and advances past it.
func (l *Lexer) Next() (Token, error) {
	if l.peeked != nil {
		tok := *l.peeked
		l.peeked = nil
		return tok, nil
	}
	return l.scan()
}

// Peek returns the next token without consuming it. The token is cached so
// repeated calls return the same token.
func (l *Lexer) Peek() (Token, error) {
	if l.peeked != nil {
		return *l.peeked, nil
	}
	tok, err := l.scan()
	if err != nil {
		return Token{}, err
	}
	l.peeked = &tok
	return tok, nil
}

// Tokenize scans the entire input and returns all tokens, ending with EOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

// scan reads one token from the input.
func (l *Lexer) scan() (Token, error) {
	l.skipWhitespace()

	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}, nil
	}

	ch := l.input[l.pos]

	if ch == '"' || ch == '\'' {
		return l.readString(ch)
	}

	if isDigit(ch) {
		return l.readNumber(), nil
	}

	// Two-character operators take precedence over their one-character prefixes.
	if l.pos+1 < len(l.input) {
		two := l.input[l.pos : l.pos+2]
		var tt TokenType
		switch two {
		case "&&":
			tt = TokenAnd
		case "||":
			tt = TokenOr
		case "==":
			tt = TokenEq
		case "!=", "<>":
			tt = TokenNeq
		case "<=":
			tt = TokenLte
		case ">=":
			tt = TokenGte
		case ":>":
			tt = TokenAssignableTo
		case "<:":
			tt = TokenAssignableFrom
		default:
			tt = TokenEOF
		}
		if tt != TokenEOF {
			l.pos += 2
			return Token{Type: tt, Text: two, Pos: l.pos - 2}, nil
		}
	}

	var tt TokenType
	switch ch {
	case '+':
		tt = TokenPlus
	case '-':
		tt = TokenMinus
	case '*':
		tt = TokenStar
	case '/':
		tt = TokenSlash
	case '^':
		tt = TokenCaret
	case '!':
		tt = TokenNot
	case '<':
		tt = TokenLt
	case '>':
		tt = TokenGt
	case '(':
		tt = TokenLParen
	case ')':
		tt = TokenRParen
	case '.':
		tt = TokenDot
	case ',':
		tt = TokenComma
	default:
		if isIdentStart(ch) {
			return l.readIdentifier(), nil
		}
		return Token{}, types.NewSyntaxError(l.pos, "unexpected character %q", l.charAt(l.pos))
	}
	l.pos++
	return Token{Type: tt, Text: string(ch), Pos: l.pos - 1}, nil
}

// readString reads a quoted string literal. A backslash takes the following
// character verbatim.
func (l *Lexer) readString(quote byte) (Token, error) {
	start := l.pos
	l.pos++ // skip opening quote

	var sb strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			sb.WriteByte(l.input[l.pos+1])
			l.pos += 2
			continue
		}
		if ch == quote {
			l.pos++ // skip closing quote
			return Token{Type: TokenString, Text: sb.String(), Pos: start}, nil
		}
		sb.WriteByte(ch)
		l.pos++
	}

	return Token{}, types.NewSyntaxError(start, "unterminated string literal")
}

// readNumber reads digits with at most one decimal point. Signs and
// exponents are not part of a number literal.
func (l *Lexer) readNumber() Token {
	start := l.pos
	seenDot := false
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if isDigit(ch) {
			l.pos++
		} else if ch == '.' && !seenDot {
			seenDot = true
			l.pos++
		} else {
			break
		}
	}
	return Token{Type: TokenNumber, Text: l.input[start:l.pos], Pos: start}
}

// readIdentifier reads an identifier or one of the case-insensitive
// keywords true, false and null.
func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}

	word := l.input[start:l.pos]
	switch strings.ToLower(word) {
	case "true":
		return Token{Type: TokenTrue, Text: word, Pos: start}
	case "false":
		return Token{Type: TokenFalse, Text: word, Pos: start}
	case "null":
		return Token{Type: TokenNull, Text: word, Pos: start}
	default:
		return Token{Type: TokenIdent, Text: word, Pos: start}
	}
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.input) && isSpace(l.input[l.pos]) {
		l.pos++
	}
}

// charAt returns the character starting at byte offset pos. A byte that does
// not start a valid UTF-8 sequence is returned on its own.
func (l *Lexer) charAt(pos int) string {
	r, size := utf8.DecodeRuneInString(l.input[pos:])
	if r == utf8.RuneError && size <= 1 {
		return l.input[pos : pos+1]
	}
	return string(r)
}

func isSpace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
