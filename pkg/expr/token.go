// Package expr implements the condition expression language: a tokenizer,
// a precedence-climbing parser producing a closed AST, and a tree-walking
// evaluator restricted to a fixed allow-list of functions and methods.
package expr

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Literals
	TokenNumber TokenType = iota // number literal
	TokenString                  // string literal
	TokenTrue                    // true
	TokenFalse                   // false
	TokenNull                    // null

	TokenIdent  // identifier
	TokenDot    // .
	TokenComma  // ,
	TokenLParen // (
	TokenRParen // )

	// Arithmetic
	TokenPlus  // +
	TokenMinus // -
	TokenStar  // *
	TokenSlash // /
	TokenCaret // ^

	// Logical
	TokenAnd // &&
	TokenOr  // ||
	TokenNot // !

	// Comparison
	TokenEq  // ==
	TokenNeq // != or <>
	TokenLt  // <
	TokenGt  // >
	TokenLte // <=
	TokenGte // >=

	// Type relations
	TokenAssignableTo   // :>
	TokenAssignableFrom // <:

	TokenEOF // end of expression
)

// Token represents a single lexical token. Text holds the literal operator
// spelling for operators and the unescaped payload for strings.
type Token struct {
	Type TokenType
	Text string
	Pos  int
}

// String returns a debug-friendly representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenNumber:
		return "NUMBER"
	case TokenString:
		return "STRING"
	case TokenTrue:
		return "TRUE"
	case TokenFalse:
		return "FALSE"
	case TokenNull:
		return "NULL"
	case TokenIdent:
		return "IDENT"
	case TokenDot:
		return "DOT"
	case TokenComma:
		return "COMMA"
	case TokenLParen:
		return "LPAREN"
	case TokenRParen:
		return "RPAREN"
	case TokenPlus:
		return "PLUS"
	case TokenMinus:
		return "MINUS"
	case TokenStar:
		return "STAR"
	case TokenSlash:
		return "SLASH"
	case TokenCaret:
		return "CARET"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenNot:
		return "NOT"
	case TokenEq:
		return "EQ"
	case TokenNeq:
		return "NEQ"
	case TokenLt:
		return "LT"
	case TokenGt:
		return "GT"
	case TokenLte:
		return "LTE"
	case TokenGte:
		return "GTE"
	case TokenAssignableTo:
		return "ASSIGNABLE_TO"
	case TokenAssignableFrom:
		return "ASSIGNABLE_FROM"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Symbol returns the canonical operator spelling, used when printing nodes.
func (t TokenType) Symbol() string {
	switch t {
	case TokenPlus:
		return "+"
	case TokenMinus:
		return "-"
	case TokenStar:
		return "*"
	case TokenSlash:
		return "/"
	case TokenCaret:
		return "^"
	case TokenAnd:
		return "&&"
	case TokenOr:
		return "||"
	case TokenNot:
		return "!"
	case TokenEq:
		return "=="
	case TokenNeq:
		return "!="
	case TokenLt:
		return "<"
	case TokenGt:
		return ">"
	case TokenLte:
		return "<="
	case TokenGte:
		return ">="
	case TokenAssignableTo:
		return ":>"
	case TokenAssignableFrom:
		return "<:"
	default:
		return t.String()
	}
}
