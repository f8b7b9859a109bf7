package expr

import (
	"strconv"

	"github.com/lemonberrylabs/condeval/pkg/types"
)

// Parser is a recursive descent parser over a Lexer.
type Parser struct {
	lexer *Lexer
}

// ParseExpression parses a complete expression string. The whole input must
// be consumed; there is no partial result on error.
func ParseExpression(input string) (Node, error) {
	p := &Parser{lexer: NewLexer(input)}
	node, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	tok, err := p.current()
	if err != nil {
		return nil, err
	}
	if tok.Type != TokenEOF {
		return nil, types.NewSyntaxError(tok.Pos, "unexpected token %s (%q) after end of expression", tok.Type, tok.Text)
	}
	return node, nil
}

// current returns the next unconsumed token.
func (p *Parser) current() (Token, error) {
	return p.lexer.Peek()
}

// advance consumes the current token and returns it.
func (p *Parser) advance() (Token, error) {
	return p.lexer.Next()
}

// accept consumes the current token if it has one of the given types.
func (p *Parser) accept(tts ...TokenType) (Token, bool, error) {
	tok, err := p.current()
	if err != nil {
		return Token{}, false, err
	}
	for _, tt := range tts {
		if tok.Type == tt {
			_, err := p.advance()
			return tok, true, err
		}
	}
	return tok, false, nil
}

// expect consumes a token of the expected type or returns an error.
func (p *Parser) expect(tt TokenType, what string) (Token, error) {
	tok, err := p.current()
	if err != nil {
		return Token{}, err
	}
	if tok.Type != tt {
		if tok.Type == TokenEOF {
			return tok, types.NewSyntaxError(tok.Pos, "expected %s, got end of expression", what)
		}
		return tok, types.NewSyntaxError(tok.Pos, "expected %s, got %s (%q)", what, tok.Type, tok.Text)
	}
	return p.advance()
}

// parseExpression is the entry point: handles the lowest precedence operators.
// Precedence (low to high):
//
//	||
//	&&
//	==, !=, <, >, <=, >=, :>, <:
//	+, -
//	*, /
//	unary !, unary -
//	^ (right-associative)
//	literals, parentheses, identifier chains
func (p *Parser) parseExpression() (Node, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for {
		_, ok, err := p.accept(TokenOr)
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: TokenOr, Left: left, Right: right}
	}
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	for {
		_, ok, err := p.accept(TokenAnd)
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: TokenAnd, Left: left, Right: right}
	}
}

// parseComparison chains left to right: a < b < c is (a < b) < c.
func (p *Parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	for {
		tok, ok, err := p.accept(TokenEq, TokenNeq, TokenLt, TokenGt, TokenLte, TokenGte,
			TokenAssignableTo, TokenAssignableFrom)
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: tok.Type, Left: left, Right: right}
	}
}

func (p *Parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}

	for {
		tok, ok, err := p.accept(TokenPlus, TokenMinus)
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: tok.Type, Left: left, Right: right}
	}
}

func (p *Parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		tok, ok, err := p.accept(TokenStar, TokenSlash)
		if err != nil {
			return nil, err
		}
		if !ok {
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryNode{Op: tok.Type, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (Node, error) {
	tok, ok, err := p.accept(TokenNot, TokenMinus)
	if err != nil {
		return nil, err
	}
	if ok {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryNode{Op: tok.Type, Operand: operand}, nil
	}
	return p.parsePower()
}

// parsePower recurses into itself for the exponent: 2 ^ 3 ^ 2 is 2 ^ (3 ^ 2).
func (p *Parser) parsePower() (Node, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	_, ok, err := p.accept(TokenCaret)
	if err != nil {
		return nil, err
	}
	if !ok {
		return base, nil
	}
	exponent, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	return &BinaryNode{Op: TokenCaret, Left: base, Right: exponent}, nil
}

func (p *Parser) parsePrimary() (Node, error) {
	tok, err := p.advance()
	if err != nil {
		return nil, err
	}

	switch tok.Type {
	case TokenNumber:
		f, err := strconv.ParseFloat(tok.Text, 64)
		if err != nil {
			return nil, types.NewSyntaxError(tok.Pos, "invalid number %q", tok.Text)
		}
		return &LiteralNode{Value: types.NewDouble(f)}, nil
	case TokenString:
		return &LiteralNode{Value: types.NewString(tok.Text)}, nil
	case TokenTrue:
		return &LiteralNode{Value: types.NewBool(true)}, nil
	case TokenFalse:
		return &LiteralNode{Value: types.NewBool(false)}, nil
	case TokenNull:
		return &LiteralNode{Value: types.Null}, nil
	case TokenLParen:
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, "')'"); err != nil {
			return nil, err
		}
		return expr, nil
	case TokenIdent:
		return p.parseIdentifierChain(tok)
	case TokenEOF:
		return nil, types.NewSyntaxError(tok.Pos, "unexpected end of expression")
	default:
		return nil, types.NewSyntaxError(tok.Pos, "unexpected token %s (%q)", tok.Type, tok.Text)
	}
}

// parseIdentifierChain parses a variable or call followed by any number of
// .member, .member(args) or .class suffixes.
//
// A call on a name outside the math allow-list becomes a method of that
// name on the variable of the same name: foo(x) parses as foo.foo(x).
func (p *Parser) parseIdentifierChain(ident Token) (Node, error) {
	var node Node = &VariableNode{Name: ident.Text}

	next, err := p.current()
	if err != nil {
		return nil, err
	}
	if next.Type == TokenLParen {
		args, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		if isMathFunction(ident.Text) {
			node = &FunctionCallNode{Name: ident.Text, Args: args}
		} else {
			node = &MethodCallNode{Target: node, Name: ident.Text, Args: args}
		}
	}

	for {
		dot, ok, err := p.accept(TokenDot)
		if err != nil {
			return nil, err
		}
		if !ok {
			return node, nil
		}
		member, err := p.expect(TokenIdent, "member name after '.'")
		if err != nil {
			return nil, err
		}

		next, err := p.current()
		if err != nil {
			return nil, err
		}
		switch {
		case next.Type == TokenLParen:
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			node = &MethodCallNode{Target: node, Name: member.Text, Args: args}
		case member.Text == "class":
			v, ok := node.(*VariableNode)
			if !ok {
				return nil, types.NewSyntaxError(dot.Pos, ".class is only allowed directly on a variable")
			}
			node = &ClassRefNode{Variable: v}
		default:
			node = &PropertyNode{Target: node, Name: member.Text}
		}
	}
}

// parseArgList parses (expr, expr, ...).
func (p *Parser) parseArgList() ([]Node, error) {
	if _, err := p.expect(TokenLParen, "'('"); err != nil {
		return nil, err
	}

	var args []Node
	for {
		if _, ok, err := p.accept(TokenRParen); err != nil {
			return nil, err
		} else if ok {
			return args, nil
		}
		if len(args) > 0 {
			if _, err := p.expect(TokenComma, "',' or ')' in argument list"); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
}
