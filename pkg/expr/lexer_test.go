package expr

import (
	"testing"

	"github.com/lemonberrylabs/condeval/pkg/types"
)

func TestLexerOperators(t *testing.T) {
	tests := []struct {
		input string
		want  TokenType
		text  string
	}{
		{"&&", TokenAnd, "&&"},
		{"||", TokenOr, "||"},
		{"==", TokenEq, "=="},
		{"!=", TokenNeq, "!="},
		{"<>", TokenNeq, "<>"},
		{"<=", TokenLte, "<="},
		{">=", TokenGte, ">="},
		{":>", TokenAssignableTo, ":>"},
		{"<:", TokenAssignableFrom, "<:"},
		{"<", TokenLt, "<"},
		{">", TokenGt, ">"},
		{"!", TokenNot, "!"},
		{"+", TokenPlus, "+"},
		{"-", TokenMinus, "-"},
		{"*", TokenStar, "*"},
		{"/", TokenSlash, "/"},
		{"^", TokenCaret, "^"},
		{"(", TokenLParen, "("},
		{")", TokenRParen, ")"},
		{",", TokenComma, ","},
		{".", TokenDot, "."},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, err := NewLexer(tt.input).Tokenize()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(tokens) != 2 {
				t.Fatalf("expected 2 tokens, got %d: %v", len(tokens), tokens)
			}
			if tokens[0].Type != tt.want || tokens[0].Text != tt.text {
				t.Errorf("got %s %q, want %s %q", tokens[0].Type, tokens[0].Text, tt.want, tt.text)
			}
			if tokens[1].Type != TokenEOF {
				t.Errorf("expected EOF, got %s", tokens[1].Type)
			}
		})
	}
}

func TestLexerSequence(t *testing.T) {
	tokens, err := NewLexer(`level>=5&&!banned || name<>"bob"`).Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []TokenType{
		TokenIdent, TokenGte, TokenNumber, TokenAnd, TokenNot, TokenIdent,
		TokenOr, TokenIdent, TokenNeq, TokenString, TokenEOF,
	}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	for i, tt := range want {
		if tokens[i].Type != tt {
			t.Errorf("token %d: got %s, want %s", i, tokens[i].Type, tt)
		}
	}
	if tokens[9].Text != "bob" {
		t.Errorf("string payload = %q, want %q", tokens[9].Text, "bob")
	}
}

func TestLexerKeywords(t *testing.T) {
	tests := []struct {
		input string
		want  TokenType
	}{
		{"true", TokenTrue},
		{"TRUE", TokenTrue},
		{"True", TokenTrue},
		{"false", TokenFalse},
		{"fAlSe", TokenFalse},
		{"null", TokenNull},
		{"NULL", TokenNull},
		{"nil", TokenIdent},
		{"trueish", TokenIdent},
		{"_under", TokenIdent},
		{"Mixed_Case9", TokenIdent},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tok, err := NewLexer(tt.input).Next()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tok.Type != tt.want {
				t.Errorf("got %s, want %s", tok.Type, tt.want)
			}
			if tok.Text != tt.input {
				t.Errorf("text = %q, want original casing %q", tok.Text, tt.input)
			}
		})
	}
}

func TestLexerNumbers(t *testing.T) {
	tokens, err := NewLexer("42 3.14 1.2.3").Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Token{
		{Type: TokenNumber, Text: "42"},
		{Type: TokenNumber, Text: "3.14"},
		{Type: TokenNumber, Text: "1.2"},
		{Type: TokenDot, Text: "."},
		{Type: TokenNumber, Text: "3"},
		{Type: TokenEOF},
	}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	for i := range want {
		if tokens[i].Type != want[i].Type || tokens[i].Text != want[i].Text {
			t.Errorf("token %d: got %s %q, want %s %q", i, tokens[i].Type, tokens[i].Text, want[i].Type, want[i].Text)
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`""`, ""},
		{`'it\'s'`, "it's"},
		{`"say \"hi\""`, `say "hi"`},
		{`'a\\b'`, `a\b`},
		{`'\n'`, "n"},
		{`"it's"`, "it's"},
		{`'say "hi"'`, `say "hi"`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tok, err := NewLexer(tt.input).Next()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tok.Type != TokenString {
				t.Fatalf("got %s, want STRING", tok.Type)
			}
			if tok.Text != tt.want {
				t.Errorf("payload = %q, want %q", tok.Text, tt.want)
			}
		})
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		input string
		pos   int
	}{
		{`"unterminated`, 0},
		{`x == 'open`, 5},
		{`a # b`, 2},
		{`a = b`, 2},
		{`a & b`, 2},
		{`a | b`, 2},
		{`x:y`, 1},
		{`$x`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := NewLexer(tt.input).Tokenize()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !types.IsSyntaxError(err) {
				t.Fatalf("expected SyntaxError, got %v", err)
			}
			e := err.(*types.Error)
			if e.Pos != tt.pos {
				t.Errorf("position = %d, want %d (%v)", e.Pos, tt.pos, err)
			}
		})
	}
}

func TestLexerUnexpectedCharacter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		pos   int
		want  string
	}{
		{"multi-byte rune", "a \u00e9 b", 2, `unexpected character "é"`},
		{"no-break space", "a\u00a0b", 1, `unexpected character "\u00a0"`},
		{"stray NEL byte", "a \x85 b", 2, `unexpected character "\x85"`},
		{"stray NBSP byte", "a \xa0 b", 2, `unexpected character "\xa0"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLexer(tt.input).Tokenize()
			if !types.IsSyntaxError(err) {
				t.Fatalf("expected SyntaxError, got %v", err)
			}
			e := err.(*types.Error)
			if e.Pos != tt.pos {
				t.Errorf("position = %d, want %d", e.Pos, tt.pos)
			}
			if e.Message != tt.want {
				t.Errorf("message = %q, want %q", e.Message, tt.want)
			}
		})
	}
}

func TestLexerPeek(t *testing.T) {
	l := NewLexer("a + b")

	p1, err := l.Peek()
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	p2, _ := l.Peek()
	if p1 != p2 {
		t.Errorf("repeated Peek returned %v then %v", p1, p2)
	}

	n, _ := l.Next()
	if n != p1 {
		t.Errorf("Next after Peek returned %v, want %v", n, p1)
	}

	n, _ = l.Next()
	if n.Type != TokenPlus || n.Pos != 2 {
		t.Errorf("got %v, want PLUS at 2", n)
	}
	n, _ = l.Next()
	if n.Type != TokenIdent || n.Text != "b" {
		t.Errorf("got %v, want IDENT b", n)
	}
	for i := 0; i < 2; i++ {
		n, _ = l.Next()
		if n.Type != TokenEOF {
			t.Errorf("got %v, want EOF", n)
		}
	}
}
