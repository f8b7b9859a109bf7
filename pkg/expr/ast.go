package expr

import (
	"strconv"
	"strings"

	"github.com/lemonberrylabs/condeval/pkg/types"
)

// Node is the interface for all expression AST nodes. The set of node types
// is closed: the unexported marker method keeps other packages from adding
// variants the evaluator does not know about.
type Node interface {
	nodeType() string
	String() string
}

// LiteralNode represents a literal value (number, string, bool, null).
type LiteralNode struct {
	Value types.Value
}

func (n *LiteralNode) nodeType() string { return "Literal" }

// VariableNode represents a variable reference.
type VariableNode struct {
	Name string
}

func (n *VariableNode) nodeType() string { return "Variable" }

// UnaryNode represents a prefix operation (!x, -x).
type UnaryNode struct {
	Op      TokenType
	Operand Node
}

func (n *UnaryNode) nodeType() string { return "Unary" }

// BinaryNode represents a binary operation (a + b, x == y, a && b, a :> b).
type BinaryNode struct {
	Op    TokenType
	Left  Node
	Right Node
}

func (n *BinaryNode) nodeType() string { return "Binary" }

// FunctionCallNode represents a call to one of the allowed math functions.
type FunctionCallNode struct {
	Name string
	Args []Node
}

func (n *FunctionCallNode) nodeType() string { return "FunctionCall" }

// MethodCallNode represents target.name(args). Only allowed methods
// evaluate; everything else fails at evaluation time.
type MethodCallNode struct {
	Target Node
	Name   string
	Args   []Node
}

func (n *MethodCallNode) nodeType() string { return "MethodCall" }

// ClassRefNode represents the pseudo-property variable.class.
type ClassRefNode struct {
	Variable *VariableNode
}

func (n *ClassRefNode) nodeType() string { return "ClassRef" }

// PropertyNode represents target.name without a call. It parses so that
// dotted chains do not break the grammar, but never evaluates.
type PropertyNode struct {
	Target Node
	Name   string
}

func (n *PropertyNode) nodeType() string { return "Property" }

// String methods render nodes in a fully parenthesised form that parses
// back to an equivalent tree.

func (n *LiteralNode) String() string {
	switch n.Value.Type() {
	case types.TypeString:
		return quote(n.Value.AsString())
	case types.TypeDouble:
		return strconv.FormatFloat(n.Value.AsDouble(), 'f', -1, 64)
	}
	return n.Value.String()
}

func (n *VariableNode) String() string { return n.Name }

func (n *UnaryNode) String() string {
	return "(" + n.Op.Symbol() + n.Operand.String() + ")"
}

func (n *BinaryNode) String() string {
	return "(" + n.Left.String() + " " + n.Op.Symbol() + " " + n.Right.String() + ")"
}

func (n *FunctionCallNode) String() string {
	return n.Name + "(" + joinNodes(n.Args) + ")"
}

func (n *MethodCallNode) String() string {
	if v, ok := n.Target.(*VariableNode); ok && v.Name == n.Name {
		return n.Name + "(" + joinNodes(n.Args) + ")"
	}
	return n.Target.String() + "." + n.Name + "(" + joinNodes(n.Args) + ")"
}

func (n *ClassRefNode) String() string { return n.Variable.Name + ".class" }

func (n *PropertyNode) String() string { return n.Target.String() + "." + n.Name }

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, node := range nodes {
		parts[i] = node.String()
	}
	return strings.Join(parts, ", ")
}

// quote renders s as a single-quoted literal, escaping quotes and
// backslashes so the lexer reads back the same payload.
func quote(s string) string {
	var sb strings.Builder
	sb.WriteByte('\'')
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' || s[i] == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	sb.WriteByte('\'')
	return sb.String()
}
