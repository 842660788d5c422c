package query

import (
	"fmt"
	"strings"
)

// Node is an element of a parsed query tree.
type Node interface {
	// Span returns the byte offset and length of the node in the query text.
	Span() (int, int)
	String() string
}

type span struct {
	pos, length int
}

func (s span) Span() (int, int) { return s.pos, s.length }

// TextNode is a free-text search term.
type TextNode struct {
	span
	Term  string
	Exact bool
}

func (n *TextNode) String() string {
	if n.Exact {
		return fmt.Sprintf("%q", n.Term)
	}
	return n.Term
}

// FilterNode is a token<op>value clause bound to a registered filter.
type FilterNode struct {
	span
	Token    string
	Op       Operator
	Raw      string
	Value    Value
	Nested   string
	IsNested bool
	Filter   *Filter
}

func (n *FilterNode) String() string {
	if n.IsNested {
		return n.Token + n.Op.String() + "{" + n.Nested + "}"
	}
	return n.Token + n.Op.String() + n.Raw
}

// AndNode matches when every child matches.
type AndNode struct {
	span
	Children []Node
}

func (n *AndNode) String() string { return joinNodes(n.Children, " ") }

// OrNode matches when any child matches.
type OrNode struct {
	span
	Children []Node
}

func (n *OrNode) String() string { return "(" + joinNodes(n.Children, " or ") + ")" }

// NotNode inverts its child.
type NotNode struct {
	span
	Child Node
}

func (n *NotNode) String() string { return "-" + n.Child.String() }

func joinNodes(nodes []Node, sep string) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, sep)
}

// Error describes a problem at a position in the query text.
type Error struct {
	Pos    int    `json:"pos"`
	Length int    `json:"length"`
	Reason string `json:"reason"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%s (at %d, length %d)", e.Reason, e.Pos, e.Length)
}

// Query is the immutable parsed form of a search string.
type Query struct {
	Text    string
	Root    Node
	Errors  []Error
	Pragmas []string
	Fuzzy   bool
}

// Valid reports whether parsing produced no errors.
func (q *Query) Valid() bool { return len(q.Errors) == 0 }

// Empty reports whether nothing is left to evaluate.
func (q *Query) Empty() bool { return q.Root == nil }

// HasPragma reports whether +name was given in the query.
func (q *Query) HasPragma(name string) bool {
	for _, p := range q.Pragmas {
		if p == name {
			return true
		}
	}
	return false
}

// Terms returns the free-text terms of the query that are not under a
// negation, in query order.
func (q *Query) Terms() []string {
	var terms []string
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case *TextNode:
			terms = append(terms, n.Term)
		case *AndNode:
			for _, c := range n.Children {
				walk(c)
			}
		case *OrNode:
			for _, c := range n.Children {
				walk(c)
			}
		}
	}
	if q.Root != nil {
		walk(q.Root)
	}
	return terms
}

// Walk calls fn for every node in depth-first order.
func Walk(n Node, fn func(Node)) {
	if n == nil {
		return
	}
	fn(n)
	switch n := n.(type) {
	case *AndNode:
		for _, c := range n.Children {
			Walk(c, fn)
		}
	case *OrNode:
		for _, c := range n.Children {
			Walk(c, fn)
		}
	case *NotNode:
		Walk(n.Child, fn)
	}
}
