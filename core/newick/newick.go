// Package newick reads trees in Newick notation.
package newick

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/JuniperStemma/core/errors"
)

// Node is a parsed tree node. Leaves have no children.
type Node struct {
	Name      string
	Length    float64
	HasLength bool
	Children  []*Node
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Leaves returns leaf names in left-to-right order.
func (n *Node) Leaves() []string {
	var out []string
	n.Walk(func(node *Node) {
		if node.IsLeaf() {
			out = append(out, node.Name)
		}
	})
	return out
}

// Walk visits n and its descendants in pre-order.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// String renders the subtree without the terminating semicolon.
func (n *Node) String() string {
	var b strings.Builder
	n.write(&b)
	return b.String()
}

func (n *Node) write(b *strings.Builder) {
	if len(n.Children) > 0 {
		b.WriteByte('(')
		for i, c := range n.Children {
			if i > 0 {
				b.WriteByte(',')
			}
			c.write(b)
		}
		b.WriteByte(')')
	}
	b.WriteString(n.Name)
	if n.HasLength {
		b.WriteByte(':')
		b.WriteString(strconv.FormatFloat(n.Length, 'g', -1, 64))
	}
}

type treeGrammar struct {
	Root *nodeGrammar `parser:"@@ \";\""`
}

type nodeGrammar struct {
	Children []*nodeGrammar `parser:"( \"(\" @@ ( \",\" @@ )* \")\" )?"`
	Name     *string        `parser:"@(Word | Quoted)?"`
	Length   *string        `parser:"( \":\" @Word )?"`
}

var newickLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Quoted", Pattern: `'(?:[^']|'')*'`},
	{Name: "Comment", Pattern: `\[[^\]]*\]`},
	{Name: "Punct", Pattern: `[(),:;]`},
	{Name: "Word", Pattern: `[^\s(),:;'\[\]]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var newickParser = participle.MustBuild[treeGrammar](
	participle.Lexer(newickLexer),
	participle.Elide("Whitespace", "Comment"),
)

// Parse reads a single Newick tree terminated by ';'.
func Parse(s string) (*Node, error) {
	parsed, err := newickParser.ParseString("", s)
	if err != nil {
		return nil, errors.WrapParse("newick", "", err)
	}
	return convert(parsed.Root)
}

func convert(g *nodeGrammar) (*Node, error) {
	n := &Node{}
	if g.Name != nil {
		n.Name = unquote(*g.Name)
	}
	if g.Length != nil {
		v, err := strconv.ParseFloat(*g.Length, 64)
		if err != nil {
			return nil, errors.NewParse("newick", n.Name, "invalid branch length "+strconv.Quote(*g.Length))
		}
		n.Length, n.HasLength = v, true
	}
	for _, c := range g.Children {
		child, err := convert(c)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}
