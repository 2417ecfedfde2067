package pyast

// parse.go: tree-sitter front end. Builds the concrete syntax tree and lowers
// it into the typed nodes in ast.go.

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrSyntax reports that the source could not be parsed without error
// recovery. Callers fall back to the line scanner in fallback.go.
var ErrSyntax = errors.New("python syntax error")

// Parse parses Python source. A tree that needed error recovery is rejected
// with an error wrapping ErrSyntax.
func Parse(ctx context.Context, src []byte) (*Module, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		line := 0
		if bad := firstError(root); bad != nil {
			line = int(bad.StartPoint().Row) + 1
		}
		return nil, fmt.Errorf("%w at line %d", ErrSyntax, line)
	}

	l := lowerer{src: src}
	return &Module{Pos: pos(root), Body: l.named(root)}, nil
}

// firstError returns the first ERROR or MISSING node in document order.
func firstError(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if bad := firstError(n.Child(i)); bad != nil {
			return bad
		}
	}
	return n
}

func pos(n *sitter.Node) Pos {
	return Pos{Row: int(n.StartPoint().Row) + 1}
}

// ---------------------------------------------------------------------------
// Lowering
// ---------------------------------------------------------------------------

type lowerer struct {
	src []byte
}

// named lowers every named child of n, dropping comments.
func (l lowerer) named(n *sitter.Node) []Node {
	count := int(n.NamedChildCount())
	out := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		if c := l.lower(n.NamedChild(i)); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func (l lowerer) lower(n *sitter.Node) Node {
	if n == nil {
		return nil
	}
	switch n.Type() {
	case "comment":
		return nil
	case "expression_statement", "parenthesized_expression":
		kids := l.named(n)
		if len(kids) == 1 {
			return kids[0]
		}
		return &Other{Pos: pos(n), Kind: n.Type(), Children: kids}
	case "assignment":
		return l.assign(n)
	case "call":
		return l.call(n)
	case "identifier":
		return &Name{Pos: pos(n), ID: n.Content(l.src)}
	case "attribute":
		a := &Attribute{Pos: pos(n), Value: l.lower(n.ChildByFieldName("object"))}
		if attr := n.ChildByFieldName("attribute"); attr != nil {
			a.Attr = attr.Content(l.src)
		}
		return a
	case "string":
		return l.str(n)
	case "concatenated_string":
		s := &Str{Pos: pos(n)}
		for _, c := range l.named(n) {
			if part, ok := c.(*Str); ok {
				s.Parts = append(s.Parts, part.Parts...)
				s.Formatted = s.Formatted || part.Formatted
			}
		}
		return s
	case "list":
		return &List{Pos: pos(n), Elts: l.named(n)}
	case "class_definition":
		return l.class(n)
	}
	return &Other{Pos: pos(n), Kind: n.Type(), Children: l.named(n)}
}

// assign flattens chained assignments into a single node.
func (l lowerer) assign(n *sitter.Node) Node {
	a := &Assign{Pos: pos(n)}
	cur := n
	for {
		if left := l.lower(cur.ChildByFieldName("left")); left != nil {
			a.Targets = append(a.Targets, left)
		}
		if cur.ChildByFieldName("type") != nil {
			a.Annotated = true
		}
		right := cur.ChildByFieldName("right")
		if right != nil && right.Type() == "assignment" {
			cur = right
			continue
		}
		a.Value = l.lower(right)
		return a
	}
}

func (l lowerer) call(n *sitter.Node) Node {
	c := &Call{Pos: pos(n), Func: l.lower(n.ChildByFieldName("function"))}
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return c
	}
	if args.Type() != "argument_list" {
		// f(x for x in y)
		c.Args = append(c.Args, l.lower(args))
		return c
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		switch arg.Type() {
		case "comment":
		case "keyword_argument":
			kw := Keyword{Value: l.lower(arg.ChildByFieldName("value"))}
			if name := arg.ChildByFieldName("name"); name != nil {
				kw.Name = name.Content(l.src)
			}
			c.Keywords = append(c.Keywords, kw)
		case "dictionary_splat":
			kw := Keyword{}
			if arg.NamedChildCount() > 0 {
				kw.Value = l.lower(arg.NamedChild(0))
			}
			c.Keywords = append(c.Keywords, kw)
		default:
			if v := l.lower(arg); v != nil {
				c.Args = append(c.Args, v)
			}
		}
	}
	return c
}

func (l lowerer) class(n *sitter.Node) Node {
	cd := &ClassDef{Pos: pos(n)}
	if name := n.ChildByFieldName("name"); name != nil {
		cd.Name = name.Content(l.src)
	}
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			b := supers.NamedChild(i)
			if b.Type() == "keyword_argument" || b.Type() == "comment" {
				continue
			}
			if v := l.lower(b); v != nil {
				cd.Bases = append(cd.Bases, v)
			}
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		cd.Body = l.named(body)
	}
	return cd
}

// ---------------------------------------------------------------------------
// String literals
// ---------------------------------------------------------------------------

func (l lowerer) str(n *sitter.Node) Node {
	s := &Str{Pos: pos(n)}

	var interps []*sitter.Node
	var start, end *sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		switch c.Type() {
		case "string_start":
			start = c
		case "string_end":
			end = c
		case "interpolation":
			interps = append(interps, c)
		}
	}

	var prefix string
	bodyStart, bodyEnd := int(n.StartByte()), int(n.EndByte())
	if start != nil && end != nil {
		prefix = start.Content(l.src)
		bodyStart, bodyEnd = int(start.EndByte()), int(end.StartByte())
	} else {
		p, open, closeLen := splitQuotes(n.Content(l.src))
		prefix = p
		bodyStart += open
		bodyEnd -= closeLen
	}
	if bodyEnd < bodyStart {
		bodyEnd = bodyStart
	}

	flags := strings.ToLower(strings.TrimRight(prefix, `"'`))
	raw := strings.Contains(flags, "r")
	s.Formatted = strings.Contains(flags, "f")

	cursor := bodyStart
	for _, ip := range interps {
		if at := int(ip.StartByte()); at >= cursor {
			s.text(string(l.src[cursor:at]), raw)
		}
		s.Parts = append(s.Parts, StrPart{Interp: true})
		cursor = int(ip.EndByte())
	}
	if cursor < bodyEnd {
		s.text(string(l.src[cursor:bodyEnd]), raw)
	}
	return s
}

func (s *Str) text(t string, raw bool) {
	if t == "" {
		return
	}
	if !raw {
		t = unescape(t)
	}
	if s.Formatted {
		t = strings.ReplaceAll(strings.ReplaceAll(t, "{{", "{"), "}}", "}")
	}
	s.Parts = append(s.Parts, StrPart{Text: t})
}

// splitQuotes splits a literal such as rb'''x''' into its prefix, the byte
// length of prefix plus opening quote, and the closing quote length.
func splitQuotes(lit string) (prefix string, open, closeLen int) {
	i := strings.IndexAny(lit, `"'`)
	if i < 0 {
		return "", 0, 0
	}
	q := lit[i : i+1]
	if strings.HasPrefix(lit[i:], q+q+q) && len(lit)-i >= 6 {
		q = q + q + q
	}
	return lit[:i+len(q)], i + len(q), len(q)
}

// unescape resolves backslash escapes. Sequences Go cannot decode are kept
// verbatim.
func unescape(t string) string {
	if !strings.Contains(t, `\`) {
		return t
	}
	var b strings.Builder
	b.Grow(len(t))
	for len(t) > 0 {
		if t[0] != '\\' || len(t) == 1 {
			b.WriteByte(t[0])
			t = t[1:]
			continue
		}
		switch t[1] {
		case '\n':
			t = t[2:]
			continue
		case '\'', '"':
			b.WriteByte(t[1])
			t = t[2:]
			continue
		}
		r, _, tail, err := strconv.UnquoteChar(t, 0)
		if err != nil {
			b.WriteString(t[:2])
			t = t[2:]
			continue
		}
		b.WriteRune(r)
		t = tail
	}
	return b.String()
}
