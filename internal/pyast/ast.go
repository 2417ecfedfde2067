// Package pyast lowers Python source into a small typed syntax tree.
//
// Only the node shapes the extractor inspects get their own type; everything
// else is kept as an Other node so that a pre-order walk still reaches the
// calls, assignments and class definitions nested beneath it.
package pyast

// Node is any lowered syntax node. Line is 1-based.
type Node interface {
	Line() int
}

// Pos records the starting line of a node.
type Pos struct {
	Row int
}

func (p Pos) Line() int { return p.Row }

// Module is the root of a parsed file.
type Module struct {
	Pos
	Body []Node
}

// Assign is a plain or annotated assignment statement. Chained assignments
// (a = b = value) produce one Assign with several targets.
type Assign struct {
	Pos
	Targets   []Node
	Value     Node // nil for a bare annotation such as "x: int"
	Annotated bool
}

// Call is a call expression.
type Call struct {
	Pos
	Func     Node
	Args     []Node
	Keywords []Keyword
}

// Keyword is a keyword argument. Name is empty for **kwargs unpacking.
type Keyword struct {
	Name  string
	Value Node
}

// Name is a bare identifier.
type Name struct {
	Pos
	ID string
}

// Attribute is a dotted access such as crewai.Agent.
type Attribute struct {
	Pos
	Value Node
	Attr  string
}

// StrPart is one segment of a string literal. Interp marks an interpolation.
type StrPart struct {
	Text   string
	Interp bool
}

// Str is a string literal, possibly formatted or implicitly concatenated.
type Str struct {
	Pos
	Parts     []StrPart
	Formatted bool
}

// List is a list display.
type List struct {
	Pos
	Elts []Node
}

// ClassDef is a class definition with its positional bases.
type ClassDef struct {
	Pos
	Name  string
	Bases []Node
	Body  []Node
}

// Other is any node the extractor does not inspect directly.
type Other struct {
	Pos
	Kind     string
	Children []Node
}

// FormattedPlaceholder stands in for each interpolation when a formatted
// string is rendered as plain text.
const FormattedPlaceholder = "[formatted_value]"

// Value renders the literal text of s. Interpolations become
// FormattedPlaceholder.
func (s *Str) Value() string {
	n := 0
	for _, p := range s.Parts {
		n += len(p.Text)
	}
	buf := make([]byte, 0, n)
	for _, p := range s.Parts {
		if p.Interp {
			buf = append(buf, FormattedPlaceholder...)
			continue
		}
		buf = append(buf, p.Text...)
	}
	return string(buf)
}

// CalleeName returns the identifier of a call's callee when it is a bare
// name, or "" otherwise.
func CalleeName(c *Call) string {
	if n, ok := c.Func.(*Name); ok {
		return n.ID
	}
	return ""
}

// Children returns the direct children of n in source order.
func Children(n Node) []Node {
	switch n := n.(type) {
	case *Module:
		return n.Body
	case *Assign:
		out := make([]Node, 0, len(n.Targets)+1)
		out = append(out, n.Targets...)
		if n.Value != nil {
			out = append(out, n.Value)
		}
		return out
	case *Call:
		out := make([]Node, 0, 1+len(n.Args)+len(n.Keywords))
		if n.Func != nil {
			out = append(out, n.Func)
		}
		out = append(out, n.Args...)
		for _, kw := range n.Keywords {
			if kw.Value != nil {
				out = append(out, kw.Value)
			}
		}
		return out
	case *Attribute:
		if n.Value != nil {
			return []Node{n.Value}
		}
	case *List:
		return n.Elts
	case *ClassDef:
		out := make([]Node, 0, len(n.Bases)+len(n.Body))
		out = append(out, n.Bases...)
		out = append(out, n.Body...)
		return out
	case *Other:
		return n.Children
	}
	return nil
}

// Walk visits n and its descendants in pre-order. Returning false from fn
// skips the children of the current node.
func Walk(n Node, fn func(Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, fn)
	}
}
