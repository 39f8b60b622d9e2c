package taskgraph

import "strings"

// NodeKind identifies the shape of a composition node.
type NodeKind int

const (
	KindNone NodeKind = iota
	KindRef
	KindSeries
	KindParallel
)

func (k NodeKind) String() string {
	switch k {
	case KindRef:
		return "ref"
	case KindSeries:
		return "series"
	case KindParallel:
		return "parallel"
	default:
		return "none"
	}
}

// Node is a composition of task references. The zero Node means "no
// dependencies".
type Node struct {
	Kind     NodeKind
	Name     string // set for KindRef
	Children []Node // set for KindSeries and KindParallel
}

// Ref references a task by name.
func Ref(name string) Node {
	return Node{Kind: KindRef, Name: name}
}

// Series runs nodes one after another.
func Series(nodes ...Node) Node {
	return Node{Kind: KindSeries, Children: nodes}
}

// Parallel runs nodes concurrently.
func Parallel(nodes ...Node) Node {
	return Node{Kind: KindParallel, Children: nodes}
}

// Refs is a convenience for Series(Ref(names[0]), Ref(names[1]), ...).
func Refs(names ...string) Node {
	nodes := make([]Node, len(names))
	for i, n := range names {
		nodes[i] = Ref(n)
	}
	return Series(nodes...)
}

// IsZero reports whether n carries no references at all.
func (n Node) IsZero() bool {
	return n.Kind == KindNone
}

// TaskNames returns every referenced task name, depth first, in declaration order.
func (n Node) TaskNames() []string {
	var out []string
	n.walk(func(name string) { out = append(out, name) })
	return out
}

func (n Node) walk(fn func(string)) {
	switch n.Kind {
	case KindRef:
		fn(n.Name)
	case KindSeries, KindParallel:
		for _, c := range n.Children {
			c.walk(fn)
		}
	}
}

// String renders n as e.g. "series(parallel(styles, scripts), sitemap)".
func (n Node) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n Node) write(sb *strings.Builder) {
	switch n.Kind {
	case KindRef:
		sb.WriteString(n.Name)
	case KindSeries, KindParallel:
		sb.WriteString(n.Kind.String())
		sb.WriteByte('(')
		for i, c := range n.Children {
			if i > 0 {
				sb.WriteString(", ")
			}
			c.write(sb)
		}
		sb.WriteByte(')')
	default:
		sb.WriteString("-")
	}
}
