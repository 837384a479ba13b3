package pipeline

import (
	"reflect"
	"strconv"
	"strings"
)

// Kind identifies the role a node plays in the graph.
type Kind string

// Node kinds.
const (
	KindBin     Kind = "bin"
	KindCapture Kind = "capture"
	KindParse   Kind = "parse"
	KindDecode  Kind = "decode"
	KindOverlay Kind = "overlay"
	KindEncode  Kind = "encode"
	KindPayload Kind = "payload"
)

// Param is a single element property. Params keep their declaration order
// so rendered descriptions are stable.
type Param struct {
	Key   string
	Value string
}

// Node is one element, or one bin of elements, in a pipeline description.
type Node struct {
	Kind     Kind
	Element  string // element type, e.g. "v4l2src"
	Name     string // optional, unique within the description
	Params   []Param
	Caps     string // caps filter applied to the node's output
	Children []Node // only for KindBin
}

// Param returns the value of a parameter.
func (n Node) Param(key string) (string, bool) {
	for _, p := range n.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// IntParam returns a parameter parsed as an integer, or 0.
func (n Node) IntParam(key string) int {
	v, ok := n.Param(key)
	if !ok {
		return 0
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return i
}

// Description is the declarative form of a pipeline. It is only turned into
// running elements by a Runtime.
type Description struct {
	Root Node
}

// Walk visits every node depth-first, parents before children.
// Returning false from fn stops the walk.
func (d Description) Walk(fn func(n Node, depth int) bool) {
	walkNode(d.Root, 0, fn)
}

func walkNode(n Node, depth int, fn func(Node, int) bool) bool {
	if !fn(n, depth) {
		return false
	}
	for _, c := range n.Children {
		if !walkNode(c, depth+1, fn) {
			return false
		}
	}
	return true
}

// Find returns the first node with the given name.
func (d Description) Find(name string) (Node, bool) {
	var found Node
	var ok bool
	d.Walk(func(n Node, _ int) bool {
		if n.Name == name {
			found, ok = n, true
			return false
		}
		return true
	})
	return found, ok
}

// FindKind returns the first node of the given kind.
func (d Description) FindKind(kind Kind) (Node, bool) {
	var found Node
	var ok bool
	d.Walk(func(n Node, _ int) bool {
		if n.Kind == kind {
			found, ok = n, true
			return false
		}
		return true
	})
	return found, ok
}

// Stages returns the leaf elements in link order, flattening bins.
func (d Description) Stages() []Node {
	var out []Node
	d.Walk(func(n Node, _ int) bool {
		if n.Kind != KindBin {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Equal reports whether two descriptions are structurally identical.
func (d Description) Equal(other Description) bool {
	return reflect.DeepEqual(d, other)
}

// String renders the description in gst-launch syntax.
func (d Description) String() string {
	var b strings.Builder
	writeNode(&b, d.Root)
	return b.String()
}

func writeNode(b *strings.Builder, n Node) {
	if n.Kind == KindBin {
		b.WriteString("(")
		if n.Name != "" {
			b.WriteString(" name=" + n.Name)
		}
		for i, c := range n.Children {
			if i > 0 {
				b.WriteString(" !")
			}
			b.WriteString(" ")
			writeNode(b, c)
		}
		b.WriteString(" )")
	} else {
		b.WriteString(n.Element)
		if n.Name != "" {
			b.WriteString(" name=" + n.Name)
		}
		for _, p := range n.Params {
			b.WriteString(" " + p.Key + "=" + quoteValue(p.Value))
		}
	}
	if n.Caps != "" {
		b.WriteString(" ! " + n.Caps)
	}
}

func quoteValue(v string) string {
	if strings.ContainsAny(v, " ,") {
		return strconv.Quote(v)
	}
	return v
}
