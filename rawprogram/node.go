package rawprogram

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/moffa90/go-qdl/errkind"
)

// Kind identifies the Firehose element a Node represents.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfigure
	KindProgram
	KindErase
	KindPatch
	KindPower
	KindResponse
	KindLog
)

var kindNames = map[string]Kind{
	"configure": KindConfigure,
	"program":   KindProgram,
	"erase":     KindErase,
	"patch":     KindPatch,
	"power":     KindPower,
	"response":  KindResponse,
	"log":       KindLog,
}

// KindOf maps an element name to its Kind.
func KindOf(name string) Kind {
	if k, ok := kindNames[name]; ok {
		return k
	}
	return KindUnknown
}

func (k Kind) String() string {
	for name, v := range kindNames {
		if v == k {
			return name
		}
	}
	return "unknown"
}

// ErrIncomplete is returned by ParseNodes when the input ends inside a
// document. The caller should retry once more data is available.
var ErrIncomplete = errors.New("incomplete XML document")

// Attr is a single XML attribute.
type Attr struct {
	Name  string
	Value string
}

// Node is one Firehose element with its attributes in document order.
type Node struct {
	Kind  Kind
	Name  string
	Attrs []Attr
}

// NewNode builds a node named name.
func NewNode(name string, attrs ...Attr) *Node {
	return &Node{Kind: KindOf(name), Name: name, Attrs: attrs}
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Set replaces the value of name, appending it if absent.
func (n *Node) Set(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// Uint parses the named attribute as a base-10 unsigned integer.
func (n *Node) Uint(name string) (uint64, error) {
	s, ok := n.Attr(name)
	if !ok {
		return 0, &MissingAttrError{Element: n.Name, Attr: name}
	}
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, &InvalidAttrError{Element: n.Name, Attr: name, Value: s}
	}
	return v, nil
}

// Marshal renders the node as a self-closing element, e.g.
// <power value="reset" />.
func (n *Node) Marshal() []byte {
	var b bytes.Buffer
	b.WriteByte('<')
	b.WriteString(n.Name)
	for _, a := range n.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		_ = xml.EscapeText(&b, []byte(a.Value))
		b.WriteByte('"')
	}
	b.WriteString(" />")
	return b.Bytes()
}

func (n *Node) String() string { return string(n.Marshal()) }

// ParseNodes decodes one or more concatenated XML documents and returns the
// children of every root element. Deeper elements are ignored.
//
// n is the number of bytes covered by fully parsed documents. When the input
// ends inside a document the nodes of the complete documents are returned
// together with ErrIncomplete; data[n:] holds the unfinished remainder.
func ParseNodes(data []byte) (nodes []*Node, n int, err error) {
	d := xml.NewDecoder(bytes.NewReader(data))

	var pending []*Node
	depth := 0
	for {
		tok, err := d.Token()
		if err == io.EOF {
			if len(bytes.TrimSpace(data[n:])) > 0 {
				return nodes, n, ErrIncomplete
			}
			return nodes, len(data), nil
		}
		if err != nil {
			var se *xml.SyntaxError
			if errors.As(err, &se) && se.Msg == "unexpected EOF" {
				return nodes, n, ErrIncomplete
			}
			return nodes, n, errkind.Wrap(errkind.Protocol, "parse xml", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				node := NewNode(t.Name.Local)
				for _, a := range t.Attr {
					node.Attrs = append(node.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
				}
				pending = append(pending, node)
			}
		case xml.EndElement:
			depth--
			if depth == 0 {
				nodes = append(nodes, pending...)
				pending = nil
				n = int(d.InputOffset())
			}
		case xml.CharData, xml.Comment:
			if depth == 0 {
				n = int(d.InputOffset())
			}
		}
	}
}
