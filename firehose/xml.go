package firehose

import (
	"bytes"

	"github.com/moffa90/go-qdl/rawprogram"
)

const (
	xmlHeader  = "<?xml version=\"1.0\" encoding=\"UTF-8\" ?>\n<data>\n"
	xmlTrailer = "</data>"
)

// Frame wraps a command element into a complete Firehose document.
func Frame(n *rawprogram.Node) []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.Write(n.Marshal())
	b.WriteByte('\n')
	b.WriteString(xmlTrailer)
	return b.Bytes()
}

// receiver reassembles response documents from datagrams.
type receiver struct {
	partial []byte
	nodes   []*rawprogram.Node
}

// feed adds one datagram. NUL padding is dropped and an unfinished
// document is kept until the next datagram completes it.
func (r *receiver) feed(data []byte) error {
	data = bytes.Trim(data, "\x00")
	if len(data) == 0 {
		return nil
	}

	buf := append(r.partial, data...)
	nodes, n, err := rawprogram.ParseNodes(buf)
	r.nodes = append(r.nodes, nodes...)
	switch err {
	case nil:
		r.partial = nil
	case rawprogram.ErrIncomplete:
		r.partial = append([]byte(nil), buf[n:]...)
	default:
		r.partial = nil
		return err
	}
	return nil
}

// next pops the oldest parsed node.
func (r *receiver) next() *rawprogram.Node {
	if len(r.nodes) == 0 {
		return nil
	}
	n := r.nodes[0]
	r.nodes = r.nodes[1:]
	return n
}

// discard drops parsed nodes nobody asked for. An unfinished document is
// kept.
func (r *receiver) discard() int {
	n := len(r.nodes)
	r.nodes = nil
	return n
}

func (r *receiver) reset() {
	r.partial = nil
	r.nodes = nil
}

func isACK(n *rawprogram.Node) bool {
	v, _ := n.Attr(attrValue)
	return v == valueACK
}

func rawMode(n *rawprogram.Node) bool {
	v, _ := n.Attr(attrRawMode)
	return v == "true"
}
