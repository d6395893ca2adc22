package firehose

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/moffa90/go-qdl/rawprogram"
	"github.com/moffa90/go-qdl/transport/transporttest"
)

func doc(inner string) []byte {
	return []byte(`<?xml version="1.0" encoding="UTF-8" ?><data>` + inner + `</data>`)
}

// device simulates a Firehose programmer on top of a scripted transport.
type device struct {
	tr *transporttest.Transport

	// maxPayload is the only payload size configure accepts
	maxPayload uint64
	// suggest controls whether a configure NAK carries maxPayload
	suggest bool
	// configureExtra is sent after a configure ACK in the same document
	configureExtra string

	nak         map[string]string // element name -> log reason
	programRaw  string
	confirmRaw  string
	resetLogs   int
	silentReset bool

	commands   []*rawprogram.Node
	configures []uint64
	blocks     [][]byte
	pending    uint64
}

func newDevice(maxPayload uint64) *device {
	d := &device{
		tr:         transporttest.New(),
		maxPayload: maxPayload,
		suggest:    true,
		nak:        map[string]string{},
		programRaw: "true",
		confirmRaw: "false",
		resetLogs:  3,
	}
	d.tr.Push(doc(`<log value="programmer started" />`))
	d.tr.OnWrite = d.onWrite
	return d
}

func (d *device) respond(inner string) { d.tr.Push(doc(inner)) }

func (d *device) onWrite(p []byte) {
	if d.pending > 0 {
		d.blocks = append(d.blocks, p)
		if uint64(len(p)) >= d.pending {
			d.pending = 0
			d.respond(`<response value="ACK" rawmode="` + d.confirmRaw + `" />`)
		} else {
			d.pending -= uint64(len(p))
		}
		return
	}

	nodes, _, err := rawprogram.ParseNodes(p)
	if err != nil || len(nodes) != 1 {
		panic(fmt.Sprintf("device: unexpected write %q", p))
	}
	n := nodes[0]
	d.commands = append(d.commands, n)

	if reason, ok := d.nak[n.Name]; ok {
		d.respond(`<log value="` + reason + `" /><response value="NAK" />`)
		return
	}

	switch n.Kind {
	case rawprogram.KindConfigure:
		v, _ := n.Uint("MaxPayloadSizeToTargetInBytes")
		d.configures = append(d.configures, v)
		switch {
		case v == d.maxPayload:
			d.respond(`<response value="ACK" />` + d.configureExtra)
		case d.suggest:
			d.respond(fmt.Sprintf(`<response value="NAK" MaxPayloadSizeToTargetInBytes="%d" />`, d.maxPayload))
		default:
			d.respond(`<response value="NAK" />`)
		}

	case rawprogram.KindProgram:
		sectors, _ := n.Uint("num_partition_sectors")
		size, _ := n.Uint("SECTOR_SIZE_IN_BYTES")
		d.respond(`<response value="ACK" rawmode="` + d.programRaw + `" />`)
		if d.programRaw != "true" {
			return
		}
		d.pending = sectors * size
		if d.pending == 0 {
			d.respond(`<response value="ACK" rawmode="` + d.confirmRaw + `" />`)
		}

	case rawprogram.KindPower:
		if d.silentReset {
			return
		}
		d.respond(`<response value="ACK" />`)
		for i := 0; i < d.resetLogs; i++ {
			d.respond(`<log value="resetting" />`)
		}

	default:
		d.respond(`<response value="ACK" />`)
	}
}

func (d *device) commandNames() []string {
	var names []string
	for _, n := range d.commands {
		names = append(names, n.Name)
	}
	return names
}

type fileEntry struct {
	name       string
	size       int
	sectorSize int
}

// manifest builds a validated manifest from program files and extra
// elements given as raw XML, in order.
func manifest(t *testing.T, items ...interface{}) *rawprogram.Manifest {
	t.Helper()

	arc := map[string][]byte{}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" ?><data>`)
	for _, it := range items {
		switch v := it.(type) {
		case fileEntry:
			data := bytes.Repeat([]byte{0xA5}, v.size)
			arc[v.name] = data
			sectors := (v.size + v.sectorSize - 1) / v.sectorSize
			fmt.Fprintf(&b, `<program filename="%s" SECTOR_SIZE_IN_BYTES="%d" num_partition_sectors="%d" start_sector="0" />`,
				v.name, v.sectorSize, sectors)
		case string:
			b.WriteString(v)
		}
	}
	b.WriteString(`</data>`)

	m, err := rawprogram.Validate([]byte(b.String()), archiveMap(arc))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return m
}

type archiveMap map[string][]byte

func (a archiveMap) Lookup(name string) ([]byte, bool) {
	b, ok := a[name]
	return b, ok
}
