// Package edlsim simulates a modem in emergency-download mode: the boot ROM
// speaking Sahara, then a Firehose programmer storing partitions in memory.
//
// The device answers through transporttest transports, so the real loader
// and updater can be driven end to end without hardware:
//
//	dev := edlsim.New(len(prog))
//	port := dev.Open()
//	_ = sahara.New(port).Run(ctx, prog)
//	_ = firehose.New(port).Write(ctx, manifest)
//	fmt.Println(dev.Partitions())
package edlsim

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"

	"github.com/moffa90/go-qdl/rawprogram"
	"github.com/moffa90/go-qdl/sahara"
	"github.com/moffa90/go-qdl/transport/transporttest"
)

// Stage is the execution environment the device is in.
type Stage int

const (
	// StageSahara is the boot ROM waiting for a programmer.
	StageSahara Stage = iota
	// StageFirehose is the uploaded programmer accepting commands.
	StageFirehose
	// StageReset means the device received a power command.
	StageReset
)

func (s Stage) String() string {
	switch s {
	case StageSahara:
		return "sahara"
	case StageFirehose:
		return "firehose"
	case StageReset:
		return "reset"
	default:
		return "stage(" + strconv.Itoa(int(s)) + ")"
	}
}

// DefaultChunkSize is the size of the image requests sent by the boot ROM.
const DefaultChunkSize = 4096

// Partition is one program command received by the programmer.
type Partition struct {
	Filename    string
	StartSector string
	Data        []byte
}

// Device is a simulated EDL device. It is safe for concurrent use.
type Device struct {
	mu sync.Mutex

	// MaxPayload is the largest payload the programmer accepts in
	// configure. Larger proposals are answered with NAK and this value.
	MaxPayload uint64

	// ChunkSize is the size of the boot ROM's image requests.
	ChunkSize int

	// Reject maps element names to a NAK reason.
	Reject map[string]string

	// Logf, if set, receives a line per device event.
	Logf func(format string, args ...interface{})

	stage     Stage
	imageSize int
	image     []byte
	expect    int

	program    *Partition
	pending    uint64
	partitions []Partition
	commands   []string
}

// New returns a device in Sahara mode expecting a programmer of imageSize
// bytes.
func New(imageSize int) *Device {
	return &Device{
		MaxPayload: 1 << 20,
		ChunkSize:  DefaultChunkSize,
		imageSize:  imageSize,
	}
}

// Open returns a new port to the device, as if it had just enumerated. A
// device in Sahara mode greets with Hello, a programmer with log messages.
func (d *Device) Open() *transporttest.Transport {
	tr := transporttest.New()
	tr.OnWrite = func(p []byte) { d.handle(tr, p) }

	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.stage {
	case StageSahara:
		tr.Push(mustMarshal(sahara.Hello{
			Version:           sahara.Version,
			VersionCompatible: sahara.VersionCompatible,
			MaxPacketLength:   uint32(d.ChunkSize),
			Mode:              sahara.ModeImageTxPending,
		}))
	case StageFirehose:
		d.greet(tr)
	}
	return tr
}

// Stage returns the current execution environment.
func (d *Device) Stage() Stage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stage
}

// Programmer returns the image uploaded through Sahara.
func (d *Device) Programmer() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.image...)
}

// Partitions returns the completed program commands in order.
func (d *Device) Partitions() []Partition {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Partition(nil), d.partitions...)
}

// Commands returns the names of the Firehose elements received.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.commands...)
}

func (d *Device) handle(tr *transporttest.Transport, p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.stage {
	case StageSahara:
		d.sahara(tr, p)
	case StageFirehose:
		d.firehose(tr, p)
	}
}

func (d *Device) sahara(tr *transporttest.Transport, p []byte) {
	if d.expect > 0 {
		d.image = append(d.image, p...)
		d.expect -= len(p)
		if d.expect > 0 {
			return
		}
		d.expect = 0
		d.requestNext(tr)
		return
	}

	pkt, err := sahara.Parse(p)
	if err != nil {
		d.logf("sahara: %v", err)
		return
	}
	switch pkt.(type) {
	case sahara.HelloResponse:
		d.logf("sahara: hello response")
		d.image = d.image[:0]
		d.requestNext(tr)
	case sahara.Done:
		d.logf("sahara: done, %d bytes received", len(d.image))
		tr.Push(mustMarshal(sahara.DoneResponse{ImageTransferStatus: sahara.ModeImageTxComplete}))
		d.stage = StageFirehose
		d.greet(tr)
	case sahara.Reset:
		d.logf("sahara: reset")
		tr.Push(mustMarshal(sahara.ResetResponse{}))
	}
}

func (d *Device) requestNext(tr *transporttest.Transport) {
	offset := len(d.image)
	if offset >= d.imageSize {
		tr.Push(mustMarshal(sahara.EndOfImageTx{Status: sahara.StatusSuccess}))
		return
	}
	n := d.imageSize - offset
	if n > d.ChunkSize {
		n = d.ChunkSize
	}
	d.expect = n
	tr.Push(mustMarshal(sahara.ReadData{Offset: uint32(offset), Length: uint32(n)}))
}

func (d *Device) greet(tr *transporttest.Transport) {
	tr.Push(frame(`<log value="programmer started" />`))
	tr.Push(frame(`<log value="storage ready" />`))
}

func (d *Device) firehose(tr *transporttest.Transport, p []byte) {
	if d.pending > 0 {
		d.receive(tr, p)
		return
	}

	nodes, _, err := rawprogram.ParseNodes(p)
	if err != nil {
		d.logf("firehose: %v", err)
		tr.Push(frame(`<response value="NAK" />`))
		return
	}
	for _, n := range nodes {
		d.commands = append(d.commands, n.Name)
		if reason, ok := d.Reject[n.Name]; ok {
			d.logf("firehose: rejecting %s", n.Name)
			tr.Push(frame(fmt.Sprintf(`<log value=%q /><response value="NAK" />`, reason)))
			continue
		}
		switch n.Kind {
		case rawprogram.KindConfigure:
			d.configure(tr, n)
		case rawprogram.KindProgram:
			d.startProgram(tr, n)
		case rawprogram.KindPower:
			d.logf("firehose: power %s", attr(n, "value"))
			tr.Push(frame(`<response value="ACK" />`))
			d.stage = StageReset
		default:
			d.logf("firehose: %s", n.Name)
			tr.Push(frame(`<response value="ACK" />`))
		}
	}
}

func (d *Device) configure(tr *transporttest.Transport, n *rawprogram.Node) {
	size, err := n.Uint("MaxPayloadSizeToTargetInBytes")
	if err != nil || size > d.MaxPayload {
		d.logf("firehose: configure %d refused, max %d", size, d.MaxPayload)
		tr.Push(frame(fmt.Sprintf(
			`<response value="NAK" MaxPayloadSizeToTargetInBytes="%d" />`, d.MaxPayload)))
		return
	}
	d.logf("firehose: configure payload %d", size)
	tr.Push(frame(fmt.Sprintf(
		`<response value="ACK" MaxPayloadSizeToTargetInBytes="%d" />`, size)))
}

func (d *Device) startProgram(tr *transporttest.Transport, n *rawprogram.Node) {
	sectorSize, err1 := n.Uint(rawprogram.AttrSectorSize)
	sectors, err2 := n.Uint(rawprogram.AttrNumSectors)
	if err1 != nil || err2 != nil {
		tr.Push(frame(`<response value="NAK" />`))
		return
	}
	d.program = &Partition{
		Filename:    attr(n, rawprogram.AttrFilename),
		StartSector: attr(n, "start_sector"),
	}
	d.pending = sectorSize * sectors
	d.logf("firehose: program %s, %d bytes", d.program.Filename, d.pending)
	tr.Push(frame(`<response value="ACK" rawmode="true" />`))
	if d.pending == 0 {
		d.finishProgram(tr)
	}
}

func (d *Device) receive(tr *transporttest.Transport, p []byte) {
	n := uint64(len(p))
	if n > d.pending {
		n = d.pending
	}
	d.program.Data = append(d.program.Data, p[:n]...)
	d.pending -= n
	if d.pending == 0 {
		d.finishProgram(tr)
	}
}

func (d *Device) finishProgram(tr *transporttest.Transport) {
	d.logf("firehose: %s stored", d.program.Filename)
	d.partitions = append(d.partitions, *d.program)
	d.program = nil
	tr.Push(frame(`<response value="ACK" rawmode="false" />`))
}

func (d *Device) logf(format string, args ...interface{}) {
	if d.Logf != nil {
		d.Logf(format, args...)
	}
}

func attr(n *rawprogram.Node, name string) string {
	v, _ := n.Attr(name)
	return v
}

func frame(inner string) []byte {
	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" ?>` + "\n<data>\n")
	b.WriteString(inner)
	b.WriteString("\n</data>")
	return b.Bytes()
}

func mustMarshal(p sahara.Packet) []byte {
	b, err := sahara.Marshal(p)
	if err != nil {
		panic(err)
	}
	return b
}
