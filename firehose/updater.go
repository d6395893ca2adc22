package firehose

import (
	"context"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/moffa90/go-qdl/errkind"
	"github.com/moffa90/go-qdl/rawprogram"
	"github.com/moffa90/go-qdl/transport"
)

// Updater executes a rawprogram manifest on a device running a Firehose
// programmer.
//
// An Updater is not safe for concurrent use.
type Updater struct {
	t      transport.Transport
	config Config

	maxPayloadSize uint64
	rx             receiver
	lastLog        string

	start   time.Time
	lastPct float64
}

// New creates an Updater on t.
//
// Example:
//
//	tty, _ := transport.OpenSerial("/dev/ttyUSB0")
//	defer tty.Close()
//	u := firehose.New(tty,
//	    firehose.WithProgressCallback(progressFunc),
//	    firehose.WithMemoryName("emmc"),
//	)
func New(t transport.Transport, opts ...Option) *Updater {
	if t == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Updater{t: t, config: cfg}
}

// MaxPayloadSize returns the payload size agreed in Configure, or zero
// before a successful Configure.
func (u *Updater) MaxPayloadSize() uint64 {
	return u.maxPayloadSize
}

// Write performs the complete update sequence:
//  1. Drain the programmer's start-up messages
//  2. Negotiate the payload size with configure
//  3. Check every program's sector size against the payload size
//  4. Run every action in manifest order, streaming program files
//  5. Reset the device
//
// The reset is attempted whenever step 2 succeeded. Its error is returned
// only if steps 3 and 4 succeeded.
//
// Example:
//
//	m, _ := rawprogram.Validate(manifest, arc)
//	err := u.Write(ctx, m)
func (u *Updater) Write(ctx context.Context, m *rawprogram.Manifest) error {
	if m == nil || len(m.Actions) == 0 {
		return errkind.New(errkind.Validation, "write", "manifest has no actions")
	}

	u.start = time.Now()
	u.lastPct = 0
	total := m.TotalProgramBytes()

	u.reportProgress(Progress{Phase: PhaseInitializing, TotalBytes: total})
	if err := u.Initialize(ctx); err != nil {
		return err
	}

	u.reportProgress(Progress{Phase: PhaseConfiguring, TotalBytes: total})
	if _, err := u.Configure(ctx); err != nil {
		return err
	}

	err := u.runActions(ctx, m, total)

	u.reportProgress(Progress{Phase: PhaseResetting, Percentage: u.lastPct, TotalBytes: total})
	rerr := u.Reset(ctx)
	if rerr != nil && err != nil {
		u.logError("reset failed", "error", rerr)
	}

	u.reportProgress(Progress{Phase: PhaseComplete, Percentage: 100, TotalBytes: total})

	if err != nil {
		return err
	}
	if rerr != nil {
		return rerr
	}

	u.logInfo("update complete",
		"actions", len(m.Actions),
		"bytes", total,
		"elapsed", time.Since(u.start).String(),
	)
	return nil
}

// Initialize drains the messages the programmer prints on start-up. It
// fails only if not a single message arrives.
func (u *Updater) Initialize(ctx context.Context) error {
	u.rx.reset()

	n := 0
	for i := 0; i < u.config.MaxRecvMessages; i++ {
		timeout := u.config.InitTimeout
		if i == 0 {
			timeout = u.config.InitialTimeout
		}

		data, err := u.t.Read(ctx, u.config.ReadSize, timeout, transport.SingleShot)
		if err != nil {
			break
		}
		u.logDebug("reading", "xml", string(data))
		if err := u.rx.feed(data); err != nil {
			return pkgerrors.WithMessage(err, "initialize")
		}
		n++
	}

	for node := u.rx.next(); node != nil; node = u.rx.next() {
		u.handleInfo(node)
	}

	if n == 0 {
		return errkind.New(errkind.Protocol, "initialize", "no messages from device")
	}
	u.logDebug("initialized", "messages", n)
	return nil
}

// Configure negotiates the maximum payload size. When the device NAKs and
// suggests a different size the command is retried once with it.
func (u *Updater) Configure(ctx context.Context) (uint64, error) {
	size := u.config.MaxPayloadSize

	for attempt := 0; attempt < MaxConfigureAttempts; attempt++ {
		rsp, err := u.transact(ctx, u.configureNode(size))
		if err != nil {
			return 0, pkgerrors.WithMessage(err, "configure")
		}

		if isACK(rsp) {
			u.maxPayloadSize = size
			u.logInfo("configured", "max_payload_size", size)
			return size, nil
		}

		suggested, err := rsp.Uint(attrMaxPayloadSize)
		if err != nil || suggested == 0 || suggested == size {
			break
		}
		u.logDebug("device suggests payload size", "proposed", size, "suggested", suggested)
		size = suggested
	}

	return 0, &RejectedError{Action: "configure", Reason: u.lastLog}
}

func (u *Updater) configureNode(payload uint64) *rawprogram.Node {
	n := rawprogram.NewNode("configure",
		rawprogram.Attr{Name: "MemoryName", Value: u.config.MemoryName},
		rawprogram.Attr{Name: "Verbose", Value: "0"},
		rawprogram.Attr{Name: "AlwaysValidate", Value: "0"},
		rawprogram.Attr{Name: "MaxDigestTableSizeInBytes", Value: strconv.Itoa(DefaultMaxDigestTableSize)},
		rawprogram.Attr{Name: attrMaxPayloadSize, Value: strconv.FormatUint(payload, 10)},
		rawprogram.Attr{Name: "ZlpAwareHost", Value: "1"},
		rawprogram.Attr{Name: "SkipStorageInit", Value: "0"},
	)
	for _, a := range u.config.ConfigureAttrs {
		if a.Name == attrMaxPayloadSize {
			continue
		}
		n.Set(a.Name, a.Value)
	}
	return n
}

// Reset sends the power reset command and drains the device output.
func (u *Updater) Reset(ctx context.Context) error {
	rsp, err := u.transact(ctx, rawprogram.NewNode("power", rawprogram.Attr{Name: attrValue, Value: "reset"}))
	if err != nil {
		return pkgerrors.WithMessage(err, "reset")
	}
	if !isACK(rsp) {
		return &RejectedError{Action: "power", Reason: u.lastLog}
	}

	for i := 0; i < ResetDrainMessages; i++ {
		data, err := u.t.Read(ctx, u.config.ReadSize, u.config.ReadTimeout, transport.SingleShot)
		if err != nil {
			break
		}
		u.logDebug("reading", "xml", string(data))
	}
	return nil
}

func (u *Updater) runActions(ctx context.Context, m *rawprogram.Manifest, total uint64) error {
	for _, p := range m.Programs() {
		if p.SectorSize > u.maxPayloadSize {
			return &SectorSizeError{
				Filename:       p.Filename,
				SectorSize:     p.SectorSize,
				MaxPayloadSize: u.maxPayloadSize,
			}
		}
	}

	var sent uint64
	for i, act := range m.Actions {
		if err := ctx.Err(); err != nil {
			return errkind.Wrap(errkind.Timeout, "cancelled", err)
		}

		if err := u.runAction(ctx, act, &sent, total); err != nil {
			return pkgerrors.WithMessagef(err, "action %d (%s)", i, act.Node.Name)
		}

		pct := 100 * float64(i+1) / float64(len(m.Actions))
		if total > 0 {
			pct = 100 * float64(sent) / float64(total)
		}
		u.reportProgress(Progress{
			Phase:      PhaseWriting,
			Percentage: pct,
			BytesSent:  sent,
			TotalBytes: total,
		})
	}
	return nil
}

func (u *Updater) runAction(ctx context.Context, act *rawprogram.Action, sent *uint64, total uint64) error {
	u.logDebug("running command", "action", act.Node.Name)

	rsp, err := u.transact(ctx, act.Node)
	if err != nil {
		return err
	}
	if !isACK(rsp) {
		e := &RejectedError{Action: act.Node.Name, Reason: u.lastLog}
		if act.Program != nil {
			e.Filename = act.Program.Filename
		}
		return e
	}

	if act.Node.Kind != rawprogram.KindProgram {
		return nil
	}
	if act.Program == nil {
		return errkind.New(errkind.Validation, "program", "file not resolved, validate the manifest first")
	}
	if !rawMode(rsp) {
		return &RawModeError{Filename: act.Program.Filename, Want: true}
	}
	return u.program(ctx, act.Program, sent, total)
}

// program streams p in blocks of the largest sector multiple that fits the
// payload size. The last block is zero-padded to a sector boundary.
func (u *Updater) program(ctx context.Context, p *rawprogram.Program, sent *uint64, total uint64) error {
	block := (u.maxPayloadSize / p.SectorSize) * p.SectorSize
	if block == 0 {
		return errkind.New(errkind.Validation, "program", "invalid payload size for '%s'", p.Filename)
	}

	size := uint64(len(p.Data))
	blocks := rawprogram.CeilDiv(size, block)
	u.logDebug("sending program file", "file", p.Filename, "bytes", size, "blocks", blocks)

	for i := uint64(0); i < blocks; i++ {
		off := i * block
		end := min(off+block, size)
		chunk := p.Data[off:end]
		if rem := uint64(len(chunk)) % p.SectorSize; rem != 0 {
			padded := make([]byte, uint64(len(chunk))+p.SectorSize-rem)
			copy(padded, chunk)
			chunk = padded
		}

		if i == 0 || i == blocks-1 || (i+1)%250 == 0 {
			u.logDebug("sending block",
				"file", p.Filename,
				"block", i+1,
				"blocks", blocks,
				"bytes", len(chunk),
			)
		}

		if err := u.t.Write(ctx, chunk, u.config.WriteTimeout, transport.FlushInput); err != nil {
			return pkgerrors.WithMessagef(err, "write block %d/%d of '%s'", i+1, blocks, p.Filename)
		}

		*sent += end - off
		u.reportProgress(Progress{
			Phase:      PhaseWriting,
			Percentage: 100 * float64(*sent) / float64(total),
			BytesSent:  *sent,
			TotalBytes: total,
			File:       p.Filename,
		})
	}

	u.logDebug("waiting for download confirmation", "file", p.Filename)
	rsp, err := u.receive(ctx)
	if err != nil {
		return pkgerrors.WithMessagef(err, "download confirmation for '%s'", p.Filename)
	}
	if !isACK(rsp) {
		return &RejectedError{Action: "program", Filename: p.Filename, Reason: u.lastLog}
	}
	if rawMode(rsp) {
		return &RawModeError{Filename: p.Filename, Want: false}
	}
	return nil
}

func (u *Updater) transact(ctx context.Context, n *rawprogram.Node) (*rawprogram.Node, error) {
	if err := u.send(ctx, n); err != nil {
		return nil, err
	}
	return u.receive(ctx)
}

func (u *Updater) send(ctx context.Context, n *rawprogram.Node) error {
	cmd := Frame(n)
	u.lastLog = ""
	if stale := u.rx.discard(); stale > 0 {
		u.logDebug("dropping unread elements", "count", stale)
	}
	u.logDebug("writing", "xml", string(cmd))
	if err := u.t.Write(ctx, cmd, u.config.WriteTimeout, transport.FlushInput); err != nil {
		return pkgerrors.WithMessagef(err, "write %s command", n.Name)
	}
	return nil
}

// receive returns the next response element. Log elements are recorded
// and skipped.
func (u *Updater) receive(ctx context.Context) (*rawprogram.Node, error) {
	if rsp := u.nextResponse(); rsp != nil {
		return rsp, nil
	}

	for i := 0; i < u.config.MaxRecvMessages; i++ {
		data, err := u.t.Read(ctx, u.config.ReadSize, u.config.ReadTimeout, transport.SingleShot)
		if err != nil {
			return nil, pkgerrors.WithMessage(err, "read response")
		}
		u.logDebug("reading", "xml", string(data))

		if err := u.rx.feed(data); err != nil {
			return nil, pkgerrors.WithMessage(err, "parse response")
		}
		if rsp := u.nextResponse(); rsp != nil {
			return rsp, nil
		}
	}

	return nil, errkind.New(errkind.Timeout, "receive",
		"no response in the last %d messages", u.config.MaxRecvMessages)
}

func (u *Updater) nextResponse() *rawprogram.Node {
	for n := u.rx.next(); n != nil; n = u.rx.next() {
		if n.Kind == rawprogram.KindResponse {
			u.logDebug("response", "xml", n.String())
			return n
		}
		u.handleInfo(n)
	}
	return nil
}

func (u *Updater) handleInfo(n *rawprogram.Node) {
	if n.Kind != rawprogram.KindLog {
		u.logDebug("ignoring element", "element", n.Name)
		return
	}
	if v, ok := n.Attr(attrValue); ok {
		u.lastLog = v
		u.logDebug("device log", "value", v)
	}
}

// reportProgress clamps the percentage to [previous, 99] until the phase is
// complete.
func (u *Updater) reportProgress(p Progress) {
	if p.Phase != PhaseComplete {
		p.Percentage = min(max(p.Percentage, u.lastPct), 99)
	}
	u.lastPct = p.Percentage
	p.ElapsedTime = time.Since(u.start)

	if u.config.ProgressCallback != nil {
		u.config.ProgressCallback(p)
	}
}

func (u *Updater) logDebug(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (u *Updater) logInfo(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Info(msg, keysAndValues...)
	}
}

func (u *Updater) logError(msg string, keysAndValues ...interface{}) {
	if u.config.Logger != nil {
		u.config.Logger.Error(msg, keysAndValues...)
	}
}
