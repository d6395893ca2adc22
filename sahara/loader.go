package sahara

import (
	"context"
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/moffa90/go-qdl/errkind"
	"github.com/moffa90/go-qdl/transport"
)

// Loader uploads a programmer image to a device in Sahara mode.
//
// A Loader is not safe for concurrent use; it owns its transport for the
// duration of Run.
type Loader struct {
	t      transport.Transport
	config Config

	softErrors int
}

// New creates a Loader on t.
//
// Example:
//
//	usb, _ := transport.OpenUSB(transport.USBConfig{})
//	defer usb.Close()
//	err := sahara.New(usb, sahara.WithLogger(logging.Glog{})).Run(ctx, prog)
func New(t transport.Transport, opts ...Option) *Loader {
	if t == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Loader{t: t, config: cfg}
}

// SoftErrors returns how many image requests of the last Run could not be
// served. Such requests are logged and skipped; the device decides whether
// to retry or give up.
func (l *Loader) SoftErrors() int {
	return l.softErrors
}

// Run performs the Sahara handshake and serves image until the device
// acknowledges completion. image is only read.
//
// Sequence:
//  1. Wait for Hello, pinging the device once if it stays silent
//  2. Answer Hello with HelloResponse
//  3. Serve ReadData / ReadData64 requests from image
//  4. Send Done after a successful EndOfImageTx
//  5. Return on DoneResponse
//
// On any failure the device is asked to reset before Run returns.
func (l *Loader) Run(ctx context.Context, image []byte) error {
	l.softErrors = 0

	l.logDebug("state", "state", "wait-hello")
	if err := l.waitHello(ctx); err != nil {
		l.reset(ctx)
		return err
	}

	for {
		l.logDebug("state", "state", "wait-command")

		pkt, err := l.readPacket(ctx)
		if err != nil {
			l.reset(ctx)
			return pkgerrors.WithMessage(err, "wait command")
		}

		switch p := pkt.(type) {
		case Hello:
			if err := l.sendHelloResponse(ctx); err != nil {
				l.soft("hello response", err)
			}

		case ReadData:
			l.serve(ctx, image, uint64(p.Offset), uint64(p.Length))

		case ReadData64:
			l.serve(ctx, image, p.Offset, p.Length)

		case EndOfImageTx:
			if p.Status != StatusSuccess {
				l.logError("image transfer failed", "image_id", p.ImageID, "status", p.Status)
				continue
			}
			if err := l.send(ctx, Done{}); err != nil {
				l.soft("done", err)
			}

		case DoneResponse:
			l.logInfo("programmer uploaded",
				"bytes", len(image),
				"soft_errors", l.softErrors,
			)
			return nil

		default:
			l.logError("unexpected packet",
				"command", pkt.Command().String(),
			)
		}
	}
}

func (l *Loader) waitHello(ctx context.Context) error {
	pkt, err := l.readPacket(ctx)
	if err == nil {
		if _, ok := pkt.(Hello); !ok {
			err = &UnexpectedPacketError{State: "hello", Got: pkt.Command()}
		}
	}

	if err != nil {
		l.logDebug("no hello, pinging device", "error", err)
		if werr := l.t.Write(ctx, []byte{0x00}, l.config.PingTimeout, 0); werr != nil {
			l.logDebug("ping failed", "error", werr)
		}

		pkt, err = l.readPacket(ctx)
		if err == nil {
			if _, ok := pkt.(Hello); !ok {
				err = &UnexpectedPacketError{State: "hello", Got: pkt.Command()}
			}
		}
		if err != nil {
			return errkind.Wrap(errkind.Protocol, "wait hello", err)
		}
	}

	h := pkt.(Hello)
	l.logDebug("hello",
		"version", h.Version,
		"compatible", h.VersionCompatible,
		"max_packet", h.MaxPacketLength,
		"mode", h.Mode,
	)

	if err := l.sendHelloResponse(ctx); err != nil {
		return pkgerrors.WithMessage(err, "hello response")
	}
	return nil
}

func (l *Loader) sendHelloResponse(ctx context.Context) error {
	return l.send(ctx, HelloResponse{
		Version:           Version,
		VersionCompatible: VersionCompatible,
		Status:            StatusSuccess,
		Mode:              ModeImageTxPending,
	})
}

// serve writes image[offset:offset+length]. Requests outside the image are
// skipped.
func (l *Loader) serve(ctx context.Context, image []byte, offset, length uint64) {
	size := uint64(len(image))
	if offset > size || length > size-offset {
		l.softErrors++
		l.logError("read request outside image",
			"offset", offset,
			"length", length,
			"image_size", size,
		)
		return
	}

	l.logDebug("sending raw data", "offset", offset, "length", length, "total", size)
	if err := l.t.Write(ctx, image[offset:offset+length], l.config.WriteTimeout, 0); err != nil {
		l.soft("raw data", err)
	}
}

func (l *Loader) soft(what string, err error) {
	l.softErrors++
	l.logError("write failed", "packet", what, "error", err)
}

func (l *Loader) send(ctx context.Context, p Packet) error {
	b, err := Marshal(p)
	if err != nil {
		return err
	}
	l.logDebug("tx packet", "command", p.Command().String(), "bytes", len(b))
	return l.t.Write(ctx, b, l.config.WriteTimeout, 0)
}

func (l *Loader) readPacket(ctx context.Context) (Packet, error) {
	b, err := l.t.Read(ctx, l.config.BufferSize, l.config.ReadTimeout, transport.SingleShot)
	if err != nil {
		return nil, err
	}
	l.logDebug("rx packet", "bytes", len(b), "data", fmt.Sprintf("% x", head(b, 16)))
	return Parse(b)
}

// reset asks the device to reset. Errors are ignored.
func (l *Loader) reset(ctx context.Context) {
	if err := l.send(ctx, Reset{}); err != nil {
		l.logDebug("reset not sent", "error", err)
		return
	}
	pkt, err := l.readPacket(ctx)
	if err != nil {
		l.logDebug("no reset response", "error", err)
		return
	}
	if _, ok := pkt.(ResetResponse); !ok {
		l.logDebug("unexpected reset response", "command", pkt.Command().String())
		return
	}
	l.logDebug("reset succeeded")
}

func head(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

func (l *Loader) logDebug(msg string, keysAndValues ...interface{}) {
	if l.config.Logger != nil {
		l.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (l *Loader) logInfo(msg string, keysAndValues ...interface{}) {
	if l.config.Logger != nil {
		l.config.Logger.Info(msg, keysAndValues...)
	}
}

func (l *Loader) logError(msg string, keysAndValues ...interface{}) {
	if l.config.Logger != nil {
		l.config.Logger.Error(msg, keysAndValues...)
	}
}
