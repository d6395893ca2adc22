package modem

import (
	"bytes"
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sigurn/crc16"

	"github.com/moffa90/go-qdl/errkind"
	"github.com/moffa90/go-qdl/logging"
	"github.com/moffa90/go-qdl/transport"
)

// QCDM HDLC framing.
const (
	hdlcFlag   = 0x7e
	hdlcEscape = 0x7d
	hdlcXor    = 0x20
)

// CmdDownload is the QCDM request that reboots the modem into EDL.
var CmdDownload = []byte{0x4b, 0x65, 0x01, 0x00}

// DefaultQCDMTimeout bounds the command write and the echo read.
const DefaultQCDMTimeout = 1500 * time.Millisecond

var crcTable = crc16.MakeTable(crc16.CRC16_X_25)

// QCDMFrame wraps cmd in an HDLC frame: the payload and its little-endian
// CRC-16/X-25, escaped, followed by the flag byte.
func QCDMFrame(cmd []byte) []byte {
	crc := crc16.Checksum(cmd, crcTable)
	raw := append(append([]byte(nil), cmd...), byte(crc), byte(crc>>8))

	out := make([]byte, 0, len(raw)+3)
	for _, b := range raw {
		if b == hdlcFlag || b == hdlcEscape {
			out = append(out, hdlcEscape, b^hdlcXor)
			continue
		}
		out = append(out, b)
	}
	return append(out, hdlcFlag)
}

// OpenFunc opens a port to the modem.
type OpenFunc func(ctx context.Context) (transport.Transport, error)

// QCDMSwitcher sends the QCDM download command. The modem echoes the
// command while it is still running its normal firmware; once it has left
// for EDL the QCDM port disappears.
type QCDMSwitcher struct {
	// Open opens the QCDM port. An errkind.NotFound error means the port
	// is gone and the switch has happened.
	Open OpenFunc

	// Timeout bounds the write and the echo read; zero means 1.5s.
	Timeout time.Duration

	Logger logging.Logger
}

// SerialPort returns an OpenFunc for a character device such as
// /dev/wwan0qcdm0.
func SerialPort(path string) OpenFunc {
	return func(context.Context) (transport.Transport, error) {
		s, err := transport.OpenSerial(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// USBPort returns an OpenFunc for the bulk interface of a USB device, by
// default the Sahara interface of a device in EDL.
func USBPort(c transport.USBConfig) OpenFunc {
	return func(context.Context) (transport.Transport, error) {
		u, err := transport.OpenUSB(c)
		if err != nil {
			return nil, err
		}
		return u, nil
	}
}

// SwitchToEDL implements Switcher. It returns ErrNotSwitched after a
// successful echo so that the caller retries until the port is gone.
func (q *QCDMSwitcher) SwitchToEDL(ctx context.Context) error {
	log := loggerOr(q.Logger)

	t, err := q.Open(ctx)
	if errkind.Is(err, errkind.NotFound) {
		log.Info("qcdm port gone, device switched to edl")
		return nil
	}
	if err != nil {
		return err
	}
	defer t.Close()

	timeout := q.Timeout
	if timeout <= 0 {
		timeout = DefaultQCDMTimeout
	}

	req := QCDMFrame(CmdDownload)
	log.Debug("writing qcdm command", "data", fmt.Sprintf("% x", req))
	if err := t.Write(ctx, req, timeout, transport.FlushInput); err != nil {
		return pkgerrors.WithMessage(err, "write qcdm command")
	}

	rsp, err := t.Read(ctx, len(req)*2, timeout, transport.SingleShot)
	if err != nil {
		return pkgerrors.WithMessage(err, "read qcdm response")
	}
	log.Debug("read qcdm response", "data", fmt.Sprintf("% x", rsp))
	if !bytes.Equal(rsp, req) {
		return errkind.New(errkind.Protocol, "qcdm", "failed to read valid qcdm response: % x", rsp)
	}
	return ErrNotSwitched
}
