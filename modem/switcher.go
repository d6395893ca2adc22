package modem

import (
	"context"

	"github.com/google/gousb"
	pkgerrors "github.com/pkg/errors"

	"github.com/moffa90/go-qdl/errkind"
	"github.com/moffa90/go-qdl/logging"
	"github.com/moffa90/go-qdl/transport"
)

// Switcher moves a modem from its normal execution environment into
// emergency download mode.
type Switcher interface {
	SwitchToEDL(ctx context.Context) error
}

// SwitcherFunc adapts a function to Switcher.
type SwitcherFunc func(ctx context.Context) error

// SwitchToEDL implements Switcher.
func (f SwitcherFunc) SwitchToEDL(ctx context.Context) error { return f(ctx) }

// Controller issues USB control transfers. *transport.USB implements it.
type Controller interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
	Close() error
}

// USBControlSwitcher triggers EDL with a vendor control request, as some
// modems expose a "reboot to download" request on their default pipe.
type USBControlSwitcher struct {
	// Open opens the device in its normal mode.
	Open func(ctx context.Context) (Controller, error)

	// Request, Value and Index of the vendor request sent to the device.
	Request uint8
	Value   uint16
	Index   uint16

	Logger logging.Logger
}

// USBDevice returns an Open function for USBControlSwitcher that claims
// the given interface of a device.
func USBDevice(c transport.USBConfig) func(context.Context) (Controller, error) {
	return func(context.Context) (Controller, error) {
		u, err := transport.OpenUSB(c)
		if err != nil {
			return nil, err
		}
		return u, nil
	}
}

// SwitchToEDL implements Switcher. The device usually drops off the bus
// while answering, so a failed status stage counts as success.
func (s *USBControlSwitcher) SwitchToEDL(ctx context.Context) error {
	log := loggerOr(s.Logger)

	c, err := s.Open(ctx)
	if err != nil {
		return pkgerrors.WithMessage(err, "open device for edl switch")
	}
	defer c.Close()

	rType := uint8(gousb.ControlOut | gousb.ControlVendor | gousb.ControlInterface)
	log.Debug("sending edl control request", "request", s.Request, "value", s.Value, "index", s.Index)
	if _, err := c.Control(rType, s.Request, s.Value, s.Index, nil); err != nil {
		if errkind.Is(err, errkind.IO) {
			log.Debug("device dropped during control request", "error", err)
			return nil
		}
		return pkgerrors.WithMessage(err, "edl control request")
	}
	return nil
}

// MBIMRebooter sends the vendor MBIM reboot-to-EDL request. The MBIM
// stack itself lives outside this module.
type MBIMRebooter interface {
	RebootToEDL(ctx context.Context) error
}

// MBIMSwitcher switches through an MBIM control channel. No response is
// expected once the request is sent.
type MBIMSwitcher struct {
	Rebooter MBIMRebooter
	Logger   logging.Logger
}

// SwitchToEDL implements Switcher.
func (m *MBIMSwitcher) SwitchToEDL(ctx context.Context) error {
	if m.Rebooter == nil {
		return errkind.New(errkind.Validation, "mbim switch", "no mbim device")
	}
	loggerOr(m.Logger).Info("requesting edl reboot over mbim")
	return pkgerrors.WithMessage(m.Rebooter.RebootToEDL(ctx), "mbim reboot to edl")
}
