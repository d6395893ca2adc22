package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
	pkgerrors "github.com/pkg/errors"

	"github.com/moffa90/go-qdl/errkind"
)

// Qualcomm emergency-download identifiers. Every Sahara device uses them.
const (
	EDLVendorID  gousb.ID = 0x05c6
	EDLProductID gousb.ID = 0x9008
)

// DefaultUSBReadSize is the buffer size of a single bulk read.
const DefaultUSBReadSize = 4 * 1024

// USBConfig selects the device to open.
type USBConfig struct {
	// Vendor and Product default to the EDL identifiers.
	Vendor  gousb.ID
	Product gousb.ID

	// Class, SubClass and Protocol of the update interface; all default to 0xff.
	Class    gousb.Class
	SubClass gousb.Class
	Protocol gousb.Protocol
}

func (c *USBConfig) setDefaults() {
	if c.Vendor == 0 {
		c.Vendor = EDLVendorID
	}
	if c.Product == 0 {
		c.Product = EDLProductID
	}
	if c.Class == 0 {
		c.Class = gousb.ClassVendorSpec
	}
	if c.SubClass == 0 {
		c.SubClass = gousb.ClassVendorSpec
	}
	if c.Protocol == 0 {
		c.Protocol = 0xff
	}
}

// USB is a Transport over a pair of bulk endpoints.
type USB struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint

	maxPacketOut int
	closed       bool
}

// OpenUSB finds the update interface of the configured device and claims it.
func OpenUSB(c USBConfig) (_ *USB, err error) {
	c.setDefaults()

	uctx := gousb.NewContext()
	defer func() {
		if err != nil {
			_ = uctx.Close()
		}
	}()

	dev, err := uctx.OpenDeviceWithVIDPID(c.Vendor, c.Product)
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "open usb", err)
	}
	if dev == nil {
		return nil, errkind.New(errkind.NotFound, "open usb", "no device %s:%s", c.Vendor, c.Product)
	}
	defer func() {
		if err != nil {
			_ = dev.Close()
		}
	}()
	dev.SetAutoDetach(true)

	cfgNum, intfNum, alt, inNum, outNum, ok := findBulkInterface(dev.Desc, c)
	if !ok {
		return nil, errkind.New(errkind.NotFound, "open usb",
			"device %s:%s has no %02x/%02x/%02x interface with bulk endpoints",
			c.Vendor, c.Product, uint8(c.Class), uint8(c.SubClass), uint8(c.Protocol))
	}

	cfg, err := dev.Config(cfgNum)
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "usb config", err)
	}
	intf, err := cfg.Interface(intfNum, alt)
	if err != nil {
		_ = cfg.Close()
		return nil, errkind.Wrap(errkind.IO, "usb interface", err)
	}
	in, err := intf.InEndpoint(inNum)
	if err != nil {
		intf.Close()
		_ = cfg.Close()
		return nil, errkind.Wrap(errkind.IO, "usb in endpoint", err)
	}
	out, err := intf.OutEndpoint(outNum)
	if err != nil {
		intf.Close()
		_ = cfg.Close()
		return nil, errkind.Wrap(errkind.IO, "usb out endpoint", err)
	}

	return &USB{
		ctx:          uctx,
		dev:          dev,
		cfg:          cfg,
		intf:         intf,
		in:           in,
		out:          out,
		maxPacketOut: out.Desc.MaxPacketSize,
	}, nil
}

func findBulkInterface(desc *gousb.DeviceDesc, c USBConfig) (cfgNum, intfNum, alt, in, out int, ok bool) {
	for _, cd := range desc.Configs {
		for _, id := range cd.Interfaces {
			for _, s := range id.AltSettings {
				if s.Class != c.Class || s.SubClass != c.SubClass || s.Protocol != c.Protocol {
					continue
				}
				in, out = 0, 0
				for _, ep := range s.Endpoints {
					if ep.TransferType != gousb.TransferTypeBulk {
						continue
					}
					if ep.Direction == gousb.EndpointDirectionIn {
						in = ep.Number
					} else {
						out = ep.Number
					}
				}
				if in != 0 && out != 0 {
					return cd.Number, id.Number, s.Alternate, in, out, true
				}
			}
		}
	}
	return 0, 0, 0, 0, 0, false
}

// Write sends p in max-packet-size transfers followed by a zero-length
// packet when len(p) is a multiple of the packet size. FlushInput is a no-op
// on USB.
func (u *USB) Write(ctx context.Context, p []byte, timeout time.Duration, _ Flags) error {
	if u.closed {
		return ErrClosed
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	chunk := u.maxPacketOut
	if chunk <= 0 {
		chunk = len(p)
	}
	for off := 0; off < len(p); off += chunk {
		end := off + chunk
		if end > len(p) {
			end = len(p)
		}
		n, err := u.out.WriteContext(ctx, p[off:end])
		if err != nil {
			return u.classify(ctx, "bulk write", err)
		}
		if n != end-off {
			return errkind.New(errkind.IO, "bulk write", "only wrote %d of %d bytes", n, end-off)
		}
	}
	if u.maxPacketOut > 0 && len(p)%u.maxPacketOut == 0 {
		if _, err := u.out.WriteContext(ctx, nil); err != nil {
			return u.classify(ctx, "bulk write zlp", err)
		}
	}
	return nil
}

// Read returns the data of one bulk transfer when SingleShot is set,
// otherwise it accumulates transfers until max bytes arrived or the timeout
// expired with some data already received.
func (u *USB) Read(ctx context.Context, max int, timeout time.Duration, flags Flags) ([]byte, error) {
	if u.closed {
		return nil, ErrClosed
	}
	if max <= 0 {
		max = DefaultUSBReadSize
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	buf := make([]byte, max)
	total := 0
	for total < max {
		n, err := u.in.ReadContext(ctx, buf[total:])
		total += n
		if err != nil {
			if total > 0 && ctx.Err() != nil {
				break
			}
			return nil, u.classify(ctx, "bulk read", err)
		}
		if flags.Has(SingleShot) && total > 0 {
			break
		}
	}
	return buf[:total], nil
}

func (u *USB) classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil || errors.Is(err, gousb.ErrorTimeout) || errors.Is(err, gousb.TransferTimedOut) {
		return errkind.Wrap(errkind.Timeout, op, pkgerrors.Wrap(ErrTimeout, err.Error()))
	}
	return errkind.Wrap(errkind.IO, op, err)
}

// Control issues a control transfer on the claimed device.
func (u *USB) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	if u.closed {
		return 0, ErrClosed
	}
	n, err := u.dev.Control(rType, request, val, idx, data)
	if err != nil {
		return n, errkind.Wrap(errkind.IO, "control transfer", err)
	}
	return n, nil
}

// Close releases the interface, the device and the libusb context.
func (u *USB) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	u.intf.Close()
	var errs []error
	if err := u.cfg.Close(); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	if err := u.dev.Close(); err != nil {
		errs = append(errs, fmt.Errorf("device: %w", err))
	}
	if err := u.ctx.Close(); err != nil {
		errs = append(errs, fmt.Errorf("context: %w", err))
	}
	return errors.Join(errs...)
}
