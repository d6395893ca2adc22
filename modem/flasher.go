package modem

import (
	"context"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/moffa90/go-qdl/archive"
	"github.com/moffa90/go-qdl/errkind"
	"github.com/moffa90/go-qdl/firehose"
	"github.com/moffa90/go-qdl/logging"
	"github.com/moffa90/go-qdl/rawprogram"
	"github.com/moffa90/go-qdl/sahara"
	"github.com/moffa90/go-qdl/transport"
)

// Result describes a flash attempt.
type Result struct {
	// Session identifies the attempt in the logs
	Session string

	// Method is the update method that was used
	Method Method

	// ActiveConfig is the id of the carrier configuration to activate
	// after a QMI PDC update, or nil if none matched the firmware version
	ActiveConfig []byte

	// Digest is the digest reported by the modem after an MBIM QDU update
	Digest []byte

	// Manifest is the rawprogram manifest used by a Firehose update
	Manifest string

	// SoftErrors counts the image requests the Sahara loader skipped
	SoftErrors int
}

// Flasher updates a modem with a firmware archive using the best update
// method the modem supports.
type Flasher struct {
	config Config
}

// New creates a Flasher.
//
// Example:
//
//	f := modem.New(
//	    modem.WithMethods(modem.MethodFirehose),
//	    modem.WithSwitcher(&modem.QCDMSwitcher{Open: modem.SerialPort(qcdm)}),
//	    modem.WithSaharaPort(modem.USBPort(transport.USBConfig{})),
//	)
//	res, err := f.Flash(ctx, arc)
func New(opts ...Option) *Flasher {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Flasher{config: cfg}
}

// Flash writes arc to the modem. Methods are tried in the order QMI PDC,
// MBIM QDU, Firehose; only the first supported one is used.
//
// Archive contents are validated before the modem is touched. The returned
// Result is non-nil whenever a method was selected, even on failure, so the
// session id can be reported.
func (f *Flasher) Flash(ctx context.Context, arc archive.Archive) (*Result, error) {
	method := f.config.Methods.Preferred()
	if method == 0 {
		return nil, errkind.New(errkind.Validation, "flash", "unsupported update method %s", f.config.Methods)
	}

	res := &Result{Session: uuid.NewString(), Method: method}
	log := logging.With(loggerOr(f.config.Logger), "session", res.Session)
	log.Info("flash started", "method", method)

	var err error
	switch method {
	case MethodQMIPDC:
		err = f.flashPDC(ctx, arc, log, res)
	case MethodMBIMQDU:
		err = f.flashQDU(ctx, arc, log, res)
	case MethodFirehose:
		err = f.flashFirehose(ctx, arc, log, res)
	}
	if err != nil {
		log.Error("flash failed", "method", method, "error", err)
		return res, err
	}
	log.Info("flash complete", "method", method)
	return res, nil
}

func (f *Flasher) flashPDC(ctx context.Context, arc archive.Archive, log logging.Logger, res *Result) error {
	if f.config.PDC == nil {
		return errkind.New(errkind.Validation, "qmi-pdc", "no qmi-pdc backend configured")
	}
	active, err := writeCarrierConfigs(ctx, f.config.PDC, arc, f.config.Version, log)
	res.ActiveConfig = active
	return err
}

func (f *Flasher) flashQDU(ctx context.Context, arc archive.Archive, log logging.Logger, res *Result) error {
	if f.config.QDU == nil {
		return errkind.New(errkind.Validation, "mbim-qdu", "no mbim-qdu backend configured")
	}
	part, data, err := checkFlashFile(arc)
	if err != nil {
		return err
	}
	log.Debug("checksum matched", "file", part.Filename)
	res.Digest, err = writeFlashFile(ctx, f.config.QDU, part, data, log)
	return err
}

func (f *Flasher) flashFirehose(ctx context.Context, arc archive.Archive, log logging.Logger, res *Result) error {
	name, manifest, err := rawprogram.FindManifest(arc)
	if err != nil {
		return err
	}
	m, err := rawprogram.Validate(manifest, arc)
	if err != nil {
		return pkgerrors.WithMessage(err, "invalid firehose rawprogram manifest")
	}
	res.Manifest = name

	prog, ok := arc.Lookup(f.config.ProgrammerName)
	if !ok {
		return &rawprogram.NotFoundError{Filename: f.config.ProgrammerName}
	}
	if f.config.SaharaPort == nil && f.config.FirehosePort == nil {
		return errkind.New(errkind.Validation, "firehose", "no port configured to reach the device")
	}
	log.Info("manifest validated",
		"manifest", name,
		"actions", len(m.Actions),
		"bytes", m.TotalProgramBytes(),
	)

	if err := f.switchToEDL(ctx, log); err != nil {
		return err
	}

	var port transport.Transport
	defer func() {
		if port != nil {
			closePort(port, log)
		}
	}()

	if f.config.SaharaPort != nil {
		port, err = f.config.SaharaPort(ctx)
		if err != nil {
			return pkgerrors.WithMessage(err, "open sahara port")
		}
		opts := append([]sahara.Option{sahara.WithLogger(log)}, f.config.SaharaOptions...)
		l := sahara.New(port, opts...)
		err = l.Run(ctx, prog)
		res.SoftErrors = l.SoftErrors()
		if err != nil {
			return pkgerrors.WithMessage(err, "load programmer")
		}
	} else {
		log.Info("programmer expected from host driver", "programmer", f.config.ProgrammerName)
	}

	if f.config.FirehosePort != nil {
		if port != nil {
			closePort(port, log)
			port = nil
		}
		if f.config.EDLPort != "" {
			if err := transport.WaitForPort(ctx, f.config.EDLPort, f.config.PortTimeout); err != nil {
				return pkgerrors.WithMessage(err, "find edl port")
			}
			log.Debug("found edl port", "port", f.config.EDLPort)
		}
		port, err = f.config.FirehosePort(ctx)
		if err != nil {
			return pkgerrors.WithMessage(err, "open firehose port")
		}
	}

	opts := append([]firehose.Option{firehose.WithLogger(log)}, f.config.FirehoseOptions...)
	if err := firehose.New(port, opts...).Write(ctx, m); err != nil {
		return pkgerrors.WithMessage(err, "firehose write")
	}
	return nil
}

func (f *Flasher) switchToEDL(ctx context.Context, log logging.Logger) error {
	if f.config.Switcher == nil {
		log.Debug("no edl switcher configured, assuming device is in edl")
		return nil
	}
	log.Info("switching to edl")
	err := retry(ctx, log, "switch to edl", f.config.SwitchAttempts, f.config.SwitchDelay, f.config.Switcher.SwitchToEDL)
	if err != nil {
		return err
	}
	log.Info("device in edl")
	return nil
}

func closePort(t transport.Transport, log logging.Logger) {
	if err := t.Close(); err != nil {
		log.Error("close port", "error", err)
	}
}
