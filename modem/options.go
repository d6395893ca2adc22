package modem

import (
	"time"

	"github.com/moffa90/go-qdl/firehose"
	"github.com/moffa90/go-qdl/logging"
	"github.com/moffa90/go-qdl/sahara"
)

// Defaults.
const (
	DefaultProgrammerName = "firehose-prog.mbn"
	DefaultSwitchAttempts = 30
	DefaultSwitchDelay    = time.Second
	DefaultPortTimeout    = 7500 * time.Millisecond
)

// Config holds the flasher configuration.
type Config struct {
	// Methods are the update methods the modem supports
	Methods Method

	// Logger is used for logging operations (optional)
	Logger logging.Logger

	// Version is the running firmware version, used to pick the active
	// carrier configuration
	Version string

	// ProgrammerName is the Firehose programmer inside the archive
	ProgrammerName string

	// Switcher moves the modem into EDL; nil means it is already there
	Switcher Switcher

	// SwitchAttempts and SwitchDelay bound the EDL switch retries
	SwitchAttempts int
	SwitchDelay    time.Duration

	// SaharaPort opens the boot ROM port. Nil means the host driver
	// uploads the programmer itself.
	SaharaPort OpenFunc

	// FirehosePort opens the programmer port. Nil reuses the Sahara port.
	FirehosePort OpenFunc

	// EDLPort is a device node to wait for before FirehosePort is called
	EDLPort string

	// PortTimeout bounds the wait for EDLPort
	PortTimeout time.Duration

	// PDC writes carrier configurations for MethodQMIPDC
	PDC PDCWriter

	// QDU writes firmware images for MethodMBIMQDU
	QDU QDUWriter

	// SaharaOptions and FirehoseOptions are passed to the engines
	SaharaOptions   []sahara.Option
	FirehoseOptions []firehose.Option
}

func defaultConfig() Config {
	return Config{
		ProgrammerName: DefaultProgrammerName,
		SwitchAttempts: DefaultSwitchAttempts,
		SwitchDelay:    DefaultSwitchDelay,
		PortTimeout:    DefaultPortTimeout,
	}
}

// Option is a functional option for configuring the Flasher.
type Option func(*Config)

// WithMethods sets the update methods the modem supports.
//
// Example:
//
//	f := modem.New(modem.WithMethods(modem.MethodFirehose))
func WithMethods(m Method) Option {
	return func(c *Config) {
		c.Methods = m
	}
}

// WithLogger sets a logger for the flasher. Every line carries the flash
// session id. The logger is passed on to the Sahara and Firehose engines.
func WithLogger(logger logging.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithVersion sets the running firmware version.
func WithVersion(version string) Option {
	return func(c *Config) {
		c.Version = version
	}
}

// WithProgrammerName sets the programmer file name. Default is
// "firehose-prog.mbn".
func WithProgrammerName(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.ProgrammerName = name
		}
	}
}

// WithSwitcher sets how the modem is moved into EDL.
//
// Example:
//
//	f := modem.New(
//	    modem.WithMethods(modem.MethodFirehose),
//	    modem.WithSwitcher(&modem.QCDMSwitcher{Open: modem.SerialPort("/dev/wwan0qcdm0")}),
//	)
func WithSwitcher(s Switcher) Option {
	return func(c *Config) {
		c.Switcher = s
	}
}

// WithSwitchRetry sets how often the EDL switch is attempted. Default is
// 30 attempts, 1s apart.
func WithSwitchRetry(attempts int, delay time.Duration) Option {
	return func(c *Config) {
		if attempts > 0 {
			c.SwitchAttempts = attempts
		}
		if delay >= 0 {
			c.SwitchDelay = delay
		}
	}
}

// WithSaharaPort sets how the boot ROM port is opened.
func WithSaharaPort(open OpenFunc) Option {
	return func(c *Config) {
		c.SaharaPort = open
	}
}

// WithFirehosePort sets how the programmer port is opened. When path is
// not empty the flasher waits for that device node first.
//
// Example:
//
//	modem.WithFirehosePort("/dev/wwan0firehose0", modem.SerialPort("/dev/wwan0firehose0"))
func WithFirehosePort(path string, open OpenFunc) Option {
	return func(c *Config) {
		c.EDLPort = path
		c.FirehosePort = open
	}
}

// WithPortTimeout sets how long to wait for the EDL port. Default is 7.5s.
func WithPortTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.PortTimeout = timeout
		}
	}
}

// WithPDCWriter sets the QMI PDC backend.
func WithPDCWriter(w PDCWriter) Option {
	return func(c *Config) {
		c.PDC = w
	}
}

// WithQDUWriter sets the MBIM QDU backend.
func WithQDUWriter(w QDUWriter) Option {
	return func(c *Config) {
		c.QDU = w
	}
}

// WithSaharaOptions passes options to the Sahara loader.
func WithSaharaOptions(opts ...sahara.Option) Option {
	return func(c *Config) {
		c.SaharaOptions = append(c.SaharaOptions, opts...)
	}
}

// WithFirehoseOptions passes options to the Firehose updater.
//
// Example:
//
//	modem.WithFirehoseOptions(firehose.WithProgressCallback(progressFunc))
func WithFirehoseOptions(opts ...firehose.Option) Option {
	return func(c *Config) {
		c.FirehoseOptions = append(c.FirehoseOptions, opts...)
	}
}

func loggerOr(l logging.Logger) logging.Logger {
	if l == nil {
		return logging.Nop{}
	}
	return l
}
