package firehose

import (
	"time"

	"github.com/moffa90/go-qdl/logging"
	"github.com/moffa90/go-qdl/rawprogram"
)

// Config holds the updater configuration.
type Config struct {
	// ProgressCallback is called during Write to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger logging.Logger

	// MemoryName is the storage type sent in configure
	MemoryName string

	// MaxPayloadSize is the first payload size proposed in configure
	MaxPayloadSize uint64

	// ConfigureAttrs are appended to the configure command
	ConfigureAttrs []rawprogram.Attr

	// ReadTimeout bounds a single response read
	ReadTimeout time.Duration

	// WriteTimeout bounds every command and data block write
	WriteTimeout time.Duration

	// InitialTimeout bounds the first read of Initialize
	InitialTimeout time.Duration

	// InitTimeout bounds the later reads of Initialize
	InitTimeout time.Duration

	// MaxRecvMessages is the number of reads allowed while waiting for a
	// response
	MaxRecvMessages int

	// ReadSize is the buffer size of a single read
	ReadSize int
}

func defaultConfig() Config {
	return Config{
		MemoryName:      DefaultMemoryName,
		MaxPayloadSize:  DefaultMaxPayloadSize,
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		InitialTimeout:  DefaultInitialTimeout,
		InitTimeout:     DefaultInitTimeout,
		MaxRecvMessages: DefaultMaxRecvMessages,
		ReadSize:        DefaultReadSize,
	}
}

// Option is a functional option for configuring the Updater.
type Option func(*Config)

// WithProgressCallback sets a callback function to track write progress.
//
// The final event has Phase PhaseComplete and Percentage 100. It is sent
// only once the reset was attempted: when Initialize or Configure fails,
// Write returns without it.
//
// Example:
//
//	u := firehose.New(t,
//	    firehose.WithProgressCallback(func(p firehose.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the updater.
//
// Example:
//
//	u := firehose.New(t, firehose.WithLogger(logging.Glog{}))
func WithLogger(logger logging.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMemoryName sets the MemoryName sent in configure. Default is "nand".
//
// Example:
//
//	u := firehose.New(t, firehose.WithMemoryName("emmc"))
func WithMemoryName(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.MemoryName = name
		}
	}
}

// WithMaxPayloadSize sets the payload size proposed in the first configure
// attempt. Default is 8192 bytes.
func WithMaxPayloadSize(size uint64) Option {
	return func(c *Config) {
		if size > 0 {
			c.MaxPayloadSize = size
		}
	}
}

// WithConfigureAttr appends an attribute to the configure command. Setting
// one of the standard attributes overrides its default in place.
//
// Example:
//
//	u := firehose.New(t, firehose.WithConfigureAttr("Verbose", "1"))
func WithConfigureAttr(name, value string) Option {
	return func(c *Config) {
		c.ConfigureAttrs = append(c.ConfigureAttrs, rawprogram.Attr{Name: name, Value: value})
	}
}

// WithReadTimeout sets the response read timeout. Default is 15s.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ReadTimeout = timeout
		}
	}
}

// WithWriteTimeout sets the write timeout. Default is 1.5s.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.WriteTimeout = timeout
		}
	}
}
