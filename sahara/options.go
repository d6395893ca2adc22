package sahara

import (
	"time"

	"github.com/moffa90/go-qdl/logging"
)

// Config holds the loader configuration.
type Config struct {
	// Logger is used for logging operations (optional)
	Logger logging.Logger

	// ReadTimeout bounds every packet read
	ReadTimeout time.Duration

	// WriteTimeout bounds every packet and image-chunk write
	WriteTimeout time.Duration

	// PingTimeout bounds the wake-up ping written when no Hello arrives
	PingTimeout time.Duration

	// BufferSize is the maximum size of a single packet read
	BufferSize int
}

func defaultConfig() Config {
	return Config{
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		PingTimeout:  DefaultPingTimeout,
		BufferSize:   DefaultBufferSize,
	}
}

// Option is a functional option for configuring the Loader.
type Option func(*Config)

// WithLogger sets a logger for the loader.
//
// Example:
//
//	l := sahara.New(t, sahara.WithLogger(logging.Glog{}))
func WithLogger(logger logging.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithReadTimeout sets the packet read timeout. Default is 15s.
func WithReadTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ReadTimeout = timeout
		}
	}
}

// WithWriteTimeout sets the write timeout. Default is 15s.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.WriteTimeout = timeout
		}
	}
}

// WithPingTimeout sets the write timeout of the wake-up ping.
func WithPingTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.PingTimeout = timeout
		}
	}
}
