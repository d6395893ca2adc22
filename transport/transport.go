// Package transport defines the duplex byte stream the EDL protocols run on
// and provides USB bulk and serial implementations.
package transport

import (
	"context"
	"time"

	"github.com/moffa90/go-qdl/errkind"
)

// Flags modify a single Read or Write.
type Flags uint8

const (
	// FlushInput discards pending input before a write.
	FlushInput Flags = 1 << iota

	// SingleShot makes Read return whatever the first transfer delivered
	// instead of accumulating up to max bytes.
	SingleShot
)

// Has reports whether f contains all bits of other.
func (f Flags) Has(other Flags) bool { return f&other == other }

// Transport is a duplex byte stream owned by exactly one session.
//
// Implementations return errors of kind errkind.Timeout when nothing arrived
// within timeout and errkind.IO when the device failed or went away.
type Transport interface {
	Write(ctx context.Context, p []byte, timeout time.Duration, flags Flags) error
	Read(ctx context.Context, max int, timeout time.Duration, flags Flags) ([]byte, error)
	Close() error
}

// ErrTimeout is the cause used by the built-in transports for expired reads.
var ErrTimeout = errkind.New(errkind.Timeout, "transport", "timed out")

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errkind.New(errkind.IO, "transport", "closed")

// withTimeout bounds ctx by timeout; a zero timeout leaves ctx unchanged.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
