package transport

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"

	"github.com/pkg/term"

	"github.com/moffa90/go-qdl/errkind"
)

// DefaultSerialReadSize is the read size used when Read is given max <= 0.
const DefaultSerialReadSize = 4 * 1024

// serialPoll is the longest single blocking read; it bounds how late a
// cancelled context is noticed.
const serialPoll = 250 * time.Millisecond

// Serial is a Transport over a character device in raw mode.
type Serial struct {
	t    *term.Term
	path string
}

// OpenSerial opens path in raw mode.
func OpenSerial(path string) (*Serial, error) {
	t, err := term.Open(path, term.RawMode)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errkind.Wrap(errkind.NotFound, "open "+path, err)
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "open "+path, err)
	}
	return &Serial{t: t, path: path}, nil
}

// Path returns the device node this transport was opened on.
func (s *Serial) Path() string { return s.path }

// Write flushes pending input first when FlushInput is set. The timeout only
// bounds the time spent before the data is handed to the kernel.
func (s *Serial) Write(ctx context.Context, p []byte, timeout time.Duration, flags Flags) error {
	if s.t == nil {
		return ErrClosed
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	if flags.Has(FlushInput) {
		if err := s.t.Flush(); err != nil {
			return errkind.Wrap(errkind.IO, "flush "+s.path, err)
		}
	}
	for len(p) > 0 {
		if err := ctx.Err(); err != nil {
			return errkind.Wrap(errkind.Timeout, "write "+s.path, ErrTimeout)
		}
		n, err := s.t.Write(p)
		if err != nil {
			return errkind.Wrap(errkind.IO, "write "+s.path, err)
		}
		p = p[n:]
	}
	return nil
}

// Read waits up to timeout. With SingleShot it returns after the first
// non-empty read; otherwise it keeps reading until max bytes arrived or the
// timeout expired, returning what was collected.
func (s *Serial) Read(ctx context.Context, max int, timeout time.Duration, flags Flags) ([]byte, error) {
	if s.t == nil {
		return nil, ErrClosed
	}
	if max <= 0 {
		max = DefaultSerialReadSize
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	buf := make([]byte, max)
	total := 0
	for total < max {
		wait := serialPoll
		if dl, ok := ctx.Deadline(); ok {
			if left := time.Until(dl); left < wait {
				wait = left
			}
		}
		if wait <= 0 || ctx.Err() != nil {
			break
		}
		// VTIME has a resolution of 100ms
		if wait < 100*time.Millisecond {
			wait = 100 * time.Millisecond
		}
		if err := s.t.SetReadTimeout(wait); err != nil {
			return nil, errkind.Wrap(errkind.IO, "read "+s.path, err)
		}
		n, err := s.t.Read(buf[total:])
		total += n
		if err != nil && n == 0 && !isTimeoutEOF(err) {
			return nil, errkind.Wrap(errkind.IO, "read "+s.path, err)
		}
		if flags.Has(SingleShot) && total > 0 {
			break
		}
	}
	if total == 0 {
		return nil, errkind.Wrap(errkind.Timeout, "read "+s.path, ErrTimeout)
	}
	return buf[:total], nil
}

// A raw-mode read that hits VTIME returns 0 bytes, reported as io.EOF by the
// os layer.
func isTimeoutEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

// Close closes the descriptor.
func (s *Serial) Close() error {
	if s.t == nil {
		return nil
	}
	err := s.t.Close()
	s.t = nil
	if err != nil {
		return errkind.Wrap(errkind.IO, "close "+s.path, err)
	}
	return nil
}
