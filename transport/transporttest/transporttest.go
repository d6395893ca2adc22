// Package transporttest provides a scripted in-memory transport.Transport
// for protocol tests.
//
// Reads are served from a queue of steps; when the queue is empty Read
// reports a timeout, which is how a silent device looks on real hardware.
// Writes are recorded and may trigger a callback that queues the device's
// answer:
//
//	tr := transporttest.New()
//	tr.OnWrite = func(p []byte) {
//	    if bytes.Contains(p, []byte("<configure")) {
//	        tr.Push([]byte(`<?xml version="1.0" ?><data><response value="ACK" /></data>`))
//	    }
//	}
package transporttest

import (
	"context"
	"sync"
	"time"

	"github.com/moffa90/go-qdl/errkind"
	"github.com/moffa90/go-qdl/transport"
)

type step struct {
	data []byte
	err  error
}

// Write is one recorded Write call.
type Write struct {
	Data    []byte
	Timeout time.Duration
	Flags   transport.Flags
}

// Read is one recorded Read call.
type Read struct {
	Max     int
	Timeout time.Duration
	Flags   transport.Flags
}

// Transport is a scripted transport.Transport. It is safe for concurrent use.
type Transport struct {
	mu     sync.Mutex
	queue  []step
	writes []Write
	reads  []Read
	closed bool

	// OnWrite, if set, is called after every successful write with a copy
	// of the data. It may call Push.
	OnWrite func(p []byte)

	// WriteErr, if set, is consulted before recording a write; a non-nil
	// result fails the write.
	WriteErr func(p []byte) error
}

// New returns an empty Transport.
func New() *Transport {
	return &Transport{}
}

// Push queues data to be returned by subsequent reads, one read per buffer.
func (t *Transport) Push(data ...[]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range data {
		t.queue = append(t.queue, step{data: append([]byte(nil), d...)})
	}
}

// PushErr queues a read failure.
func (t *Transport) PushErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, step{err: err})
}

// Pending returns the number of queued read steps.
func (t *Transport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Writes returns the recorded writes.
func (t *Transport) Writes() []Write {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Write(nil), t.writes...)
}

// Written returns only the data of the recorded writes.
func (t *Transport) Written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	for i, w := range t.writes {
		out[i] = w.Data
	}
	return out
}

// Reads returns the recorded read calls.
func (t *Transport) Reads() []Read {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Read(nil), t.reads...)
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Write implements transport.Transport.
func (t *Transport) Write(ctx context.Context, p []byte, timeout time.Duration, flags transport.Flags) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		t.mu.Unlock()
		return errkind.Wrap(errkind.Timeout, "write", err)
	}
	if t.WriteErr != nil {
		if err := t.WriteErr(p); err != nil {
			t.mu.Unlock()
			return err
		}
	}
	data := append([]byte(nil), p...)
	t.writes = append(t.writes, Write{Data: data, Timeout: timeout, Flags: flags})
	hook := t.OnWrite
	t.mu.Unlock()

	if hook != nil {
		hook(append([]byte(nil), data...))
	}
	return nil
}

// Read implements transport.Transport. A queued buffer longer than max is
// split across reads.
func (t *Transport) Read(ctx context.Context, max int, timeout time.Duration, flags transport.Flags) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reads = append(t.reads, Read{Max: max, Timeout: timeout, Flags: flags})

	if t.closed {
		return nil, transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, errkind.Wrap(errkind.Timeout, "read", err)
	}
	if len(t.queue) == 0 {
		return nil, errkind.Wrap(errkind.Timeout, "read", transport.ErrTimeout)
	}

	s := t.queue[0]
	if s.err != nil {
		t.queue = t.queue[1:]
		return nil, s.err
	}
	if max > 0 && len(s.data) > max {
		out := s.data[:max]
		t.queue[0].data = s.data[max:]
		return out, nil
	}
	t.queue = t.queue[1:]
	return s.data, nil
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

var _ transport.Transport = (*Transport)(nil)
