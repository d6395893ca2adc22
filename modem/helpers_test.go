package modem

import (
	"context"
	"strings"
	"sync"

	"github.com/moffa90/go-qdl/archive"
	"github.com/moffa90/go-qdl/logging"
	"github.com/moffa90/go-qdl/transport"
	"github.com/moffa90/go-qdl/transport/transporttest"
)

// lineLogger keeps every log line, rendered with its key-value pairs.
type lineLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineLogger) add(level, msg string, kv []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+msg+logging.FormatKV(kv...))
}

func (l *lineLogger) Debug(msg string, kv ...interface{}) { l.add("D", msg, kv) }
func (l *lineLogger) Info(msg string, kv ...interface{})  { l.add("I", msg, kv) }
func (l *lineLogger) Error(msg string, kv ...interface{}) { l.add("E", msg, kv) }

func (l *lineLogger) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// firmware is a small firehose archive: a programmer and two partitions.
func firmware() archive.Map {
	boot := make([]byte, 5000)
	for i := range boot {
		boot[i] = byte(i)
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" ?><data>`)
	b.WriteString(`<program filename="boot.img" SECTOR_SIZE_IN_BYTES="4096" num_partition_sectors="2" start_sector="0" />`)
	b.WriteString(`<erase start_sector="64" num_partition_sectors="8" />`)
	b.WriteString(`<program filename="sys.img" SECTOR_SIZE_IN_BYTES="512" num_partition_sectors="1" start_sector="128" />`)
	b.WriteString(`</data>`)

	return archive.Map{
		"firehose-rawprogram.xml": []byte(b.String()),
		"firehose-prog.mbn":       programmer(),
		"boot.img":                boot,
		"sys.img":                 []byte("system"),
	}
}

func programmer() []byte {
	p := make([]byte, 10000)
	for i := range p {
		p[i] = byte(i * 7)
	}
	return p
}

// ports hands out scripted transports and remembers them.
type ports struct {
	mu     sync.Mutex
	open   func() *transporttest.Transport
	err    error
	opened []*transporttest.Transport
}

func (p *ports) Open(context.Context) (transport.Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	t := p.open()
	p.opened = append(p.opened, t)
	return t, nil
}

func (p *ports) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.opened)
}

func (p *ports) allClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.opened {
		if !t.Closed() {
			return false
		}
	}
	return true
}

// countingSwitcher fails until it has been called succeedAfter times.
type countingSwitcher struct {
	calls        int
	succeedAfter int
	err          error
}

func (s *countingSwitcher) SwitchToEDL(context.Context) error {
	s.calls++
	if s.calls >= s.succeedAfter {
		return nil
	}
	return s.err
}
