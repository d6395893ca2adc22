package sahara

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/moffa90/go-qdl/errkind"
	"github.com/moffa90/go-qdl/transport"
	"github.com/moffa90/go-qdl/transport/transporttest"
)

type recordLogger struct {
	errors []string
}

func (r *recordLogger) Debug(string, ...interface{})       {}
func (r *recordLogger) Info(string, ...interface{})        {}
func (r *recordLogger) Error(msg string, _ ...interface{}) { r.errors = append(r.errors, msg) }

func image(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return b
}

func packets(t *testing.T, pkts ...Packet) [][]byte {
	t.Helper()
	out := make([][]byte, len(pkts))
	for i, p := range pkts {
		out[i] = mustMarshal(t, p)
	}
	return out
}

func helloResponse(t *testing.T) []byte {
	return mustMarshal(t, HelloResponse{Version: Version, VersionCompatible: VersionCompatible})
}

func TestRunUploadsImage(t *testing.T) {
	img := image(100)
	tr := transporttest.New()
	tr.Push(packets(t,
		Hello{Version: 2, VersionCompatible: 1, MaxPacketLength: 4096},
		ReadData{ImageID: 13, Offset: 0, Length: 64},
		ReadData64{ImageID: 13, Offset: 64, Length: 36},
		EndOfImageTx{ImageID: 13, Status: StatusSuccess},
		DoneResponse{},
	)...)

	l := New(tr)
	if err := l.Run(context.Background(), img); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := [][]byte{
		helloResponse(t),
		img[:64],
		img[64:],
		mustMarshal(t, Done{}),
	}
	got := tr.Written()
	if len(got) != len(want) {
		t.Fatalf("got %d writes, want %d", len(got), len(want))
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("write %d = % x, want % x", i, got[i], want[i])
		}
	}
	if l.SoftErrors() != 0 {
		t.Errorf("SoftErrors() = %d, want 0", l.SoftErrors())
	}

	for _, r := range tr.Reads() {
		if r.Max != DefaultBufferSize || r.Timeout != DefaultReadTimeout || !r.Flags.Has(transport.SingleShot) {
			t.Errorf("read = %+v", r)
		}
	}
}

func TestRunOutOfRangeRequest(t *testing.T) {
	tests := []struct {
		name string
		req  Packet
	}{
		{"past end", ReadData{Offset: 90, Length: 20}},
		{"offset beyond image", ReadData{Offset: 200, Length: 1}},
		{"64-bit overflow", ReadData64{Offset: 8, Length: ^uint64(0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := image(100)
			tr := transporttest.New()
			tr.Push(packets(t,
				Hello{},
				tt.req,
				ReadData{Offset: 0, Length: 100},
				EndOfImageTx{Status: StatusSuccess},
				DoneResponse{},
			)...)
			log := &recordLogger{}

			l := New(tr, WithLogger(log))
			if err := l.Run(context.Background(), img); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			got := tr.Written()
			if len(got) != 3 {
				t.Fatalf("got %d writes, want 3", len(got))
			}
			if !bytes.Equal(got[1], img) {
				t.Error("only the valid request should be served")
			}
			if l.SoftErrors() != 1 {
				t.Errorf("SoftErrors() = %d, want 1", l.SoftErrors())
			}
			if len(log.errors) != 1 {
				t.Errorf("logged %d errors, want 1", len(log.errors))
			}
		})
	}
}

func TestRunRepeatedHello(t *testing.T) {
	tr := transporttest.New()
	tr.Push(packets(t, Hello{}, Hello{}, EndOfImageTx{}, DoneResponse{})...)

	if err := New(tr).Run(context.Background(), image(4)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := tr.Written()
	if len(got) != 3 || !bytes.Equal(got[0], got[1]) || !bytes.Equal(got[1], helloResponse(t)) {
		t.Errorf("writes = %x", got)
	}
}

func TestRunUnknownPacketIgnored(t *testing.T) {
	tr := transporttest.New()
	tr.Push(packets(t, Hello{})...)
	tr.Push([]byte{0x0A, 0, 0, 0, 0x08, 0, 0, 0})
	tr.Push(packets(t, DoneResponse{})...)

	if err := New(tr).Run(context.Background(), nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRunFailedTransferThenSilence(t *testing.T) {
	tr := transporttest.New()
	tr.Push(packets(t,
		Hello{},
		EndOfImageTx{Status: StatusFailed},
	)...)

	err := New(tr).Run(context.Background(), image(16))
	if err == nil {
		t.Fatal("Run() succeeded, want error")
	}
	if k := errkind.Of(err); k != errkind.Timeout && k != errkind.Protocol {
		t.Errorf("kind = %v, want timeout or protocol", k)
	}

	got := tr.Written()
	if len(got) != 2 {
		t.Fatalf("got %d writes, want hello response and reset", len(got))
	}
	if !bytes.Equal(got[1], mustMarshal(t, Reset{})) {
		t.Errorf("last write = % x, want reset", got[1])
	}
}

func TestRunLengthMismatchResets(t *testing.T) {
	bad := mustMarshal(t, ReadData{Length: 4})
	bad = append(bad, 0xFF)

	tr := transporttest.New()
	tr.Push(packets(t, Hello{})...)
	tr.Push(bad)
	tr.Push(packets(t, ResetResponse{})...)

	err := New(tr).Run(context.Background(), image(16))
	var lme *LengthMismatchError
	if !errors.As(err, &lme) {
		t.Fatalf("error = %v, want *LengthMismatchError", err)
	}
	if tr.Pending() != 0 {
		t.Error("reset response should have been consumed")
	}
}

func TestWaitHelloPing(t *testing.T) {
	tests := []struct {
		name    string
		first   func(tr *transporttest.Transport)
		second  func(tr *transporttest.Transport)
		wantErr bool
	}{
		{
			name:  "silent then hello",
			first: func(tr *transporttest.Transport) { tr.PushErr(transport.ErrTimeout) },
			second: func(tr *transporttest.Transport) {
				tr.Push(packets(t, Hello{}, DoneResponse{})...)
			},
		},
		{
			name:  "garbage then hello",
			first: func(tr *transporttest.Transport) { tr.Push([]byte{1, 2, 3}) },
			second: func(tr *transporttest.Transport) {
				tr.Push(packets(t, Hello{}, DoneResponse{})...)
			},
		},
		{
			name:  "wrong packet twice",
			first: func(tr *transporttest.Transport) { tr.Push(packets(t, DoneResponse{})...) },
			second: func(tr *transporttest.Transport) {
				tr.Push(packets(t, DoneResponse{})...)
			},
			wantErr: true,
		},
		{
			name:    "silent twice",
			first:   func(tr *transporttest.Transport) {},
			second:  func(tr *transporttest.Transport) {},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := transporttest.New()
			tt.first(tr)
			tt.second(tr)

			err := New(tr).Run(context.Background(), nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}

			writes := tr.Writes()
			if len(writes) == 0 || !bytes.Equal(writes[0].Data, []byte{0x00}) {
				t.Fatalf("first write should be the ping, got %+v", writes)
			}
			if writes[0].Timeout != DefaultPingTimeout {
				t.Errorf("ping timeout = %v, want %v", writes[0].Timeout, DefaultPingTimeout)
			}

			if tt.wantErr {
				if !errkind.Is(err, errkind.Protocol) {
					t.Errorf("kind = %v, want protocol", errkind.Of(err))
				}
				last := writes[len(writes)-1].Data
				if !bytes.Equal(last, mustMarshal(t, Reset{})) {
					t.Errorf("last write = % x, want reset", last)
				}
			}
		})
	}
}
