package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moffa90/go-qdl/errkind"
)

func TestWaitForPortExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wwan0firehose0")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	if err := WaitForPort(context.Background(), path, time.Second); err != nil {
		t.Fatalf("WaitForPort() error = %v", err)
	}
}

func TestWaitForPortCreated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wwan0firehose0")

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(path, nil, 0o600)
	}()

	if err := WaitForPort(context.Background(), path, 5*time.Second); err != nil {
		t.Fatalf("WaitForPort() error = %v", err)
	}
}

func TestWaitForPortTimeout(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "never")

	err := WaitForPort(context.Background(), path, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout")
	}
	if !errkind.Is(err, errkind.Timeout) {
		t.Errorf("kind = %v, want timeout", errkind.Of(err))
	}
}

func TestFlags(t *testing.T) {
	f := FlushInput | SingleShot
	if !f.Has(FlushInput) || !f.Has(SingleShot) {
		t.Error("combined flags lost a bit")
	}
	if FlushInput.Has(SingleShot) {
		t.Error("FlushInput should not contain SingleShot")
	}
}
