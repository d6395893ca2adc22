package errkind

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestOf(t *testing.T) {
	base := New(Timeout, "read", "no data after %dms", 100)

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: Unknown},
		{name: "plain", err: errors.New("boom"), want: Unknown},
		{name: "direct", err: base, want: Timeout},
		{name: "fmt wrapped", err: fmt.Errorf("sahara: %w", base), want: Timeout},
		{name: "pkg/errors wrapped", err: pkgerrors.Wrap(base, "wait hello"), want: Timeout},
		{name: "outermost wins", err: Wrap(Protocol, "hello", base), want: Protocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Of(tt.err); got != tt.want {
				t.Errorf("Of() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(IO, "write", nil); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(Rejected, "configure", "device answered NAK")
	if !strings.Contains(err.Error(), "configure: device answered NAK") {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !Is(err, Rejected) {
		t.Error("Is(Rejected) = false")
	}
	if Is(nil, Unknown) {
		t.Error("Is(nil) should be false")
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{
		Timeout:    "timeout",
		Protocol:   "protocol",
		Rejected:   "rejected",
		Validation: "validation",
		IO:         "io",
		NotFound:   "not found",
		Kind(99):   "unknown",
	} {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
