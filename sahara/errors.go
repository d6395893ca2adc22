package sahara

import (
	"fmt"

	"github.com/moffa90/go-qdl/errkind"
)

// LengthMismatchError indicates that a packet's header declares a length
// different from the number of bytes received.
type LengthMismatchError struct {
	Command  Command
	Declared uint32
	Got      int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("%s: header declares %d bytes, received %d", e.Command, e.Declared, e.Got)
}

// Kind implements errkind.Kinded.
func (e *LengthMismatchError) Kind() errkind.Kind { return errkind.Protocol }

// UnexpectedPacketError indicates a packet that is not valid in the current
// state.
type UnexpectedPacketError struct {
	State string
	Got   Command
}

func (e *UnexpectedPacketError) Error() string {
	return fmt.Sprintf("unexpected %s while waiting for %s", e.Got, e.State)
}

// Kind implements errkind.Kinded.
func (e *UnexpectedPacketError) Kind() errkind.Kind { return errkind.Protocol }
