package modem

import (
	"fmt"

	"github.com/moffa90/go-qdl/errkind"
)

// ErrNotSwitched means the device still answers in its normal execution
// environment after an EDL switch request. The switch is retried.
var ErrNotSwitched = errkind.New(errkind.Timeout, "switch to edl", "device has not switched to EDL yet")

// ChecksumError reports a firmware file whose MD5 does not match the one
// declared in flashfile.xml.
type ChecksumError struct {
	Filename string
	Want     string
	Got      string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("[%s] MD5 not matched: manifest %s, file %s", e.Filename, e.Want, e.Got)
}

// Kind implements errkind.Kinded.
func (e *ChecksumError) Kind() errkind.Kind { return errkind.Validation }

// ATError reports an AT command the modem did not acknowledge with OK.
type ATError struct {
	Command  string
	Response string
}

func (e *ATError) Error() string {
	if e.Response == "" {
		return fmt.Sprintf("failed to read valid response for %s", e.Command)
	}
	return fmt.Sprintf("failed to read valid response for %s: %s", e.Command, e.Response)
}

// Kind implements errkind.Kinded.
func (e *ATError) Kind() errkind.Kind { return errkind.Rejected }
