package firehose

import (
	"fmt"

	"github.com/moffa90/go-qdl/errkind"
)

// RejectedError indicates that the device answered NAK.
type RejectedError struct {
	// Action is the element name of the rejected command
	Action string

	// Filename is set for program actions
	Filename string

	// Reason is the last log message the device sent, if any
	Reason string
}

func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("%s rejected by device", e.Action)
	if e.Filename != "" {
		msg = fmt.Sprintf("%s '%s' rejected by device", e.Action, e.Filename)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Kind implements errkind.Kinded.
func (e *RejectedError) Kind() errkind.Kind { return errkind.Rejected }

// RawModeError indicates that the device's rawmode flag did not match the
// transfer state of a program action.
type RawModeError struct {
	Filename string

	// Want is the expected rawmode value
	Want bool
}

func (e *RawModeError) Error() string {
	if e.Want {
		return fmt.Sprintf("download of '%s': rawmode not enabled", e.Filename)
	}
	return fmt.Sprintf("download confirmation for '%s': rawmode still enabled", e.Filename)
}

// Kind implements errkind.Kinded.
func (e *RawModeError) Kind() errkind.Kind { return errkind.Protocol }

// SectorSizeError indicates a program whose sector does not fit the
// negotiated payload size.
type SectorSizeError struct {
	Filename       string
	SectorSize     uint64
	MaxPayloadSize uint64
}

func (e *SectorSizeError) Error() string {
	return fmt.Sprintf("program '%s': sector size %d bytes exceeds maximum payload size %d bytes",
		e.Filename, e.SectorSize, e.MaxPayloadSize)
}

// Kind implements errkind.Kinded.
func (e *SectorSizeError) Kind() errkind.Kind { return errkind.Validation }
