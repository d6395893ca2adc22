package sahara

import (
	"fmt"
	"time"
)

// Protocol version advertised in HelloResponse.
const (
	Version           = 2
	VersionCompatible = 1
)

// Command identifies a Sahara packet.
type Command uint32

// Command IDs.
const (
	CmdHello         Command = 0x01
	CmdHelloResponse Command = 0x02
	CmdReadData      Command = 0x03
	CmdEndOfImageTx  Command = 0x04
	CmdDone          Command = 0x05
	CmdDoneResponse  Command = 0x06
	CmdReset         Command = 0x07
	CmdResetResponse Command = 0x08
	CmdReadData64    Command = 0x12
)

func (c Command) String() string {
	switch c {
	case CmdHello:
		return "hello"
	case CmdHelloResponse:
		return "hello-response"
	case CmdReadData:
		return "read-data"
	case CmdEndOfImageTx:
		return "end-of-image-tx"
	case CmdDone:
		return "done"
	case CmdDoneResponse:
		return "done-response"
	case CmdReset:
		return "reset"
	case CmdResetResponse:
		return "reset-response"
	case CmdReadData64:
		return "read-data-64"
	default:
		return fmt.Sprintf("command 0x%02x", uint32(c))
	}
}

// Status codes.
const (
	StatusSuccess uint32 = 0
	StatusFailed  uint32 = 1
)

// Modes.
const (
	ModeImageTxPending  uint32 = 0
	ModeImageTxComplete uint32 = 1
)

// Wire sizes in bytes, header included.
const (
	HeaderSize        = 0x08
	HelloSize         = 0x30
	HelloResponseSize = 0x30
	ReadDataSize      = 0x14
	ReadData64Size    = 0x20
	EndOfImageTxSize  = 0x10
	DoneSize          = 0x08
	DoneResponseSize  = 0x0C
	ResetSize         = 0x08
	ResetResponseSize = 0x08

	// minimum Hello layout without the reserved words
	helloMinSize = 0x18
)

// Defaults.
const (
	// DefaultBufferSize is the size of a single packet read.
	DefaultBufferSize = 4 * 1024

	// DefaultReadTimeout bounds every packet read.
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout bounds every packet and image-chunk write.
	DefaultWriteTimeout = 15 * time.Second

	// DefaultPingTimeout bounds the single-byte ping sent when the
	// device stays silent after being opened.
	DefaultPingTimeout = 100 * time.Millisecond
)
