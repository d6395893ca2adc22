package firehose

import "time"

// Configure defaults.
const (
	DefaultMemoryName         = "nand"
	DefaultMaxPayloadSize     = 8192
	DefaultMaxDigestTableSize = 2048
	MaxConfigureAttempts      = 2
)

// Timing and framing defaults.
const (
	DefaultReadTimeout     = 15000 * time.Millisecond
	DefaultWriteTimeout    = 1500 * time.Millisecond
	DefaultInitialTimeout  = 3000 * time.Millisecond
	DefaultInitTimeout     = 250 * time.Millisecond
	DefaultMaxRecvMessages = 100
	DefaultReadSize        = 16 * 1024

	// ResetDrainMessages is how many messages are read after the reset
	// ACK; the device does not reset while output is pending.
	ResetDrainMessages = 19
)

const (
	attrMaxPayloadSize = "MaxPayloadSizeToTargetInBytes"
	attrValue          = "value"
	attrRawMode        = "rawmode"
	valueACK           = "ACK"
)
