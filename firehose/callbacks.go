package firehose

import "time"

// Phases reported in Progress.
const (
	PhaseInitializing = "initializing"
	PhaseConfiguring  = "configuring"
	PhaseWriting      = "writing"
	PhaseResetting    = "resetting"
	PhaseComplete     = "complete"
)

// Progress contains information about the write progress.
// Passed to ProgressCallback during Write.
type Progress struct {
	// Phase is one of the Phase* constants
	Phase string

	// Percentage is the completion percentage (0.0 to 100.0).
	// It stays below 100 until the final reset has been attempted.
	Percentage float64

	// BytesSent is the number of program file bytes streamed so far
	BytesSent uint64

	// TotalBytes is the sum of all program file sizes in the manifest
	TotalBytes uint64

	// File is the program file being streamed, if any
	File string

	// ElapsedTime is the time elapsed since Write started
	ElapsedTime time.Duration
}

// ProgressCallback is called synchronously during Write.
// Implementations should return quickly to avoid stalling the device.
//
// Example:
//
//	u := firehose.New(t,
//	    firehose.WithProgressCallback(func(p firehose.Progress) {
//	        fmt.Printf("[%s] %.1f%% %s\n", p.Phase, p.Percentage, p.File)
//	    }),
//	)
type ProgressCallback func(Progress)
