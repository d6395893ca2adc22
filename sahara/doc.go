// Package sahara implements the host side of the Qualcomm Sahara protocol
// used by the boot ROM in emergency-download mode to fetch a programmer.
//
// # Packet Format
//
// Every packet starts with a little-endian header:
//
//	[COMMAND_ID(4)][LENGTH(4)][BODY...]
//
// LENGTH covers the whole packet, header included. Packets whose received
// size differs from LENGTH are rejected.
//
// # Session
//
// The device opens with Hello. The host answers HelloResponse and then
// serves raw image ranges for each ReadData / ReadData64 request. After
// EndOfImageTx with a success status the host sends Done, and the device
// closes the session with DoneResponse:
//
//	device                    host
//	Hello           ──▶
//	                ◀──       HelloResponse
//	ReadData(o, n)  ──▶
//	                ◀──       image[o:o+n]
//	EndOfImageTx    ──▶
//	                ◀──       Done
//	DoneResponse    ──▶
//
// A device that stays silent after being opened is pinged with a single
// zero byte once. Requests outside the image are logged and skipped; see
// Loader.SoftErrors.
//
// # Usage
//
//	l := sahara.New(t, sahara.WithLogger(logger))
//	if err := l.Run(ctx, programmer); err != nil {
//	    log.Fatal(err)
//	}
package sahara
