// Package firehose drives a Qualcomm Firehose programmer to execute a
// rawprogram manifest.
//
// # Framing
//
// Every command is a single XML element wrapped in a document:
//
//	<?xml version="1.0" encoding="UTF-8" ?>
//	<data>
//	<program SECTOR_SIZE_IN_BYTES="4096" filename="modem.img" ... />
//	</data>
//
// The device answers with documents holding any number of log elements and
// at most one response element:
//
//	<?xml version="1.0" encoding="UTF-8" ?>
//	<data><log value="Finished programming" /><response value="ACK" /></data>
//
// A datagram may carry several documents, NUL padding, or only part of a
// document.
//
// # Update Sequence
//
//  1. Initialize drains the programmer's start-up messages.
//  2. Configure proposes a maximum payload size (8192 bytes by default) and
//     retries once with the size the device suggests in its NAK.
//  3. Every action is sent verbatim. A program action switches the device
//     to raw mode and the file is streamed in blocks of whole sectors, the
//     last block zero-padded. The device confirms by leaving raw mode.
//  4. Reset sends <power value="reset" /> and drains the remaining output.
//
// # Usage
//
//	m, err := rawprogram.Validate(manifest, arc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	u := firehose.New(t,
//	    firehose.WithLogger(logging.Glog{}),
//	    firehose.WithProgressCallback(func(p firehose.Progress) {
//	        fmt.Printf("\r%-12s %5.1f%%", p.Phase, p.Percentage)
//	    }),
//	)
//	if err := u.Write(ctx, m); err != nil {
//	    log.Fatal(err)
//	}
//
// # Error Handling
//
// A NAK is reported as *RejectedError carrying the action and the last log
// message of the device. A program whose sector exceeds the negotiated
// payload size fails with *SectorSizeError before anything is streamed.
package firehose
