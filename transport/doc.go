// Package transport carries Sahara and Firehose traffic.
//
// # Implementations
//
// USB opens the Qualcomm emergency-download interface (05c6:9008, vendor
// class ff/ff/ff) through github.com/google/gousb and exposes its bulk
// endpoint pair. Writes are split into max-packet-size transfers and end with
// a zero-length packet when needed:
//
//	usb, err := transport.OpenUSB(transport.USBConfig{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer usb.Close()
//
// Serial opens a character device such as /dev/wwan0firehose0 or a QCDM tty
// through github.com/pkg/term:
//
//	port, err := transport.OpenSerial("/dev/ttyUSB0")
//
// # Timeouts
//
// Every Read and Write carries its own timeout. Expiry is reported with
// errkind.Timeout; callers treat it as fatal for the current session.
//
// # Testing
//
// Package transporttest provides a scripted in-memory Transport.
package transport
