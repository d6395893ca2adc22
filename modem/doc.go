// Package modem orchestrates a firmware update of a Qualcomm based modem.
//
// A Flasher picks one update method from those the modem supports, in the
// order QMI PDC, MBIM QDU, Firehose. The first two hand the archive to
// external backends (PDCWriter, QDUWriter). Firehose is driven end to end:
//
//  1. Find and validate the rawprogram manifest against the archive
//  2. Switch the modem to emergency download mode (see Switcher)
//  3. Upload the programmer with the Sahara loader
//  4. Run the manifest with the Firehose updater
//
// No port is opened before step 1 succeeds, so a broken archive never
// leaves the modem in EDL.
//
// Basic usage:
//
//	arc, _ := archive.Open("firmware.zip")
//	f := modem.New(
//	    modem.WithMethods(modem.MethodFirehose),
//	    modem.WithSwitcher(&modem.QCDMSwitcher{Open: modem.SerialPort("/dev/wwan0qcdm0")}),
//	    modem.WithFirehosePort("/dev/wwan0firehose0", modem.SerialPort("/dev/wwan0firehose0")),
//	)
//	res, err := f.Flash(ctx, arc)
package modem
