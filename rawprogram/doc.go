// Package rawprogram models Firehose XML elements and validates rawprogram
// manifests against a firmware archive.
//
// # Manifest Format
//
// A manifest is an XML document whose root element's children are the
// actions to execute, in order:
//
//	<?xml version="1.0" ?>
//	<data>
//	  <erase start_sector="0" num_partition_sectors="64" />
//	  <program filename="modem.img" SECTOR_SIZE_IN_BYTES="4096"
//	           num_partition_sectors="2" start_sector="0" />
//	  <power value="reset" />
//	</data>
//
// A program element must name a file present in the archive, and the file
// must fill exactly num_partition_sectors sectors of SECTOR_SIZE_IN_BYTES
// bytes (the last one may be partial).
//
// # Usage
//
//	m, err := rawprogram.Validate(manifest, arc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d actions, %d bytes to program\n",
//	    len(m.Actions), m.TotalProgramBytes())
//
// # Error Handling
//
// Every failure carries an errkind.Kind: a file missing from the archive is
// errkind.NotFound, every other manifest problem is errkind.Validation.
// Validate performs no I/O, so these errors always precede device traffic.
package rawprogram
