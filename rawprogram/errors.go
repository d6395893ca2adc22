package rawprogram

import (
	"fmt"

	"github.com/moffa90/go-qdl/errkind"
)

// MissingAttrError indicates that a required attribute is absent.
type MissingAttrError struct {
	Element string
	Attr    string
}

func (e *MissingAttrError) Error() string {
	return fmt.Sprintf("%s: missing attribute %s", e.Element, e.Attr)
}

// Kind implements errkind.Kinded.
func (e *MissingAttrError) Kind() errkind.Kind { return errkind.Validation }

// InvalidAttrError indicates that an attribute value could not be parsed.
type InvalidAttrError struct {
	Element string
	Attr    string
	Value   string
}

func (e *InvalidAttrError) Error() string {
	return fmt.Sprintf("%s: invalid %s %q", e.Element, e.Attr, e.Value)
}

// Kind implements errkind.Kinded.
func (e *InvalidAttrError) Kind() errkind.Kind { return errkind.Validation }

// NotFoundError indicates that a referenced file is not in the archive.
type NotFoundError struct {
	Filename string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found in archive", e.Filename)
}

// Kind implements errkind.Kinded.
func (e *NotFoundError) Kind() errkind.Kind { return errkind.NotFound }

// SectorCountError indicates that a file does not fill exactly the declared
// number of sectors.
type SectorCountError struct {
	Filename   string
	Size       uint64
	SectorSize uint64
	Declared   uint64
	Computed   uint64
}

func (e *SectorCountError) Error() string {
	return fmt.Sprintf("%s: %d bytes need %d sectors of %d bytes, manifest declares %d",
		e.Filename, e.Size, e.Computed, e.SectorSize, e.Declared)
}

// Kind implements errkind.Kinded.
func (e *SectorCountError) Kind() errkind.Kind { return errkind.Validation }
