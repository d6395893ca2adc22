package rawprogram

import (
	"golang.org/x/exp/constraints"

	pkgerrors "github.com/pkg/errors"

	"github.com/moffa90/go-qdl/errkind"
)

// Attribute names of a program element.
const (
	AttrFilename   = "filename"
	AttrSectorSize = "SECTOR_SIZE_IN_BYTES"
	AttrNumSectors = "num_partition_sectors"
)

// ManifestNames lists the manifest file names in lookup order.
var ManifestNames = []string{"firehose-rawprogram.xml", "rawprogram.xml"}

// Archive resolves file names to their contents.
type Archive interface {
	Lookup(name string) ([]byte, bool)
}

// Manifest is the ordered list of actions of a rawprogram document.
type Manifest struct {
	Actions []*Action
}

// Action is one element of the manifest.
// Program is set only for program elements.
type Action struct {
	Node    *Node
	Program *Program
}

// Program is a program element resolved against the archive.
type Program struct {
	Filename   string
	Data       []byte
	SectorSize uint64
	NumSectors uint64
}

// Programs returns the resolved program actions in order.
func (m *Manifest) Programs() []*Program {
	var ps []*Program
	for _, a := range m.Actions {
		if a.Program != nil {
			ps = append(ps, a.Program)
		}
	}
	return ps
}

// TotalProgramBytes is the sum of all program file sizes.
func (m *Manifest) TotalProgramBytes() uint64 {
	var total uint64
	for _, p := range m.Programs() {
		total += uint64(len(p.Data))
	}
	return total
}

// FindManifest returns the first manifest present in a.
func FindManifest(a Archive) (name string, data []byte, err error) {
	for _, name := range ManifestNames {
		if data, ok := a.Lookup(name); ok {
			return name, data, nil
		}
	}
	return "", nil, &NotFoundError{Filename: ManifestNames[0]}
}

// Parse decodes a manifest without resolving program files.
func Parse(manifest []byte) (*Manifest, error) {
	nodes, _, err := ParseNodes(manifest)
	if err == ErrIncomplete {
		return nil, errkind.New(errkind.Validation, "parse manifest", "truncated document")
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.Validation, "parse manifest", err)
	}
	if len(nodes) == 0 {
		return nil, errkind.New(errkind.Validation, "parse manifest", "no actions")
	}

	m := &Manifest{Actions: make([]*Action, 0, len(nodes))}
	for _, n := range nodes {
		m.Actions = append(m.Actions, &Action{Node: n})
	}
	return m, nil
}

// Validate parses manifest and resolves every program element against a.
// It checks that each file exactly fills its declared sector count.
//
// Example:
//
//	_, data, err := rawprogram.FindManifest(arc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	m, err := rawprogram.Validate(data, arc)
func Validate(manifest []byte, a Archive) (*Manifest, error) {
	m, err := Parse(manifest)
	if err != nil {
		return nil, err
	}

	for i, act := range m.Actions {
		if act.Node.Kind != KindProgram {
			continue
		}
		p, err := resolve(act.Node, a)
		if err != nil {
			return nil, pkgerrors.WithMessagef(err, "action %d", i)
		}
		act.Program = p
	}
	return m, nil
}

func resolve(n *Node, a Archive) (*Program, error) {
	filename, ok := n.Attr(AttrFilename)
	if !ok || filename == "" {
		return nil, &MissingAttrError{Element: n.Name, Attr: AttrFilename}
	}

	data, ok := a.Lookup(filename)
	if !ok {
		return nil, &NotFoundError{Filename: filename}
	}

	declared, err := n.Uint(AttrNumSectors)
	if err != nil {
		return nil, pkgerrors.WithMessage(err, filename)
	}
	sectorSize, err := n.Uint(AttrSectorSize)
	if err != nil {
		return nil, pkgerrors.WithMessage(err, filename)
	}
	if sectorSize == 0 {
		return nil, &InvalidAttrError{Element: n.Name, Attr: AttrSectorSize, Value: "0"}
	}

	size := uint64(len(data))
	if computed := CeilDiv(size, sectorSize); computed != declared {
		return nil, &SectorCountError{
			Filename:   filename,
			Size:       size,
			SectorSize: sectorSize,
			Declared:   declared,
			Computed:   computed,
		}
	}

	return &Program{
		Filename:   filename,
		Data:       data,
		SectorSize: sectorSize,
		NumSectors: declared,
	}, nil
}

// CeilDiv returns a/b rounded up.
func CeilDiv[T constraints.Unsigned](a, b T) T {
	if a == 0 {
		return 0
	}
	return (a-1)/b + 1
}
