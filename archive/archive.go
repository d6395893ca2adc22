// Package archive gives flat, name-based access to the files of a firmware
// package.
//
// Firmware packages are flat: directory components inside a zip are ignored
// and files are looked up by base name only.
package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	pkgerrors "github.com/pkg/errors"

	"github.com/moffa90/go-qdl/errkind"
)

// Archive is a read-only set of named files.
type Archive interface {
	// Lookup returns the contents of the file with the given base name.
	Lookup(name string) ([]byte, bool)

	// Names returns all file names in sorted order.
	Names() []string
}

// Map is an in-memory Archive.
type Map map[string][]byte

func (m Map) Lookup(name string) ([]byte, bool) {
	b, ok := m[name]
	return b, ok
}

func (m Map) Names() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Open loads a firmware package from path, which may be a zip file or a
// directory. The whole package is decompressed into memory.
func Open(p string) (Map, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return nil, errkind.Wrap(errkind.NotFound, "open archive", err)
	}
	if fi.IsDir() {
		return ReadDir(p)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "open archive", err)
	}
	return ReadZip(bytes.NewReader(data), int64(len(data)))
}

// ReadZip decompresses every regular file of a zip archive.
func ReadZip(r io.ReaderAt, size int64) (Map, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, errkind.Wrap(errkind.Validation, "read zip", err)
	}

	m := make(Map, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Base(f.Name)
		if _, dup := m[name]; dup {
			return nil, errkind.New(errkind.Validation, "read zip", "duplicate file name %q", name)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errkind.Wrap(errkind.Validation, "read zip", pkgerrors.Wrapf(err, "open %s", f.Name))
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errkind.Wrap(errkind.Validation, "read zip", pkgerrors.Wrapf(err, "decompress %s", f.Name))
		}
		m[name] = data
	}
	return m, nil
}

// ReadDir loads the regular files directly inside dir.
func ReadDir(dir string) (Map, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errkind.Wrap(errkind.IO, "read dir", err)
	}

	m := make(Map, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errkind.Wrap(errkind.IO, "read dir", err)
		}
		m[e.Name()] = data
	}
	return m, nil
}
