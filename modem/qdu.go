package modem

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/moffa90/go-qdl/archive"
	"github.com/moffa90/go-qdl/errkind"
	"github.com/moffa90/go-qdl/logging"
	"github.com/moffa90/go-qdl/rawprogram"
)

// FlashFileName is the MBIM QDU manifest inside a firmware archive.
const FlashFileName = "flashfile.xml"

// QDUWriter streams a firmware image to the modem through MBIM QDU and
// returns the digest the modem reported for it.
type QDUWriter interface {
	Write(ctx context.Context, filename string, data []byte) (digest []byte, err error)
}

// FlashFilePart is the image named by flashfile.xml.
type FlashFilePart struct {
	Filename string
	MD5      string
}

// ParseFlashFile returns the first part of a flashfile.xml manifest.
func ParseFlashFile(data []byte) (*FlashFilePart, error) {
	nodes, _, err := rawprogram.ParseNodes(data)
	if err != nil {
		return nil, errkind.Wrap(errkind.Validation, FlashFileName, err)
	}
	for _, n := range nodes {
		if n.Name != "part" {
			continue
		}
		p := &FlashFilePart{}
		var ok bool
		if p.Filename, ok = n.Attr("filename"); !ok || p.Filename == "" {
			return nil, &rawprogram.MissingAttrError{Element: "part", Attr: "filename"}
		}
		if p.MD5, ok = n.Attr("MD5"); !ok {
			return nil, &rawprogram.MissingAttrError{Element: "part", Attr: "MD5"}
		}
		return p, nil
	}
	return nil, errkind.New(errkind.Validation, FlashFileName, "no parts/part element")
}

// checkFlashFile resolves the part of flashfile.xml in arc and verifies its
// checksum.
func checkFlashFile(arc archive.Archive) (*FlashFilePart, []byte, error) {
	manifest, ok := arc.Lookup(FlashFileName)
	if !ok {
		return nil, nil, &rawprogram.NotFoundError{Filename: FlashFileName}
	}
	part, err := ParseFlashFile(manifest)
	if err != nil {
		return nil, nil, err
	}
	data, ok := arc.Lookup(part.Filename)
	if !ok {
		return nil, nil, &rawprogram.NotFoundError{Filename: part.Filename}
	}
	sum := md5.Sum(data)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, strings.TrimSpace(part.MD5)) {
		return nil, nil, &ChecksumError{Filename: part.Filename, Want: part.MD5, Got: got}
	}
	return part, data, nil
}

func writeFlashFile(ctx context.Context, w QDUWriter, part *FlashFilePart, data []byte, log logging.Logger) ([]byte, error) {
	log.Info("writing firmware image", "file", part.Filename, "bytes", len(data))
	digest, err := w.Write(ctx, part.Filename, data)
	if err != nil {
		return nil, pkgerrors.WithMessagef(err, "failed to write file '%s'", part.Filename)
	}
	return digest, nil
}
