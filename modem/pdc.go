package modem

import (
	"context"
	"sort"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/moffa90/go-qdl/archive"
	"github.com/moffa90/go-qdl/errkind"
	"github.com/moffa90/go-qdl/logging"
)

// PDCWriter stores a carrier configuration on the modem through QMI PDC
// and returns the configuration id the modem assigned to it.
type PDCWriter interface {
	Write(ctx context.Context, filename string, data []byte) (digest []byte, err error)
}

// CarrierConfigs returns the mcfg.*.mbn files of names, sorted.
func CarrierConfigs(names []string) []string {
	var out []string
	for _, n := range names {
		if strings.HasPrefix(n, "mcfg.") && strings.HasSuffix(n, ".mbn") {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// IsActiveConfig reports whether the carrier configuration in filename
// matches the running firmware version. Configuration files are named
// mcfg.<carrier>.<version>.mbn and firmware versions embed the carrier
// code, e.g. "xxxx.VF.xxxx".
func IsActiveConfig(version, filename string) bool {
	split := strings.Split(filename, ".")
	if len(split) < 4 || split[0] != "mcfg" {
		return false
	}
	return strings.Contains(version, "."+split[1]+".")
}

// writeCarrierConfigs writes every carrier configuration of arc and
// returns the id of the one matching version. When several match the last
// one wins.
func writeCarrierConfigs(ctx context.Context, w PDCWriter, arc archive.Archive, version string, log logging.Logger) ([]byte, error) {
	files := CarrierConfigs(arc.Names())
	if len(files) == 0 {
		return nil, errkind.New(errkind.NotFound, "qmi-pdc", "no mcfg.*.mbn files in archive")
	}

	var active []byte
	for _, name := range files {
		data, _ := arc.Lookup(name)
		log.Info("writing carrier configuration", "file", name, "bytes", len(data))
		digest, err := w.Write(ctx, name, data)
		if err != nil {
			return active, pkgerrors.WithMessagef(err, "failed to write file '%s'", name)
		}
		if IsActiveConfig(version, name) {
			log.Debug("carrier configuration matches firmware version", "file", name, "version", version)
			active = digest
		}
	}
	return active, nil
}
