package modem

import (
	"strings"

	"github.com/moffa90/go-qdl/errkind"
)

// Method is a set of firmware update methods a modem supports.
type Method uint8

const (
	// MethodQMIPDC writes carrier configurations through QMI PDC.
	MethodQMIPDC Method = 1 << iota
	// MethodMBIMQDU writes a firmware image through MBIM QDU.
	MethodMBIMQDU
	// MethodFirehose flashes partitions in emergency download mode.
	MethodFirehose
)

// dispatchOrder is the priority used when a modem supports several methods.
var dispatchOrder = []Method{MethodQMIPDC, MethodMBIMQDU, MethodFirehose}

var methodNames = map[Method]string{
	MethodQMIPDC:   "qmi-pdc",
	MethodMBIMQDU:  "mbim-qdu",
	MethodFirehose: "firehose",
}

// Has reports whether m contains every method of other.
func (m Method) Has(other Method) bool { return other != 0 && m&other == other }

// Preferred returns the method Flash uses for m, or zero if m is empty.
func (m Method) Preferred() Method {
	for _, c := range dispatchOrder {
		if m.Has(c) {
			return c
		}
	}
	return 0
}

func (m Method) String() string {
	if m == 0 {
		return "none"
	}
	var names []string
	for _, c := range dispatchOrder {
		if m.Has(c) {
			names = append(names, methodNames[c])
		}
	}
	if rest := m &^ (MethodQMIPDC | MethodMBIMQDU | MethodFirehose); rest != 0 {
		names = append(names, "unknown")
	}
	return strings.Join(names, ",")
}

// ParseMethod parses a comma separated list of method names such as
// "qmi-pdc,firehose".
func ParseMethod(s string) (Method, error) {
	var m Method
	for _, f := range strings.Split(s, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		found := false
		for c, name := range methodNames {
			if name == f {
				m |= c
				found = true
				break
			}
		}
		if !found {
			return 0, errkind.New(errkind.Validation, "parse method", "unknown update method %q", f)
		}
	}
	return m, nil
}
