package modem

import (
	"bytes"
	"context"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/moffa90/go-qdl/logging"
	"github.com/moffa90/go-qdl/transport"
)

// AT command defaults.
const (
	DefaultATTimeout    = 1500 * time.Millisecond
	DefaultATRetries    = 3
	DefaultATRetryDelay = 3 * time.Second
	atReadSize          = 256
)

var atOK = []byte("\r\nOK\r\n")

// ATSwitcher reboots the modem into its download mode with a vendor AT
// command, after checking the port answers a plain "AT".
type ATSwitcher struct {
	// Open opens the AT port.
	Open OpenFunc

	// Command is the vendor download command, e.g. AT+QFASTBOOT.
	Command string

	// NoResponse is set for modems that reboot before acknowledging
	// Command.
	NoResponse bool

	// Timeout bounds every write and read; zero means 1.5s.
	Timeout time.Duration

	// Retries and RetryDelay control how often a command is attempted;
	// zero means 3 attempts, 3s apart.
	Retries    int
	RetryDelay time.Duration

	Logger logging.Logger
}

// SwitchToEDL implements Switcher.
func (a *ATSwitcher) SwitchToEDL(ctx context.Context) error {
	t, err := a.Open(ctx)
	if err != nil {
		return err
	}
	defer t.Close()

	if _, err := a.Run(ctx, t, "AT", true); err != nil {
		return err
	}
	if _, err := a.Run(ctx, t, a.Command, !a.NoResponse); err != nil {
		return pkgerrors.WithMessage(err, "failed to boot to download mode")
	}
	return nil
}

// Run sends cmd on t, retrying on failure, and returns the response body
// with the line terminators and final OK removed. When hasResponse is false
// the command is assumed to succeed once written.
func (a *ATSwitcher) Run(ctx context.Context, t transport.Transport, cmd string, hasResponse bool) ([]string, error) {
	retries := a.Retries
	if retries <= 0 {
		retries = DefaultATRetries
	}
	delay := a.RetryDelay
	if delay <= 0 {
		delay = DefaultATRetryDelay
	}

	var lines []string
	err := retry(ctx, loggerOr(a.Logger), cmd, retries, delay, func(ctx context.Context) error {
		var err error
		lines, err = a.command(ctx, t, cmd, hasResponse)
		return err
	})
	return lines, err
}

func (a *ATSwitcher) command(ctx context.Context, t transport.Transport, cmd string, hasResponse bool) ([]string, error) {
	log := loggerOr(a.Logger)
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = DefaultATTimeout
	}

	log.Debug("writing at command", "command", cmd)
	if err := t.Write(ctx, []byte(cmd+"\r\n"), timeout, transport.FlushInput); err != nil {
		return nil, pkgerrors.WithMessagef(err, "failed to write %s", cmd)
	}
	if !hasResponse {
		log.Debug("no response expected, assuming success", "command", cmd)
		return nil, nil
	}

	rsp, err := t.Read(ctx, atReadSize, timeout, transport.SingleShot)
	if err != nil {
		return nil, pkgerrors.WithMessagef(err, "failed to read response for %s", cmd)
	}

	// with echo enabled the first read is the command itself, missing its \n
	if len(rsp) == len(cmd)+1 && bytes.Contains(rsp, []byte(cmd)) {
		rsp, err = t.Read(ctx, atReadSize, timeout, transport.SingleShot)
		if err != nil {
			return nil, pkgerrors.WithMessagef(err, "failed to read response for %s", cmd)
		}
	}
	log.Debug("read at response", "command", cmd, "response", strings.TrimSpace(string(rsp)))

	if len(rsp) < len(atOK) {
		return nil, &ATError{Command: cmd}
	}
	if !bytes.Contains(rsp, atOK) {
		return nil, &ATError{Command: cmd, Response: strings.TrimSpace(string(rsp))}
	}
	return responseLines(rsp), nil
}

// responseLines splits an AT response into its non-empty lines, dropping
// the final OK.
func responseLines(rsp []byte) []string {
	var out []string
	for _, l := range strings.Split(string(rsp), "\r\n") {
		l = strings.TrimSpace(l)
		if l == "" || l == "OK" {
			continue
		}
		out = append(out, l)
	}
	return out
}
