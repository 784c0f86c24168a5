package machine

import (
	"fmt"
	"io"
	"os"
)

// ConsoleBridge is the serial bridge between the guest's console device and
// a host-side consumer: two independent unidirectional byte pipes, one per
// direction. It is created once per controller and survives start/stop
// cycles, so a consumer attached to the host-facing endpoints never has to
// re-attach after a restart.
//
// The bridge imposes no framing or encoding; bytes pass through in order
// and backpressure is whatever the underlying pipe provides.
type ConsoleBridge struct {
	guestRead  *os.File // guest input: read end handed to the serial device
	hostWrite  *os.File // guest input: write end for the consumer
	guestWrite *os.File // guest output: write end handed to the serial device
	hostRead   *os.File // guest output: read end for the consumer
}

// NewConsoleBridge creates both pipe pairs.
func NewConsoleBridge() (*ConsoleBridge, error) {
	guestRead, hostWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create input pipe: %w", err)
	}
	hostRead, guestWrite, err := os.Pipe()
	if err != nil {
		guestRead.Close()
		hostWrite.Close()
		return nil, fmt.Errorf("create output pipe: %w", err)
	}
	return &ConsoleBridge{
		guestRead:  guestRead,
		hostWrite:  hostWrite,
		guestWrite: guestWrite,
		hostRead:   hostRead,
	}, nil
}

// HostReader returns the endpoint a consumer reads guest output from.
func (b *ConsoleBridge) HostReader() io.Reader { return b.hostRead }

// HostWriter returns the endpoint a consumer writes guest input to.
func (b *ConsoleBridge) HostWriter() io.Writer { return b.hostWrite }

// GuestEndpoints returns the pipe ends wired to the guest's serial device
// at configuration time.
func (b *ConsoleBridge) GuestEndpoints() (read, write *os.File) {
	return b.guestRead, b.guestWrite
}

// Close closes all four pipe ends, unblocking any pending I/O.
// Safe to call multiple times.
func (b *ConsoleBridge) Close() error {
	var errs []error
	for _, f := range []**os.File{&b.hostWrite, &b.guestRead, &b.guestWrite, &b.hostRead} {
		if *f == nil {
			continue
		}
		if err := (*f).Close(); err != nil {
			errs = append(errs, err)
		}
		*f = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("close console bridge: %v", errs)
	}
	return nil
}
