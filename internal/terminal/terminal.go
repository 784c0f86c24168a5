// Package terminal attaches the calling terminal to a guest console.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"
)

// ErrEscapeSequence is returned when the user triggers the escape sequence.
var ErrEscapeSequence = errors.New("escape sequence detected")

// Console wraps the calling terminal for guest attachment.
type Console struct {
	stdin  *os.File
	stdout *os.File
	fd     int
}

// Current returns the calling terminal.
func Current() *Console {
	return &Console{
		stdin:  os.Stdin,
		stdout: os.Stdout,
		fd:     int(os.Stdin.Fd()),
	}
}

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// SetRaw puts the terminal into raw mode and returns a restore function.
func (c *Console) SetRaw() (func(), error) {
	oldState, err := term.MakeRaw(c.fd)
	if err != nil {
		return nil, err
	}
	return func() {
		term.Restore(c.fd, oldState)
	}, nil
}

// Size returns the current terminal size.
func (c *Console) Size() (width, height int, err error) {
	return term.GetSize(c.fd)
}

// Attach bridges the terminal to the guest console in raw mode. Blocks
// until ctx is cancelled, the user presses Ctrl+] twice, or the guest
// output stream closes. Returns ErrEscapeSequence on user escape.
func (c *Console) Attach(ctx context.Context, guestIn io.Writer, guestOut io.Reader) error {
	restore, err := c.SetRaw()
	if err != nil {
		return err
	}
	defer restore()

	fmt.Fprintf(c.stdout, "Escape sequence: Ctrl+] Ctrl+] (press twice quickly to exit)\r\n")

	// Window resize signals are consumed so they never interrupt the copy
	// loops; guest-side resize is not plumbed through the serial console.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGWINCH)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
			}
		}
	}()

	escapeReader := NewEscapeReader(c.stdin)

	// Each direction reports its completion; the first event wins.
	inputDone := make(chan error, 1)
	outputDone := make(chan error, 1)
	go func() {
		_, err := io.Copy(guestIn, escapeReader)
		inputDone <- err
	}()
	go func() {
		_, err := io.Copy(c.stdout, guestOut)
		outputDone <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-escapeReader.Escaped():
		fmt.Fprintf(c.stdout, "\r\nEscape sequence detected, exiting...\r\n")
		return ErrEscapeSequence
	case err := <-inputDone:
		select {
		case <-escapeReader.Escaped():
			fmt.Fprintf(c.stdout, "\r\nEscape sequence detected, exiting...\r\n")
			return ErrEscapeSequence
		default:
		}
		return err
	case err := <-outputDone:
		return err
	}
}
