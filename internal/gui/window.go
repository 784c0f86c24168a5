// Package gui provides the GUI terminal emulator window for vmbridge.
package gui

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	fyneterm "github.com/fyne-io/terminal"
)

// nopWriteCloser wraps an io.Writer with a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// RunTerminal opens a window with a terminal emulator bridged to the guest
// console. guestIn receives keyboard input; guestOut feeds the display.
// onClose runs when the user closes the window or the console stream ends.
// Blocks until the window is closed.
func RunTerminal(guestIn io.Writer, guestOut io.Reader, title string, onClose func()) {
	a := app.New()
	w := a.NewWindow(title)
	w.SetPadded(false)
	w.Resize(fyne.NewSize(800, 600))

	t := fyneterm.New()
	w.SetContent(t)

	w.SetCloseIntercept(func() {
		if onClose != nil {
			onClose()
		}
		a.Quit()
	})

	// First SIGINT/SIGTERM closes gracefully, a second forces exit.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		if onClose != nil {
			onClose()
		}
		a.Quit()

		<-sigCh
		os.Exit(1)
	}()

	// Close the window when the console stream ends.
	go func() {
		_ = t.RunWithConnection(nopWriteCloser{guestIn}, guestOut)
		if onClose != nil {
			onClose()
		}
		a.Quit()
	}()

	w.Show()
	w.Canvas().Focus(t)
	a.Run()
}
