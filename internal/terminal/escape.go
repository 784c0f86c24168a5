package terminal

import (
	"io"
	"sync"
	"time"
)

const (
	// EscapeChar is Ctrl+] (0x1D).
	EscapeChar = 0x1D

	// EscapeCount is the number of consecutive escape chars needed.
	EscapeCount = 2

	// EscapeTimeout is the maximum time between escape key presses.
	EscapeTimeout = 500 * time.Millisecond
)

// EscapeReader wraps an io.Reader and watches for the escape sequence.
// Once EscapeCount consecutive EscapeChar bytes arrive within
// EscapeTimeout of each other, the Escaped channel is closed and Read
// returns io.EOF. Escape chars are held back until they are known not to
// be part of a sequence.
type EscapeReader struct {
	r           io.Reader
	escaped     chan struct{}
	escapedOnce sync.Once

	mu         sync.Mutex
	pending    int
	lastEscape time.Time
}

// NewEscapeReader creates an EscapeReader wrapping the given reader.
func NewEscapeReader(r io.Reader) *EscapeReader {
	return &EscapeReader{
		r:       r,
		escaped: make(chan struct{}),
	}
}

// Escaped returns a channel closed when the escape sequence is detected.
func (e *EscapeReader) Escaped() <-chan struct{} {
	return e.escaped
}

func (e *EscapeReader) trigger() {
	e.escapedOnce.Do(func() {
		close(e.escaped)
	})
}

// Read reads from the underlying reader, filtering the escape sequence.
func (e *EscapeReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if n == 0 {
		return n, err
	}

	out := 0
	for i := 0; i < n; i++ {
		b := p[i]

		if b == EscapeChar {
			e.mu.Lock()
			now := time.Now()
			if e.pending > 0 && now.Sub(e.lastEscape) > EscapeTimeout {
				e.pending = 0
			}
			e.pending++
			e.lastEscape = now
			done := e.pending >= EscapeCount
			e.mu.Unlock()

			if done {
				e.trigger()
				if out > 0 {
					return out, nil
				}
				return 0, io.EOF
			}
			// Held back until the next byte decides its fate.
			continue
		}

		// A non-escape byte releases any held escape chars.
		e.mu.Lock()
		held := e.pending
		e.pending = 0
		e.mu.Unlock()
		for ; held > 0 && out < len(p); held-- {
			p[out] = EscapeChar
			out++
		}
		if out < len(p) {
			p[out] = b
			out++
		}
	}

	if out == 0 {
		// Everything read is held back; let the caller retry.
		return 0, nil
	}
	return out, err
}
