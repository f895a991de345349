//go:build linux || darwin

// Package rawterm puts the controlling terminal in raw mode so single key
// presses can drive the control stream.
//
// Newlines are always LF (not CR or CRLF). While terminals generally use a
// different format (CR when pressing the enter key and CRLF for newline) the
// format returned by Getchar and expected as input by Putchar is a single LF
// as newline symbol.
package rawterm

import (
	"errors"
	"io"
	"os"

	"golang.org/x/crypto/ssh/terminal"
)

// ErrNotTerminal is returned by Open when stdin is not a terminal.
var ErrNotTerminal = errors.New("rawterm: stdin is not a terminal")

// Terminal is a terminal in raw mode. Restore must be called when done.
type Terminal struct {
	fd    int
	state *terminal.State
	in    io.Reader
	out   io.Writer
}

// Open switches stdin to raw mode.
//
//	term, err := rawterm.Open()
//	if err != nil { ... }
//	defer term.Restore()
func Open() (*Terminal, error) {
	fd := int(os.Stdin.Fd())
	if !terminal.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	state, err := terminal.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &Terminal{fd: fd, state: state, in: os.Stdin, out: os.Stdout}, nil
}

// Restore restores the state from before Open.
func (t *Terminal) Restore() error {
	return terminal.Restore(t.fd, t.state)
}

// Getchar returns a single character. Newlines are encoded with a single LF
// ('\n').
func (t *Terminal) Getchar() (byte, error) {
	return getchar(t.in)
}

// Putchar writes a single character. Newlines are expected to be encoded as
// LF symbols ('\n').
func (t *Terminal) Putchar(ch byte) error {
	return putchar(t.out, ch)
}

// Print writes s, translating newlines.
func (t *Terminal) Print(s string) error {
	for i := 0; i < len(s); i++ {
		if err := t.Putchar(s[i]); err != nil {
			return err
		}
	}
	return nil
}

func getchar(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	if b[0] == '\r' {
		return '\n', nil
	}
	return b[0], nil
}

func putchar(w io.Writer, ch byte) error {
	if ch == '\n' {
		// Terminals expect CRLF.
		if _, err := w.Write([]byte{'\r'}); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{ch})
	return err
}
