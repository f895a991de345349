//go:build !linux && !darwin

package rawterm

import "errors"

var ErrNotTerminal = errors.New("rawterm: raw terminal unsupported on this platform")

type Terminal struct{}

func Open() (*Terminal, error) { return nil, ErrNotTerminal }

func (t *Terminal) Restore() error { return nil }

func (t *Terminal) Getchar() (byte, error) { return 0, ErrNotTerminal }

func (t *Terminal) Putchar(ch byte) error { return ErrNotTerminal }

func (t *Terminal) Print(s string) error { return ErrNotTerminal }
