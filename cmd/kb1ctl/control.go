package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/PocketMidi/KB1-config/internal/rawterm"
)

func cmdCC(c *cli.Context) error {
	cc, err := intArg(c, 0, "controller")
	if err != nil {
		return err
	}
	value, err := intArg(c, 1, "value")
	if err != nil {
		return err
	}
	ctx, cancel := withSigHandler(context.Background())
	defer cancel()

	s, err := connect(ctx)
	if err != nil {
		return chkErr(err)
	}
	if _, err := s.Control.Send(ctx, cc, value); err != nil {
		return chkErr(errors.Wrap(err, "can't send"))
	}
	return nil
}

// faderStep maps a key to a value delta.
var faderStep = map[byte]int{
	'+': 1, '=': 1,
	'-': -1, '_': -1,
	']': 8,
	'[': -8,
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return v
}

func cmdFader(c *cli.Context) error {
	cc, err := intArg(c, 0, "controller")
	if err != nil {
		return err
	}
	ctx, cancel := withSigHandler(context.Background())
	defer cancel()

	s, err := connect(ctx)
	if err != nil {
		return chkErr(err)
	}

	term, err := rawterm.Open()
	if err != nil {
		return errors.Wrap(err, "can't open terminal")
	}
	defer term.Restore()

	value := 64
	for {
		term.Print(fmt.Sprintf("\rcc %d = %3d ", cc, value))
		ch, err := term.Getchar()
		if err != nil {
			return errors.Wrap(err, "can't read key")
		}
		switch ch {
		case 'q', 3, 4:
			term.Print("\r\n")
			return nil
		}
		step, ok := faderStep[ch]
		if !ok {
			continue
		}
		value = clamp(value + step)
		// Sends inside the spacing window are dropped; the next key press
		// carries the latest value anyway.
		if _, err := s.Control.Send(ctx, cc, value); err != nil {
			term.Print("\r\n")
			return chkErr(errors.Wrap(err, "can't send"))
		}
	}
}
