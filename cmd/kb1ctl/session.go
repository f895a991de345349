package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	kb1 "github.com/PocketMidi/KB1-config"
)

// withSigHandler returns a context canceled on SIGINT or SIGTERM.
func withSigHandler(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// connect opens a session to the configured device.
func connect(ctx context.Context) (*kb1.Session, error) {
	s, err := curr.driver.Connect(ctx, curr.cfg.Filter())
	if err != nil {
		return nil, errors.Wrap(err, "can't connect")
	}
	curr.log.WithField("peer", s.Conn.Peer().String()).Info("connected")
	return s, nil
}

func chkErr(err error) error {
	if errors.Is(err, context.Canceled) {
		fmt.Printf("\n(Canceled)\n")
		return nil
	}
	if isTemporary(err) {
		return errors.Wrap(err, "transient failure, try again")
	}
	return err
}

func isTemporary(err error) bool {
	var op *kb1.OpError
	return errors.As(err, &op) && op.Temporary()
}

func intArg(c *cli.Context, i int, name string) (int, error) {
	s := c.Args().Get(i)
	if s == "" {
		return 0, errors.Errorf("missing %s", name)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(err, "bad %s %q", name, s)
	}
	return v, nil
}
