package main

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	kb1 "github.com/PocketMidi/KB1-config"
	"github.com/PocketMidi/KB1-config/internal/monitor"
)

func cmdMonitor(c *cli.Context) error {
	listen := curr.cfg.Monitor.Listen
	if l := c.String("listen"); l != "" {
		listen = l
	}
	retry := c.Duration("retry")

	ctx, cancel := withSigHandler(context.Background())
	defer cancel()

	srv := monitor.NewServer(curr.log)
	statuses, unsubStatus := curr.driver.Subscribe()
	defer unsubStatus()
	frames, unsubFrames := curr.driver.SubscribeInbound()
	defer unsubFrames()
	go srv.Run(ctx, statuses, frames)

	hs := &http.Server{Addr: listen, Handler: srv.Handler()}
	errc := make(chan error, 1)
	go func() {
		errc <- hs.ListenAndServe()
	}()
	curr.log.WithField("listen", listen).Info("monitor listening")

	go hold(ctx, retry)

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != http.ErrServerClosed {
			return errors.Wrap(err, "monitor server")
		}
	}
	shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	err := hs.Shutdown(shutdown)
	srv.Close()
	return err
}

// hold keeps the device connected, reconnecting after a lost link until ctx
// is done.
func hold(ctx context.Context, retry time.Duration) {
	statuses, unsubscribe := curr.driver.Subscribe()
	defer unsubscribe()

	for {
		_, err := connect(ctx)
		if err == nil {
			if !waitDisconnect(ctx, statuses) {
				return
			}
			curr.log.Warn("link lost, reconnecting")
			continue
		}
		if ctx.Err() != nil {
			return
		}
		curr.log.WithError(err).Warn("connect failed")
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}

// waitDisconnect skips statuses left over from earlier attempts and returns
// true once the connected link is reported down.
func waitDisconnect(ctx context.Context, statuses <-chan kb1.Status) bool {
	up := false
	for {
		select {
		case <-ctx.Done():
			return false
		case st, ok := <-statuses:
			if !ok {
				return false
			}
			if st.Connected {
				up = true
			} else if up {
				return true
			}
		}
	}
}
