package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	kb1 "github.com/PocketMidi/KB1-config"
)

func withPresets(c *cli.Context, fn func(ctx context.Context, p *kb1.Presets) error) error {
	ctx, cancel := withSigHandler(context.Background())
	defer cancel()

	s, err := connect(ctx)
	if err != nil {
		return chkErr(err)
	}
	if !s.Presets.Supported() {
		return errors.New("device firmware has no preset support")
	}
	return chkErr(fn(ctx, s.Presets))
}

func cmdPresetList(c *cli.Context) error {
	return withPresets(c, func(ctx context.Context, p *kb1.Presets) error {
		slots, err := p.List(ctx)
		if err != nil {
			return errors.Wrap(err, "can't list presets")
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SLOT\tNAME\tSAVED")
		for _, s := range slots {
			if !s.Valid {
				fmt.Fprintf(w, "%d\t-\t-\n", s.Slot)
				continue
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", s.Slot, s.Name, s.Time().Local().Format(time.RFC3339))
		}
		return w.Flush()
	})
}

func cmdPresetSave(c *cli.Context) error {
	slot, err := intArg(c, 0, "slot")
	if err != nil {
		return err
	}
	name := strings.Join(c.Args().Tail(), " ")
	if name == "" {
		return errors.New("missing preset name")
	}
	return withPresets(c, func(ctx context.Context, p *kb1.Presets) error {
		return errors.Wrapf(p.Save(ctx, slot, name), "can't save preset %d", slot)
	})
}

func cmdPresetLoad(c *cli.Context) error {
	slot, err := intArg(c, 0, "slot")
	if err != nil {
		return err
	}
	return withPresets(c, func(ctx context.Context, p *kb1.Presets) error {
		return errors.Wrapf(p.Load(ctx, slot), "can't load preset %d", slot)
	})
}

func cmdPresetDelete(c *cli.Context) error {
	slot, err := intArg(c, 0, "slot")
	if err != nil {
		return err
	}
	return withPresets(c, func(ctx context.Context, p *kb1.Presets) error {
		return errors.Wrapf(p.Delete(ctx, slot), "can't delete preset %d", slot)
	})
}
