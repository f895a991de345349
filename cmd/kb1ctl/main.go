// Command kb1ctl configures a KB1 control surface over Bluetooth LE.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	kb1 "github.com/PocketMidi/KB1-config"
	"github.com/PocketMidi/KB1-config/internal/config"
)

// curr holds what setup built for the running command.
var curr struct {
	cfg    *config.Config
	log    *logrus.Logger
	driver *kb1.Driver
}

func main() {
	app := cli.NewApp()

	app.Name = "kb1ctl"
	app.Usage = "Configure a KB1 control surface over Bluetooth LE"
	app.Version = "0.1.0"
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config, c", Usage: "YAML configuration file"},
		cli.StringFlag{Name: "addr, a", Usage: "device address (MAC on Linux, identifier on macOS)"},
		cli.StringFlag{Name: "name, n", Usage: "advertised name prefix"},
		cli.DurationFlag{Name: "timeout, t", Usage: "connect timeout"},
		cli.BoolFlag{Name: "verbose, v", Usage: "debug logging"},
	}

	app.Commands = []cli.Command{
		{
			Name:   "info",
			Usage:  "Connect and show firmware version and supported features",
			Action: cmdInfo,
		},
		{
			Name:      "read",
			Aliases:   []string{"r"},
			Usage:     "Read a settings record and print it as YAML",
			ArgsUsage: recordUsage,
			Action:    cmdRead,
		},
		{
			Name:      "write",
			Aliases:   []string{"w"},
			Usage:     "Validate and write a settings record from a YAML file",
			ArgsUsage: recordUsage + " <file.yaml>",
			Action:    cmdWrite,
		},
		{
			Name:  "preset",
			Usage: "Manage the device preset slots",
			Subcommands: []cli.Command{
				{Name: "list", Aliases: []string{"ls"}, Usage: "List preset slots", Action: cmdPresetList},
				{Name: "save", Usage: "Save the current settings", ArgsUsage: "<slot> <name>", Action: cmdPresetSave},
				{Name: "load", Usage: "Load a preset", ArgsUsage: "<slot>", Action: cmdPresetLoad},
				{Name: "delete", Aliases: []string{"rm"}, Usage: "Delete a preset", ArgsUsage: "<slot>", Action: cmdPresetDelete},
			},
		},
		{
			Name:      "cc",
			Usage:     "Send one controller value",
			ArgsUsage: "<controller> <value>",
			Action:    cmdCC,
		},
		{
			Name:      "fader",
			Usage:     "Drive a controller from the keyboard (+/- step 1, [/] step 8, q quits)",
			ArgsUsage: "<controller>",
			Action:    cmdFader,
		},
		{
			Name:   "monitor",
			Usage:  "Hold the link and stream status and inbound frames over websocket",
			Action: cmdMonitor,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "listen, l", Usage: "listen address (overrides monitor.listen)"},
				cli.DurationFlag{Name: "retry", Value: 2 * time.Second, Usage: "delay between reconnect attempts"},
			},
		},
	}

	app.Before = setup
	app.After = teardown
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "kb1ctl: %v\n", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) error {
	if curr.driver != nil {
		return nil
	}

	cfg := config.Default()
	if path := c.GlobalString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return errors.Wrap(err, "can't load config")
		}
	}
	if a := c.GlobalString("addr"); a != "" {
		cfg.Device.Address = a
	}
	if n := c.GlobalString("name"); n != "" {
		cfg.Device.NamePrefix = n
	}
	if d := c.GlobalDuration("timeout"); d > 0 {
		cfg.Device.ConnectTimeout = d
	}
	if err := config.Validate(cfg); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	config.Normalize(cfg)

	log, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return errors.Wrap(err, "can't set up logging")
	}
	if c.GlobalBool("verbose") {
		log.SetLevel(logrus.DebugLevel)
	}

	curr.cfg = cfg
	curr.log = log
	curr.driver = kb1.NewDriver(kb1.DefaultTransport(log), cfg.DriverOptions(log)...)
	return nil
}

func teardown(c *cli.Context) error {
	if curr.driver == nil {
		return nil
	}
	return curr.driver.Close()
}
