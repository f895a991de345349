package main

import (
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"

	kb1 "github.com/PocketMidi/KB1-config"
)

const recordUsage = "<lever1|lever2|leverpush1|leverpush2|touch|scale|system>"

// record binds a record name to its read and write calls.
type record struct {
	name  string
	read  func(ctx context.Context, s *kb1.Session) (interface{}, error)
	write func(ctx context.Context, s *kb1.Session, data []byte) error
}

var records = []record{
	{
		name: "lever1",
		read: func(ctx context.Context, s *kb1.Session) (interface{}, error) {
			return asValue(s.Settings.ReadLever(ctx, 1))
		},
		write: func(ctx context.Context, s *kb1.Session, data []byte) error {
			var v kb1.LeverSettings
			if err := decodeStrict(data, &v); err != nil {
				return err
			}
			return s.Settings.WriteLever(ctx, 1, v)
		},
	},
	{
		name: "lever2",
		read: func(ctx context.Context, s *kb1.Session) (interface{}, error) {
			return asValue(s.Settings.ReadLever(ctx, 2))
		},
		write: func(ctx context.Context, s *kb1.Session, data []byte) error {
			var v kb1.LeverSettings
			if err := decodeStrict(data, &v); err != nil {
				return err
			}
			return s.Settings.WriteLever(ctx, 2, v)
		},
	},
	{
		name: "leverpush1",
		read: func(ctx context.Context, s *kb1.Session) (interface{}, error) {
			return asValue(s.Settings.ReadLeverPush(ctx, 1))
		},
		write: func(ctx context.Context, s *kb1.Session, data []byte) error {
			var v kb1.LeverPushSettings
			if err := decodeStrict(data, &v); err != nil {
				return err
			}
			return s.Settings.WriteLeverPush(ctx, 1, v)
		},
	},
	{
		name: "leverpush2",
		read: func(ctx context.Context, s *kb1.Session) (interface{}, error) {
			return asValue(s.Settings.ReadLeverPush(ctx, 2))
		},
		write: func(ctx context.Context, s *kb1.Session, data []byte) error {
			var v kb1.LeverPushSettings
			if err := decodeStrict(data, &v); err != nil {
				return err
			}
			return s.Settings.WriteLeverPush(ctx, 2, v)
		},
	},
	{
		name: "touch",
		read: func(ctx context.Context, s *kb1.Session) (interface{}, error) {
			return asValue(s.Settings.ReadTouch(ctx))
		},
		write: func(ctx context.Context, s *kb1.Session, data []byte) error {
			var v kb1.TouchSettings
			if err := decodeStrict(data, &v); err != nil {
				return err
			}
			v.HasThreshold = s.Conn.Capabilities().TouchThreshold
			return s.Settings.WriteTouch(ctx, v)
		},
	},
	{
		name: "scale",
		read: func(ctx context.Context, s *kb1.Session) (interface{}, error) {
			return asValue(s.Settings.ReadScale(ctx))
		},
		write: func(ctx context.Context, s *kb1.Session, data []byte) error {
			var v kb1.ScaleSettings
			if err := decodeStrict(data, &v); err != nil {
				return err
			}
			return s.Settings.WriteScale(ctx, v)
		},
	},
	{
		name: "system",
		read: func(ctx context.Context, s *kb1.Session) (interface{}, error) {
			return asValue(s.Settings.ReadSystem(ctx))
		},
		write: func(ctx context.Context, s *kb1.Session, data []byte) error {
			var v kb1.SystemSettings
			if err := decodeStrict(data, &v); err != nil {
				return err
			}
			return s.Settings.WriteSystem(ctx, v)
		},
	},
}

func asValue(v interface{}, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

func decodeStrict(data []byte, v interface{}) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "can't decode record")
	}
	return nil
}

func findRecord(name string) (record, error) {
	for _, r := range records {
		if r.name == strings.ToLower(name) {
			return r, nil
		}
	}
	return record{}, errors.Errorf("unknown record %q, want one of %s", name, recordUsage)
}

func cmdRead(c *cli.Context) error {
	r, err := findRecord(c.Args().First())
	if err != nil {
		return err
	}
	ctx, cancel := withSigHandler(context.Background())
	defer cancel()

	s, err := connect(ctx)
	if err != nil {
		return chkErr(err)
	}
	v, err := r.read(ctx, s)
	if err != nil {
		return chkErr(errors.Wrapf(err, "can't read %s", r.name))
	}
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(v)
}

func cmdWrite(c *cli.Context) error {
	r, err := findRecord(c.Args().First())
	if err != nil {
		return err
	}
	path := c.Args().Get(1)
	if path == "" {
		return errors.New("missing YAML file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "can't read record file")
	}

	ctx, cancel := withSigHandler(context.Background())
	defer cancel()

	s, err := connect(ctx)
	if err != nil {
		return chkErr(err)
	}
	if err := r.write(ctx, s, data); err != nil {
		return chkErr(errors.Wrapf(err, "can't write %s", r.name))
	}
	curr.log.WithField("record", r.name).Info("written")
	return nil
}
