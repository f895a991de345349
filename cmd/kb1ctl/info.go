package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli"
)

func cmdInfo(c *cli.Context) error {
	ctx, cancel := withSigHandler(context.Background())
	defer cancel()

	s, err := connect(ctx)
	if err != nil {
		return chkErr(err)
	}
	caps := s.Conn.Capabilities()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "peer\t%s\n", s.Conn.Peer())
	fmt.Fprintf(w, "firmware\t%s\n", s.Conn.Firmware())
	fmt.Fprintf(w, "scale types\t%d\n", caps.ScaleTypes)
	fmt.Fprintf(w, "touch threshold\t%v\n", caps.TouchThreshold)
	fmt.Fprintf(w, "presets\t%v\n", s.Presets.Supported())
	for _, r := range s.Conn.Table().Roles() {
		fmt.Fprintf(w, "characteristic\t%s\n", r)
	}
	for _, r := range s.Conn.Table().Missing() {
		fmt.Fprintf(w, "missing\t%s\n", r)
	}
	return w.Flush()
}
