package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/ghartrid/geology/pkg/geoconfig"
)

// writeCmd implements subcommands.Command for the "write" command.
type writeCmd struct {
	from string
}

func (*writeCmd) Name() string     { return "write" }
func (*writeCmd) Synopsis() string { return "write data into the working view at a path" }
func (*writeCmd) Usage() string {
	return `write [-from file] <path> - write data into the working view; reads stdin unless -from is set
`
}

func (c *writeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "read data from this file instead of stdin")
}

func (c *writeCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)
	cfg := args[0].(*geoconfig.Config)

	var data []byte
	var err error
	if c.from != "" {
		data, err = os.ReadFile(c.from)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		fatalf("reading data: %v", err)
	}

	kc := openVolume(cfg)
	defer kc.Close()

	if err := kc.Volume.Write(path, data); err != nil {
		fatalf("writing %q: %v", path, err)
	}
	return subcommands.ExitSuccess
}
