package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/ghartrid/geology/pkg/geoconfig"
)

// readCmd implements subcommands.Command for the "read" command.
type readCmd struct {
	to string
}

func (*readCmd) Name() string     { return "read" }
func (*readCmd) Synopsis() string { return "read a path's bytes from the current view" }
func (*readCmd) Usage() string {
	return `read [-to file] <path> - read a path's bytes from the current view; writes stdout unless -to is set
`
}

func (c *readCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.to, "to", "", "write data to this file instead of stdout")
}

func (c *readCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)
	cfg := args[0].(*geoconfig.Config)

	kc := openVolume(cfg)
	defer kc.Close()

	data, err := kc.Volume.Read(path)
	if err != nil {
		fatalf("reading %q: %v", path, err)
	}

	if c.to != "" {
		if err := os.WriteFile(c.to, data, 0o644); err != nil {
			fatalf("writing %q: %v", c.to, err)
		}
		return subcommands.ExitSuccess
	}
	if _, err := os.Stdout.Write(data); err != nil {
		fatalf("writing to stdout: %v", err)
	}
	return subcommands.ExitSuccess
}
