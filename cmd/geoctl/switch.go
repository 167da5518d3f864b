package main

import (
	"context"
	"flag"
	"strconv"

	"github.com/google/subcommands"

	"github.com/ghartrid/geology/pkg/geoconfig"
	"github.com/ghartrid/geology/pkg/viewgraph"
)

// switchCmd implements subcommands.Command for the "switch" command.
type switchCmd struct{}

func (*switchCmd) Name() string     { return "switch" }
func (*switchCmd) Synopsis() string { return "make a sealed view the current view" }
func (*switchCmd) Usage() string {
	return `switch <view-id> - make an existing sealed view current

switch never mutates the view being switched to or away from; it only
moves which view subsequent reads resolve against. The working view and
its parent are unchanged.
`
}

func (*switchCmd) SetFlags(*flag.FlagSet) {}

func (*switchCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	id, err := strconv.ParseUint(f.Arg(0), 10, 64)
	if err != nil {
		fatalf("parsing view id %q: %v", f.Arg(0), err)
	}
	cfg := args[0].(*geoconfig.Config)

	kc := openVolume(cfg)
	defer kc.Close()

	if err := kc.Volume.Switch(viewgraph.ViewID(id)); err != nil {
		fatalf("switching to view %d: %v", id, err)
	}
	return subcommands.ExitSuccess
}
