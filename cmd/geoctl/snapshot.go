package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/ghartrid/geology/pkg/geoconfig"
)

// snapshotCmd implements subcommands.Command for the "snapshot" command.
type snapshotCmd struct {
	label string
}

func (*snapshotCmd) Name() string     { return "snapshot" }
func (*snapshotCmd) Synopsis() string { return "seal the working view and start a new one" }
func (*snapshotCmd) Usage() string {
	return `snapshot [-label name] - seal the working view into an immutable view, print its id
`
}

func (c *snapshotCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.label, "label", "", "a human-readable label for the sealed view")
}

func (c *snapshotCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	cfg := args[0].(*geoconfig.Config)

	kc := openVolume(cfg)
	defer kc.Close()

	id, err := kc.Volume.Snapshot(c.label)
	if err != nil {
		fatalf("snapshotting: %v", err)
	}
	fmt.Println(uint64(id))
	return subcommands.ExitSuccess
}
