package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/ghartrid/geology/pkg/geoconfig"
)

// hideCmd implements subcommands.Command for the "hide" command. There is
// deliberately no "rm": hide only tombstones a path in the working view,
// it never touches the Content Store, and sealed views remain readable.
type hideCmd struct{}

func (*hideCmd) Name() string     { return "hide" }
func (*hideCmd) Synopsis() string { return "tombstone a path in the working view" }
func (*hideCmd) Usage() string {
	return `hide <path> - mark a path hidden in the working view

hide never deletes blobs from the Content Store and never touches sealed
views; a view snapshotted before the hide still resolves the path.
`
}

func (*hideCmd) SetFlags(*flag.FlagSet) {}

func (*hideCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)
	cfg := args[0].(*geoconfig.Config)

	kc := openVolume(cfg)
	defer kc.Close()

	if err := kc.Volume.Hide(path); err != nil {
		fatalf("hiding %q: %v", path, err)
	}
	return subcommands.ExitSuccess
}
