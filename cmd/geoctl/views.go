package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/ghartrid/geology/pkg/geoconfig"
)

// viewsCmd implements subcommands.Command for the "views" command.
type viewsCmd struct{}

func (*viewsCmd) Name() string     { return "views" }
func (*viewsCmd) Synopsis() string { return "list every view in the View Graph" }
func (*viewsCmd) Usage() string {
	return `views - list every view: id, parent, label, and creation time
`
}

func (*viewsCmd) SetFlags(*flag.FlagSet) {}

func (*viewsCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	cfg := args[0].(*geoconfig.Config)

	kc := openVolume(cfg)
	defer kc.Close()

	current := kc.Volume.CurrentView()
	for _, info := range kc.Volume.ListViews() {
		marker := " "
		if info.ID == current {
			marker = "*"
		}
		parent := "-"
		if info.HasParent {
			parent = fmt.Sprintf("%d", uint64(info.Parent))
		}
		fmt.Printf("%s %d\t%s\t%s\t%d\n", marker, uint64(info.ID), parent, info.Label, info.Created)
	}
	return subcommands.ExitSuccess
}
