package main

import (
	"context"
	"flag"
	"fmt"
	"strconv"

	"github.com/google/subcommands"

	"github.com/ghartrid/geology/pkg/geoconfig"
	"github.com/ghartrid/geology/pkg/viewgraph"
)

// lsCmd implements subcommands.Command for the "ls" command.
type lsCmd struct {
	view uint64
}

func (*lsCmd) Name() string     { return "ls" }
func (*lsCmd) Synopsis() string { return "list a directory's entries in a view" }
func (*lsCmd) Usage() string {
	return `ls [-view id] <dir> - list dir's entries; defaults to the current view
`
}

func (c *lsCmd) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.view, "view", 0, "list this view id instead of the current view")
}

func (c *lsCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	dir := f.Arg(0)
	cfg := args[0].(*geoconfig.Config)

	kc := openVolume(cfg)
	defer kc.Close()

	var err error
	var rows []string
	if c.view != 0 {
		es, e := kc.Volume.ListAt(viewgraph.ViewID(c.view), dir)
		err = e
		for _, entry := range es {
			rows = append(rows, formatEntry(entry.Path, entry.Kind.String(), entry.Size))
		}
	} else {
		es, e := kc.Volume.List(dir)
		err = e
		for _, entry := range es {
			rows = append(rows, formatEntry(entry.Path, entry.Kind.String(), entry.Size))
		}
	}
	if err != nil {
		fatalf("listing %q: %v", dir, err)
	}
	for _, row := range rows {
		fmt.Println(row)
	}
	return subcommands.ExitSuccess
}

func formatEntry(path, kind string, size int64) string {
	return path + "\t" + kind + "\t" + strconv.FormatInt(size, 10)
}
