package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/ghartrid/geology/pkg/geoconfig"
)

// statsCmd implements subcommands.Command for the "stats" command.
type statsCmd struct{}

func (*statsCmd) Name() string     { return "stats" }
func (*statsCmd) Synopsis() string { return "report view count and deduplication savings" }
func (*statsCmd) Usage() string {
	return `stats - print view count, logical bytes, unique bytes, and dedup savings
`
}

func (*statsCmd) SetFlags(*flag.FlagSet) {}

func (*statsCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	cfg := args[0].(*geoconfig.Config)

	kc := openVolume(cfg)
	defer kc.Close()

	s := kc.Volume.Stats()
	fmt.Printf("views:          %d\n", s.ViewCount)
	fmt.Printf("logical bytes:  %d\n", s.LogicalBytes)
	fmt.Printf("unique bytes:   %d\n", s.UniqueBytes)
	fmt.Printf("dedup savings:  %d\n", s.DedupSavings)
	return subcommands.ExitSuccess
}
