package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/ghartrid/geology/pkg/geoconfig"
)

// mountCmd implements subcommands.Command for the "mount" command.
type mountCmd struct {
	stat string
}

func (*mountCmd) Name() string     { return "mount" }
func (*mountCmd) Synopsis() string { return "inspect the VFS mount table" }
func (*mountCmd) Usage() string {
	return `mount [-stat path] - list mounted prefixes, or stat a path through the dispatcher
`
}

func (c *mountCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.stat, "stat", "", "resolve this path through the dispatcher and print its attributes")
}

func (c *mountCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	cfg := args[0].(*geoconfig.Config)

	kc := openVolume(cfg)
	defer kc.Close()

	if c.stat != "" {
		attr, err := kc.Dispatcher.Stat(ctx, c.stat)
		if err != nil {
			fatalf("stat %q: %v", c.stat, err)
		}
		fmt.Printf("kind: %s\nsize: %d\n", attr.Kind, attr.Size)
		return subcommands.ExitSuccess
	}

	for _, prefix := range kc.Mounts.Prefixes() {
		fmt.Println(prefix)
	}
	return subcommands.ExitSuccess
}
