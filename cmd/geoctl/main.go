// Binary geoctl is the command-line entry point over a Geology volume:
// the storage operations of spec.md §3, plus mount inspection and
// Governor code submission/audit, modeled on runsc's subcommands.Register
// driven CLI.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/ghartrid/geology/pkg/geoconfig"
)

func main() {
	cfg := geoconfig.Default()
	geoconfig.RegisterFlags(flag.CommandLine, &cfg)
	configPath := flag.String("config", "", "path to a TOML config file overlaid under flags")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&writeCmd{}, "storage")
	subcommands.Register(&readCmd{}, "storage")
	subcommands.Register(&hideCmd{}, "storage")
	subcommands.Register(&lsCmd{}, "storage")
	subcommands.Register(&snapshotCmd{}, "storage")
	subcommands.Register(&switchCmd{}, "storage")
	subcommands.Register(&viewsCmd{}, "storage")
	subcommands.Register(&statsCmd{}, "storage")

	subcommands.Register(&mountCmd{}, "vfs")

	subcommands.Register(&submitCmd{}, "governor")
	subcommands.Register(&auditCmd{}, "governor")

	flag.Parse()

	if err := geoconfig.LoadFile(*configPath, &cfg); err != nil {
		fatalf("loading config: %v", err)
	}
	if cfg.Root == "" {
		fatalf("missing -root: the volume's root directory")
	}

	os.Exit(int(subcommands.Execute(context.Background(), &cfg)))
}
