package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/ghartrid/geology/pkg/geoconfig"
)

// submitCmd implements subcommands.Command for the "submit" command: it
// runs a code payload through the Governor and prints its decision.
type submitCmd struct {
	from      string
	permitted string
	actor     string
}

func (*submitCmd) Name() string     { return "submit" }
func (*submitCmd) Synopsis() string { return "submit code to the Governor for evaluation" }
func (*submitCmd) Usage() string {
	return `submit [-from file] [-permitted caps] [-actor name] - evaluate code and print the Governor's decision

Reads the code from -from, or stdin if unset. -permitted is a
comma-separated list of requested capability names (e.g. CAP_CHOWN,CAP_SETUID).
`
}

func (c *submitCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "read code from this file instead of stdin")
	f.StringVar(&c.permitted, "permitted", "", "comma-separated requested capability names")
	f.StringVar(&c.actor, "actor", "geoctl", "actor name recorded on the audit record")
}

func (c *submitCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	cfg := args[0].(*geoconfig.Config)

	var code []byte
	var err error
	if c.from != "" {
		code, err = os.ReadFile(c.from)
	} else {
		code, err = readAllStdin()
	}
	if err != nil {
		fatalf("reading code: %v", err)
	}

	var requested []string
	if c.permitted != "" {
		requested = strings.Split(c.permitted, ",")
	}

	kc := openVolume(cfg)
	defer kc.Close()

	rec, err := kc.Governor.Submit(code, specs.LinuxCapabilities{Permitted: requested}, c.actor)
	if err != nil {
		fatalf("submitting to governor: %v", err)
	}

	fmt.Printf("record:    %d\n", rec.ID)
	fmt.Printf("decision:  %s\n", rec.Decision)
	if rec.Reason != "" {
		fmt.Printf("reason:    %s\n", rec.Reason)
	}
	fmt.Printf("granted:   %s\n", strings.Join(rec.Granted, ","))
	return subcommands.ExitSuccess
}
