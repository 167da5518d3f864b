package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"github.com/ghartrid/geology/pkg/geoconfig"
)

// auditCmd implements subcommands.Command for the "audit" command.
type auditCmd struct{}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "list the Governor's immutable audit records" }
func (*auditCmd) Usage() string {
	return `audit - list every Governor decision in record-id order
`
}

func (*auditCmd) SetFlags(*flag.FlagSet) {}

func (*auditCmd) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	cfg := args[0].(*geoconfig.Config)

	kc := openVolume(cfg)
	defer kc.Close()

	records, err := kc.Governor.ListAudit()
	if err != nil {
		fatalf("listing audit records: %v", err)
	}
	for _, rec := range records {
		fmt.Printf("%d\t%s\t%s\t%s\t%s\t%d\n",
			rec.ID, rec.Decision, rec.Reason, rec.Actor, strings.Join(rec.Requested, ","), rec.Timestamp)
	}
	return subcommands.ExitSuccess
}
