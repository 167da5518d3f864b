package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ghartrid/geology/pkg/geoconfig"
	"github.com/ghartrid/geology/pkg/geolog"
	"github.com/ghartrid/geology/pkg/kcontext"
)

// fatalf reports an unrecoverable error to stderr and exits, standing in
// for the runsc/cmd/util.Fatalf helper every subcommand in that package
// calls on a terminal error.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "geoctl: "+format+"\n", args...)
	os.Exit(1)
}

// openVolume boots a Kernel Context over cfg.Root. geofs.Open already
// creates a fresh volume when dir has no views/index yet, so every
// subcommand shares this single entry path regardless of first use.
func openVolume(cfg *geoconfig.Config) *kcontext.Context {
	log := geolog.New(os.Stderr, cfg.LogFormat, cfg.Debug)
	kc, err := kcontext.Open(cfg.Root, kcontext.Options{
		Log:                log,
		QuotaBytes:         cfg.QuotaBytes,
		ProcInodeCacheSize: cfg.ProcInodeCacheSize,
		RewriteTablePath:   cfg.RewriteTablePath,
	})
	if err != nil {
		fatalf("opening volume at %q: %v", cfg.Root, err)
	}
	return kc
}

// readAllStdin reads a command's code or data payload from stdin.
func readAllStdin() ([]byte, error) {
	return io.ReadAll(os.Stdin)
}
