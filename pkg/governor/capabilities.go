package governor

import (
	"fmt"
	"strings"

	"github.com/syndtr/gocapability/capability"

	"github.com/ghartrid/geology/pkg/geoerr"
)

// defaultAllowedCapabilities is the grant allow-list used when Options
// doesn't override it: a small set of capabilities that don't let code
// touch anything this system treats as destructive.
func defaultAllowedCapabilities() []string {
	return []string{
		"CAP_CHOWN",
		"CAP_FOWNER",
		"CAP_SETUID",
		"CAP_SETGID",
		"CAP_NET_BIND_SERVICE",
	}
}

// defaultDestructiveCapabilities names the capabilities whose mere
// presence in a requested capability vector is grounds for an
// unconditional decline, per spec.md §4.6: capabilities that amount to
// "bypass every protection the Geology's append-only contract depends
// on" (overriding file permission checks, administrative control, or
// killing the process that's supposed to be auditing the code).
func defaultDestructiveCapabilities() []string {
	return []string{
		"CAP_SYS_ADMIN",
		"CAP_DAC_OVERRIDE",
		"CAP_KILL",
	}
}

// capForName resolves an OCI capability string (e.g. "CAP_SYS_ADMIN") to
// the gocapability enum value with the matching name, validating that it
// is a real Linux capability rather than an invented string, per
// SPEC_FULL.md's "capability names are real OCI capability strings, not
// invented ones."
func capForName(name string) (capability.Cap, bool) {
	want := strings.ToLower(strings.TrimPrefix(strings.ToUpper(name), "CAP_"))
	for _, c := range capability.List() {
		if c.String() == want {
			return c, true
		}
	}
	return 0, false
}

// capabilitySet validates every name in names and returns the set of
// upper-cased names as a lookup map. A name given without the "CAP_"
// prefix is stored without it.
func capabilitySet(names []string) (map[string]bool, error) {
	out := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := capForName(name); !ok {
			return nil, fmt.Errorf("governor: unknown capability %q: %w", name, geoerr.ErrInvalidArgument)
		}
		out[strings.ToUpper(name)] = true
	}
	return out, nil
}
