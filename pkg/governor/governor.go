// Package governor implements the code-admission and audit subsystem of
// spec.md §4.6: every piece of code entering the system is evaluated
// against a destructive-byte-pattern table and a declared capability
// vector, and every decision — approve, decline, or modify(substitute) —
// is written into the Geology as an immutable audit record before it is
// actionable.
//
// The Governor owns no persistent state of its own (spec.md §3's
// "Ownership" note); everything it remembers — the pattern table, the
// audit log, the next record id — is read back from the *geofs.Volume it
// was constructed against.
package governor

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/ghartrid/geology/pkg/content"
	"github.com/ghartrid/geology/pkg/geoerr"
	"github.com/ghartrid/geology/pkg/geofs"
	"github.com/ghartrid/geology/pkg/geolog"
)

const (
	patternsPath = "/governor/policy/patterns"
	auditDir     = "/governor/audit"

	reasonForbiddenCapability = "forbidden-capability"
	reasonDestructivePattern  = "destructive-pattern"
)

// Decision is one of the three terminal outcomes of spec.md §4.6's
// evaluate contract.
type Decision uint8

const (
	DecisionApprove Decision = iota
	DecisionDecline
	DecisionModify
)

func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "approve"
	case DecisionDecline:
		return "decline"
	case DecisionModify:
		return "modify"
	default:
		return "unknown"
	}
}

// Outcome is the side-effect-free result of Evaluate. Recording it (via
// Record or Submit) is a separate step, per spec.md §4.6's "Evaluation is
// side-effect free until record succeeds."
type Outcome struct {
	Decision   Decision
	Reason     string
	CodeDigest content.Digest
	Requested  []string
	Granted    []string
	Substitute []byte // populated only when Decision == DecisionModify
}

// Record is the immutable audit record of spec.md §3's Governor record
// glossary entry, written under auditDir and never updated.
type Record struct {
	ID               uint64
	Decision         Decision
	CodeDigest       content.Digest
	SubstituteDigest content.Digest // zero value when Decision != DecisionModify
	Requested        []string
	Granted          []string
	Reason           string
	Timestamp        int64
	Actor            string
}

// Options configures an Evaluator.
type Options struct {
	Log geolog.Logger

	// AllowedCapabilities is the grant allow-list; nil selects a small
	// built-in default. Every name must be a real OCI capability string
	// recognized by syndtr/gocapability.
	AllowedCapabilities []string

	// DestructiveCapabilities names the capabilities that, if requested
	// at all, cause an unconditional decline regardless of the code
	// bytes. nil selects a small built-in default.
	DestructiveCapabilities []string

	// RewriteRules maps a hex-encoded destructive pattern to the rule
	// that can rewrite it into safe replacement code. A pattern absent
	// from this map always declines on match; it is never used to
	// generate a modify decision. Load with LoadRewriteTable.
	RewriteRules map[string]RewriteRule

	// Now stamps Record.Timestamp; nil uses time.Now().UnixNano(). Tests
	// supply a fixed clock for deterministic records.
	Now func() int64
}

// Evaluator is the Governor: it evaluates code against the volume's
// policy and records every decision back into that same volume.
type Evaluator struct {
	vol *geofs.Volume
	log geolog.Logger
	now func() int64

	mu       sync.Mutex
	version  int
	patterns [][]byte
	nextID   uint64

	allowlist   map[string]bool
	destructive map[string]bool
	rewrites    map[string]RewriteRule

	retry func() backoff.BackOff
}

// NewEvaluator constructs an Evaluator against vol, loading (or, for a
// fresh volume, seeding) the destructive-pattern table and resuming the
// audit record-id counter from the highest id already recorded.
func NewEvaluator(vol *geofs.Volume, opts Options) (*Evaluator, error) {
	log := opts.Log
	if log == nil {
		log = geolog.New(nil, "text", false)
	}
	log = geolog.Component(log, "governor")

	allowed := opts.AllowedCapabilities
	if allowed == nil {
		allowed = defaultAllowedCapabilities()
	}
	destructive := opts.DestructiveCapabilities
	if destructive == nil {
		destructive = defaultDestructiveCapabilities()
	}

	allowSet, err := capabilitySet(allowed)
	if err != nil {
		return nil, err
	}
	destructSet, err := capabilitySet(destructive)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().UnixNano() }
	}

	e := &Evaluator{
		vol:         vol,
		log:         log,
		now:         now,
		allowlist:   allowSet,
		destructive: destructSet,
		rewrites:    opts.RewriteRules,
		retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 2 * time.Second
			return b
		},
	}

	version, patterns, err := e.loadOrInitPatterns()
	if err != nil {
		return nil, err
	}
	e.version = version
	e.patterns = patterns

	id, err := e.scanNextRecordID()
	if err != nil {
		return nil, err
	}
	e.nextID = id

	return e, nil
}

func (e *Evaluator) loadOrInitPatterns() (int, [][]byte, error) {
	data, err := e.vol.Read(patternsPath)
	if err != nil {
		if errors.Is(err, geoerr.ErrNotFound) {
			patterns := defaultPatterns()
			if werr := e.vol.Write(patternsPath, encodePatternTable(1, patterns)); werr != nil {
				return 0, nil, werr
			}
			return 1, patterns, nil
		}
		return 0, nil, err
	}
	return decodePatternTable(data)
}

func (e *Evaluator) scanNextRecordID() (uint64, error) {
	entries, err := e.vol.List(auditDir)
	if err != nil {
		if errors.Is(err, geoerr.ErrNotFound) {
			return 1, nil
		}
		return 0, err
	}
	var max uint64
	for _, ent := range entries {
		id, err := strconv.ParseUint(path.Base(ent.Path), 10, 64)
		if err != nil {
			continue
		}
		if id > max {
			max = id
		}
	}
	return max + 1, nil
}

// Evaluate applies the decision rule of spec.md §4.6 to code, given the
// capabilities it declares wanting. It performs no I/O and writes no
// audit record — call Record (or Submit) to make a decision actionable.
func (e *Evaluator) Evaluate(code []byte, requested specs.LinuxCapabilities) Outcome {
	digest := content.Sum(code)
	names := allCapabilityNames(requested)

	if e.hasDestructiveCapability(names) {
		return Outcome{Decision: DecisionDecline, Reason: reasonForbiddenCapability, CodeDigest: digest, Requested: names}
	}

	e.mu.Lock()
	patterns := e.patterns
	rewrites := e.rewrites
	e.mu.Unlock()

	for _, p := range patterns {
		if len(p) == 0 || !bytes.Contains(code, p) {
			continue
		}
		if rule, ok := rewrites[hex.EncodeToString(p)]; ok {
			if substitute, err := rule.Apply(code); err == nil {
				return Outcome{
					Decision: DecisionModify, Reason: reasonDestructivePattern,
					CodeDigest: digest, Requested: names, Substitute: substitute,
				}
			} else {
				e.log.WithField("pattern", hex.EncodeToString(p)).Warn("rewrite rule failed to apply, declining instead")
			}
		}
		return Outcome{Decision: DecisionDecline, Reason: reasonDestructivePattern, CodeDigest: digest, Requested: names}
	}

	return Outcome{Decision: DecisionApprove, CodeDigest: digest, Requested: names, Granted: e.intersectAllowed(names)}
}

// Record persists outcome as a new, immutable audit record attributed to
// actor, retrying transient failures before surfacing io-error. The record
// is written into the working view and then sealed with a snapshot, so it
// survives a reopen and becomes visible in the current view (ListAudit);
// that snapshot also seals any other pending writes in the working view.
// Per spec.md §4.6, if this fails the decision was never actionable: the
// caller must retry or treat the code as declined.
func (e *Evaluator) Record(outcome Outcome, actor string) (Record, error) {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.mu.Unlock()

	rec := Record{
		ID:         id,
		Decision:   outcome.Decision,
		CodeDigest: outcome.CodeDigest,
		Requested:  outcome.Requested,
		Granted:    outcome.Granted,
		Reason:     outcome.Reason,
		Timestamp:  e.now(),
		Actor:      actor,
	}
	if outcome.Decision == DecisionModify {
		rec.SubstituteDigest = content.Sum(outcome.Substitute)
	}

	payload := encodeRecord(rec)
	recPath := fmt.Sprintf("%s/%020d", auditDir, id)
	err := backoff.Retry(func() error {
		if err := e.vol.Write(recPath, payload); err != nil {
			return err
		}
		_, err := e.vol.Snapshot(fmt.Sprintf("governor-audit-%d", id))
		return err
	}, e.retry())
	if err != nil {
		return Record{}, fmt.Errorf("governor: record %d: %w: %v", id, geoerr.ErrIOError, err)
	}
	return rec, nil
}

// Submit evaluates code and records the outcome in one call, the
// convenience entry point `geoctl submit` uses so no caller can observe
// an Outcome without a matching durable record.
func (e *Evaluator) Submit(code []byte, requested specs.LinuxCapabilities, actor string) (Record, error) {
	outcome := e.Evaluate(code, requested)
	return e.Record(outcome, actor)
}

// ListAudit returns every audit record in record-id order, for `geoctl
// audit`.
func (e *Evaluator) ListAudit() ([]Record, error) {
	entries, err := e.vol.List(auditDir)
	if err != nil {
		if errors.Is(err, geoerr.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	out := make([]Record, 0, len(entries))
	for _, ent := range entries {
		b, err := e.vol.Read(ent.Path)
		if err != nil {
			return nil, err
		}
		rec, err := decodeRecord(b)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SetPatterns replaces the destructive-pattern table and seals a new view
// over it, per spec.md §6's "Updating the policy requires a new view
// snapshot; historical evaluations remain reproducible against the policy
// in force at their recording time."
func (e *Evaluator) SetPatterns(patterns [][]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	version := e.version + 1
	if err := e.vol.Write(patternsPath, encodePatternTable(version, patterns)); err != nil {
		return err
	}
	if _, err := e.vol.Snapshot(fmt.Sprintf("governor-policy-v%d", version)); err != nil {
		return err
	}
	e.version = version
	e.patterns = patterns
	return nil
}

// PolicyVersion implements procfs.PolicyInfo for /proc/constitution.
func (e *Evaluator) PolicyVersion() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fmt.Sprintf("v%d", e.version)
}

// PatternDigest implements procfs.PolicyInfo for /proc/constitution.
func (e *Evaluator) PatternDigest() string {
	e.mu.Lock()
	version, patterns := e.version, e.patterns
	e.mu.Unlock()
	return content.Sum(encodePatternTable(version, patterns)).String()
}

func allCapabilityNames(c specs.LinuxCapabilities) []string {
	seen := make(map[string]bool)
	var out []string
	for _, set := range [][]string{c.Bounding, c.Effective, c.Inheritable, c.Permitted, c.Ambient} {
		for _, name := range set {
			u := strings.ToUpper(name)
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	sort.Strings(out)
	return out
}

func (e *Evaluator) hasDestructiveCapability(names []string) bool {
	for _, n := range names {
		if e.destructive[n] {
			return true
		}
	}
	return false
}

func (e *Evaluator) intersectAllowed(names []string) []string {
	var granted []string
	for _, n := range names {
		if e.allowlist[n] {
			granted = append(granted, n)
		}
	}
	return granted
}
