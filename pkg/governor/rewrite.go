package governor

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	evanjsonpatch "github.com/evanphx/json-patch"
	mattbairdjsonpatch "github.com/mattbaird/jsonpatch"

	"github.com/ghartrid/geology/pkg/geoerr"
)

// RewriteRule names one destructive byte pattern the Governor can rewrite
// into safe replacement code rather than declining outright, per spec.md
// §4.6's "unless a safe rewrite exists, in which case modify(substitute)"
// — this is the resolution SPEC_FULL.md picked for spec.md §9's second
// Open Question.
type RewriteRule struct {
	PatternHex string          `json:"pattern"`
	Patch      json.RawMessage `json:"patch"`
}

// rewriteEnvelope is the minimal JSON document a RewriteRule's patch is
// applied against: code wrapped as base64 so arbitrary binary content
// survives a JSON Patch round trip.
type rewriteEnvelope struct {
	Code string `json:"code"`
}

// Apply runs the rule's RFC 6902 JSON Patch (applied with
// evanphx/json-patch, the library mattbaird/jsonpatch's own patches are
// meant to be replayed with) against a {"code": base64(code)} envelope,
// and returns the patched code bytes.
func (r RewriteRule) Apply(code []byte) ([]byte, error) {
	envelope, err := json.Marshal(rewriteEnvelope{Code: base64.StdEncoding.EncodeToString(code)})
	if err != nil {
		return nil, fmt.Errorf("governor: build rewrite envelope: %w", err)
	}
	patch, err := evanjsonpatch.DecodePatch(r.Patch)
	if err != nil {
		return nil, fmt.Errorf("governor: decode rewrite patch: %w", err)
	}
	patched, err := patch.Apply(envelope)
	if err != nil {
		return nil, fmt.Errorf("governor: apply rewrite patch: %w", err)
	}
	var out rewriteEnvelope
	if err := json.Unmarshal(patched, &out); err != nil {
		return nil, fmt.Errorf("governor: decode patched envelope: %w", err)
	}
	substitute, err := base64.StdEncoding.DecodeString(out.Code)
	if err != nil {
		return nil, fmt.Errorf("governor: decode patched code: %w", err)
	}
	return substitute, nil
}

// GeneratePatch diffs the envelopes wrapping original and safe against
// each other with mattbaird/jsonpatch and returns the resulting RFC 6902
// JSON Patch, ready to store as a RewriteRule's Patch field. This is the
// authoring side of a rewrite rule; Apply (above) is the runtime side.
func GeneratePatch(original, safe []byte) (json.RawMessage, error) {
	before, err := json.Marshal(rewriteEnvelope{Code: base64.StdEncoding.EncodeToString(original)})
	if err != nil {
		return nil, fmt.Errorf("governor: marshal original envelope: %w", err)
	}
	after, err := json.Marshal(rewriteEnvelope{Code: base64.StdEncoding.EncodeToString(safe)})
	if err != nil {
		return nil, fmt.Errorf("governor: marshal safe envelope: %w", err)
	}
	ops, err := mattbairdjsonpatch.CreatePatch(before, after)
	if err != nil {
		return nil, fmt.Errorf("governor: create rewrite patch: %w", err)
	}
	patch, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("governor: marshal rewrite patch: %w", err)
	}
	return patch, nil
}

// LoadRewriteTable reads a JSON array of RewriteRule from path (the
// config's RewriteTablePath). A missing path disables modify entirely: an
// empty (nil) table means every pattern match declines, never rewrites.
func LoadRewriteTable(path string) (map[string]RewriteRule, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("governor: load rewrite table: %w: %v", geoerr.ErrIOError, err)
	}
	var rules []RewriteRule
	if err := json.Unmarshal(b, &rules); err != nil {
		return nil, fmt.Errorf("governor: parse rewrite table: %w: %v", geoerr.ErrInvalidArgument, err)
	}
	out := make(map[string]RewriteRule, len(rules))
	for _, r := range rules {
		if _, err := hex.DecodeString(r.PatternHex); err != nil {
			return nil, fmt.Errorf("governor: rewrite table pattern %q: %w", r.PatternHex, geoerr.ErrInvalidArgument)
		}
		out[r.PatternHex] = r
	}
	return out, nil
}
