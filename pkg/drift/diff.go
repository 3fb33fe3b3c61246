package drift

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/nopea/nopea/pkg/manifest"
)

// Outcome classifies a verification.
type Outcome string

const (
	NoDrift     Outcome = "no_drift"
	GitChange   Outcome = "git_change"
	ManualDrift Outcome = "manual_drift"
	Conflict    Outcome = "conflict"
	NewResource Outcome = "new_resource"
	NeedsApply  Outcome = "needs_apply"
)

// Result carries the classification and the manifests that produced it.
// Only the fields relevant to the outcome are populated.
type Result struct {
	Outcome Outcome `json:"outcome"`

	// git_change
	From manifest.Manifest `json:"from,omitempty"`
	To   manifest.Manifest `json:"to,omitempty"`

	// manual_drift
	Expected manifest.Manifest `json:"expected,omitempty"`
	Actual   manifest.Manifest `json:"actual,omitempty"`

	// conflict
	Last    manifest.Manifest `json:"last,omitempty"`
	Desired manifest.Manifest `json:"desired,omitempty"`
	Live    manifest.Manifest `json:"live,omitempty"`
}

// Clean reports whether the outcome requires no operator attention.
func (r Result) Clean() bool {
	return r.Outcome == NoDrift || r.Outcome == NewResource
}

// Hash is the SHA-256 of the compact JSON encoding of the normalized
// manifest, hex lowercase. Go's JSON encoder sorts map keys, which makes
// the encoding canonical.
func Hash(m manifest.Manifest) string {
	data, err := json.Marshal(Normalize(m))
	if err != nil {
		// Manifests come from YAML or the API server; both produce
		// JSON-representable values.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ThreeWayDiff classifies the drift among the last-applied, desired, and
// live copies of one resource.
//
//	git changed | cluster changed | outcome
//	     no     |       no        | no_drift
//	    yes     |       no        | git_change
//	     no     |      yes        | manual_drift
//	    yes     |      yes        | conflict
func ThreeWayDiff(lastApplied, desired, live manifest.Manifest) Result {
	lastHash := Hash(lastApplied)
	gitChanged := Hash(desired) != lastHash
	clusterChanged := Hash(live) != lastHash

	switch {
	case !gitChanged && !clusterChanged:
		return Result{Outcome: NoDrift}
	case gitChanged && !clusterChanged:
		return Result{Outcome: GitChange, From: lastApplied, To: desired}
	case !gitChanged && clusterChanged:
		return Result{Outcome: ManualDrift, Expected: lastApplied, Actual: live}
	default:
		return Result{Outcome: Conflict, Last: lastApplied, Desired: desired, Live: live}
	}
}
