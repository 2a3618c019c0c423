// Package safety implements the pure-predicate safety check over a
// microstructure snapshot.
package safety

import "github.com/nexus-trading/launchguard/internal/pipeline"

const (
	minBuyers          = 4
	maxSameFunderRatio = 0.70
	minDepthEst        = 0.15
)

// Result is the outcome of a Check call.
type Result struct {
	Passed        bool
	FailReason    string
	SatisfiedRules []string
}

// Check evaluates the three safety rules against a snapshot. On failure
// the first violated rule short-circuits the rest, matching the spec's
// ordered fail-reason list.
func Check(snap pipeline.Snapshot) Result {
	if snap.Buyers < minBuyers {
		return Result{FailReason: "buyers<4"}
	}
	if snap.SameFunderRatio > maxSameFunderRatio {
		return Result{FailReason: "sameFunderRatio>0.70"}
	}
	if snap.DepthEst < minDepthEst {
		return Result{FailReason: "depthEst<0.15"}
	}
	return Result{
		Passed: true,
		SatisfiedRules: []string{"buyers>=4", "sameFunderRatio<=0.70", "depthEst>=0.15"},
	}
}
