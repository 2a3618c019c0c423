// Package conviction computes the pure integer conviction score EntryEngine
// tiers a mint by, plus the process-wide cohort-hit and deployer-history
// state the score's optional boosts read.
package conviction

import (
	"sync"

	"github.com/nexus-trading/launchguard/internal/pipeline"
)

// Input bundles the snapshot with the two optional boost signals the
// scorer needs but does not itself own.
type Input struct {
	Snapshot           pipeline.Snapshot
	CohortBoostEligible bool
	CohortBoostAmount  int
	DeployerGoodRate   float64 // 0 when unknown
}

// Score returns the integer conviction score, clamped to [0,100], summed
// from non-cumulative tiered buckets.
func Score(in Input) int {
	score := 0

	switch {
	case in.Snapshot.Buyers >= 8:
		score += 30
	case in.Snapshot.Buyers >= 6:
		score += 20
	}

	switch {
	case in.Snapshot.UniqueFunders >= 6:
		score += 20
	case in.Snapshot.UniqueFunders >= 5:
		score += 15
	}

	switch {
	case in.Snapshot.PriceJumps >= 2:
		score += 20
	case in.Snapshot.PriceJumps >= 1:
		score += 10
	}

	switch {
	case in.Snapshot.DepthEst >= 0.35:
		score += 20
	case in.Snapshot.DepthEst >= 0.30:
		score += 10
	}

	if in.Snapshot.SameFunderRatio > 0.60 {
		score -= 20
	}

	if in.CohortBoostEligible {
		score += in.CohortBoostAmount
	}

	switch {
	case in.DeployerGoodRate >= 0.8:
		score += 15
	case in.DeployerGoodRate >= 0.6:
		score += 10
	case in.DeployerGoodRate >= 0.4:
		score += 5
	}

	return clamp(score, 0, 100)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Cohort tracks recent "smart money" hits per mint: a process-wide mapping
// mint -> lastHitTs, written by the watcher whenever a parsed buyer
// matches a configured set of tracked addresses. Grounded on
// copytrade.Tracker's wallet-hit bookkeeping, simplified to the single
// signal the score needs.
type Cohort struct {
	mu        sync.RWMutex
	addresses map[string]bool
	lastHitTs map[string]int64
}

func NewCohort(addresses []string) *Cohort {
	set := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		set[a] = true
	}
	return &Cohort{addresses: set, lastHitTs: make(map[string]int64)}
}

// RecordIfMatch records a hit for mint iff buyer is in the tracked set.
// Returns true if a hit was recorded.
func (c *Cohort) RecordIfMatch(mint, buyer string, tsMs int64) bool {
	if buyer == "" || !c.addresses[buyer] {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHitTs[mint] = tsMs
	return true
}

// BoostEligible reports whether mint had a cohort hit within decaySec of
// nowMs.
func (c *Cohort) BoostEligible(mint string, nowMs int64, decaySec int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hitTs, ok := c.lastHitTs[mint]
	if !ok {
		return false
	}
	return nowMs-hitTs <= int64(decaySec)*1000
}

// DeployerStats tracks each creator's historical "good outcome" rate,
// consulted by Score's deployerBoost bucket. It is updated out-of-band
// (e.g. by the store replaying historical accepts/rejects), not by the
// scorer itself.
type DeployerStats struct {
	mu    sync.RWMutex
	rates map[string]float64
}

func NewDeployerStats() *DeployerStats {
	return &DeployerStats{rates: make(map[string]float64)}
}

func (d *DeployerStats) GoodRate(creator string) float64 {
	if creator == "" {
		return 0
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rates[creator]
}

func (d *DeployerStats) SetGoodRate(creator string, rate float64) {
	if creator == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rates[creator] = rate
}
