// Package entry implements EntryEngine, the per-mint decision state
// machine at the apex of the pipeline. It is grounded on
// execution.Order's per-order mutex and state-transition logging idiom,
// generalized from a fixed transition table to the spec's sequential
// gate algorithm because EntryEngine's transitions depend on externally
// supplied snapshot/threshold values, not just the current state and an
// incoming event.
package entry

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/launchguard/internal/alert"
	"github.com/nexus-trading/launchguard/internal/conviction"
	"github.com/nexus-trading/launchguard/internal/heat"
	"github.com/nexus-trading/launchguard/internal/microstructure"
	"github.com/nexus-trading/launchguard/internal/pipeline"
	"github.com/nexus-trading/launchguard/internal/safety"
	"github.com/nexus-trading/launchguard/internal/store"
)

// Config holds the entry.{...} knobs spec.md §6 enumerates.
type Config struct {
	ReevalCooldownSec int
	HoldTTLSec        int
	HoldMaxReevals    int
	AcceptCooldownSec int
	CohortBoostAmount int
	CohortDecaySec    int
}

// Recorder is the persistence contract EntryEngine writes accept/reject
// rows through. *store.Store satisfies it; tests substitute a fake.
type Recorder interface {
	UpsertEntryRecord(ctx context.Context, rec store.EntryOrder) error
}

// mintState is the per-mint decision state (spec §3 MintDecisionState).
type mintState struct {
	mu sync.Mutex

	firstSeenTs    int64
	lastEvalTs     int64
	reevalCount    int
	bestScore      int
	lastDecision   pipeline.Decision
	lastAcceptedTs int64
	stickyFatal    bool
	ttlExpired     bool
}

// Engine is the per-mint decision state machine.
type Engine struct {
	cfg Config

	micro         *microstructure.Tracker
	heat          *heat.Controller
	cohort        *conviction.Cohort
	deployerStats *conviction.DeployerStats
	recorder      Recorder
	notifier      *alert.Notifier

	statesMu sync.RWMutex
	states   map[string]*mintState

	recentMu sync.Mutex
	recent   []Record
}

// Record is one entry of the bounded recent-decision log the status
// snapshot reads from.
type Record struct {
	Mint     string
	Decision pipeline.Decision
	Score    int
	Ts       int64
}

const recentCap = 50

func (e *Engine) logDecision(mint string, decision pipeline.Decision, score int, ts int64) {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()
	e.recent = append(e.recent, Record{Mint: mint, Decision: decision, Score: score, Ts: ts})
	if len(e.recent) > recentCap {
		e.recent = e.recent[len(e.recent)-recentCap:]
	}
}

// RecentDecisions returns up to n of the most recent logged decisions,
// newest last.
func (e *Engine) RecentDecisions(n int) []Record {
	e.recentMu.Lock()
	defer e.recentMu.Unlock()
	if n > len(e.recent) {
		n = len(e.recent)
	}
	out := make([]Record, n)
	copy(out, e.recent[len(e.recent)-n:])
	return out
}

func New(cfg Config, micro *microstructure.Tracker, heatCtl *heat.Controller, cohort *conviction.Cohort,
	deployerStats *conviction.DeployerStats, recorder Recorder, notifier *alert.Notifier) *Engine {
	return &Engine{
		cfg:           cfg,
		micro:         micro,
		heat:          heatCtl,
		cohort:        cohort,
		deployerStats: deployerStats,
		recorder:      recorder,
		notifier:      notifier,
		states:        make(map[string]*mintState),
	}
}

func (e *Engine) getOrCreate(mint string, nowTs int64) *mintState {
	e.statesMu.Lock()
	defer e.statesMu.Unlock()
	s, ok := e.states[mint]
	if !ok {
		s = &mintState{firstSeenTs: nowTs}
		e.states[mint] = s
	}
	return s
}

// Evaluate runs one pass of the decision algorithm for mint. It is safe
// to call concurrently for different mints; concurrent calls for the same
// mint serialize on that mint's own lock, though the watcher's
// single-ingestion-task discipline means that should not normally happen.
func (e *Engine) Evaluate(ctx context.Context, mint string, origin pipeline.Origin, nowTs int64, creator string) {
	s := e.getOrCreate(mint, nowTs)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stickyFatal {
		return
	}

	if s.lastEvalTs > 0 && nowTs-s.lastEvalTs < int64(e.cfg.ReevalCooldownSec)*1000 {
		return
	}
	s.lastEvalTs = nowTs
	s.reevalCount++

	if s.lastDecision == pipeline.DecisionHold {
		ttlExceeded := e.cfg.HoldTTLSec > 0 && nowTs-s.firstSeenTs > int64(e.cfg.HoldTTLSec)*1000
		reevalExceeded := e.cfg.HoldMaxReevals > 0 && s.reevalCount >= e.cfg.HoldMaxReevals
		if ttlExceeded || reevalExceeded {
			s.lastDecision = pipeline.DecisionRejectedSoft
			s.ttlExpired = true
			e.notifier.BumpSummary(string(pipeline.DecisionRejectedSoft))
			e.logDecision(mint, pipeline.DecisionRejectedSoft, s.bestScore, nowTs)
			log.Debug().Str("mint", mint).Int("reevals", s.reevalCount).Msg("entry: hold TTL expired, soft reject")
			return
		}
	}

	snap := e.micro.Snapshot(mint)
	eff := e.heat.EffectiveThresholds(nowTs)

	if snap.Buyers < eff.MinBuyers || snap.UniqueFunders < eff.MinUnique {
		s.lastDecision = pipeline.DecisionHold
		return
	}

	if snap.SameFunderRatio > 0.75 {
		s.lastDecision = pipeline.DecisionRejectedFatal
		s.stickyFatal = true
		e.persist(ctx, mint, origin, nowTs, "rejected", "REJECT", "fatal: sameFunderRatio>0.75")
		e.notifier.Emit(alert.KindRejectFatal, mint, 0, "sameFunderRatio>0.75")
		e.notifier.BumpSummary(string(pipeline.DecisionRejectedFatal))
		e.logDecision(mint, pipeline.DecisionRejectedFatal, s.bestScore, nowTs)
		log.Warn().Str("mint", mint).Float64("same_funder_ratio", snap.SameFunderRatio).Msg("entry: fatal safety reject")
		return
	}

	sres := safety.Check(snap)
	if !sres.Passed {
		s.lastDecision = pipeline.DecisionRejectedSoft
		e.notifier.BumpSummary(string(pipeline.DecisionRejectedSoft))
		e.logDecision(mint, pipeline.DecisionRejectedSoft, s.bestScore, nowTs)
		return
	}

	score := conviction.Score(conviction.Input{
		Snapshot:            snap,
		CohortBoostEligible: e.cohort.BoostEligible(mint, nowTs, e.cfg.CohortDecaySec),
		CohortBoostAmount:   e.cfg.CohortBoostAmount,
		DeployerGoodRate:    e.deployerStats.GoodRate(creator),
	})
	if score > s.bestScore {
		s.bestScore = score
	}

	var tier pipeline.Tier
	switch {
	case score >= eff.ApexScore:
		tier = pipeline.TierApex
	case score >= eff.MinScore:
		tier = pipeline.TierSmall
	default:
		tier = pipeline.TierReject
	}

	if tier == pipeline.TierReject {
		s.lastDecision = pipeline.DecisionHold
		return
	}

	if tier == pipeline.TierApex && s.lastDecision == pipeline.DecisionAcceptedSmall &&
		nowTs-s.lastAcceptedTs < int64(e.cfg.AcceptCooldownSec)*1000 {
		return
	}

	alreadyAccepted := s.lastDecision == pipeline.DecisionAcceptedSmall || s.lastDecision == pipeline.DecisionAcceptedApex
	if alreadyAccepted && !(tier == pipeline.TierApex && s.lastDecision == pipeline.DecisionAcceptedSmall) {
		return
	}
	firstAccept := !alreadyAccepted

	sizeTier := "SMALL"
	newDecision := pipeline.DecisionAcceptedSmall
	if tier == pipeline.TierApex {
		sizeTier = "APEX"
		newDecision = pipeline.DecisionAcceptedApex
	}

	e.persist(ctx, mint, origin, nowTs, "dry_run", sizeTier, "")
	s.lastAcceptedTs = nowTs
	s.lastDecision = newDecision

	e.notifier.Emit(alert.KindAccept, mint, score, fmt.Sprintf("accepted %s score=%d", sizeTier, score))
	e.notifier.BumpSummary(string(newDecision))
	e.logDecision(mint, newDecision, score, nowTs)

	if firstAccept {
		e.heat.RecordAccept(mint, nowTs)
	}

	log.Info().Str("mint", mint).Str("tier", sizeTier).Int("score", score).
		Bool("first_accept", firstAccept).Msg("entry: accept decision")
}

func (e *Engine) persist(ctx context.Context, mint string, origin pipeline.Origin, nowTs int64, status, sizeTier, notes string) {
	if e.recorder == nil {
		return
	}
	rec := store.EntryOrder{
		Market:    mint,
		Status:    status,
		SizeTier:  sizeTier,
		Mint:      mint,
		Origin:    string(origin),
		DecidedTs: nowTs,
		Notes:     notes,
	}
	if err := e.recorder.UpsertEntryRecord(ctx, rec); err != nil {
		log.Error().Err(err).Str("mint", mint).Msg("entry: failed to persist decision")
	}
}

// PendingCount reports how many mints are currently in the hold state, for
// the status snapshot's "pending" figure.
func (e *Engine) PendingCount() int {
	e.statesMu.RLock()
	defer e.statesMu.RUnlock()
	n := 0
	for _, s := range e.states {
		s.mu.Lock()
		if s.lastDecision == pipeline.DecisionHold {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Decision reports the current decision label and best score for a mint,
// for tests and the status snapshot. Unknown mints report hold with a zero
// best score.
func (e *Engine) Decision(mint string) (pipeline.Decision, int) {
	e.statesMu.RLock()
	s, ok := e.states[mint]
	e.statesMu.RUnlock()
	if !ok {
		return pipeline.DecisionHold, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDecision, s.bestScore
}
