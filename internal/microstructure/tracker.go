// Package microstructure tracks the per-mint rolling event ring and
// derives the Snapshot the rest of the decision pipeline reads.
package microstructure

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nexus-trading/launchguard/internal/pipeline"
)

const (
	maxEvents       = 100
	priceJumpPct    = 0.10
	changeDepthEps  = 0.02
	changeRatioEps  = 0.02
	minEmitInterval = 5 * time.Second
	defaultExpireTTL = 120 * time.Second
)

var pricePattern = regexp.MustCompile(`(?i)(?:price|p)[=:]\s*([0-9]*\.?[0-9]+)`)

// State is the per-mint microstructure state (spec §3 MicrostructureState).
type State struct {
	Origin      pipeline.Origin
	FirstSeenTs int64
	LastSeenTs  int64

	events       []pipeline.Event // bounded FIFO, max 100
	funderCounts map[string]int
	priceJumps   int

	lastPrice    float64
	hasLastPrice bool
	lastEmitTs   int64
	lastSnapshot pipeline.Snapshot
	hasSnapshot  bool
}

// Tracker owns every mint's microstructure State.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]*State

	dropped int64 // invalid-mint drops, for counters
}

func New() *Tracker {
	return &Tracker{states: make(map[string]*State)}
}

// TrackedMintCount reports how many mints currently have live microstructure
// state, for the status snapshot.
func (t *Tracker) TrackedMintCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.states)
}

// Dropped reports the cumulative count of Track calls rejected for an
// invalid mint.
func (t *Tracker) Dropped() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dropped
}

// TrackResult is the outcome of one Track call.
type TrackResult struct {
	Funder   string
	Snapshot pipeline.Snapshot
	Changed  bool
	Dropped  bool
}

// Track ingests one raw log line for a mint: validates the mint, updates
// the ring, derives a fresh snapshot, and reports whether the snapshot
// changed enough to be worth re-emitting.
func (t *Tracker) Track(mint string, origin pipeline.Origin, ts int64, rawLine string, isValidMint func(string) bool) TrackResult {
	if !isValidMint(mint) {
		t.mu.Lock()
		t.dropped++
		t.mu.Unlock()
		return TrackResult{Dropped: true}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.states[mint]
	if !ok {
		state = &State{
			Origin:       origin,
			FirstSeenTs:  ts,
			funderCounts: make(map[string]int),
		}
		t.states[mint] = state
	}
	state.LastSeenTs = ts

	funder := extractFunder(rawLine, mint, isValidMint)
	if funder != "" {
		state.funderCounts[funder]++
	}

	if price, ok := extractPrice(rawLine); ok {
		if state.hasLastPrice && state.lastPrice != 0 {
			delta := (price - state.lastPrice) / state.lastPrice
			if delta < 0 {
				delta = -delta
			}
			if delta >= priceJumpPct {
				state.priceJumps++
			}
		}
		state.lastPrice = price
		state.hasLastPrice = true
	}

	state.events = append(state.events, pipeline.Event{Ts: ts, RawLine: rawLine, Funder: funder})
	if len(state.events) > maxEvents {
		state.events = state.events[1:]
	}

	snap := deriveSnapshot(mint, state)

	changed := !state.hasSnapshot ||
		snap.Buyers != state.lastSnapshot.Buyers ||
		snap.UniqueFunders != state.lastSnapshot.UniqueFunders ||
		snap.PriceJumps != state.lastSnapshot.PriceJumps ||
		absf(snap.DepthEst-state.lastSnapshot.DepthEst) >= changeDepthEps ||
		absf(snap.SameFunderRatio-state.lastSnapshot.SameFunderRatio) >= changeRatioEps ||
		(state.lastEmitTs != 0 && time.Duration(ts-state.lastEmitTs)*time.Millisecond > minEmitInterval)

	if changed {
		state.lastSnapshot = snap
		state.hasSnapshot = true
		state.lastEmitTs = ts
	}

	return TrackResult{Funder: funder, Snapshot: snap, Changed: changed}
}

// Snapshot performs a deterministic read; unknown mints yield a zero
// snapshot.
func (t *Tracker) Snapshot(mint string) pipeline.Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.states[mint]
	if !ok {
		return pipeline.Snapshot{Mint: mint}
	}
	return deriveSnapshot(mint, state)
}

// Expire removes every state whose LastSeenTs is older than now-ttl. A
// ttl <= 0 selects the default of 120s.
func (t *Tracker) Expire(nowTs int64, ttl time.Duration) int {
	if ttl <= 0 {
		ttl = defaultExpireTTL
	}
	cutoff := nowTs - ttl.Milliseconds()

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for mint, state := range t.states {
		if state.LastSeenTs < cutoff {
			delete(t.states, mint)
			removed++
		}
	}
	return removed
}

func deriveSnapshot(mint string, state *State) pipeline.Snapshot {
	buyers := len(state.events)
	uniqueFunders := len(state.funderCounts)

	sameFunderRatio := 0.0
	if buyers > 0 {
		maxCount := 0
		for _, c := range state.funderCounts {
			if c > maxCount {
				maxCount = c
			}
		}
		sameFunderRatio = float64(maxCount) / float64(buyers)
	}

	depthEst := float64(buyers) / 20.0
	if depthEst > 1 {
		depthEst = 1
	}
	if depthEst < 0 {
		depthEst = 0
	}

	return pipeline.Snapshot{
		Mint:            mint,
		Buyers:          buyers,
		UniqueFunders:   uniqueFunders,
		SameFunderRatio: sameFunderRatio,
		PriceJumps:      state.priceJumps,
		DepthEst:        depthEst,
		LastTs:          state.LastSeenTs,
	}
}

func extractFunder(rawLine, mint string, isValidMint func(string) bool) string {
	for _, tok := range base58TokenPattern.FindAllString(rawLine, -1) {
		if tok != mint && isValidMint(tok) {
			return tok
		}
	}
	return ""
}

var base58TokenPattern = regexp.MustCompile(`\b[a-zA-Z0-9]{32,44}\b`)

func extractPrice(rawLine string) (float64, bool) {
	m := pricePattern.FindStringSubmatch(rawLine)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
