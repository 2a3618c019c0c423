// Package pipeline holds the data model shared by every stage of the
// launch detection and decision pipeline: origins, log events, parse
// results, and the microstructure snapshot derived from them.
package pipeline

// Origin is the launchpad program family that emitted a log line.
type Origin string

const (
	OriginPumpfun  Origin = "pumpfun"
	OriginLetsbonk Origin = "letsbonk"
	OriginMoonshot Origin = "moonshot"
	OriginRaydium  Origin = "raydium"
	OriginOrca     Origin = "orca"
)

// Origins lists the closed set of launchpad tags in fixed priority order.
var Origins = []Origin{OriginPumpfun, OriginLetsbonk, OriginMoonshot, OriginRaydium, OriginOrca}

// LogEvent is the ephemeral tuple the watcher hands to the parser.
type LogEvent struct {
	Timestamp       int64
	OriginProgramID string
	Origin          Origin
	RawLines        []string
	Signature       string
}

// EventKind classifies what a log batch appears to describe.
type EventKind string

const (
	EventCreate       EventKind = "create"
	EventBuy          EventKind = "buy"
	EventAddLiquidity EventKind = "addLiquidity"
	EventUnknown      EventKind = "unknown"
)

// ParseResult is what LogParser extracts from a batch of raw log lines.
// At most one of Mint, Buyer, Creator is meaningful per category; ReasonIfMiss
// is set only when no mint candidate survived.
type ParseResult struct {
	Kind         EventKind
	Mint         string
	Buyer        string
	Creator      string
	ReasonIfMiss string
}

// Hit reports whether a mint candidate was produced at all.
func (r ParseResult) Hit() bool { return r.Mint != "" }

// Event is one ring-buffer entry inside MicrostructureState.
type Event struct {
	Ts      int64
	RawLine string
	Funder  string
	Price   float64
	HasPrice bool
}

// Snapshot is the derived, read-only view of a mint's microstructure at a
// given instant.
type Snapshot struct {
	Mint             string
	Buyers           int
	UniqueFunders    int
	SameFunderRatio  float64
	PriceJumps       int
	DepthEst         float64
	LastTs           int64
}

// Tier is the conviction bucket EntryEngine assigns a mint to.
type Tier string

const (
	TierApex   Tier = "APEX"
	TierSmall  Tier = "SMALL"
	TierReject Tier = "REJECT"
)

// Decision is the label attached to a mint's decision state.
type Decision string

const (
	DecisionHold           Decision = "hold"
	DecisionRejectedSoft   Decision = "rejected_soft"
	DecisionRejectedFatal  Decision = "rejected_fatal"
	DecisionAcceptedSmall  Decision = "accepted_small"
	DecisionAcceptedApex   Decision = "accepted_apex"
)

// HeatBand is the market-temperature classification HeatController assigns.
type HeatBand string

const (
	BandCold    HeatBand = "COLD"
	BandNeutral HeatBand = "NEUTRAL"
	BandHot     HeatBand = "HOT"
)

// EffectiveThresholds are the heat-adjusted gates EntryEngine evaluates a
// mint against on a given call.
type EffectiveThresholds struct {
	Band      HeatBand
	MinScore  int
	ApexScore int
	MinBuyers int
	MinUnique int
}
