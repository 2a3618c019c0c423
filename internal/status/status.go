// Package status builds the read-only status snapshot and serves it over
// HTTP, grounded on observability.HealthMonitor's point-in-time
// SystemHealth snapshot, generalized from a registered-check aggregate
// into a fixed set of pipeline-specific sections (feed, decisions,
// microstructure, alerts) because this snapshot's sources are the
// pipeline's own components, not independently registered checks.
package status

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nexus-trading/launchguard/internal/alert"
	"github.com/nexus-trading/launchguard/internal/entry"
	"github.com/nexus-trading/launchguard/internal/feedcounters"
	"github.com/nexus-trading/launchguard/internal/microstructure"
	"github.com/nexus-trading/launchguard/internal/pipeline"
)

// SchemaVersion is the status response's schema version.
const SchemaVersion = 1

// FeedStatus reports subscription health and per-origin counters.
type FeedStatus struct {
	SubscribedPrograms int64                                     `json:"subscribed_programs"`
	Origins            map[pipeline.Origin]feedcounters.OriginCounters `json:"origins"`
}

// DecisionStats reports decision counters since the last summary-alert
// drain and recent activity. Counts come from Notifier.PeekSummary, a
// non-draining read, so hitting /status repeatedly never steals counts
// from the periodic summary alert; they are not a strict rolling 24h
// window, just whatever has accumulated since that alert last fired.
type DecisionStats struct {
	AcceptsDryRun24h int64           `json:"accepts_dry_run_24h"`
	Rejects24h       int64           `json:"rejects_24h"`
	SoftRejects24h   int64           `json:"soft_rejects_24h"`
	Pending          int             `json:"pending"`
	Last10           []entry.Record  `json:"last_10_decisions"`
	Last10Accepted   []entry.Record  `json:"last_10_accepted"`
}

// MicrostructureSummary reports aggregate tracker state.
type MicrostructureSummary struct {
	TrackedMints int   `json:"tracked_mints"`
	Dropped      int64 `json:"dropped"`
}

// AlertMetadata reports the notifier's own health, not alert content.
type AlertMetadata struct {
	LastAlertTs time.Time `json:"last_alert_ts"`
	Dropped     int64     `json:"dropped"`
}

// Snapshot is the full read-only status response.
type Snapshot struct {
	SchemaVersion int `json:"schema_version"`

	// Positions, realized PnL, and active halts belong to the order
	// execution component, which this pipeline does not implement; these
	// fields report their out-of-scope zero values rather than being
	// omitted, so clients can rely on a stable response shape.
	OpenPositions    int     `json:"open_positions"`
	RealizedPnLToday float64 `json:"realized_pnl_today_sol"`
	ActiveHalts      int     `json:"active_halts"`

	Feed            FeedStatus            `json:"feed"`
	Decisions       DecisionStats         `json:"decisions"`
	Microstructure  MicrostructureSummary `json:"microstructure"`
	Alerts          AlertMetadata         `json:"alerts"`
}

// Collector gathers a Snapshot from the live pipeline components.
type Collector struct {
	counters *feedcounters.Counters
	micro    *microstructure.Tracker
	engine   *entry.Engine
	notifier *alert.Notifier
}

func NewCollector(counters *feedcounters.Counters, micro *microstructure.Tracker, engine *entry.Engine, notifier *alert.Notifier) *Collector {
	return &Collector{counters: counters, micro: micro, engine: engine, notifier: notifier}
}

func (c *Collector) Snapshot() Snapshot {
	summary := c.notifier.PeekSummary()
	last10 := c.engine.RecentDecisions(10)

	var last10Accepted []entry.Record
	for i := len(last10) - 1; i >= 0 && len(last10Accepted) < 10; i-- {
		d := last10[i].Decision
		if d == pipeline.DecisionAcceptedSmall || d == pipeline.DecisionAcceptedApex {
			last10Accepted = append(last10Accepted, last10[i])
		}
	}

	return Snapshot{
		SchemaVersion: SchemaVersion,
		Feed: FeedStatus{
			SubscribedPrograms: c.counters.SubscribedPrograms(),
			Origins:            c.counters.Snapshot(),
		},
		Decisions: DecisionStats{
			AcceptsDryRun24h: summary[string(pipeline.DecisionAcceptedSmall)] + summary[string(pipeline.DecisionAcceptedApex)],
			Rejects24h:       summary[string(pipeline.DecisionRejectedFatal)],
			SoftRejects24h:   summary[string(pipeline.DecisionRejectedSoft)],
			Pending:          c.engine.PendingCount(),
			Last10:           last10,
			Last10Accepted:   last10Accepted,
		},
		Microstructure: MicrostructureSummary{
			TrackedMints: c.micro.TrackedMintCount(),
			Dropped:      c.micro.Dropped(),
		},
		Alerts: AlertMetadata{
			LastAlertTs: c.notifier.LastAlertTs(),
			Dropped:     c.notifier.Dropped(),
		},
	}
}

// Server exposes the status snapshot and a health probe over HTTP.
type Server struct {
	collector *Collector
}

func NewServer(collector *Collector) *Server {
	return &Server{collector: collector}
}

// Router builds the mux.Router serving GET /status and GET /health.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.collector.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"ok": true, "version": SchemaVersion})
}
