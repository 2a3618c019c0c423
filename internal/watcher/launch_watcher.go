// Package watcher implements LaunchWatcher: a multi-endpoint-failover
// WebSocket log subscriber that runs the full per-batch pipeline (parse,
// dedup, introspection, verification, microstructure, decision,
// persistence) for every logsNotification it receives. It is grounded on
// solana.WSMonitor's connect/subscribe/readLoop/reconnect-backoff idiom,
// generalized from a single-endpoint pool-event detector into a
// dual-endpoint failover subscriber that fans each notification through
// the decision pipeline instead of onto an output channel.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/launchguard/internal/alert"
	"github.com/nexus-trading/launchguard/internal/conviction"
	"github.com/nexus-trading/launchguard/internal/entry"
	"github.com/nexus-trading/launchguard/internal/feedcounters"
	"github.com/nexus-trading/launchguard/internal/logparser"
	"github.com/nexus-trading/launchguard/internal/microstructure"
	"github.com/nexus-trading/launchguard/internal/mintvalidator"
	"github.com/nexus-trading/launchguard/internal/pipeline"
	"github.com/nexus-trading/launchguard/internal/store"
	"github.com/nexus-trading/launchguard/internal/txintrospect"
)

const (
	dedupTTL           = 60 * time.Second
	errorWindow         = 30 * time.Second
	failoverErrorCount  = 3
	stableBeforeRevert  = 10 * time.Minute
	maxBackoff          = 30 * time.Second
)

// MintVerifyMode mirrors config.MintVerifyConfig.Mode.
type MintVerifyMode string

const (
	VerifyEager    MintVerifyMode = "eager"
	VerifyDeferred MintVerifyMode = "deferred"
	VerifyOff      MintVerifyMode = "off"
)

// ProgramSub is one deduplicated (programID, origin) subscription target.
type ProgramSub struct {
	ProgramID string
	Origin    pipeline.Origin
}

// BuildSubscriptions collects program IDs across the five origins in
// priority order and deduplicates while preserving first-origin
// assignment.
func BuildSubscriptions(byOrigin map[pipeline.Origin][]string) []ProgramSub {
	seen := make(map[string]bool)
	var subs []ProgramSub
	for _, origin := range pipeline.Origins {
		for _, pid := range byOrigin[origin] {
			if seen[pid] {
				continue
			}
			seen[pid] = true
			subs = append(subs, ProgramSub{ProgramID: pid, Origin: origin})
		}
	}
	return subs
}

// Config bundles everything the watcher needs to run the pipeline.
type Config struct {
	WSPrimary      string
	WSBackup       string
	Subscriptions  []ProgramSub
	VerifyMode     MintVerifyMode
	PingIntervalS  int
}

// Watcher is the multi-origin launch detection subscriber.
type Watcher struct {
	cfg Config

	validator    *mintvalidator.Validator
	introspector *txintrospect.Introspector
	micro        *microstructure.Tracker
	cohort       *conviction.Cohort
	entryEngine  *entry.Engine
	tokenStore   *store.Store
	counters     *feedcounters.Counters
	notifier     *alert.Notifier

	mu          sync.RWMutex
	conn        *websocket.Conn
	subByID     map[int]ProgramSub
	nextSubID   int
	onBackup    bool
	backupSince time.Time
	errorTimes  []time.Time

	dedupMu sync.Mutex
	dedup   map[string]time.Time
}

func New(cfg Config, validator *mintvalidator.Validator, introspector *txintrospect.Introspector,
	micro *microstructure.Tracker, cohort *conviction.Cohort, entryEngine *entry.Engine,
	tokenStore *store.Store, counters *feedcounters.Counters, notifier *alert.Notifier) *Watcher {
	return &Watcher{
		cfg:          cfg,
		validator:    validator,
		introspector: introspector,
		micro:        micro,
		cohort:       cohort,
		entryEngine:  entryEngine,
		tokenStore:   tokenStore,
		counters:     counters,
		notifier:     notifier,
		subByID:      make(map[int]ProgramSub),
		dedup:        make(map[string]time.Time),
	}
}

// Run blocks, reconnecting and resubscribing as needed, until ctx is
// cancelled.
func (w *Watcher) Run(ctx context.Context) {
	attempts := 0
	go w.dedupSweepLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			attempts++
			delay := backoffDelay(attempts)
			log.Warn().Err(err).Int("attempt", attempts).Dur("delay", delay).Msg("watcher: connect failed")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		attempts = 0

		w.counters.SetSubscribedPrograms(len(w.cfg.Subscriptions))
		for _, sub := range w.cfg.Subscriptions {
			if err := w.subscribe(sub); err != nil {
				log.Warn().Err(err).Str("program", sub.ProgramID).Msg("watcher: subscribe failed")
			}
		}

		w.readLoop(ctx)
		w.recordTransportError(ctx)
	}
}

func backoffDelay(attempts int) time.Duration {
	shift := attempts - 1
	if shift > 6 {
		shift = 6
	}
	if shift < 0 {
		shift = 0
	}
	d := time.Duration(1<<uint(shift)) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (w *Watcher) currentEndpoint() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.onBackup {
		return w.cfg.WSBackup
	}
	return w.cfg.WSPrimary
}

func (w *Watcher) connect(ctx context.Context) error {
	endpoint := w.currentEndpoint()
	if endpoint == "" {
		return fmt.Errorf("watcher: no endpoint configured for current set")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("watcher: dial %s: %w", endpoint, err)
	}

	w.mu.Lock()
	w.conn = conn
	w.subByID = make(map[int]ProgramSub)
	w.nextSubID = 0
	w.mu.Unlock()

	log.Info().Str("endpoint", endpoint).Msg("watcher: connected")
	return nil
}

func (w *Watcher) subscribe(sub ProgramSub) error {
	w.mu.Lock()
	conn := w.conn
	w.nextSubID++
	id := w.nextSubID
	w.subByID[id] = sub
	w.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("watcher: not connected")
	}

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "logsSubscribe",
		"params": []any{
			map[string]any{"mentions": []string{sub.ProgramID}},
			map[string]any{"commitment": "confirmed"},
		},
	}

	w.mu.Lock()
	err := conn.WriteJSON(req)
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("watcher: write subscribe: %w", err)
	}
	return nil
}

func (w *Watcher) readLoop(ctx context.Context) {
	pingInterval := time.Duration(w.cfg.PingIntervalS) * time.Second
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()
			if conn == nil {
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Msg("watcher: read error")
				return
			}
			w.handleMessage(ctx, message)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.disconnect()
			return
		case <-pingTicker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()
			if conn != nil {
				conn.WriteMessage(websocket.PingMessage, nil)
			}
		case <-done:
			w.disconnect()
			return
		}
	}
}

func (w *Watcher) disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}

func (w *Watcher) shutdown() {
	w.disconnect()
	if w.introspector != nil {
		w.introspector.Close()
	}
}

// recordTransportError records a transport error occurrence and applies
// the failover/revert rules.
func (w *Watcher) recordTransportError(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	cutoff := now.Add(-errorWindow)
	kept := w.errorTimes[:0]
	for _, t := range w.errorTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.errorTimes = append(kept, now)

	onBackup := w.onBackup
	errCount := len(w.errorTimes)
	backupSince := w.backupSince

	var switchTo string
	if !onBackup && errCount > failoverErrorCount && w.cfg.WSBackup != "" {
		w.onBackup = true
		w.backupSince = now
		w.errorTimes = nil
		switchTo = "backup"
	} else if onBackup && now.Sub(backupSince) > stableBeforeRevert {
		w.onBackup = false
		w.errorTimes = nil
		switchTo = "primary"
	}
	w.mu.Unlock()

	if switchTo != "" {
		log.Warn().Str("switch_to", switchTo).Msg("watcher: endpoint failover")
		w.notifier.Emit(alert.KindReconnect, "", 0, "endpoint switched to "+switchTo)
	}
}

func (w *Watcher) handleMessage(ctx context.Context, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("watcher: handleMessage panic recovered")
		}
	}()

	var notif struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Value struct {
					Signature string   `json:"signature"`
					Logs      []string `json:"logs"`
				} `json:"value"`
			} `json:"result"`
			Subscription int `json:"subscription"`
		} `json:"params"`
	}
	if err := json.Unmarshal(data, &notif); err != nil || notif.Method != "logsNotification" {
		return
	}

	w.mu.RLock()
	sub, ok := w.subByID[notif.Params.Subscription]
	w.mu.RUnlock()
	if !ok {
		return
	}

	w.processBatch(ctx, sub.Origin, notif.Params.Result.Value.Signature, notif.Params.Result.Value.Logs)
}

// processBatch runs the ordered per-batch pipeline for one notification:
// dedup, introspection, verification, microstructure, cohort hit,
// decision, persistence, counters.
func (w *Watcher) processBatch(ctx context.Context, origin pipeline.Origin, signature string, logs []string) {
	now := time.Now().UnixMilli()

	if signature != "" && w.seenSignature(signature) {
		w.counters.BumpDuplicate(origin)
		return
	}

	parseRes := logparser.Parse(logs, origin, w.validator.IsValidMint)
	mint := parseRes.Mint

	if !parseRes.Hit() {
		w.counters.BumpParseMiss(origin)
		if origin == pipeline.OriginPumpfun && w.introspector != nil && signature != "" {
			res := w.introspector.Introspect(ctx, signature, origin)
			if res.Hit() {
				mint = res.Mint
			}
		}
		if mint == "" {
			return
		}
	}

	if !w.passesMintVerification(ctx, mint) {
		w.counters.BumpValidationReject(origin)
		return
	}

	rawLine := ""
	if len(logs) > 0 {
		rawLine = logs[len(logs)-1]
	}
	result := w.micro.Track(mint, origin, now, rawLine, w.validator.IsValidMint)
	if result.Dropped {
		w.counters.BumpValidationReject(origin)
		return
	}

	if result.Funder != "" {
		w.cohort.RecordIfMatch(mint, result.Funder, now)
	}

	go w.entryEngine.Evaluate(ctx, mint, origin, now, parseRes.Creator)

	if w.tokenStore != nil {
		if err := w.tokenStore.UpsertToken(ctx, mint, string(origin), parseRes.Creator, now, now); err != nil {
			log.Error().Err(err).Str("mint", mint).Msg("watcher: token upsert failed")
		}
	}

	w.counters.BumpEvent(origin)
}

// passesMintVerification applies the configured verification mode. Eager
// mode fails closed on any validator error or negative verdict. Deferred
// mode skips the RPC round-trip while the mint has no observed events yet
// or its snapshot is already funder-concentrated (sameFunderRatio > 0.70);
// every other snapshot is verified, including one still below the
// observation gate's buyer and unique-funder thresholds, which this
// watcher does not read.
func (w *Watcher) passesMintVerification(ctx context.Context, mint string) bool {
	switch w.cfg.VerifyMode {
	case VerifyOff:
		return true
	case VerifyEager:
		return w.validator.IsRealMint(ctx, mint)
	case VerifyDeferred:
		snap := w.micro.Snapshot(mint)
		if snap.Buyers == 0 && snap.UniqueFunders == 0 {
			return true // not enough observation yet to gate on; defer
		}
		if snap.SameFunderRatio > 0.70 {
			return true // defer; EntryEngine's own gates will reject it anyway
		}
		return w.validator.IsRealMint(ctx, mint)
	default:
		return true
	}
}

func (w *Watcher) seenSignature(signature string) bool {
	w.dedupMu.Lock()
	defer w.dedupMu.Unlock()
	if ts, ok := w.dedup[signature]; ok && time.Since(ts) < dedupTTL {
		return true
	}
	w.dedup[signature] = time.Now()
	return false
}

func (w *Watcher) dedupSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(dedupTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.dedupMu.Lock()
			cutoff := time.Now().Add(-dedupTTL)
			for sig, ts := range w.dedup {
				if ts.Before(cutoff) {
					delete(w.dedup, sig)
				}
			}
			w.dedupMu.Unlock()
		}
	}
}
