// Package alert is the off-chain notification client contract: a
// non-blocking, buffered alert channel the core pipeline writes to and an
// external notifier drains, grounded on quality.Monitor's alertCh and
// observability.HealthMonitor's alert shape. The 5-minute summary timer
// described by the spec's design notes lives outside the core (in
// cmd/launchguard); Notifier exposes the pure counters that timer reads.
package alert

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Kind classifies an alert for rate-limiting and filtering purposes.
type Kind string

const (
	KindAccept      Kind = "accept"
	KindRejectFatal Kind = "reject_fatal"
	KindReconnect   Kind = "reconnect"
	KindSummary     Kind = "summary"
)

// Alert is one entry on the notification channel.
type Alert struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Mint      string    `json:"mint,omitempty"`
	Score     int       `json:"score,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
}

// Notifier owns the buffered alert channel and the side-effect-free
// counters the core exposes so it is testable without a live notification
// client.
type Notifier struct {
	ch chan Alert

	mu           sync.Mutex
	lastAlertAt  time.Time
	summaryCounts map[string]int64

	rateLimitSec int
	lastByKind   map[Kind]time.Time

	dropped atomic.Int64
}

func New(bufferSize, rateLimitSec int) *Notifier {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Notifier{
		ch:            make(chan Alert, bufferSize),
		summaryCounts: make(map[string]int64),
		lastByKind:    make(map[Kind]time.Time),
		rateLimitSec:  rateLimitSec,
	}
}

// Alerts returns the read-only channel an external notifier drains.
func (n *Notifier) Alerts() <-chan Alert {
	return n.ch
}

// Emit sends an alert without blocking; if the channel is full the alert
// is dropped and counted, not retried.
func (n *Notifier) Emit(kind Kind, mint string, score int, message string) {
	if n.rateLimited(kind) {
		return
	}

	a := Alert{
		ID:        uuid.New().String(),
		Kind:      kind,
		Mint:      mint,
		Score:     score,
		Message:   message,
		Timestamp: time.Now(),
	}

	n.mu.Lock()
	n.lastAlertAt = a.Timestamp
	n.mu.Unlock()

	select {
	case n.ch <- a:
	default:
		n.dropped.Add(1)
		log.Warn().Str("kind", string(kind)).Str("mint", mint).Msg("alert: channel full, dropping alert")
	}
}

func (n *Notifier) rateLimited(kind Kind) bool {
	if n.rateLimitSec <= 0 {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	last, ok := n.lastByKind[kind]
	now := time.Now()
	if ok && now.Sub(last) < time.Duration(n.rateLimitSec)*time.Second {
		return true
	}
	n.lastByKind[kind] = now
	return false
}

// BumpSummary increments the running count for a decision label; the
// external summary timer reads these via SummarySnapshot and resets them.
func (n *Notifier) BumpSummary(decision string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaryCounts[decision]++
}

// SummarySnapshot returns and clears the accumulated summary counts.
func (n *Notifier) SummarySnapshot() map[string]int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	snap := make(map[string]int64, len(n.summaryCounts))
	for k, v := range n.summaryCounts {
		snap[k] = v
	}
	n.summaryCounts = make(map[string]int64)
	return snap
}

// PeekSummary returns a copy of the accumulated summary counts without
// clearing them, for read-only callers (e.g. a status snapshot) that must
// not steal counts from the next SummarySnapshot drain.
func (n *Notifier) PeekSummary() map[string]int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	snap := make(map[string]int64, len(n.summaryCounts))
	for k, v := range n.summaryCounts {
		snap[k] = v
	}
	return snap
}

// LastAlertTs returns the timestamp of the most recently emitted alert.
func (n *Notifier) LastAlertTs() time.Time {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastAlertAt
}

// Dropped reports how many alerts were dropped due to a full channel.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}
