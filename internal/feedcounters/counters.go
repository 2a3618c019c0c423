// Package feedcounters tracks process-wide monotonic event counters with a
// 24-hour reset, broken out per origin so the status snapshot can report
// per-origin event counts the way quality.Monitor reports per-feed stats.
package feedcounters

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexus-trading/launchguard/internal/pipeline"
)

// OriginCounters holds the rolling 24h counters for a single origin.
type OriginCounters struct {
	Events         int64 `json:"events"`
	ParseMisses    int64 `json:"parse_misses"`
	ValidationRejects int64 `json:"validation_rejects"`
	Duplicates     int64 `json:"duplicates"`
	LastEventAt    int64 `json:"last_event_at"`
}

type originEntry struct {
	counters  OriginCounters
	resetAt   int64
}

// Counters is the process-wide feed-counter registry.
type Counters struct {
	mu      sync.RWMutex
	origins map[pipeline.Origin]*originEntry

	subscribedPrograms atomic.Int64
}

func New() *Counters {
	return &Counters{origins: make(map[pipeline.Origin]*originEntry)}
}

func (c *Counters) getOrCreate(origin pipeline.Origin, now time.Time) *originEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.origins[origin]
	if !ok {
		entry = &originEntry{resetAt: now.Add(24 * time.Hour).Unix()}
		c.origins[origin] = entry
	}
	if now.Unix() >= entry.resetAt {
		entry.counters = OriginCounters{}
		entry.resetAt = now.Add(24 * time.Hour).Unix()
	}
	return entry
}

func (c *Counters) BumpEvent(origin pipeline.Origin) {
	now := time.Now()
	entry := c.getOrCreate(origin, now)
	c.mu.Lock()
	entry.counters.Events++
	entry.counters.LastEventAt = now.UnixMilli()
	c.mu.Unlock()
}

func (c *Counters) BumpParseMiss(origin pipeline.Origin) {
	now := time.Now()
	entry := c.getOrCreate(origin, now)
	c.mu.Lock()
	entry.counters.ParseMisses++
	c.mu.Unlock()
}

func (c *Counters) BumpValidationReject(origin pipeline.Origin) {
	now := time.Now()
	entry := c.getOrCreate(origin, now)
	c.mu.Lock()
	entry.counters.ValidationRejects++
	c.mu.Unlock()
}

func (c *Counters) BumpDuplicate(origin pipeline.Origin) {
	now := time.Now()
	entry := c.getOrCreate(origin, now)
	c.mu.Lock()
	entry.counters.Duplicates++
	c.mu.Unlock()
}

func (c *Counters) SetSubscribedPrograms(n int) {
	c.subscribedPrograms.Store(int64(n))
}

func (c *Counters) SubscribedPrograms() int64 {
	return c.subscribedPrograms.Load()
}

// Snapshot returns a point-in-time copy of every origin's counters,
// suitable for a status endpoint's consistent read.
func (c *Counters) Snapshot() map[pipeline.Origin]OriginCounters {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[pipeline.Origin]OriginCounters, len(c.origins))
	for origin, entry := range c.origins {
		out[origin] = entry.counters
	}
	return out
}
