// Package heat implements the closed-loop feedback controller that
// classifies current market temperature from the rolling accept rate and
// produces heat-adjusted effective thresholds for EntryEngine.
package heat

import (
	"sync"

	"github.com/nexus-trading/launchguard/internal/pipeline"
)

// Config mirrors config.HeatConfig without importing the config package,
// avoiding a needless dependency from this leaf package.
type Config struct {
	Enabled         bool
	WindowMin       int
	MinAcceptsPerHr float64
	MaxAcceptsPerHr float64
	LoosenScore     int
	LoosenBuyers    int
	TightenScore    int
	TightenBuyers   int
	FloorScore      int
	CeilScore       int
	FloorBuyers     int
	CeilBuyers      int

	BaseMinScore  int
	BaseApexScore int
	BaseMinBuyers int
	BaseMinUnique int
}

// Controller owns the minute-indexed ring of distinct mint-sets.
type Controller struct {
	cfg Config

	mu       sync.Mutex
	ringLen  int
	buckets  []map[string]bool
	lastTick int64 // last minute bucket index advanced to
}

func New(cfg Config) *Controller {
	ringLen := cfg.WindowMin
	if ringLen < 60 {
		ringLen = 60
	}
	buckets := make([]map[string]bool, ringLen)
	for i := range buckets {
		buckets[i] = make(map[string]bool)
	}
	return &Controller{cfg: cfg, ringLen: ringLen, buckets: buckets}
}

func minuteBucket(tsMs int64, ringLen int) int64 {
	return (tsMs / 60000) % int64(ringLen)
}

// advance zeroes out any minute buckets that have rolled past since the
// last recorded tick, so stale accepts don't linger in the window.
func (c *Controller) advance(tsMs int64) {
	minute := tsMs / 60000
	if c.lastTick == 0 {
		c.lastTick = minute
		return
	}
	if minute <= c.lastTick {
		return
	}
	steps := minute - c.lastTick
	if steps > int64(c.ringLen) {
		steps = int64(c.ringLen)
	}
	for i := int64(0); i < steps; i++ {
		idx := (c.lastTick + 1 + i) % int64(c.ringLen)
		c.buckets[idx] = make(map[string]bool)
	}
	c.lastTick = minute
}

// RecordAccept adds mint to the minute bucket for ts. Must be called at
// most once per mint per first accept (EntryEngine's responsibility, not
// this package's).
func (c *Controller) RecordAccept(mint string, tsMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance(tsMs)
	idx := minuteBucket(tsMs, c.ringLen)
	c.buckets[idx][mint] = true
}

// AcceptsPerHour unions the distinct mints across the last WindowMin
// minutes and scales to an hourly rate.
func (c *Controller) AcceptsPerHour(tsMs int64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.advance(tsMs)

	windowMin := c.cfg.WindowMin
	if windowMin <= 0 {
		windowMin = 15
	}
	if windowMin > c.ringLen {
		windowMin = c.ringLen
	}

	minute := tsMs / 60000
	union := make(map[string]bool)
	for i := int64(0); i < int64(windowMin); i++ {
		bucketMinute := minute - i
		idx := ((bucketMinute % int64(c.ringLen)) + int64(c.ringLen)) % int64(c.ringLen)
		for mint := range c.buckets[idx] {
			union[mint] = true
		}
	}
	return float64(len(union)) * (60.0 / float64(windowMin))
}

// Band classifies the current market temperature. A disabled controller
// never leaves neutral, so EffectiveThresholds never adjusts base gates.
func (c *Controller) Band(tsMs int64) pipeline.HeatBand {
	if !c.cfg.Enabled {
		return pipeline.BandNeutral
	}
	rate := c.AcceptsPerHour(tsMs)
	switch {
	case rate < c.cfg.MinAcceptsPerHr:
		return pipeline.BandCold
	case rate > c.cfg.MaxAcceptsPerHr:
		return pipeline.BandHot
	default:
		return pipeline.BandNeutral
	}
}

// EffectiveThresholds computes the heat-adjusted gates EntryEngine reads
// on every evaluation.
func (c *Controller) EffectiveThresholds(tsMs int64) pipeline.EffectiveThresholds {
	band := c.Band(tsMs)
	if !c.cfg.Enabled {
		return pipeline.EffectiveThresholds{
			Band:      band,
			MinScore:  c.cfg.BaseMinScore,
			ApexScore: c.cfg.BaseApexScore,
			MinBuyers: c.cfg.BaseMinBuyers,
			MinUnique: c.cfg.BaseMinUnique,
		}
	}

	var scoreDelta, buyersDelta int
	switch band {
	case pipeline.BandCold:
		scoreDelta, buyersDelta = -absInt(c.cfg.LoosenScore), -absInt(c.cfg.LoosenBuyers)
	case pipeline.BandHot:
		scoreDelta, buyersDelta = absInt(c.cfg.TightenScore), absInt(c.cfg.TightenBuyers)
	}

	floorScore := c.cfg.FloorScore
	if band == pipeline.BandCold && floorScore < 40 {
		floorScore = 40
	}
	minScore := clampInt(c.cfg.BaseMinScore+scoreDelta, floorScore, c.cfg.CeilScore)

	apexScore := clampInt(c.cfg.BaseApexScore, c.cfg.FloorScore, c.cfg.CeilScore)

	floorBuyers := c.cfg.FloorBuyers
	if band == pipeline.BandCold && floorBuyers < 5 {
		floorBuyers = 5
	}
	minBuyers := clampInt(c.cfg.BaseMinBuyers+buyersDelta, floorBuyers, c.cfg.CeilBuyers)

	var uniqueFloor int
	if band == pipeline.BandCold {
		uniqueFloor = maxInt(4, floorBuyers-1)
	} else {
		uniqueFloor = maxInt(0, c.cfg.FloorBuyers-1)
	}
	uniqueCeil := maxInt(0, c.cfg.CeilBuyers-2)
	minUnique := clampInt(c.cfg.BaseMinUnique+buyersDelta, uniqueFloor, uniqueCeil)

	return pipeline.EffectiveThresholds{
		Band:      band,
		MinScore:  minScore,
		ApexScore: apexScore,
		MinBuyers: minBuyers,
		MinUnique: minUnique,
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
