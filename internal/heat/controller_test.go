package heat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexus-trading/launchguard/internal/pipeline"
)

func baseConfig() Config {
	return Config{
		Enabled:         true,
		WindowMin:       15,
		MinAcceptsPerHr: 2,
		MaxAcceptsPerHr: 40,
		LoosenScore:     10,
		LoosenBuyers:    1,
		TightenScore:    10,
		TightenBuyers:   1,
		FloorScore:      40,
		CeilScore:       95,
		FloorBuyers:     3,
		CeilBuyers:      12,
		BaseMinScore:    60,
		BaseApexScore:   80,
		BaseMinBuyers:   4,
		BaseMinUnique:   3,
	}
}

func TestAcceptsPerHour_EmptyIsZero(t *testing.T) {
	c := New(baseConfig())
	assert.Zero(t, c.AcceptsPerHour(1_000_000))
}

func TestAcceptsPerHour_CountsDistinctMintsInWindow(t *testing.T) {
	c := New(baseConfig())
	now := int64(10 * 60000)
	c.RecordAccept("mintA", now)
	c.RecordAccept("mintB", now)
	c.RecordAccept("mintA", now) // same mint again, should not double count

	rate := c.AcceptsPerHour(now)
	assert.InDelta(t, 2*(60.0/15.0), rate, 0.001)
}

func TestBand_ColdWhenBelowMin(t *testing.T) {
	c := New(baseConfig())
	assert.Equal(t, pipeline.BandCold, c.Band(1_000_000))
}

func TestBand_HotWhenAboveMax(t *testing.T) {
	c := New(baseConfig())
	now := int64(5 * 60000)
	for i := 0; i < 20; i++ {
		c.RecordAccept(mintName(i), now)
	}
	assert.Equal(t, pipeline.BandHot, c.Band(now))
}

func TestBand_NeutralInBand(t *testing.T) {
	c := New(baseConfig())
	now := int64(5 * 60000)
	c.RecordAccept("mintA", now)
	assert.Equal(t, pipeline.BandNeutral, c.Band(now))
}

func TestEffectiveThresholds_ColdLoosens(t *testing.T) {
	c := New(baseConfig())
	th := c.EffectiveThresholds(1_000_000)
	assert.Equal(t, pipeline.BandCold, th.Band)
	assert.Less(t, th.MinScore, 60)
	// The COLD buyers floor of 5 outranks the loosened base of 4-1=3.
	assert.Equal(t, 5, th.MinBuyers)
}

func TestEffectiveThresholds_HotTightens(t *testing.T) {
	c := New(baseConfig())
	now := int64(5 * 60000)
	for i := 0; i < 20; i++ {
		c.RecordAccept(mintName(i), now)
	}
	th := c.EffectiveThresholds(now)
	assert.Equal(t, pipeline.BandHot, th.Band)
	assert.Greater(t, th.MinScore, 60)
	assert.Greater(t, th.MinBuyers, 4)
}

func TestEffectiveThresholds_RespectsCeilAndFloor(t *testing.T) {
	cfg := baseConfig()
	cfg.TightenScore = 1000
	c := New(cfg)
	now := int64(5 * 60000)
	for i := 0; i < 20; i++ {
		c.RecordAccept(mintName(i), now)
	}
	th := c.EffectiveThresholds(now)
	assert.LessOrEqual(t, th.MinScore, cfg.CeilScore)
}

func TestAdvance_BucketsRollOffOutsideWindow(t *testing.T) {
	c := New(baseConfig())
	c.RecordAccept("mintA", 0)

	later := int64(20 * 60000) // past the 15-min window
	rate := c.AcceptsPerHour(later)
	assert.Zero(t, rate)
}

func TestBand_DisabledStaysNeutralEvenWhenHot(t *testing.T) {
	cfg := baseConfig()
	cfg.Enabled = false
	c := New(cfg)
	now := int64(5 * 60000)
	for i := 0; i < 20; i++ {
		c.RecordAccept(mintName(i), now)
	}
	assert.Equal(t, pipeline.BandNeutral, c.Band(now))
}

func TestEffectiveThresholds_DisabledAppliesNoDeltas(t *testing.T) {
	cfg := baseConfig()
	cfg.Enabled = false
	c := New(cfg)
	now := int64(5 * 60000)
	for i := 0; i < 20; i++ {
		c.RecordAccept(mintName(i), now)
	}
	th := c.EffectiveThresholds(now)
	assert.Equal(t, pipeline.BandNeutral, th.Band)
	assert.Equal(t, cfg.BaseMinScore, th.MinScore)
	assert.Equal(t, cfg.BaseApexScore, th.ApexScore)
	assert.Equal(t, cfg.BaseMinBuyers, th.MinBuyers)
	assert.Equal(t, cfg.BaseMinUnique, th.MinUnique)
}

func mintName(i int) string {
	return "mint" + string(rune('A'+i%26)) + string(rune('0'+i/26))
}
