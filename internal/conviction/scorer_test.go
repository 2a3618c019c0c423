package conviction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexus-trading/launchguard/internal/pipeline"
)

func TestScore_BuckesSumIndependently(t *testing.T) {
	score := Score(Input{Snapshot: pipeline.Snapshot{
		Buyers:        8,
		UniqueFunders: 6,
		PriceJumps:    2,
		DepthEst:      0.35,
	}})
	assert.Equal(t, 90, score)
}

func TestScore_FunderConcentrationPenalty(t *testing.T) {
	score := Score(Input{Snapshot: pipeline.Snapshot{SameFunderRatio: 0.9}})
	assert.Equal(t, 0, score) // clamped, not negative
}

func TestScore_CohortBoost(t *testing.T) {
	score := Score(Input{
		Snapshot:            pipeline.Snapshot{Buyers: 8},
		CohortBoostEligible: true,
		CohortBoostAmount:   15,
	})
	assert.Equal(t, 45, score)
}

func TestScore_DeployerGoodRateTiers(t *testing.T) {
	assert.Equal(t, 15, Score(Input{DeployerGoodRate: 0.9}))
	assert.Equal(t, 10, Score(Input{DeployerGoodRate: 0.65}))
	assert.Equal(t, 5, Score(Input{DeployerGoodRate: 0.45}))
	assert.Equal(t, 0, Score(Input{DeployerGoodRate: 0.1}))
}

func TestScore_ClampsAt100(t *testing.T) {
	score := Score(Input{
		Snapshot: pipeline.Snapshot{
			Buyers:        8,
			UniqueFunders: 6,
			PriceJumps:    2,
			DepthEst:      0.35,
		},
		CohortBoostEligible: true,
		CohortBoostAmount:   50,
		DeployerGoodRate:    0.9,
	})
	assert.Equal(t, 100, score)
}

func TestCohort_RecordIfMatchAndBoostEligible(t *testing.T) {
	c := NewCohort([]string{"wallet1"})
	assert.False(t, c.RecordIfMatch("mint1", "wallet2", 1000))
	assert.True(t, c.RecordIfMatch("mint1", "wallet1", 1000))

	assert.True(t, c.BoostEligible("mint1", 1000, 30))
	assert.True(t, c.BoostEligible("mint1", 1000+30000, 30))
	assert.False(t, c.BoostEligible("mint1", 1000+30001, 30))
}

func TestCohort_BoostEligible_UnknownMint(t *testing.T) {
	c := NewCohort(nil)
	assert.False(t, c.BoostEligible("unknown", 1000, 30))
}

func TestDeployerStats_GoodRate(t *testing.T) {
	d := NewDeployerStats()
	assert.Zero(t, d.GoodRate("creator1"))

	d.SetGoodRate("creator1", 0.75)
	assert.Equal(t, 0.75, d.GoodRate("creator1"))

	assert.Zero(t, d.GoodRate(""))
}
