package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexus-trading/launchguard/internal/pipeline"
)

func TestCheck_PassesAllRules(t *testing.T) {
	res := Check(pipeline.Snapshot{Buyers: 10, SameFunderRatio: 0.3, DepthEst: 0.5})
	assert.True(t, res.Passed)
	assert.Empty(t, res.FailReason)
	assert.Len(t, res.SatisfiedRules, 3)
}

func TestCheck_FailsOnLowBuyers(t *testing.T) {
	res := Check(pipeline.Snapshot{Buyers: 2, SameFunderRatio: 0.1, DepthEst: 0.5})
	assert.False(t, res.Passed)
	assert.Equal(t, "buyers<4", res.FailReason)
}

func TestCheck_FailsOnFunderConcentration(t *testing.T) {
	res := Check(pipeline.Snapshot{Buyers: 10, SameFunderRatio: 0.9, DepthEst: 0.5})
	assert.False(t, res.Passed)
	assert.Equal(t, "sameFunderRatio>0.70", res.FailReason)
}

func TestCheck_FailsOnShallowDepth(t *testing.T) {
	res := Check(pipeline.Snapshot{Buyers: 10, SameFunderRatio: 0.1, DepthEst: 0.01})
	assert.False(t, res.Passed)
	assert.Equal(t, "depthEst<0.15", res.FailReason)
}

func TestCheck_FirstViolationShortCircuits(t *testing.T) {
	res := Check(pipeline.Snapshot{Buyers: 1, SameFunderRatio: 0.99, DepthEst: 0.0})
	assert.Equal(t, "buyers<4", res.FailReason)
}

func TestCheck_BoundaryValuesPass(t *testing.T) {
	res := Check(pipeline.Snapshot{Buyers: 4, SameFunderRatio: 0.70, DepthEst: 0.15})
	assert.True(t, res.Passed)
}
