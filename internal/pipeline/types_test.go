package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResult_Hit(t *testing.T) {
	assert.True(t, ParseResult{Mint: "abc"}.Hit())
	assert.False(t, ParseResult{}.Hit())
}

func TestOrigins_PriorityOrder(t *testing.T) {
	assert.Equal(t, []Origin{OriginPumpfun, OriginLetsbonk, OriginMoonshot, OriginRaydium, OriginOrca}, Origins)
}
