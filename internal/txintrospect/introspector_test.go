package txintrospect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-trading/launchguard/internal/pipeline"
	"github.com/nexus-trading/launchguard/internal/solanarpc"
)

func realMint(result bool) IsRealMintFunc {
	return func(ctx context.Context, addr string) bool { return result }
}

func TestIntrospect_ModeOffSkipsEntirely(t *testing.T) {
	client := solanarpc.NewStubClient()
	intr := New(client, ModeOff, 1000, 1000, realMint(true))
	defer intr.Close()

	res := intr.Introspect(context.Background(), "sig1", pipeline.OriginPumpfun)
	assert.Equal(t, "mode-off", res.ReasonIfMiss)
}

func TestIntrospect_PumpfunOnlySkipsOtherOrigins(t *testing.T) {
	client := solanarpc.NewStubClient()
	intr := New(client, ModePumpfunOnly, 1000, 1000, realMint(true))
	defer intr.Close()

	res := intr.Introspect(context.Background(), "sig1", pipeline.OriginRaydium)
	assert.Equal(t, "mode-pumpfun-only", res.ReasonIfMiss)
}

func TestIntrospect_ResolvesNetPositiveRealMint(t *testing.T) {
	client := solanarpc.NewStubClient()
	client.AddTransaction("sig1", solanarpc.TxResult{
		AccountKeys: []string{"ownerAcct", "tokenAcct1"},
		PreTokenBalances: []solanarpc.TokenBalance{
			{AccountIndex: 1, Mint: "mintX", UiAmount: 0},
		},
		PostTokenBalances: []solanarpc.TokenBalance{
			{AccountIndex: 1, Mint: "mintX", UiAmount: 100},
		},
	})
	client.AddAccount("tokenAcct1", solanarpc.AccountInfo{
		Exists: true,
		Data:   make([]byte, 82),
	})

	intr := New(client, ModeAll, 1000, 1000, realMint(true))
	defer intr.Close()

	res := intr.Introspect(context.Background(), "sig1", pipeline.OriginPumpfun)
	require.True(t, res.Hit())
	assert.Equal(t, "mintX", res.Mint)
}

func TestIntrospect_NoRealMintCandidateYieldsMiss(t *testing.T) {
	client := solanarpc.NewStubClient()
	client.AddTransaction("sig1", solanarpc.TxResult{
		PostTokenBalances: []solanarpc.TokenBalance{
			{AccountIndex: 0, Mint: "mintX", UiAmount: 50},
		},
	})

	intr := New(client, ModeAll, 1000, 1000, realMint(false))
	defer intr.Close()

	res := intr.Introspect(context.Background(), "sig1", pipeline.OriginPumpfun)
	assert.False(t, res.Hit())
	assert.Equal(t, "no-real-mint", res.ReasonIfMiss)
}

func TestIntrospect_FetchErrorYieldsMiss(t *testing.T) {
	client := solanarpc.NewStubClient()
	intr := New(client, ModeAll, 1000, 1000, realMint(true))
	defer intr.Close()

	res := intr.Introspect(context.Background(), "unknown-sig", pipeline.OriginPumpfun)
	assert.False(t, res.Hit())
	assert.Equal(t, "tx-fetch-error", res.ReasonIfMiss)
}

func TestIntrospect_CachesResultAcrossFailure(t *testing.T) {
	client := solanarpc.NewStubClient()
	client.AddTransaction("sig1", solanarpc.TxResult{
		PostTokenBalances: []solanarpc.TokenBalance{
			{AccountIndex: 0, Mint: "mintX", UiAmount: 50},
		},
	})

	intr := New(client, ModeAll, 1000, 1000, realMint(true))
	defer intr.Close()

	first := intr.Introspect(context.Background(), "sig1", pipeline.OriginPumpfun)
	require.True(t, first.Hit())

	// A subsequent call must be served from cache, not the (now-failing) client.
	client.SetFailNext()
	second := intr.Introspect(context.Background(), "sig1", pipeline.OriginPumpfun)
	assert.Equal(t, first, second)
}

func TestIntrospect_RateCapMissIsNotCached(t *testing.T) {
	client := solanarpc.NewStubClient()
	client.AddTransaction("sig1", solanarpc.TxResult{
		PostTokenBalances: []solanarpc.TokenBalance{
			{AccountIndex: 0, Mint: "mintX", UiAmount: 50},
		},
	})

	intr := New(client, ModeAll, 1000, 1, realMint(true))
	defer intr.Close()

	// Exhaust the 1-per-minute rolling cap directly so the next call for
	// sig1 gets rate-capped instead of introspected.
	intr.withinRollingCap()

	res := intr.Introspect(context.Background(), "sig1", pipeline.OriginPumpfun)
	assert.Equal(t, "rate-cap", res.ReasonIfMiss)

	cached, ok := intr.lookupCache("sig1")
	assert.False(t, ok, "rate-cap result must not be cached")
	assert.Equal(t, Result{}, cached)
}

func TestIntrospect_PicksHighestDeltaAmongCandidates(t *testing.T) {
	client := solanarpc.NewStubClient()
	client.AddTransaction("sig1", solanarpc.TxResult{
		PostTokenBalances: []solanarpc.TokenBalance{
			{AccountIndex: 0, Mint: "mintSmall", UiAmount: 5},
			{AccountIndex: 1, Mint: "mintBig", UiAmount: 500},
		},
	})

	intr := New(client, ModeAll, 1000, 1000, realMint(true))
	defer intr.Close()

	res := intr.Introspect(context.Background(), "sig1", pipeline.OriginPumpfun)
	assert.Equal(t, "mintBig", res.Mint)
}
