package mintvalidator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexus-trading/launchguard/internal/solanarpc"
)

const sampleMint = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"

func TestIsValidMint_Denylisted(t *testing.T) {
	v := New(solanarpc.NewStubClient(), nil, 3600)
	assert.False(t, v.IsValidMint("11111111111111111111111111111111"))
}

func TestIsValidMint_BadLength(t *testing.T) {
	v := New(solanarpc.NewStubClient(), nil, 3600)
	assert.False(t, v.IsValidMint("short"))
}

func TestIsValidMint_ConfiguredProgramID(t *testing.T) {
	v := New(solanarpc.NewStubClient(), []string{sampleMint}, 3600)
	assert.False(t, v.IsValidMint(sampleMint))
}

func TestIsValidMint_LooksLikeAMint(t *testing.T) {
	v := New(solanarpc.NewStubClient(), nil, 3600)
	assert.True(t, v.IsValidMint(sampleMint))
}

func TestIsRealMint_VerifiedFungible(t *testing.T) {
	client := solanarpc.NewStubClient()
	client.AddAccount(sampleMint, solanarpc.AccountInfo{
		Exists: true,
		Owner:  solanarpc.FungibleTokenProgramID,
		Data:   make([]byte, 82),
	})
	v := New(client, nil, 3600)

	assert.True(t, v.IsRealMint(context.Background(), sampleMint))
	assert.Equal(t, 1, v.CacheSize())

	// Second call is served from cache, not the client.
	client.SetFailNext()
	assert.True(t, v.IsRealMint(context.Background(), sampleMint))
}

func TestIsRealMint_WrongOwner(t *testing.T) {
	client := solanarpc.NewStubClient()
	client.AddAccount(sampleMint, solanarpc.AccountInfo{Exists: true, Owner: "SomeOtherProgram", Data: make([]byte, 82)})
	v := New(client, nil, 3600)

	assert.False(t, v.IsRealMint(context.Background(), sampleMint))
}

func TestIsRealMint_NonExistent(t *testing.T) {
	v := New(solanarpc.NewStubClient(), nil, 3600)
	assert.False(t, v.IsRealMint(context.Background(), sampleMint))
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func syntheticMint(i int) string {
	digits := make([]byte, 8)
	for pos := len(digits) - 1; pos >= 0; pos-- {
		digits[pos] = base58Alphabet[i%len(base58Alphabet)]
		i /= len(base58Alphabet)
	}
	return "Mint" + string(digits) + "PadPadPadPadPadPadPadPad"[:24]
}

func TestCacheEviction_OverCap(t *testing.T) {
	client := solanarpc.NewStubClient()
	v := New(client, nil, 3600)

	for i := 0; i < maxCacheEntries+50; i++ {
		v.IsRealMint(context.Background(), syntheticMint(i))
	}

	assert.LessOrEqual(t, v.CacheSize(), maxCacheEntries)
}
