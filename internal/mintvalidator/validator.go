// Package mintvalidator implements the pure mint-identifier predicate and
// the TTL-cached "is this a real fungible-token mint" verdict the rest of
// the pipeline consults before trusting a parsed address.
package mintvalidator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/launchguard/internal/solanarpc"
)

const (
	minLen             = 32
	maxLen             = 44
	defaultCacheTTL    = 3600 * time.Second
	maxCacheEntries    = 10000
	evictionFraction   = 0.05
	tokenAccountBytes  = 82
)

// denylist holds well-known system/program identifiers that must never be
// accepted as a mint, independent of whatever program IDs a given pipeline
// instance happens to subscribe to.
var denylist = map[string]bool{
	"11111111111111111111111111111111":            true, // System Program
	"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA":  true, // SPL Token Program
	"ComputeBudget111111111111111111111111111111": true,
	"SysvarRent111111111111111111111111111111111": true,
	"SysvarC1ock11111111111111111111111111111111": true,
	"ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL":  true, // Associated Token Account
}

type cacheEntry struct {
	ok         bool
	insertedAt time.Time
}

// Validator owns the pure address predicate plus the isRealMint cache. The
// set of subscribed program IDs is supplied by the owning pipeline rather
// than imported from config directly, avoiding the cyclic dependency
// config -> validator -> config that a naive import would create.
type Validator struct {
	client     solanarpc.Client
	programIDs map[string]bool
	ttl        time.Duration

	mu    sync.RWMutex
	cache map[string]*cacheEntry
}

// New creates a Validator. programIDs is the precomputed set of every
// subscribed launchpad program identifier across all origins; ttlSec <= 0
// selects the default of 3600s.
func New(client solanarpc.Client, programIDs []string, ttlSec int) *Validator {
	set := make(map[string]bool, len(programIDs))
	for _, id := range programIDs {
		set[id] = true
	}
	ttl := defaultCacheTTL
	if ttlSec > 0 {
		ttl = time.Duration(ttlSec) * time.Second
	}
	return &Validator{
		client:     client,
		programIDs: set,
		ttl:        ttl,
		cache:      make(map[string]*cacheEntry),
	}
}

// IsValidMint is the pure, synchronous predicate from the data model: a
// candidate is valid iff it passes the base58 length/charset test, is not
// on the denylist, and is not itself a subscribed program identifier.
func (v *Validator) IsValidMint(addr string) bool {
	if len(addr) < minLen || len(addr) > maxLen {
		return false
	}
	if _, err := base58.Decode(addr); err != nil {
		return false
	}
	if denylist[addr] {
		return false
	}
	if v.programIDs[addr] {
		return false
	}
	return true
}

// IsRealMint consults the cache, and on a miss issues a single
// getAccountInfo fetch: the mint is real iff the account exists, is owned
// by the canonical fungible-token program, and has an 82-byte data
// payload. Any fetch error is treated as a negative verdict and cached as
// such, matching the contained-error taxonomy the rest of the pipeline
// follows.
func (v *Validator) IsRealMint(ctx context.Context, addr string) bool {
	if cached, ok := v.lookupCache(addr); ok {
		return cached
	}

	info, err := v.client.GetAccountInfo(ctx, addr)
	ok := false
	if err != nil {
		log.Debug().Err(err).Str("mint", addr).Msg("mintvalidator: account fetch failed")
	} else if info.Exists && info.Owner == solanarpc.FungibleTokenProgramID && len(info.Data) == tokenAccountBytes {
		ok = true
	}

	v.storeCache(addr, ok)
	return ok
}

func (v *Validator) lookupCache(addr string) (bool, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, found := v.cache[addr]
	if !found {
		return false, false
	}
	if time.Since(entry.insertedAt) > v.ttl {
		return false, false
	}
	return entry.ok, true
}

func (v *Validator) storeCache(addr string, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache[addr] = &cacheEntry{ok: ok, insertedAt: time.Now()}
	if len(v.cache) > maxCacheEntries {
		v.evictOldestLocked()
	}
}

// evictOldestLocked removes the earliest-inserted 5% of entries. Caller
// must hold v.mu.
func (v *Validator) evictOldestLocked() {
	type aged struct {
		addr string
		at   time.Time
	}
	all := make([]aged, 0, len(v.cache))
	for addr, entry := range v.cache {
		all = append(all, aged{addr: addr, at: entry.insertedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })

	n := int(float64(len(all)) * evictionFraction)
	if n < 1 {
		n = 1
	}
	for i := 0; i < n && i < len(all); i++ {
		delete(v.cache, all[i].addr)
	}
}

// CacheSize reports the number of cached verdicts; used by the status
// snapshot and by tests asserting the eviction boundary.
func (v *Validator) CacheSize() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.cache)
}
