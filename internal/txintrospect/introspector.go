// Package txintrospect fetches a transaction by signature and derives the
// mint the transaction most plausibly minted-or-credited, rate-limited and
// cached the way live_rpc.go rate-limits and caches its own remote calls,
// generalized from a single token-bucket gate to a FIFO work queue plus a
// rolling-minute cap because TxIntrospector must also coalesce concurrent
// requests for the same signature and serve them from one cache.
package txintrospect

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nexus-trading/launchguard/internal/pipeline"
	"github.com/nexus-trading/launchguard/internal/solanarpc"
)

// Mode gates which origins get introspected at all.
type Mode string

const (
	ModeOff         Mode = "off"
	ModePumpfunOnly Mode = "pumpfun_only"
	ModeAll         Mode = "all"
)

const (
	signatureCacheTTL = 1800 * time.Second
	ownerCacheTTL      = 3600 * time.Second
	rollingWindow      = 60 * time.Second
)

// Result is the outcome of introspecting one signature.
type Result struct {
	Mint         string
	OwnerPubkey  string
	ReasonIfMiss string
}

func (r Result) Hit() bool { return r.Mint != "" }

type cacheEntry struct {
	result     Result
	insertedAt time.Time
}

type ownerEntry struct {
	owner      string
	insertedAt time.Time
}

type pending struct {
	done chan struct{}
	res  Result
}

// IsRealMintFunc reports whether addr is a verified fungible-token mint.
type IsRealMintFunc func(ctx context.Context, addr string) bool

// Introspector is the rate-limited, cached transaction introspector.
type Introspector struct {
	client        solanarpc.Client
	mode          Mode
	qps           int
	maxPerMin     int
	isRealMint    IsRealMintFunc

	mu         sync.Mutex
	cache      map[string]cacheEntry
	owners     map[string]ownerEntry
	inFlight   map[string]*pending
	recentRuns []time.Time // timestamps of task executions in the last rolling minute

	queue   chan task
	closed  chan struct{}
	wg      sync.WaitGroup
}

type task struct {
	signature string
	origin    pipeline.Origin
	result    chan Result
}

func New(client solanarpc.Client, mode Mode, qps, maxPerMin int, isRealMint IsRealMintFunc) *Introspector {
	if qps <= 0 {
		qps = 5
	}
	if maxPerMin <= 0 {
		maxPerMin = 120
	}
	intr := &Introspector{
		client:     client,
		mode:       mode,
		qps:        qps,
		maxPerMin:  maxPerMin,
		isRealMint: isRealMint,
		cache:      make(map[string]cacheEntry),
		owners:     make(map[string]ownerEntry),
		inFlight:   make(map[string]*pending),
		queue:      make(chan task, 4096),
		closed:     make(chan struct{}),
	}
	intr.wg.Add(1)
	go intr.drainLoop()
	return intr
}

// Close drains the queue, resolving any pending tasks with a shutting-down
// reason, and stops the drain loop.
func (intr *Introspector) Close() {
	close(intr.closed)
	intr.wg.Wait()

	for {
		select {
		case t := <-intr.queue:
			t.result <- Result{ReasonIfMiss: "shutting-down"}
		default:
			return
		}
	}
}

func tickInterval(qps int) time.Duration {
	ms := 1000 / qps
	if ms < 50 {
		ms = 50
	}
	return time.Duration(ms) * time.Millisecond
}

func (intr *Introspector) drainLoop() {
	defer intr.wg.Done()
	ticker := time.NewTicker(tickInterval(intr.qps))
	defer ticker.Stop()
	for {
		select {
		case <-intr.closed:
			return
		case <-ticker.C:
			select {
			case t := <-intr.queue:
				intr.runTask(t)
			default:
			}
		}
	}
}

func (intr *Introspector) withinRollingCap() bool {
	intr.mu.Lock()
	defer intr.mu.Unlock()
	cutoff := time.Now().Add(-rollingWindow)
	kept := intr.recentRuns[:0]
	for _, ts := range intr.recentRuns {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	intr.recentRuns = kept
	if len(intr.recentRuns) >= intr.maxPerMin {
		return false
	}
	intr.recentRuns = append(intr.recentRuns, time.Now())
	return true
}

func (intr *Introspector) runTask(t task) {
	if !intr.withinRollingCap() {
		t.result <- Result{ReasonIfMiss: "rate-cap"}
		intr.resolveInFlight(t.signature, Result{ReasonIfMiss: "rate-cap"})
		return
	}
	res := intr.introspect(context.Background(), t.signature)
	t.result <- res
	intr.resolveInFlight(t.signature, res)
}

func (intr *Introspector) resolveInFlight(signature string, res Result) {
	intr.mu.Lock()
	p, ok := intr.inFlight[signature]
	delete(intr.inFlight, signature)
	intr.mu.Unlock()
	if ok {
		p.res = res
		close(p.done)
	}
}

// Introspect fetches and derives the net-minted mint for signature, subject
// to mode gating, caching, rate limiting, and in-flight coalescing.
func (intr *Introspector) Introspect(ctx context.Context, signature string, origin pipeline.Origin) Result {
	if intr.mode == ModeOff {
		return Result{ReasonIfMiss: "mode-off"}
	}
	if intr.mode == ModePumpfunOnly && origin != pipeline.OriginPumpfun {
		return Result{ReasonIfMiss: "mode-pumpfun-only"}
	}

	if res, ok := intr.lookupCache(signature); ok {
		return res
	}

	intr.mu.Lock()
	if p, ok := intr.inFlight[signature]; ok {
		intr.mu.Unlock()
		select {
		case <-p.done:
			return p.res
		case <-ctx.Done():
			return Result{ReasonIfMiss: "ctx-cancelled"}
		}
	}
	p := &pending{done: make(chan struct{})}
	intr.inFlight[signature] = p
	intr.mu.Unlock()

	resultCh := make(chan Result, 1)
	select {
	case intr.queue <- task{signature: signature, origin: origin, result: resultCh}:
	default:
		intr.resolveInFlight(signature, Result{ReasonIfMiss: "queue-full"})
		return Result{ReasonIfMiss: "queue-full"}
	}

	select {
	case res := <-resultCh:
		if !isTransientMiss(res) {
			intr.storeCache(signature, res)
		}
		return res
	case <-ctx.Done():
		return Result{ReasonIfMiss: "ctx-cancelled"}
	}
}

// isTransientMiss reports whether res reflects backpressure rather than a
// real introspection outcome; these reasons must not be cached, or a
// momentary rate-cap would suppress re-introspection of that signature for
// the full signature cache TTL.
func isTransientMiss(res Result) bool {
	return res.ReasonIfMiss == "rate-cap" || res.ReasonIfMiss == "queue-full"
}

func (intr *Introspector) introspect(ctx context.Context, signature string) Result {
	tx, err := intr.client.GetTransaction(ctx, signature)
	if err != nil {
		log.Debug().Err(err).Str("signature", signature).Msg("txintrospect: fetch error")
		return Result{ReasonIfMiss: "tx-fetch-error"}
	}

	type candidate struct {
		mint  string
		delta float64
	}
	preByMint := make(map[string]float64)
	for _, b := range tx.PreTokenBalances {
		preByMint[b.Mint] += b.UiAmount
	}
	postByIndex := make(map[int]solanarpc.TokenBalance)
	postByMint := make(map[string]float64)
	var mintOrder []string // mints in order of first post-balance appearance
	for _, b := range tx.PostTokenBalances {
		if _, seen := postByMint[b.Mint]; !seen {
			mintOrder = append(mintOrder, b.Mint)
		}
		postByMint[b.Mint] += b.UiAmount
		postByIndex[b.AccountIndex] = b
	}

	var candidates []candidate
	for _, mint := range mintOrder {
		postAmt := postByMint[mint]
		preAmt := preByMint[mint]
		if preAmt <= 1e-9 && postAmt > 1e-9 {
			candidates = append(candidates, candidate{mint: mint, delta: postAmt - preAmt})
		}
	}

	var real []candidate
	for _, c := range candidates {
		if intr.isRealMint == nil || intr.isRealMint(ctx, c.mint) {
			real = append(real, c)
		}
	}
	if len(real) == 0 {
		return Result{ReasonIfMiss: "no-real-mint"}
	}

	sort.SliceStable(real, func(i, j int) bool { return real[i].delta > real[j].delta })
	chosen := real[0].mint

	var ownerPubkey string
	for idx, bal := range postByIndex {
		if bal.Mint != chosen {
			continue
		}
		pre := preByMint[chosen]
		if pre <= 1e-9 && bal.UiAmount > 1e-9 && idx < len(tx.AccountKeys) {
			ownerPubkey = intr.resolveOwner(ctx, tx.AccountKeys[idx])
			break
		}
	}

	return Result{Mint: chosen, OwnerPubkey: ownerPubkey}
}

func (intr *Introspector) resolveOwner(ctx context.Context, tokenAccountPubkey string) string {
	intr.mu.Lock()
	if e, ok := intr.owners[tokenAccountPubkey]; ok && time.Since(e.insertedAt) < ownerCacheTTL {
		intr.mu.Unlock()
		return e.owner
	}
	intr.mu.Unlock()

	info, err := intr.client.GetAccountInfo(ctx, tokenAccountPubkey)
	if err != nil || !info.Exists || len(info.Data) < 64 {
		return ""
	}
	owner := fmt.Sprintf("%x", info.Data[32:64])

	intr.mu.Lock()
	intr.owners[tokenAccountPubkey] = ownerEntry{owner: owner, insertedAt: time.Now()}
	intr.mu.Unlock()
	return owner
}

func (intr *Introspector) lookupCache(signature string) (Result, bool) {
	intr.mu.Lock()
	defer intr.mu.Unlock()
	e, ok := intr.cache[signature]
	if !ok {
		return Result{}, false
	}
	if time.Since(e.insertedAt) > signatureCacheTTL {
		delete(intr.cache, signature)
		return Result{}, false
	}
	return e.result, true
}

func (intr *Introspector) storeCache(signature string, res Result) {
	intr.mu.Lock()
	defer intr.mu.Unlock()
	intr.cache[signature] = cacheEntry{result: res, insertedAt: time.Now()}
}
