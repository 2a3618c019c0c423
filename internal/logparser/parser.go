// Package logparser extracts mint/buyer/creator candidates from raw
// on-chain program log lines.
package logparser

import (
	"regexp"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/nexus-trading/launchguard/internal/pipeline"
)

var (
	kvPattern    = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9_]{2,32}\s*[:=]\s*([a-zA-Z0-9]{32,44})`)
	base58Token  = regexp.MustCompile(`\b[a-zA-Z0-9]{32,44}\b`)
)

// mintKeyPriority is the per-origin priority-ordered list of key names a
// mint candidate may appear under.
var mintKeyPriority = map[pipeline.Origin][]string{
	pipeline.OriginPumpfun: {
		"mint", "token_mint", "tokenmint", "mint_address", "mintaddress",
		"mintpubkey", "mintkey", "targetmint", "token", "token_address",
		"tokenaddress", "token_pubkey", "tokenpubkey",
	},
	pipeline.OriginMoonshot: {
		"mint", "mint_address", "mintaddress", "token_mint", "tokenmint",
		"targetmint", "token",
	},
	pipeline.OriginLetsbonk: {
		"mint", "token_mint", "tokenmint", "mint_address", "mintaddress", "token",
	},
	pipeline.OriginRaydium: {
		"mint", "mint_address", "mintaddress", "token_mint", "tokenmint", "token",
	},
	pipeline.OriginOrca: {
		"mint", "mint_address", "mintaddress", "token_mint", "tokenmint", "token",
	},
}

var creatorKeyPriority = []string{
	"creator", "deployer", "owner", "authority", "payer", "creatorauthority",
}

var buyerKeyPriority = []string{
	"buyer", "user", "owner", "trader", "authority", "account_owner",
	"token_owner", "wallet",
}

// Parse extracts a ParseResult from a batch of raw log lines attributed to
// the given Origin. isValidMint is the pure mint-identifier predicate; it
// is injected rather than imported so logparser has no dependency on
// mintvalidator's cache or RPC client.
func Parse(lines []string, origin pipeline.Origin, isValidMint func(string) bool) pipeline.ParseResult {
	joined := strings.Join(lines, "\n")
	lower := strings.ToLower(joined)

	kind := classify(lower, origin)

	keys := extractKeys(joined)
	allCandidates := distinctBase58(joined)

	mint := pickByPriority(keys, mintKeyPriority[origin], isValidMint)
	creator := pickByPriority(keys, creatorKeyPriority, isValidMint)
	buyer := pickByPriority(keys, buyerKeyPriority, isValidMint)

	if mint == "" {
		switch {
		case kind == pipeline.EventCreate:
			valid := filterValid(allCandidates, isValidMint)
			if len(valid) == 1 {
				mint = valid[0]
			}
		case kind == pipeline.EventUnknown:
			// no key-matched mint and not a create batch; nothing more to try.
		}
	}

	if mint == "" {
		return pipeline.ParseResult{Kind: kind, ReasonIfMiss: "no-mint-candidate"}
	}

	return pipeline.ParseResult{Kind: kind, Mint: mint, Buyer: buyer, Creator: creator}
}

// classify restricts addLiquidity to pumpfun, the only origin whose
// launch sequence this pipeline treats as having a distinct liquidity-add
// step; other origins fall through to EventUnknown on that keyword.
func classify(lower string, origin pipeline.Origin) pipeline.EventKind {
	switch {
	case strings.Contains(lower, "create") || strings.Contains(lower, "createtoken") || strings.Contains(lower, "initializemint"):
		return pipeline.EventCreate
	case strings.Contains(lower, "buy"):
		return pipeline.EventBuy
	case origin == pipeline.OriginPumpfun && (strings.Contains(lower, "addliquidity") || strings.Contains(lower, "add_liquidity")):
		return pipeline.EventAddLiquidity
	default:
		return pipeline.EventUnknown
	}
}

// extractKeys builds a first-wins lowercased-key -> value mapping by
// scanning every line with the key/value regex.
func extractKeys(text string) map[string]string {
	keys := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		matches := kvPattern.FindAllStringSubmatch(line, -1)
		for _, m := range matches {
			// Recover the key token preceding the separator.
			idx := strings.IndexAny(m[0], ":=")
			if idx < 0 {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(m[0][:idx]))
			if _, exists := keys[key]; !exists {
				keys[key] = m[1]
			}
		}
	}
	return keys
}

func distinctBase58(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range base58Token.FindAllString(text, -1) {
		if !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

func filterValid(candidates []string, isValidMint func(string) bool) []string {
	var out []string
	for _, c := range candidates {
		if isBase58Charset(c) && isValidMint(c) {
			out = append(out, c)
		}
	}
	return out
}

func isBase58Charset(s string) bool {
	_, err := base58.Decode(s)
	return err == nil
}

func pickByPriority(keys map[string]string, priority []string, isValidMint func(string) bool) string {
	for _, key := range priority {
		if val, ok := keys[key]; ok && isBase58Charset(val) && isValidMint(val) {
			return val
		}
	}
	return ""
}
