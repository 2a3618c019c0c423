// Package solanarpc is the minimal external transaction-fetch and
// account-info contract the pipeline needs from a Solana RPC endpoint.
// It mirrors the interface+stub split the rest of this codebase uses for
// every remote collaborator so the pipeline can be tested without a live
// node.
package solanarpc

import (
	"context"
	"fmt"
	"sync"
)

const FungibleTokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

// AccountInfo is the subset of getAccountInfo the pipeline consumes.
type AccountInfo struct {
	Exists bool
	Owner  string
	Data   []byte
}

// TokenBalance is one entry of a transaction's pre/post token balance list.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	UiAmount     float64
}

// TxResult is the subset of getTransaction the pipeline consumes.
type TxResult struct {
	AccountKeys       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// Client is the external transaction-fetch / account-info contract.
// Implementations: LiveClient (real Solana JSON-RPC), StubClient (testing).
type Client interface {
	// GetAccountInfo fetches account metadata for a pubkey at "confirmed"
	// commitment. A non-existent account returns a zero-value AccountInfo
	// with Exists=false and a nil error.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetTransaction fetches a transaction at "confirmed" commitment with
	// maxSupportedTransactionVersion=0.
	GetTransaction(ctx context.Context, signature string) (*TxResult, error)
}

// StubClient is an in-memory Client for tests and development.
type StubClient struct {
	mu       sync.RWMutex
	accounts map[string]*AccountInfo
	txs      map[string]*TxResult
	failNext bool
}

func NewStubClient() *StubClient {
	return &StubClient{
		accounts: make(map[string]*AccountInfo),
		txs:      make(map[string]*TxResult),
	}
}

func (s *StubClient) AddAccount(pubkey string, info AccountInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[pubkey] = &info
}

func (s *StubClient) AddTransaction(signature string, tx TxResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[signature] = &tx
}

func (s *StubClient) SetFailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

func (s *StubClient) shouldFail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return true
	}
	return false
}

func (s *StubClient) GetAccountInfo(_ context.Context, pubkey string) (*AccountInfo, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if info, ok := s.accounts[pubkey]; ok {
		return info, nil
	}
	return &AccountInfo{Exists: false}, nil
}

func (s *StubClient) GetTransaction(_ context.Context, signature string) (*TxResult, error) {
	if s.shouldFail() {
		return nil, fmt.Errorf("stub: simulated RPC failure")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if tx, ok := s.txs[signature]; ok {
		return tx, nil
	}
	return nil, fmt.Errorf("stub: transaction %s not found", signature)
}
