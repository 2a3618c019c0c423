package solanarpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// LiveConfig configures a LiveClient.
type LiveConfig struct {
	Endpoint     string
	Timeout      time.Duration
	MaxRetries   int
	RateLimitRPS float64
}

func DefaultLiveConfig(endpoint string) LiveConfig {
	return LiveConfig{
		Endpoint:     endpoint,
		Timeout:      10 * time.Second,
		MaxRetries:   3,
		RateLimitRPS: 10,
	}
}

const (
	circuitBreakerThreshold = 10
	circuitBreakerCooldown  = 30 * time.Second
)

// LiveClient is a real Solana JSON-RPC client with a token-bucket rate
// limiter, a consecutive-error circuit breaker, and exponential-backoff
// retry on each call.
type LiveClient struct {
	config     LiveConfig
	httpClient *http.Client

	limiter       chan struct{}
	limiterCancel context.CancelFunc

	nextID atomic.Int64

	consecutiveErrors atomic.Int64
	circuitOpen       atomic.Bool

	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewLiveClient(config LiveConfig) *LiveClient {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.RateLimitRPS == 0 {
		config.RateLimitRPS = 10
	}

	bucketSize := int(config.RateLimitRPS)
	if bucketSize < 1 {
		bucketSize = 1
	}
	limiter := make(chan struct{}, bucketSize)
	for i := 0; i < bucketSize; i++ {
		limiter <- struct{}{}
	}

	limiterCtx, limiterCancel := context.WithCancel(context.Background())

	c := &LiveClient{
		config:        config,
		httpClient:    &http.Client{Timeout: config.Timeout},
		limiter:       limiter,
		limiterCancel: limiterCancel,
	}

	go func() {
		interval := time.Duration(float64(time.Second) / config.RateLimitRPS)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-limiterCtx.Done():
				return
			case <-ticker.C:
				select {
				case c.limiter <- struct{}{}:
				default:
				}
			}
		}
	}()

	return c
}

func (c *LiveClient) Close() { c.limiterCancel() }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *LiveClient) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if c.circuitOpen.Load() {
		return nil, fmt.Errorf("solanarpc: circuit breaker open for %s", method)
	}

	select {
	case <-c.limiter:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	reqID := c.nextID.Add(1)
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: reqID, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("solanarpc: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("solanarpc: create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("solanarpc: %s http error: %w", method, err)
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("solanarpc: %s read response: %w", method, err)
			c.errorCount.Add(1)
			c.recordError()
			continue
		}
		c.requestCount.Add(1)

		if resp.StatusCode == 429 {
			lastErr = fmt.Errorf("solanarpc: %s rate limited (429)", method)
			c.errorCount.Add(1)
			select {
			case <-time.After(time.Duration(2<<uint(attempt)) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode != 200 {
			lastErr = fmt.Errorf("solanarpc: %s HTTP %d: %s", method, resp.StatusCode, string(respBody))
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("solanarpc: %s unmarshal response: %w", method, err)
			c.errorCount.Add(1)
			c.recordError()
			continue
		}

		if rpcResp.Error != nil {
			c.resetErrors()
			return nil, fmt.Errorf("solanarpc: %s error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
		}

		c.resetErrors()
		return rpcResp.Result, nil
	}

	return nil, fmt.Errorf("solanarpc: %s failed after %d attempts: %w", method, c.config.MaxRetries+1, lastErr)
}

func (c *LiveClient) recordError() {
	count := c.consecutiveErrors.Add(1)
	if count >= circuitBreakerThreshold {
		if c.circuitOpen.CompareAndSwap(false, true) {
			log.Error().Int64("errors", count).Msg("solanarpc: circuit breaker open")
			go func() {
				time.Sleep(circuitBreakerCooldown)
				c.circuitOpen.Store(false)
				c.consecutiveErrors.Store(0)
				log.Info().Msg("solanarpc: circuit breaker reset")
			}()
		}
	}
}

func (c *LiveClient) resetErrors() { c.consecutiveErrors.Store(0) }

func (c *LiveClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	result, err := c.call(ctx, "getAccountInfo", []any{
		pubkey,
		map[string]any{"encoding": "base64", "commitment": "confirmed"},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Value *struct {
			Data  []string `json:"data"`
			Owner string   `json:"owner"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("solanarpc: parse account info: %w", err)
	}
	if parsed.Value == nil {
		return &AccountInfo{Exists: false}, nil
	}

	var data []byte
	if len(parsed.Value.Data) > 0 {
		data, _ = base64.StdEncoding.DecodeString(parsed.Value.Data[0])
	}

	return &AccountInfo{Exists: true, Owner: parsed.Value.Owner, Data: data}, nil
}

func (c *LiveClient) GetTransaction(ctx context.Context, signature string) (*TxResult, error) {
	result, err := c.call(ctx, "getTransaction", []any{
		signature,
		map[string]any{"commitment": "confirmed", "maxSupportedTransactionVersion": 0},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Transaction struct {
			Message struct {
				AccountKeys []string `json:"accountKeys"`
			} `json:"message"`
		} `json:"transaction"`
		Meta struct {
			PreTokenBalances []struct {
				AccountIndex  int    `json:"accountIndex"`
				Mint          string `json:"mint"`
				UITokenAmount struct {
					UIAmount float64 `json:"uiAmount"`
				} `json:"uiTokenAmount"`
			} `json:"preTokenBalances"`
			PostTokenBalances []struct {
				AccountIndex  int    `json:"accountIndex"`
				Mint          string `json:"mint"`
				UITokenAmount struct {
					UIAmount float64 `json:"uiAmount"`
				} `json:"uiTokenAmount"`
			} `json:"postTokenBalances"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, fmt.Errorf("solanarpc: parse transaction: %w", err)
	}

	tx := &TxResult{AccountKeys: parsed.Transaction.Message.AccountKeys}
	for _, b := range parsed.Meta.PreTokenBalances {
		tx.PreTokenBalances = append(tx.PreTokenBalances, TokenBalance{
			AccountIndex: b.AccountIndex, Mint: b.Mint, UiAmount: b.UITokenAmount.UIAmount,
		})
	}
	for _, b := range parsed.Meta.PostTokenBalances {
		tx.PostTokenBalances = append(tx.PostTokenBalances, TokenBalance{
			AccountIndex: b.AccountIndex, Mint: b.Mint, UiAmount: b.UITokenAmount.UIAmount,
		})
	}
	return tx, nil
}
