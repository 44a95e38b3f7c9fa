// Package nodeclient implements the narrow HTTP client surface this wallet
// backend needs from a remote Tari base-layer node (minotari spec §6). It
// is intentionally thin: tip info, kernel location lookups, a birthday-to-
// height helper, and transaction submission. Retries for transient network
// failures are delegated to hashicorp/go-retryablehttp rather than
// hand-rolled, mirroring the rest of this module's preference for a
// library over a bespoke backoff loop.
package nodeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/decred/slog"
)

var log = slog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// KernelLocation mirrors the node's `transactions` lookup result
// (minotari spec §6).
type KernelLocation int

const (
	LocationNone KernelLocation = iota
	LocationNotStored
	LocationInMempool
	LocationMined
)

// TipMetadata is the `metadata` object inside a get_tip_info response.
type TipMetadata struct {
	BestBlockHeight      uint64 `json:"best_block_height"`
	BestBlockHash        string `json:"best_block_hash"`
	PruningHorizon       uint64 `json:"pruning_horizon"`
	PrunedHeight         uint64 `json:"pruned_height"`
	AccumulatedDifficulty string `json:"accumulated_difficulty"`
	Timestamp            uint64 `json:"timestamp"`
}

// TipInfo is the decoded response of GET /get_tip_info.
type TipInfo struct {
	Metadata TipMetadata `json:"metadata"`
	IsSynced bool        `json:"is_synced"`
}

// KernelQueryResult is the decoded response of GET /transactions.
type KernelQueryResult struct {
	Location         KernelLocation `json:"location"`
	MinedHeight      *uint64        `json:"mined_height,omitempty"`
	MinedHeaderHash  *string        `json:"mined_header_hash,omitempty"`
	MinedTimestamp   *uint64        `json:"mined_timestamp,omitempty"`
}

// RejectionReason enumerates submit_transaction's rejection_reason field.
type RejectionReason string

const (
	RejectionNone             RejectionReason = "None"
	RejectionAlreadyMined     RejectionReason = "AlreadyMined"
	RejectionDoubleSpend      RejectionReason = "DoubleSpend"
	RejectionOrphan           RejectionReason = "Orphan"
	RejectionTimeLocked       RejectionReason = "TimeLocked"
	RejectionValidationFailed RejectionReason = "ValidationFailed"
	RejectionFeeTooLow        RejectionReason = "FeeTooLow"
)

// SubmitResult is the decoded `result` field of a submit_transaction
// response.
type SubmitResult struct {
	Accepted        bool            `json:"accepted"`
	RejectionReason RejectionReason `json:"rejection_reason"`
	IsSynced        bool            `json:"is_synced"`
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	Result *SubmitResult `json:"result"`
	Error  *jsonRPCError `json:"error"`
	ID     string        `json:"id"`
}

// ErrFrameTooLarge is returned by SubmitTransaction when the serialized
// transaction exceeds the node's usable frame size, without making any
// network call (minotari spec §6).
var ErrFrameTooLarge = fmt.Errorf("nodeclient: transaction exceeds maximum submission frame size")

// MaxSubmissionSize is RPC_MAX_FRAME_SIZE − (10 KB + 2 MB), the largest
// serialized transaction this client will submit.
const MaxSubmissionSize = 4*1024*1024 - (10*1024 + 2*1024*1024)

// Client talks to one remote node's HTTP surface.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// New constructs a Client against baseURL (e.g. "http://127.0.0.1:18142").
// The underlying retryablehttp.Client retries idempotent GETs on transient
// network errors and 5xx responses with capped exponential backoff; POSTs
// (submit_transaction) are not retried here since the caller's
// TransactionMonitor already owns retry semantics for broadcast attempts.
func New(baseURL string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 4 * time.Second
	rc.Logger = nil
	return &Client{baseURL: baseURL, http: rc}
}

// GetTipInfo fetches the node's current chain tip metadata.
func (c *Client) GetTipInfo(ctx context.Context) (*TipInfo, error) {
	var out TipInfo
	if err := c.getJSON(ctx, "/get_tip_info", nil, &out); err != nil {
		return nil, fmt.Errorf("nodeclient: get_tip_info: %w", err)
	}
	return &out, nil
}

// GetHeightAtTime resolves a unix timestamp to the block height active at
// that time, used to estimate a birthday-based resume height (minotari
// spec §4.9).
func (c *Client) GetHeightAtTime(ctx context.Context, unixSeconds int64) (uint64, error) {
	var out uint64
	params := map[string]string{"time": strconv.FormatInt(unixSeconds, 10)}
	if err := c.getJSON(ctx, "/get_height_at_time", params, &out); err != nil {
		return 0, fmt.Errorf("nodeclient: get_height_at_time: %w", err)
	}
	return out, nil
}

// QueryKernel looks up a transaction's on-chain location by its kernel
// excess signature.
func (c *Client) QueryKernel(ctx context.Context, excessSigNonce, excessSig []byte) (*KernelQueryResult, error) {
	params := map[string]string{
		"excess_sig_nonce": fmt.Sprintf("%x", excessSigNonce),
		"excess_sig_sig":   fmt.Sprintf("%x", excessSig),
	}
	var out KernelQueryResult
	if err := c.getJSON(ctx, "/transactions", params, &out); err != nil {
		return nil, fmt.Errorf("nodeclient: transactions: %w", err)
	}
	return &out, nil
}

// SubmitTransaction submits a serialized transaction via the node's
// json_rpc surface, rejecting it locally without a network call if it
// exceeds MaxSubmissionSize.
func (c *Client) SubmitTransaction(ctx context.Context, serialized []byte) (*SubmitResult, error) {
	if len(serialized) > MaxSubmissionSize {
		return nil, ErrFrameTooLarge
	}

	reqBody := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      "1",
		Method:  "submit_transaction",
		Params:  map[string]string{"transaction": fmt.Sprintf("%x", serialized)},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("nodeclient: marshal submit_transaction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/json_rpc", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("nodeclient: build submit_transaction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Sent through the underlying *http.Client so the POST is made once,
	// without retryablehttp's retry loop.
	resp, err := c.http.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nodeclient: submit_transaction: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("nodeclient: read submit_transaction response: %w", err)
	}

	var out jsonRPCResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("nodeclient: decode submit_transaction response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("nodeclient: submit_transaction rpc error %d: %s", out.Error.Code, out.Error.Message)
	}
	if out.Result == nil {
		return nil, fmt.Errorf("nodeclient: submit_transaction response missing result")
	}
	return out.Result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query map[string]string, out interface{}) error {
	url := c.baseURL + path
	if len(query) > 0 {
		url += "?"
		first := true
		for k, v := range query {
			if !first {
				url += "&"
			}
			url += k + "=" + v
			first = false
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
