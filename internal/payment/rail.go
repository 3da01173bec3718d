package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// TransferRequest asks a rail to move funds for one mission.
type TransferRequest struct {
	MissionID string
	Method    string
	Recipient string
	Amount    decimal.Decimal
}

// TransferResult is the rail's result descriptor. ExternalRef is the rail's
// own reference (tx hash, payout id) for reconciliation.
type TransferResult struct {
	ExternalRef string
}

// Rail moves funds. Implementations must be all-or-nothing per attempt: an
// error means no funds moved and the caller may retry the whole command.
type Rail interface {
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
}

// RailError carries the rail's raw error detail so callers can surface it
// separately from the ledger's own taxonomy.
type RailError struct {
	Method string
	Detail string
}

func (e *RailError) Error() string {
	return fmt.Sprintf("payment rail %s: %s", e.Method, e.Detail)
}

// HTTPRail posts transfers to an external payment gateway.
type HTTPRail struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewHTTPRail(baseURL, apiKey string) *HTTPRail {
	return &HTTPRail{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type gatewayRequest struct {
	MissionID string `json:"mission_id"`
	Method    string `json:"method"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type gatewayResponse struct {
	Reference string `json:"reference"`
	Error     string `json:"error,omitempty"`
}

func (r *HTTPRail) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	body, err := json.Marshal(gatewayRequest{
		MissionID: req.MissionID,
		Method:    req.Method,
		Recipient: req.Recipient,
		Amount:    req.Amount.String(),
	})
	if err != nil {
		return TransferResult{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/transfers", bytes.NewReader(body))
	if err != nil {
		return TransferResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.APIKey)
	}
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	res, err := client.Do(httpReq)
	if err != nil {
		return TransferResult{}, &RailError{Method: req.Method, Detail: err.Error()}
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return TransferResult{}, &RailError{Method: req.Method, Detail: err.Error()}
	}
	var parsed gatewayResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return TransferResult{}, &RailError{Method: req.Method, Detail: fmt.Sprintf("status %d: %s", res.StatusCode, strings.TrimSpace(string(data)))}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail := parsed.Error
		if detail == "" {
			detail = fmt.Sprintf("status %d", res.StatusCode)
		}
		return TransferResult{}, &RailError{Method: req.Method, Detail: detail}
	}
	return TransferResult{ExternalRef: parsed.Reference}, nil
}

// StaticRail is an in-process rail for tests and local development. It
// records every transfer and can be told to fail.
type StaticRail struct {
	Fail     bool
	FailWith string

	mu        sync.Mutex
	Transfers []TransferRequest
}

func (r *StaticRail) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if r.Fail {
		detail := r.FailWith
		if detail == "" {
			detail = "declined"
		}
		return TransferResult{}, &RailError{Method: req.Method, Detail: detail}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Transfers = append(r.Transfers, req)
	return TransferResult{ExternalRef: fmt.Sprintf("static-%s-%d", req.MissionID, len(r.Transfers))}, nil
}
