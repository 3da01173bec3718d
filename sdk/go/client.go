package clubrunsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Club Run HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Mission represents the API mission model.
type Mission struct {
	ID            string      `json:"id"`
	CuratorID     string      `json:"curator_id"`
	RunnerID      *string     `json:"runner_id,omitempty"`
	TeamID        *string     `json:"team_id,omitempty"`
	Budget        string      `json:"budget"`
	PaymentMethod string      `json:"payment_method"`
	Deadline      string      `json:"deadline"`
	OpenMarket    bool        `json:"open_market"`
	ContentCID    string      `json:"content_cid"`
	ProofCID      *string     `json:"proof_cid,omitempty"`
	Status        string      `json:"status"`
	Expired       bool        `json:"expired,omitempty"`
	Settlement    *Settlement `json:"settlement,omitempty"`
}

// MissionContent is the brief stored behind the mission's content CID.
type MissionContent struct {
	Title        string   `json:"title"`
	Description  string   `json:"description,omitempty"`
	VenueAddress string   `json:"venue_address"`
	EventType    string   `json:"event_type"`
	Requirements []string `json:"requirements,omitempty"`
}

// MissionDetail is a mission with its dereferenced content and proof.
type MissionDetail struct {
	Mission
	Content MissionContent `json:"content"`
	Proof   *ProofOfPlay   `json:"proof,omitempty"`
}

// ProofOfPlay is a runner's evidence bundle.
type ProofOfPlay struct {
	Notes    string   `json:"notes,omitempty"`
	Location string   `json:"location"`
	Photos   []string `json:"photos"`
	Audio    *string  `json:"audio,omitempty"`
}

// Settlement describes a completed payout.
type Settlement struct {
	ID          string `json:"id"`
	MissionID   string `json:"mission_id"`
	Method      string `json:"method"`
	Amount      string `json:"amount"`
	Recipient   string `json:"recipient"`
	ExternalRef string `json:"external_ref"`
	CreatedAt   string `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID        int64  `json:"id"`
	TS        string `json:"ts"`
	Type      string `json:"type"`
	MissionID string `json:"mission_id,omitempty"`
	ActorID   string `json:"actor_id"`
	Payload   string `json:"payload,omitempty"`
}

// CreateMissionRequest is the body for CreateMission.
type CreateMissionRequest struct {
	Content       MissionContent `json:"content"`
	Budget        string         `json:"budget"`
	Deadline      string         `json:"deadline"`
	PaymentMethod string         `json:"payment_method"`
	TeamID        *string        `json:"team_id,omitempty"`
	OpenMarket    bool           `json:"open_market,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateMission posts a new mission.
func (c *Client) CreateMission(ctx context.Context, req CreateMissionRequest) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, "v0/missions", req, &resp)
	return resp, err
}

// ListMissions returns missions visible to the caller.
func (c *Client) ListMissions(ctx context.Context, status string, limit int) ([]Mission, error) {
	endpoint := "v0/missions"
	params := url.Values{}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp []Mission
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetMission fetches a mission with content and proof dereferenced.
func (c *Client) GetMission(ctx context.Context, id string) (MissionDetail, error) {
	var resp MissionDetail
	err := c.do(ctx, http.MethodGet, c.missionPath(id, ""), nil, &resp)
	return resp, err
}

// Accept assigns the mission to the caller.
func (c *Client) Accept(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.missionPath(id, "accept"), struct{}{}, &resp)
	return resp, err
}

// SubmitProof uploads proof of play.
func (c *Client) SubmitProof(ctx context.Context, id string, proof ProofOfPlay) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.missionPath(id, "proof"), proof, &resp)
	return resp, err
}

// Approve settles the mission.
func (c *Client) Approve(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.missionPath(id, "approve"), struct{}{}, &resp)
	return resp, err
}

// Cancel withdraws an open mission.
func (c *Client) Cancel(ctx context.Context, id string) (Mission, error) {
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.missionPath(id, "cancel"), struct{}{}, &resp)
	return resp, err
}

// Dispute freezes the mission.
func (c *Client) Dispute(ctx context.Context, id, reason, evidence string) (Mission, error) {
	body := map[string]any{"reason": reason}
	if evidence != "" {
		body["evidence"] = evidence
	}
	var resp Mission
	err := c.do(ctx, http.MethodPost, c.missionPath(id, "dispute"), body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "v0/events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) missionPath(id, action string) string {
	p := fmt.Sprintf("v0/missions/%s", url.PathEscape(id))
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
