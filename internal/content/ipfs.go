package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// IPFSStore talks to an IPFS node's HTTP API (/api/v0/add, /api/v0/cat).
// Pinning keeps mission and proof bodies retrievable for the mission's
// lifetime.
type IPFSStore struct {
	APIURL string
	Client *http.Client
}

func NewIPFSStore(apiURL string) *IPFSStore {
	return &IPFSStore{
		APIURL: strings.TrimRight(apiURL, "/"),
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

type addResponse struct {
	Hash string `json:"Hash"`
}

func (s *IPFSStore) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (s *IPFSStore) Put(ctx context.Context, kind string, body []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", kind+".json")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(body); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.APIURL+"/api/v0/add?pin=true", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	res, err := s.client().Do(req)
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ipfs add: status %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	var parsed addResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	if parsed.Hash == "" {
		return "", fmt.Errorf("ipfs add: empty hash in response")
	}
	return parsed.Hash, nil
}

func (s *IPFSStore) Get(ctx context.Context, cid string) ([]byte, error) {
	endpoint := s.APIURL + "/api/v0/cat?arg=" + url.QueryEscape(cid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, err
	}
	res, err := s.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs cat: %w", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("ipfs cat: %w", err)
	}
	if res.StatusCode == http.StatusInternalServerError && strings.Contains(string(data), "not found") {
		return nil, ErrNotFound
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ipfs cat: status %d: %s", res.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
