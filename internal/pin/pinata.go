package pin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// DefaultBaseURL is the public Pinata API endpoint.
const DefaultBaseURL = "https://api.pinata.cloud"

const pinJSONPath = "/pinning/pinJSONToIPFS"

// PinataConfig configures a Pinata client.
type PinataConfig struct {
	// APIKey and APISecret authenticate against the Pinata API.
	APIKey    string
	APISecret string

	// BaseURL overrides the API endpoint, mainly for tests.
	// Defaults to DefaultBaseURL.
	BaseURL string

	// RetryMax is the number of transport-level retries. Defaults to 0:
	// the pipeline treats a pin failure as final and surfaces it, so
	// retries are opt-in and belong to the transport, not the pipeline.
	RetryMax int

	// Timeout bounds each HTTP attempt. Defaults to 30s.
	Timeout time.Duration
}

// Pinata pins payloads to IPFS through the Pinata pinning service.
type Pinata struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *retryablehttp.Client
}

// NewPinata creates a Pinata client.
func NewPinata(cfg PinataConfig) (*Pinata, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("pinata: api key and secret are required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.HTTPClient.Timeout = timeout
	client.Logger = nil // errors carry the context, no transport chatter

	return &Pinata{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		http:      client,
	}, nil
}

// pinRequest wraps the payload the way the Pinata API expects it.
type pinRequest struct {
	PinataContent json.RawMessage `json:"pinataContent"`
}

// pinResponse is the subset of the Pinata response the pipeline needs.
type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
}

// PinJSON pins the payload and returns its content identifier.
// The payload must already be canonical JSON - the client submits the bytes
// untouched so the content identifier stays deterministic.
func (p *Pinata) PinJSON(ctx context.Context, payload []byte) (string, error) {
	if !json.Valid(payload) {
		return "", fmt.Errorf("pinata: payload is not valid JSON")
	}

	body, err := json.Marshal(pinRequest{PinataContent: payload})
	if err != nil {
		return "", fmt.Errorf("pinata: marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+pinJSONPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("pinata: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("pinata_api_key", p.apiKey)
	req.Header.Set("pinata_secret_api_key", p.apiSecret)

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinata: pin request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("pinata: unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var parsed pinResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("pinata: decode response: %w", err)
	}
	if parsed.IpfsHash == "" {
		return "", fmt.Errorf("pinata: response carried no content identifier")
	}

	return parsed.IpfsHash, nil
}
