package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/envsort/envsort-core/internal/infrastructure/config"
)

// Default timeouts for batch API operations.
const (
	defaultRequestTimeout = 5 * time.Second
	defaultHealthTimeout  = 5 * time.Second
)

// ChannelReport is the per-scanner portion of an item report.
type ChannelReport struct {
	Value string `json:"value"`
	Valid bool   `json:"valid"`
}

// ItemReport describes one completed item for the finish call.
//
// Result and Fallback mirror the session record; the upstream service
// stores both per item next to the three scanner readings.
type ItemReport struct {
	ItemID   int64         `json:"item_id"`
	Scanner1 ChannelReport `json:"scanner_1"`
	Scanner2 ChannelReport `json:"scanner_2"`
	Scanner3 ChannelReport `json:"scanner_3"`
	Result   string        `json:"result"`
	Fallback bool          `json:"fallback"`
}

// startRequest is the body for POST /batch/start.
type startRequest struct {
	ScannerUsed []int  `json:"scanner_used"`
	BatchCode   string `json:"batch_code"`
}

// startResponse is the expected body from POST /batch/start.
type startResponse struct {
	ID int `json:"id"`
}

// Client talks to the upstream batch logging API over HTTP.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	baseURL    string
	batchCode  string
	httpClient *http.Client
}

// NewClient creates a batch API client from configuration.
//
// No network activity occurs until Start, Finish or HealthCheck is called.
func NewClient(cfg config.BatchConfig) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		batchCode: cfg.BatchCode,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Start registers a new batch upstream and returns its ID.
//
// Callers must refuse to enter the Running state if this returns an error.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - scannersUsed: Channel numbers enabled for this session
//
// Returns:
//   - int: Batch ID assigned by the upstream service
//   - error: ErrStartFailed (wrapped) on non-2xx response or network failure
func (c *Client) Start(ctx context.Context, scannersUsed []int) (int, error) {
	body, err := json.Marshal(startRequest{
		ScannerUsed: scannersUsed,
		BatchCode:   c.batchCode,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: encoding request: %w", ErrStartFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/batch/start", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStartFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("%w: HTTP %d", ErrStartFailed, resp.StatusCode)
	}

	var sr startResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return 0, fmt.Errorf("%w: decoding response: %w", ErrStartFailed, err)
	}

	return sr.ID, nil
}

// Finish reports the session's completed items against a batch ID.
//
// A failure here must not block local session persistence; callers log
// the error and continue.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - batchID: ID returned by Start
//   - items: Completed item reports, may be empty
//
// Returns:
//   - error: ErrFinishFailed (wrapped) on non-2xx response or network failure
func (c *Client) Finish(ctx context.Context, batchID int, items []ItemReport) error {
	if items == nil {
		items = []ItemReport{}
	}

	body, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("%w: encoding request: %w", ErrFinishFailed, err)
	}

	url := fmt.Sprintf("%s/batch/%d/finish", c.baseURL, batchID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFinishFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFinishFailed, err)
	}
	defer resp.Body.Close()
	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: HTTP %d", ErrFinishFailed, resp.StatusCode)
	}

	return nil
}

// HealthCheck verifies the upstream API is reachable.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, defaultHealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(hctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("batch health check: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("batch health check: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("batch health check: status %d", resp.StatusCode)
	}

	return nil
}
