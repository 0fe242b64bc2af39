package cnwlicense

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 10 * time.Second
	maxResponseBytes = 1 << 20 // 1 MB
)

// Client calls the license server's activation endpoint.
type Client struct {
	serverURL  string
	httpClient *http.Client
	timeout    time.Duration // applied after all options
	userAgent  string
	machineID  string
}

// NewClient creates a new client for the license server.
// serverURL is the base URL (e.g. "https://license.example.com").
func NewClient(serverURL string, opts ...ClientOption) *Client {
	c := &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		timeout:   defaultTimeout,
		userAgent: "cnw-license-server-go/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	c.httpClient.Timeout = c.timeout
	return c
}

// MachineID returns the machine id configured via WithMachineID.
func (c *Client) MachineID() string {
	return c.machineID
}

// Activate requests a credential for req.MachineID under req.ProductKey.
// If req.MachineID is empty, the client-level machine id is used.
// Error responses are mapped to ErrKeyNotFound, ErrQuotaExceeded and the
// other sentinels; the original *ServerError is available via errors.As.
func (c *Client) Activate(ctx context.Context, req ActivateRequest) (*ActivateResponse, error) {
	if req.MachineID == "" {
		req.MachineID = c.machineID
	}
	var resp ActivateResponse
	if err := c.doJSON(ctx, "/activate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// doJSON performs a POST request with JSON body and decodes the response into dest.
// On non-2xx responses, it parses the server error format and returns a mapped error.
func (c *Client) doJSON(ctx context.Context, path string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.parseError(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// parseError parses the server error response format:
// {"status": "error", "error": {"code": "...", "message": "..."}}
func (c *Client) parseError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Code == "" {
		return &ServerError{
			StatusCode: statusCode,
			Code:       "UNKNOWN",
			Message:    string(body),
		}
	}
	se := &ServerError{
		StatusCode: statusCode,
		Code:       errResp.Error.Code,
		Message:    errResp.Error.Message,
	}
	return mapServerError(se)
}
