package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// StatusPath is the status endpoint path on the backend.
const StatusPath = "/api/system/info"

var (
	// ErrUnsuccessful is returned when the endpoint answers success=false.
	ErrUnsuccessful = errors.New("status endpoint reported failure")
	// ErrNoData is returned when success=true carries no data.
	ErrNoData = errors.New("status endpoint returned no data")
)

// Fetcher retrieves a snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (SystemSnapshot, error)
}

// Client fetches snapshots over HTTP.
type Client struct {
	url     string
	http    *http.Client
	timeout time.Duration
}

// StatusURL returns the status endpoint for a backend base URL.
func StatusURL(source string) (string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", fmt.Errorf("parse source: %w", err)
	}
	u.Path = StatusPath
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// NewClient creates a Client for the given status URL. httpClient may be nil.
func NewClient(statusURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{url: statusURL, http: httpClient, timeout: timeout}
}

// Fetch performs one GET and decodes the envelope. The HTTP status code is
// not inspected; the envelope's success flag decides.
func (c *Client) Fetch(ctx context.Context) (SystemSnapshot, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return SystemSnapshot{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return SystemSnapshot{}, fmt.Errorf("fetch %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SystemSnapshot{}, fmt.Errorf("read body: %w", err)
	}
	return Decode(body)
}

// Decode parses a status endpoint response body.
func Decode(body []byte) (SystemSnapshot, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return SystemSnapshot{}, fmt.Errorf("decode status: %w", err)
	}
	if !env.Success {
		return SystemSnapshot{}, ErrUnsuccessful
	}
	if env.Data == nil {
		return SystemSnapshot{}, ErrNoData
	}
	snap := *env.Data
	snap.normalize()
	return snap, nil
}
