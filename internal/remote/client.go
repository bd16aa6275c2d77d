// Package remote fetches the community topic manifest and topic content.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pavelanni/trivia/internal/model"
)

const (
	maxManifestBytes = 1 << 20
	maxContentBytes  = 4 << 20

	DefaultTimeout = 30 * time.Second
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Client talks to the community topic host. Calls block for the duration of
// the request, bounded by the client timeout.
type Client struct {
	manifestURL string
	httpClient  *http.Client
}

// NewClient creates a client for the manifest at manifestURL.
func NewClient(manifestURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		manifestURL: manifestURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ManifestURL returns the configured manifest location.
func (c *Client) ManifestURL() string {
	return c.manifestURL
}

// FetchManifest downloads and parses the community manifest.
func (c *Client) FetchManifest(ctx context.Context) ([]model.ManifestEntry, error) {
	slog.Debug("fetching community manifest", "url", c.manifestURL)
	data, err := c.get(ctx, c.manifestURL, maxManifestBytes)
	if err != nil {
		return nil, err
	}
	entries, err := ParseManifest(data, c.manifestURL)
	if err != nil {
		return nil, err
	}
	slog.Info("fetched community manifest", "url", c.manifestURL, "topics", len(entries))
	return entries, nil
}

// FetchContent downloads the raw content at rawURL.
func (c *Client) FetchContent(ctx context.Context, rawURL string) (string, error) {
	slog.Debug("fetching topic content", "url", rawURL)
	data, err := c.get(ctx, rawURL, maxContentBytes)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimPrefix(data, utf8BOM)), nil
}

func (c *Client) get(ctx context.Context, rawURL string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &Error{Kind: ErrNetworkUnavailable, URL: rawURL, Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &Error{Kind: ErrHTTPStatus, URL: rawURL, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, classify(rawURL, err)
	}
	if int64(len(data)) > limit {
		return nil, &Error{Kind: ErrResponseTooLarge, URL: rawURL}
	}
	return data, nil
}
