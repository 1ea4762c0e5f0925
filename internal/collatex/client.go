// Package collatex aligns verses with a CollateX REST server.
package collatex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/FocuswithJustin/JuniperStemma/core/collation"
)

// DefaultTimeout bounds a single /collate call.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

// Client is a collation.Aligner backed by a CollateX server. It is safe for
// concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// New returns a client for the server at baseURL (e.g. "http://localhost:7369").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
	}
}

// WithTimeout sets the per-call deadline. Zero disables it.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type comparator struct {
	Type     string `json:"type"`
	Distance int    `json:"distance,omitempty"`
}

type collateRequest struct {
	Witnesses       []collation.Witness `json:"witnesses"`
	Algorithm       string              `json:"algorithm"`
	TokenComparator comparator          `json:"tokenComparator"`
	Joined          bool                `json:"joined"`
}

func newRequest(witnesses []collation.Witness, opts collation.Options) collateRequest {
	req := collateRequest{
		Witnesses:       witnesses,
		Algorithm:       "dekker",
		TokenComparator: comparator{Type: "equality"},
		Joined:          opts.Segmentation,
	}
	if opts.NearMatch {
		req.TokenComparator = comparator{Type: "levenshtein", Distance: 1}
	}
	return req
}

// Align posts the witnesses to /collate and decodes the alignment table.
func (c *Client) Align(ctx context.Context, witnesses []collation.Witness, opts collation.Options) (*collation.Table, error) {
	body, err := json.Marshal(newRequest(witnesses, opts))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/collate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("collatex request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return collation.ParseTable(data)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("collatex returned status %d", e.Code)
	}
	return fmt.Sprintf("collatex returned status %d: %s", e.Code, e.Body)
}
