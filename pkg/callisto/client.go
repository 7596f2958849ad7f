// Package callisto provides a Go SDK for the callisto-server HTTP API.
package callisto

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

// Bar is one OHLCV bar as served over the wire. Time is epoch milliseconds.
type Bar struct {
	Time   int64   `json:"t"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

// APIError is an explicit error payload returned by the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Client is an HTTP client for the callisto-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type stockPayload struct {
	Data *struct {
		Results []Bar `json:"results"`
	} `json:"data"`
	Error string `json:"error"`
}

type watchlistPayload struct {
	Symbols []string `json:"symbols"`
	Error   string   `json:"error,omitempty"`
}

// GetBars retrieves bars for a ticker over the half-open date range
// [start, end) at the given timeframe. Dates are interpreted as calendar
// days; only their year, month and day are sent.
func (c *Client) GetBars(ctx context.Context, ticker string, start, end time.Time, timeframe string) ([]Bar, error) {
	path := fmt.Sprintf("/stock/%s/%s/%s?timeframe=%s",
		url.PathEscape(strings.ToUpper(ticker)),
		start.Format("2006-01-02"),
		end.Format("2006-01-02"),
		url.QueryEscape(timeframe))

	var payload stockPayload
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return nil, err
	}
	if payload.Data == nil {
		return nil, nil
	}
	return payload.Data.Results, nil
}

// Watchlist returns the saved watchlist symbols in their stored order.
func (c *Client) Watchlist(ctx context.Context) ([]string, error) {
	var payload watchlistPayload
	if err := c.do(ctx, http.MethodGet, "/api/watchlist", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Symbols, nil
}

// AddWatchlistSymbol appends a symbol to the watchlist.
func (c *Client) AddWatchlistSymbol(ctx context.Context, symbol string) error {
	path := "/api/watchlist/" + url.PathEscape(strings.ToUpper(symbol))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// RemoveWatchlistSymbol deletes a symbol from the watchlist.
func (c *Client) RemoveWatchlistSymbol(ctx context.Context, symbol string) error {
	path := "/api/watchlist/" + url.PathEscape(strings.ToUpper(symbol))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ReplaceWatchlist overwrites the whole watchlist with the given symbols,
// preserving their order.
func (c *Client) ReplaceWatchlist(ctx context.Context, symbols []string) error {
	body := watchlistPayload{Symbols: symbols}
	return c.do(ctx, http.MethodPut, "/api/watchlist", body, nil)
}

// Health checks whether the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil)
}

// do issues one request and decodes the JSON response into out when out is
// non-nil. Non-2xx responses are returned as *APIError carrying the server's
// error message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := http.StatusText(resp.StatusCode)
		var errPayload struct {
			Error string `json:"error"`
		}
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20)); readErr == nil {
			if json.Unmarshal(data, &errPayload) == nil && errPayload.Error != "" {
				msg = errPayload.Error
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
