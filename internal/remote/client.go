package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/metcalfc/folio/internal/progress"
)

// Client talks to the reading-history API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) ClientOption { return func(c *Client) { c.http = hc } }

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption { return func(c *Client) { c.logger = l } }

// NewClient returns a client for the API rooted at baseURL. token is sent
// as a bearer token when non-empty.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// PushProgress PUTs the update to the book's reading-history resource.
func (c *Client) PushProgress(ctx context.Context, u progress.Update) error {
	body, err := json.Marshal(u)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPut, historyPath(u.BookID), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: put progress: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	c.logger.Debug("progress pushed", "book_id", u.BookID, "page", u.LastPage)
	return nil
}

// History GETs the last mirrored record. A 404 means none exists.
func (c *Client) History(ctx context.Context, bookID int64) (progress.History, bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet, historyPath(bookID), nil)
	if err != nil {
		return progress.History{}, false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return progress.History{}, false, fmt.Errorf("remote: get history: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return progress.History{}, false, nil
	}
	if err := checkStatus(resp); err != nil {
		return progress.History{}, false, err
	}

	var rec record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return progress.History{}, false, fmt.Errorf("remote: decode history: %w", err)
	}
	if rec.BookID == 0 {
		rec.BookID = bookID
	}
	return rec.history(), true, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s", ErrUnauthorized, strings.TrimSpace(string(msg)))
	}
	return fmt.Errorf("remote: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
