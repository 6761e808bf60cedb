package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	StreamToolsPath = "/api/v1/chat/stream_tools"
	// LegacyStreamPath is the older endpoint that takes no profile_id.
	LegacyStreamPath = "/api/v1/chat/stream"
)

var (
	ErrNotConfigured = errors.New("chat: endpoint not configured")
	ErrEmptyBody     = errors.New("chat: response has no body")
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("chat: status %d", e.Code)
	}
	return fmt.Sprintf("chat: status %d: %s", e.Code, e.Body)
}

// Request is the outgoing body of one turn.
type Request struct {
	Message   string         `json:"message"`
	Messages  []HistoryEntry `json:"messages"`
	ProfileID string         `json:"profile_id,omitempty"`
}

// Transport opens the event stream for one turn. The caller owns and must
// close the returned body.
type Transport interface {
	Stream(ctx context.Context, req Request) (io.ReadCloser, error)
}

// Client talks to the external chat API.
type Client struct {
	BaseURL string
	// Legacy selects LegacyStreamPath and drops profile_id from requests.
	Legacy bool
	Client *http.Client
}

func NewClient(baseURL string, legacy bool) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Legacy:  legacy,
		// no global timeout; the session's idle watchdog bounds a turn
		Client: &http.Client{},
	}
}

func (c *Client) endpoint() string {
	if c.Legacy {
		return c.BaseURL + LegacyStreamPath
	}
	return c.BaseURL + StreamToolsPath
}

func (c *Client) Stream(ctx context.Context, r Request) (io.ReadCloser, error) {
	if c == nil || c.BaseURL == "" {
		return nil, ErrNotConfigured
	}
	if c.Client == nil {
		return nil, errors.New("chat: http client is nil")
	}
	if c.Legacy {
		r.ProfileID = ""
	}
	if r.Messages == nil {
		r.Messages = []HistoryEntry{}
	}

	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrEmptyBody
	}
	return resp.Body, nil
}
