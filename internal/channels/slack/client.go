package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultAPIBase     = "https://slack.com/api"
	defaultHTTPTimeout = 10 * time.Second
)

// Client posts messages via the Slack Web API.
type Client struct {
	botToken   string
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a Slack Web API client.
func NewClient(botToken string) *Client {
	return &Client{
		botToken:   botToken,
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetAPIBase overrides the API base URL (useful for testing).
func (c *Client) SetAPIBase(base string) {
	c.apiBase = base
}

type postMessageRequest struct {
	Channel  string `json:"channel"`
	Text     string `json:"text"`
	ThreadTS string `json:"thread_ts,omitempty"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Error string `json:"error"`
}

// PostMessage sends a message to a channel or DM, optionally inside a thread.
// Returns the message timestamp Slack assigned.
func (c *Client) PostMessage(ctx context.Context, channelID, threadTS, text string) (string, error) {
	body, err := json.Marshal(postMessageRequest{
		Channel:  channelID,
		Text:     text,
		ThreadTS: threadTS,
	})
	if err != nil {
		return "", fmt.Errorf("slack: marshal post request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("slack: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("Authorization", "Bearer "+c.botToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("slack: read response: %w", err)
	}

	var postResp postMessageResponse
	if err := json.Unmarshal(respBody, &postResp); err != nil {
		return "", fmt.Errorf("slack: decode response: %w", err)
	}
	if !postResp.OK {
		return "", fmt.Errorf("slack: post message rejected: %s", postResp.Error)
	}
	return postResp.TS, nil
}
