package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Waaajid/chatbotwiteditrequests/internal/errors"
)

// maxErrorBody caps how much of a failed upstream body is kept.
const maxErrorBody = 8 << 10

// Completer performs one chat-completion call.
type Completer interface {
	Complete(ctx context.Context, apiKey string, req Request) (*Response, error)
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
// It does not retry; failures go straight back to the caller.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for baseURL. A zero timeout means the call is
// bounded only by the caller's context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete sends req with bearer authentication.
//
// Non-2xx responses become UPSTREAM_ERROR carrying the upstream status and
// body. A cancelled context becomes CANCELLED.
func (c *Client) Complete(ctx context.Context, apiKey string, req Request) (*Response, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.NewMissingCredential()
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("chat completion")
		}
		return nil, errors.NewUpstream(http.StatusBadGateway, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewCancelled("chat completion")
		}
		return nil, errors.NewUpstream(http.StatusBadGateway, fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewUpstream(resp.StatusCode, truncate(string(body), maxErrorBody))
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.NewUpstream(http.StatusBadGateway, fmt.Sprintf("failed to parse response: %v", err))
	}
	if out.Error != nil {
		return nil, errors.NewUpstream(http.StatusBadGateway, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, errors.NewUpstream(http.StatusBadGateway, "no completion returned")
	}

	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
