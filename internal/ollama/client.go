package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Client talks to an Ollama-compatible inference server over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  logger.With(slog.String("component", "ollama-client")),
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping reports whether the server answers its tags endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %s", resp.Status)
	}
	return nil
}

// Version returns the server's reported version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned status %s", resp.Status)
	}
	var payload struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode version response: %w", err)
	}
	return payload.Version, nil
}

type tagsResponse struct {
	Models []ModelInfo `json:"models"`
}

// ListModels returns the models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %s", resp.Status)
	}
	var payload tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}
	return payload.Models, nil
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Model   string   `json:"model"`
	Message *Message `json:"message"`
	Done    bool     `json:"done"`
	Error   string   `json:"error"`
}

// Chat sends the whole conversation and returns the assistant reply.
func (c *Client) Chat(ctx context.Context, model string, messages []Message) (Message, error) {
	payload := chatRequest{Model: model, Messages: messages, Stream: false}
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Message{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Message{}, err
	}
	defer resp.Body.Close()

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Message{}, fmt.Errorf("decode chat response: %w", err)
	}
	if result.Error != "" {
		return Message{}, &APIError{Status: resp.StatusCode, Message: result.Error}
	}
	if resp.StatusCode >= 300 {
		return Message{}, fmt.Errorf("server returned status %s", resp.Status)
	}
	if result.Message == nil {
		return Message{}, fmt.Errorf("chat response missing message")
	}
	return *result.Message, nil
}

type pullEvent struct {
	Status    string `json:"status"`
	Completed int64  `json:"completed"`
	Total     int64  `json:"total"`
	Error     string `json:"error"`
}

// Pull downloads a model from the registry, streaming status events to
// consumer until the server reports completion.
func (c *Client) Pull(ctx context.Context, name string, consumer func(PullProgress) error) error {
	body, err := json.Marshal(struct {
		Name string `json:"name"`
	}{Name: name})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned status %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var evt pullEvent
		if err := json.Unmarshal(line, &evt); err != nil {
			return fmt.Errorf("decode pull event: %w", err)
		}
		if evt.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: evt.Error}
		}
		if consumer != nil {
			if err := consumer(PullProgress{Status: evt.Status, Completed: evt.Completed, Total: evt.Total}); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}
