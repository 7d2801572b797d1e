// Package openrouter adapts the OpenRouter chat-completions API for image
// generation. All response-shape handling lives here; callers only see the
// Result type.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	log        *slog.Logger
}

type Request struct {
	Prompt          string
	AspectRatio     string
	PersonaImageURL string
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the single decoded outcome of a model call. ImageURL is either a
// hosted URL or an inline data URL.
type Result struct {
	ImageURL string
	Usage    Usage
}

// Inline reports whether the artifact is an inline data URL that has not been
// persisted anywhere.
func (r *Result) Inline() bool {
	return strings.HasPrefix(r.ImageURL, "data:")
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Images  []struct {
				ImageURL imageRef `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends one image-generation request. Non-2xx responses, API-level
// errors and responses without an image payload all fail with an error; there
// is a single failure path for the caller to compensate on.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	parts := []contentPart{{Type: "text", Text: req.Prompt}}
	if req.PersonaImageURL != "" {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageRef{URL: req.PersonaImageURL}})
	}

	payload := chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: parts}},
		MaxTokens: 4000,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post openrouter: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		if c.log != nil {
			c.log.Error("openrouter request failed", "status", resp.StatusCode, "body", truncateBody(rawBody))
		}
		return nil, fmt.Errorf("openrouter error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}

	var decoded chatResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(rawBody))
	}

	if decoded.Error != nil {
		return nil, fmt.Errorf("openrouter error: code=%d message=%s", decoded.Error.Code, decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("empty choices in response (body=%s)", truncateBody(rawBody))
	}

	imageURL := extractImageURL(decoded)
	if imageURL == "" {
		return nil, fmt.Errorf("no image payload in response")
	}

	return &Result{ImageURL: imageURL, Usage: decoded.Usage}, nil
}

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/=\s]+$`)

// extractImageURL prefers the message images field; a data URL or raw base64
// blob in the content is accepted as fallback.
func extractImageURL(resp chatResponse) string {
	message := resp.Choices[0].Message
	if len(message.Images) > 0 && message.Images[0].ImageURL.URL != "" {
		return message.Images[0].ImageURL.URL
	}

	content := strings.TrimSpace(message.Content)
	if strings.HasPrefix(content, "data:image/") {
		return content
	}
	if len(content) > 100 && base64Pattern.MatchString(content) {
		return "data:image/png;base64," + content
	}
	return ""
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
