// File: internal/provider/anthropic.go
// Description: Client for the Anthropic messages API. Unlike the chat
// completions family it authenticates through x-api-key, pins a protocol
// version header, and carries frames as inline base64 image blocks.

package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/vantrigo/deskhand/api/schemas"
)

var _ schemas.DecisionSource = (*Anthropic)(nil)

const (
	anthropicVersion   = "2023-06-01"
	anthropicMaxTokens = 4096
)

// -- Messages API wire structures --

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicBlock struct {
	Type   string                `json:"type"`
	Text   string                `json:"text,omitempty"`
	Source *anthropicImageSource `json:"source,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Anthropic is a DecisionSource over the messages API.
type Anthropic struct {
	baseURL     string
	visionModel string
	transport   *apiTransport
	authorize   func(*http.Request) error
	logger      *zap.Logger
}

// NewAnthropic builds a messages API client.
func NewAnthropic(s Settings, logger *zap.Logger) (*Anthropic, error) {
	key := s.resolveKey()
	if key == "" {
		return nil, keyRequiredError("anthropic", s)
	}
	if s.BaseURL == "" {
		return nil, fmt.Errorf("provider anthropic: base URL is required")
	}

	named := logger.Named("provider.anthropic")
	return &Anthropic{
		baseURL:     strings.TrimRight(s.BaseURL, "/"),
		visionModel: s.visionModel(),
		transport:   newAPITransport("anthropic", s.Timeout, named),
		authorize: func(req *http.Request) error {
			req.Header.Set("x-api-key", key)
			req.Header.Set("anthropic-version", anthropicVersion)
			return nil
		},
		logger: named,
	}, nil
}

// Plan implements schemas.DecisionSource.
func (c *Anthropic) Plan(ctx context.Context, frame image.Image, goal string, history []string) (string, error) {
	return c.generate(ctx, buildPlanPrompt(goal, history), frame)
}

// Describe implements schemas.DecisionSource.
func (c *Anthropic) Describe(ctx context.Context, frame image.Image, prompt string) (string, error) {
	return c.generate(ctx, prompt, frame)
}

func (c *Anthropic) generate(ctx context.Context, prompt string, frame image.Image) (string, error) {
	payload, err := c.buildMessagePayload(prompt, frame)
	if err != nil {
		return "", &TransportError{Provider: "anthropic", Err: err}
	}

	var content string
	decode := func(body []byte) error {
		var resp anthropicResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return &TransportError{Provider: "anthropic", Err: fmt.Errorf("decode response: %w", err)}
		}
		if len(resp.Content) == 0 {
			return &TransportError{Provider: "anthropic", Err: fmt.Errorf("response carried no content blocks")}
		}
		content = resp.Content[0].Text

		c.logger.Info("generation complete",
			zap.String("model", resp.Model),
			zap.Int("input_tokens", resp.Usage.InputTokens),
			zap.Int("output_tokens", resp.Usage.OutputTokens),
		)
		return nil
	}

	if err := c.transport.postJSON(ctx, c.baseURL+"/v1/messages", c.authorize, payload, decode); err != nil {
		return "", err
	}
	return content, nil
}

// buildMessagePayload assembles the request: the frame as an image block
// ahead of the prompt text.
func (c *Anthropic) buildMessagePayload(prompt string, frame image.Image) (anthropicRequest, error) {
	pngBytes, err := encodeFramePNG(frame)
	if err != nil {
		return anthropicRequest{}, err
	}

	return anthropicRequest{
		Model:       c.visionModel,
		MaxTokens:   anthropicMaxTokens,
		Temperature: defaultTemperature,
		Messages: []anthropicMessage{
			{
				Role: "user",
				Content: []anthropicBlock{
					{
						Type: "image",
						Source: &anthropicImageSource{
							Type:      "base64",
							MediaType: "image/png",
							Data:      base64.StdEncoding.EncodeToString(pngBytes),
						},
					},
					{Type: "text", Text: prompt},
				},
			},
		},
	}, nil
}
