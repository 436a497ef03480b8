// File: internal/provider/ollama.go
// Description: Client for a local Ollama server. No authentication; frames
// ride in the per-message images array as plain base64.

package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/vantrigo/deskhand/api/schemas"
)

var _ schemas.DecisionSource = (*Ollama)(nil)

// -- Ollama chat wire structures --

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Ollama is a DecisionSource over a local Ollama server's chat endpoint.
type Ollama struct {
	baseURL     string
	visionModel string
	transport   *apiTransport
	logger      *zap.Logger
}

// NewOllama builds a client for the server at s.BaseURL.
func NewOllama(s Settings, logger *zap.Logger) (*Ollama, error) {
	if s.BaseURL == "" {
		return nil, fmt.Errorf("provider ollama: base URL is required")
	}

	named := logger.Named("provider.ollama")
	return &Ollama{
		baseURL:     strings.TrimRight(s.BaseURL, "/"),
		visionModel: s.visionModel(),
		transport:   newAPITransport("ollama", s.Timeout, named),
		logger:      named,
	}, nil
}

// Plan implements schemas.DecisionSource.
func (c *Ollama) Plan(ctx context.Context, frame image.Image, goal string, history []string) (string, error) {
	return c.generate(ctx, buildPlanPrompt(goal, history), frame)
}

// Describe implements schemas.DecisionSource.
func (c *Ollama) Describe(ctx context.Context, frame image.Image, prompt string) (string, error) {
	return c.generate(ctx, prompt, frame)
}

func (c *Ollama) generate(ctx context.Context, prompt string, frame image.Image) (string, error) {
	pngBytes, err := encodeFramePNG(frame)
	if err != nil {
		return "", &TransportError{Provider: "ollama", Err: err}
	}

	payload := ollamaRequest{
		Model: c.visionModel,
		Messages: []ollamaMessage{
			{
				Role:    "user",
				Content: prompt,
				Images:  []string{base64.StdEncoding.EncodeToString(pngBytes)},
			},
		},
		Stream:  false,
		Options: ollamaOptions{Temperature: defaultTemperature},
	}

	var content string
	decode := func(body []byte) error {
		var resp ollamaResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return &TransportError{Provider: "ollama", Err: fmt.Errorf("decode response: %w", err)}
		}
		if resp.Message.Content == "" {
			return &TransportError{Provider: "ollama", Err: fmt.Errorf("response carried no message content")}
		}
		content = resp.Message.Content

		c.logger.Info("generation complete", zap.String("model", resp.Model))
		return nil
	}

	if err := c.transport.postJSON(ctx, c.baseURL+"/api/chat", nil, payload, decode); err != nil {
		return "", err
	}
	return content, nil
}
