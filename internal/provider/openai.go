// File: internal/provider/openai.go
// Description: Client for the OpenAI chat completions protocol and the
// providers that speak it (DeepSeek, DashScope, Moonshot, MiniMax,
// VolcEngine, Zhipu). Frames travel as base64 PNG data URLs inside the
// user message content.

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

// Interface conformance check.
var _ schemas.DecisionSource = (*OpenAICompatible)(nil)

// -- Chat completions wire structures --

type chatImageURL struct {
	URL string `json:"url"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string            `json:"role"`
	Content []chatContentPart `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// OpenAICompatible is a DecisionSource over the chat completions endpoint.
// The provider name only affects logging and error reporting; the wire
// protocol is identical across the family.
type OpenAICompatible struct {
	name        string
	baseURL     string
	visionModel string
	transport   *apiTransport
	authorize   func(*http.Request) error
	logger      *zap.Logger
}

// NewOpenAICompatible builds a chat completions client for the named
// provider. An API key must be resolvable from the settings.
func NewOpenAICompatible(name string, s Settings, logger *zap.Logger) (*OpenAICompatible, error) {
	key := s.resolveKey()
	if key == "" {
		return nil, keyRequiredError(name, s)
	}
	if s.BaseURL == "" {
		return nil, fmt.Errorf("provider %s: base URL is required", name)
	}

	named := logger.Named("provider." + name)
	return &OpenAICompatible{
		name:        name,
		baseURL:     strings.TrimRight(s.BaseURL, "/"),
		visionModel: s.visionModel(),
		transport:   newAPITransport(name, s.Timeout, named),
		authorize: func(req *http.Request) error {
			req.Header.Set("Authorization", "Bearer "+key)
			return nil
		},
		logger: named,
	}, nil
}

// Plan implements schemas.DecisionSource.
func (c *OpenAICompatible) Plan(ctx context.Context, frame image.Image, goal string, history []string) (string, error) {
	return c.generate(ctx, buildPlanPrompt(goal, history), frame)
}

// Describe implements schemas.DecisionSource.
func (c *OpenAICompatible) Describe(ctx context.Context, frame image.Image, prompt string) (string, error) {
	return c.generate(ctx, prompt, frame)
}

func (c *OpenAICompatible) generate(ctx context.Context, prompt string, frame image.Image) (string, error) {
	payload, err := c.buildChatPayload(prompt, frame)
	if err != nil {
		return "", &TransportError{Provider: c.name, Err: err}
	}

	var content string
	decode := func(body []byte) error {
		var resp chatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return &TransportError{Provider: c.name, Err: fmt.Errorf("decode response: %w", err)}
		}
		if len(resp.Choices) == 0 {
			return &TransportError{Provider: c.name, Err: fmt.Errorf("response carried no choices")}
		}
		content = resp.Choices[0].Message.Content

		c.logger.Info("generation complete",
			zap.String("model", resp.Model),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)
		return nil
	}

	if err := c.transport.postJSON(ctx, c.baseURL+"/chat/completions", c.authorize, payload, decode); err != nil {
		return "", err
	}
	return content, nil
}

// buildChatPayload assembles the vision request: one user message holding
// the prompt text followed by the frame as a data URL.
func (c *OpenAICompatible) buildChatPayload(prompt string, frame image.Image) (chatRequest, error) {
	pngBytes, err := encodeFramePNG(frame)
	if err != nil {
		return chatRequest{}, err
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)

	return chatRequest{
		Model: c.visionModel,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []chatContentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}},
				},
			},
		},
		Temperature: defaultTemperature,
	}, nil
}

// keyRequiredError names the environment variable that would satisfy the
// key requirement when one is known.
func keyRequiredError(name string, s Settings) error {
	if s.APIKeyEnv != "" {
		return fmt.Errorf("provider %s: API key is required (set %s)", name, s.APIKeyEnv)
	}
	return fmt.Errorf("provider %s: API key is required", name)
}
