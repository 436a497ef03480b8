// File: internal/provider/gemini.go
// Description: Gemini decision source over the official genai SDK. The SDK
// owns the wire protocol; this layer supplies prompt assembly, frame
// encoding and the TransportError mapping the agent relies on.

package provider

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/vantrigo/deskhand/api/schemas"
)

var _ schemas.DecisionSource = (*Gemini)(nil)

// Gemini is a DecisionSource backed by the Gemini API.
type Gemini struct {
	client      *genai.Client
	visionModel string
	logger      *zap.Logger
}

// NewGemini builds a Gemini client. Construction performs no network IO.
func NewGemini(s Settings, logger *zap.Logger) (*Gemini, error) {
	key := s.resolveKey()
	if key == "" {
		return nil, keyRequiredError("gemini", s)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("provider gemini: %w", err)
	}

	return &Gemini{
		client:      client,
		visionModel: s.visionModel(),
		logger:      logger.Named("provider.gemini"),
	}, nil
}

// Plan implements schemas.DecisionSource.
func (c *Gemini) Plan(ctx context.Context, frame image.Image, goal string, history []string) (string, error) {
	return c.generate(ctx, buildPlanPrompt(goal, history), frame)
}

// Describe implements schemas.DecisionSource.
func (c *Gemini) Describe(ctx context.Context, frame image.Image, prompt string) (string, error) {
	return c.generate(ctx, prompt, frame)
}

func (c *Gemini) generate(ctx context.Context, prompt string, frame image.Image) (string, error) {
	pngBytes, err := encodeFramePNG(frame)
	if err != nil {
		return "", &TransportError{Provider: "gemini", Err: err}
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(pngBytes, "image/png"),
		}, genai.RoleUser),
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.visionModel, contents, nil)
	if err != nil {
		return "", &TransportError{Provider: "gemini", Err: err}
	}

	text := resp.Text()
	if text == "" {
		return "", &TransportError{Provider: "gemini", Err: fmt.Errorf("response carried no text")}
	}

	fields := []zap.Field{
		zap.String("model", c.visionModel),
		zap.Duration("duration", time.Since(start)),
	}
	if usage := resp.UsageMetadata; usage != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", usage.PromptTokenCount),
			zap.Int32("completion_tokens", usage.CandidatesTokenCount),
			zap.Int32("total_tokens", usage.TotalTokenCount),
		)
	}
	c.logger.Info("generation complete", fields...)

	return text, nil
}
