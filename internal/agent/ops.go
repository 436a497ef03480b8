// File: internal/agent/ops.go
// Description: Single-shot convenience operations outside a full run. Each
// one captures a frame, has the decision source resolve a semantic target
// or question, and acts on the answer.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vantrigo/deskhand/internal/planner"
)

type findElementResponse struct {
	Found   bool       `json:"found"`
	Reason  string     `json:"reason,omitempty"`
	Element *UIElement `json:"element,omitempty"`
}

// FindElement asks the decision source to locate a semantically described
// element on the current screen. Absence is (nil, nil); an unstructured
// answer counts as absence, not an error.
func (a *Agent) FindElement(ctx context.Context, target string) (*UIElement, error) {
	frame, err := a.handle.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("agent: screen capture failed: %w", err)
	}

	raw, err := a.source.Describe(ctx, frame, fmt.Sprintf(findElementPrompt, target))
	if err != nil {
		return nil, fmt.Errorf("agent: decision source failed: %w", err)
	}

	resp, err := planner.DecodeJSON[findElementResponse](raw)
	if err != nil {
		a.logger.Warn("find-element answer not structured, treating as absent",
			zap.String("target", target), zap.Error(err))
		return nil, nil
	}
	if !resp.Found || resp.Element == nil {
		a.logger.Debug("element not found on screen",
			zap.String("target", target), zap.String("reason", resp.Reason))
		return nil, nil
	}
	return resp.Element, nil
}

// LocateAndClick resolves the target description and clicks its center.
// Returns false when the element is not on screen.
func (a *Agent) LocateAndClick(ctx context.Context, target string) (bool, error) {
	el, err := a.FindElement(ctx, target)
	if err != nil || el == nil {
		return false, err
	}
	x, y := el.Center()
	if err := a.handle.ClickAt(ctx, x, y); err != nil {
		return false, err
	}
	return true, nil
}

// LocateAndClickWithTimeout retries LocateAndClick until it succeeds or the
// budget elapses. Returns false without error on timeout.
func (a *Agent) LocateAndClickWithTimeout(ctx context.Context, target string, timeout time.Duration) (bool, error) {
	start := time.Now()
	for time.Since(start) < timeout {
		ok, err := a.LocateAndClick(ctx, target)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(a.locatePoll):
		}
	}
	return false, nil
}

// TypeAtTarget clicks the described element, waits briefly for focus, then
// types the text. Returns false when the element is not on screen.
func (a *Agent) TypeAtTarget(ctx context.Context, target, text string) (bool, error) {
	ok, err := a.LocateAndClick(ctx, target)
	if err != nil || !ok {
		return false, err
	}
	if err := a.sleepErr(ctx, a.typeSettle); err != nil {
		return false, err
	}
	if err := a.handle.TypeText(ctx, text); err != nil {
		return false, err
	}
	return true, nil
}

// AnalyzeScreen returns a structured inventory of the current screen. When
// the source answers in prose instead of the requested JSON, the prose
// becomes the description and the element list stays empty.
func (a *Agent) AnalyzeScreen(ctx context.Context) (*ScreenAnalysis, error) {
	frame, err := a.handle.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("agent: screen capture failed: %w", err)
	}

	raw, err := a.source.Describe(ctx, frame, analyzeScreenPrompt)
	if err != nil {
		return nil, fmt.Errorf("agent: decision source failed: %w", err)
	}

	analysis, err := planner.DecodeJSON[ScreenAnalysis](raw)
	if err != nil {
		a.logger.Warn("screen analysis answer not structured, keeping raw text", zap.Error(err))
		return &ScreenAnalysis{Description: strings.TrimSpace(raw)}, nil
	}
	return analysis, nil
}

// DescribeScreen returns a free-form description of the current screen.
func (a *Agent) DescribeScreen(ctx context.Context) (string, error) {
	return a.Ask(ctx, describeScreenPrompt)
}

// Ask answers an arbitrary question about the current screen.
func (a *Agent) Ask(ctx context.Context, question string) (string, error) {
	frame, err := a.handle.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("agent: screen capture failed: %w", err)
	}
	answer, err := a.source.Describe(ctx, frame, question)
	if err != nil {
		return "", fmt.Errorf("agent: decision source failed: %w", err)
	}
	return answer, nil
}
