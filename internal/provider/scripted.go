// File: internal/provider/scripted.go
package provider

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/vantrigo/deskhand/api/schemas"
)

var _ schemas.DecisionSource = (*Scripted)(nil)

// Scripted is a DecisionSource driven by caller-supplied functions instead
// of a model. It backs deterministic tests and canned demonstration runs;
// unset functions report an error rather than fabricating output.
type Scripted struct {
	PlanFunc     func(ctx context.Context, frame image.Image, goal string, history []string) (string, error)
	DescribeFunc func(ctx context.Context, frame image.Image, prompt string) (string, error)
}

// Plan implements schemas.DecisionSource.
func (s *Scripted) Plan(ctx context.Context, frame image.Image, goal string, history []string) (string, error) {
	if s.PlanFunc == nil {
		return "", fmt.Errorf("provider scripted: no plan function configured")
	}
	return s.PlanFunc(ctx, frame, goal, history)
}

// Describe implements schemas.DecisionSource.
func (s *Scripted) Describe(ctx context.Context, frame image.Image, prompt string) (string, error) {
	if s.DescribeFunc == nil {
		return "", fmt.Errorf("provider scripted: no describe function configured")
	}
	return s.DescribeFunc(ctx, frame, prompt)
}

// ScriptedSequence returns a Scripted source that plays the given plan
// texts in order, one per Plan call, and fails once they run out.
func ScriptedSequence(plans ...string) *Scripted {
	var mu sync.Mutex
	next := 0
	return &Scripted{
		PlanFunc: func(context.Context, image.Image, string, []string) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if next >= len(plans) {
				return "", fmt.Errorf("provider scripted: sequence exhausted after %d plans", len(plans))
			}
			plan := plans[next]
			next++
			return plan, nil
		},
	}
}
