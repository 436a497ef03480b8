// internal/planner/parse.go
// Parsing of untrusted plan text into typed actions. Decision sources wrap
// their JSON in markdown fences, prose, or analysis envelopes; the rules
// here tolerate all of that without ever touching the automation handle.
package planner

import (
	"bytes"
	stdjson "encoding/json"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fenceRE captures the body of the first fenced code block, tolerating an
// optional language tag after the opening fence.
var fenceRE = regexp.MustCompile("(?s)```[a-zA-Z0-9]*[ \t]*\r?\n?(.*?)```")

const snippetLimit = 160

// extractJSON reduces raw plan text to its JSON object candidate: trim,
// unwrap the first fenced block if one exists, then slice from the first
// opening brace to the last closing brace.
func extractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if strings.Contains(text, "```") {
		if m := fenceRE.FindStringSubmatch(text); m != nil {
			text = m[1]
		}
	}

	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last == -1 || last < first {
		return "", ErrUnparsableAction
	}
	return text[first : last+1], nil
}

// Parse converts raw plan text into a validated Action. No extractable
// JSON yields ErrUnparsableAction; a syntax error in the extracted
// candidate yields MalformedActionError. An unrecognized action value is
// not a parse failure; it maps to the error variant.
func Parse(raw string) (*Action, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var a Action
	if err := json.UnmarshalFromString(payload, &a); err != nil {
		return nil, &MalformedActionError{Snippet: truncateString(payload, snippetLimit), Err: err}
	}
	a.normalize()
	return &a, nil
}

// Decision is the envelope a planning source may wrap around its action:
// free-form analysis, an explicit can_proceed verdict, and a reason. An
// explicit false verdict stops a run; absence means proceed.
type Decision struct {
	Analysis   string `json:"analysis,omitempty"`
	CanProceed *bool  `json:"can_proceed,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Action     Action `json:"action"`
}

// ParseDecision parses a planning response that either nests its action
// inside an envelope or flattens the action fields at top level. Both
// forms produce the same Decision.
func ParseDecision(raw string) (*Decision, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Analysis   string             `json:"analysis"`
		CanProceed *bool              `json:"can_proceed"`
		Reason     string             `json:"reason"`
		Action     stdjson.RawMessage `json:"action"`
	}
	if err := json.UnmarshalFromString(payload, &envelope); err != nil {
		return nil, &MalformedActionError{Snippet: truncateString(payload, snippetLimit), Err: err}
	}

	d := &Decision{Analysis: envelope.Analysis, CanProceed: envelope.CanProceed, Reason: envelope.Reason}

	if body := bytes.TrimSpace(envelope.Action); len(body) > 0 && body[0] == '{' {
		if err := json.Unmarshal(body, &d.Action); err != nil {
			return nil, &MalformedActionError{Snippet: truncateString(string(body), snippetLimit), Err: err}
		}
	} else {
		// Flat form: the top-level object is itself the action.
		if err := json.UnmarshalFromString(payload, &d.Action); err != nil {
			return nil, &MalformedActionError{Snippet: truncateString(payload, snippetLimit), Err: err}
		}
	}

	d.Action.normalize()
	if d.Reason == "" {
		d.Reason = d.Action.Reason
	}
	return d, nil
}

// DecodeJSON extracts the first JSON object from noisy model output and
// decodes it into T under the same tolerance rules as Parse. Structured
// perception payloads (screen analysis, element lookups) ride the same
// transport as plans and share this path.
func DecodeJSON[T any](raw string) (*T, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	out := new(T)
	if err := json.UnmarshalFromString(payload, out); err != nil {
		return nil, &MalformedActionError{Snippet: truncateString(payload, snippetLimit), Err: err}
	}
	return out, nil
}

// truncateString shortens s for inclusion in errors and logs.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
