package main

import (
	"encoding/json"
	"strings"
)

const (
	jsonFenceOpen  = "```json"
	jsonFenceClose = "```"

	// minSurroundingText is the shortest prose around the fence kept as the
	// model's justification
	minSurroundingText = 5
)

// Payload is the structured part of a model response. Only Confidence drives
// the decision; the other fields are informational.
type Payload struct {
	Category   string
	Confidence *json.Number
	Reason     string
	// SurroundingText is the prose outside the fence, nil when shorter
	// than minSurroundingText
	SurroundingText *string
}

// ParseResponse extracts the first ```json fenced block from a free-form
// model response. It returns nil when there is no complete fence or the
// fenced content is not a JSON object. Fields of unexpected shape are
// ignored rather than rejecting the object.
func ParseResponse(text string) *Payload {
	start := strings.Index(text, jsonFenceOpen)
	if start == -1 {
		return nil
	}

	bodyStart := start + len(jsonFenceOpen)
	end := strings.Index(text[bodyStart:], jsonFenceClose)
	if end == -1 {
		return nil
	}
	end += bodyStart

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(text[bodyStart:end])), &fields); err != nil || fields == nil {
		return nil
	}

	payload := Payload{
		Category:   decodeText(fields["category"]),
		Confidence: decodeNumber(fields["confidence"]),
		Reason:     decodeText(fields["reason"]),
	}

	before := strings.TrimSpace(text[:start])
	after := strings.TrimSpace(text[end+len(jsonFenceClose):])
	surrounding := strings.TrimSpace(before + " " + after)

	if len([]rune(surrounding)) >= minSurroundingText {
		payload.SurroundingText = &surrounding
	}

	return &payload
}

// decodeNumber accepts a JSON number or a numeric string
func decodeNumber(raw json.RawMessage) *json.Number {
	if raw == nil {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil || n == "" {
		return nil
	}
	if _, err := n.Float64(); err != nil {
		return nil
	}
	return &n
}

// decodeText accepts a string or a list of strings; anything else is empty
func decodeText(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return ""
}

// Thresholds split confidence scores into decisions. Scores at or above High
// are work-related, scores at or below Low are not, the open band between is
// undetermined.
type Thresholds struct {
	High float64 `yaml:"high"`
	Low  float64 `yaml:"low"`
}

// DefaultThresholds are the 60/40 split
var DefaultThresholds = Thresholds{High: 60, Low: 40}

// Evaluation is the outcome of scoring a payload
type Evaluation struct {
	Value           int
	Determined      bool
	SurroundingText *string
}

// Evaluate maps the payload's confidence to a decision. A nil payload, a
// missing confidence, or a confidence in (Low, High) is undetermined. The
// surrounding text is returned whatever the outcome.
func (t Thresholds) Evaluate(p *Payload) Evaluation {
	if p == nil {
		return Evaluation{}
	}

	eval := Evaluation{SurroundingText: p.SurroundingText}
	if p.Confidence == nil {
		return eval
	}

	confidence, err := p.Confidence.Float64()
	if err != nil {
		return eval
	}

	switch {
	case confidence >= t.High:
		eval.Value, eval.Determined = WorkRelated, true
	case confidence <= t.Low:
		eval.Value, eval.Determined = NotWorkRelated, true
	}

	return eval
}
