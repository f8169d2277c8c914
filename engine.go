package main

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
)

// Decider produces a decision for one record
type Decider interface {
	Decide(ctx context.Context, rec URLRecord) Decision
}

// Engine runs the ordered fallback chain: exclude rule, include rule,
// scrape and model, random choice. It never leaves a decision unset.
type Engine struct {
	rules      Rules
	source     TextSource
	model      Model
	prompts    *PromptBuilder
	thresholds Thresholds
	maxChars   int
	logger     Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// EngineOption customises an Engine
type EngineOption func(*Engine)

// WithRand replaces the random source used for fallback decisions
func WithRand(rng *rand.Rand) EngineOption {
	return func(e *Engine) { e.rng = rng }
}

// WithLogger sets the engine logger
func WithLogger(logger Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine wires the collaborators into an engine
func NewEngine(rules Rules, source TextSource, model Model, prompts *PromptBuilder, thresholds Thresholds, maxChars int, opts ...EngineOption) *Engine {
	e := &Engine{
		rules:      rules,
		source:     source,
		model:      model,
		prompts:    prompts,
		thresholds: thresholds,
		maxChars:   maxChars,
		logger:     NewNopLogger(),
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide returns the first decision produced by the chain
func (e *Engine) Decide(ctx context.Context, rec URLRecord) Decision {
	if containsAny(rec.URL, e.rules.ExcludeURLs) {
		return Decision{Value: WorkRelated, Reason: ReasonExclude, Source: SourceExclude}
	}
	if containsAny(rec.URL, e.rules.IncludeURLs) {
		return Decision{Value: NotWorkRelated, Reason: ReasonInclude, Source: SourceInclude}
	}

	d, cause := e.decideWithModel(ctx, rec)
	if cause != CauseNone {
		return e.randomDecision(rec, cause)
	}
	return d
}

// decideWithModel scrapes raw_url, prompts the model and evaluates the reply.
// A non-empty cause means the chain falls through to a random decision.
func (e *Engine) decideWithModel(ctx context.Context, rec URLRecord) (Decision, FallbackCause) {
	scraped, _ := e.source.FetchText(ctx, rec.RawURL, e.maxChars)

	prompt, err := e.prompts.Build(rec.URL, scraped)
	if err != nil {
		e.logger.Error("building prompt", String("url", rec.URL), Err(err))
		return Decision{}, CauseNoPayload
	}

	response, err := e.model.Complete(ctx, prompt)
	if err != nil {
		e.logger.Warn("model unavailable", String("url", rec.URL), Err(err))
		return Decision{}, CauseNoPayload
	}

	payload := ParseResponse(response)
	eval := e.thresholds.Evaluate(payload)
	if !eval.Determined {
		cause := CauseUndetermined
		if payload == nil || payload.Confidence == nil {
			cause = CauseNoPayload
		}
		e.logger.Debug("model undetermined", String("url", rec.URL), String("response", response))
		return Decision{}, cause
	}

	return Decision{
		Value:  eval.Value,
		Reason: modelReason(payload, eval),
		Source: SourceModel,
	}, CauseNone
}

func (e *Engine) randomDecision(rec URLRecord, cause FallbackCause) Decision {
	e.mu.Lock()
	value := e.rng.IntN(2)
	e.mu.Unlock()

	e.logger.Info("random fallback", String("url", rec.URL), String("cause", string(cause)))
	return Decision{Value: value, Reason: ReasonRandomFallback, Source: SourceRandom, Cause: cause}
}

// modelReason prefers the prose around the fence, then the payload's own
// reason field
func modelReason(p *Payload, eval Evaluation) string {
	if eval.SurroundingText != nil {
		return *eval.SurroundingText
	}
	if reason := strings.TrimSpace(p.Reason); reason != "" {
		return reason
	}
	return reasonModelDefault
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
