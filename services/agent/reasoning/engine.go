// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reasoning

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
	"github.com/MeridianCare/MeridianAgent/services/agent/policy"
	"github.com/MeridianCare/MeridianAgent/services/agent/router"
	"github.com/MeridianCare/MeridianAgent/services/llm"
)

var tracer = otel.Tracer("meridian.agent.reasoning")

// Confidence aggregation weights: the model's own reasoning quality
// dominates, retrieval strength second, analyzer certainty last.
const (
	weightSteps     = 0.5
	weightRetrieval = 0.3
	weightAnalysis  = 0.2

	// noStepsDefault applies when a parser yields zero steps.
	noStepsDefault = 0.5

	maxCompletionTokens = 2048
)

// Sampling temperature per tier. Critical-tier answers are kept close to
// deterministic.
var tierTemperature = map[policy.Complexity]float32{
	policy.ComplexitySimple:   0.7,
	policy.ComplexityComplex:  0.5,
	policy.ComplexityCritical: 0.2,
}

// Engine generates the reasoned response for one request.
type Engine struct {
	router *router.ModelRouter
	parser ResponseParser
}

// NewEngine builds an engine over the given router. A nil parser uses the
// default marker parser.
func NewEngine(modelRouter *router.ModelRouter, parser ResponseParser) *Engine {
	if parser == nil {
		parser = NewMarkerParser()
	}
	return &Engine{router: modelRouter, parser: parser}
}

// Generate routes, prompts, invokes and parses one completion.
//
// # Description
//
// The routed model receives the system and user prompts built from the
// generation context. The raw completion is parsed into reasoning steps
// and aggregated into a response confidence. Provider errors propagate to
// the caller; there is no safe default response for a failed reasoning
// call.
//
// # Outputs
//
//   - *datatypes.AgentResponse: content, citations, steps and confidence
//     filled; safety enhancement is the caller's job.
//   - error: *llm.ProviderError or *router.NoModelAvailableError on
//     failure.
func (e *Engine) Generate(ctx context.Context, gc GenerationContext) (*datatypes.AgentResponse, error) {
	ctx, span := tracer.Start(ctx, "Engine.Generate")
	defer span.End()

	docCount := 0
	if gc.Retrieval != nil {
		docCount = len(gc.Retrieval.Documents)
	}

	sel, client, err := e.router.Route(gc.Analyzed, docCount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("llm.provider", string(sel.Provider)),
		attribute.String("llm.model", sel.Model),
		attribute.String("llm.complexity", string(sel.Complexity)),
	)

	temperature := tierTemperature[sel.Complexity]
	maxTokens := maxCompletionTokens
	completion, err := client.Complete(ctx,
		BuildSystemPrompt(gc),
		BuildUserPrompt(gc),
		llm.GenerationParams{
			Model:       sel.Model,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("completion via %s failed: %w", sel.Provider, err)
	}

	steps := e.parser.Parse(completion.Text)
	confidence := AggregateConfidence(steps, gc.Retrieval, analyzedConfidence(gc.Analyzed))

	slog.Debug("Reasoning generated",
		"provider", string(sel.Provider),
		"model", sel.Model,
		"steps", len(steps),
		"confidence", confidence,
		"completion_tokens", completion.Usage.CompletionTokens)

	resp := datatypes.NewAgentResponse(gc.Input.RequestID, completion.Text)
	resp.ReasoningSteps = steps
	resp.ConfidenceLevel = confidence
	if gc.Retrieval != nil {
		resp.Citations = gc.Retrieval.Citations
	}
	resp.SetMeta("provider", string(sel.Provider))
	resp.SetMeta("model", sel.Model)
	resp.SetMeta("complexity", string(sel.Complexity))
	resp.SetMeta("provider_fallback", sel.FellBack)
	resp.SetMeta("prompt_tokens", completion.Usage.PromptTokens)
	resp.SetMeta("completion_tokens", completion.Usage.CompletionTokens)
	return resp, nil
}

// AggregateConfidence blends step, retrieval and analysis confidence into
// the response confidence, clamped to [0, 1].
func AggregateConfidence(steps []datatypes.ReasoningStep, retrieval *datatypes.RetrievalSet, analysisConfidence float64) float64 {
	if len(steps) == 0 {
		return noStepsDefault
	}
	var sum float64
	for _, s := range steps {
		sum += s.Confidence
	}
	stepTerm := sum / float64(len(steps))

	retrievalTerm := retrieval.AverageConfidence()

	overall := weightSteps*stepTerm + weightRetrieval*retrievalTerm + weightAnalysis*analysisConfidence
	if overall < 0 {
		return 0
	}
	if overall > 1 {
		return 1
	}
	return overall
}

func analyzedConfidence(analyzed *datatypes.AnalyzedInput) float64 {
	if analyzed == nil {
		return 0
	}
	return analyzed.Confidence
}
