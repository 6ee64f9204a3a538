// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline drives a user query through the ten ordered stages of
// the agent: validation, analysis, context retrieval, safety assessment,
// knowledge retrieval, image search, reasoning, post-flight validation,
// formatting and context persistence. Stages run strictly in order, one
// at a time per request; a blocked safety verdict short-circuits the
// remainder and returns the crisis-resource response.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MeridianCare/MeridianAgent/services/agent/analysis"
	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
	"github.com/MeridianCare/MeridianAgent/services/agent/observability"
	"github.com/MeridianCare/MeridianAgent/services/agent/policy"
	"github.com/MeridianCare/MeridianAgent/services/agent/reasoning"
	"github.com/MeridianCare/MeridianAgent/services/agent/retrieval"
	"github.com/MeridianCare/MeridianAgent/services/safety"
)

var tracer = otel.Tracer("meridian.agent.pipeline")

// =============================================================================
// Stage Names
// =============================================================================

// Canonical stage names. The sequence of ProcessingStep names recorded for
// any run is always a prefix of this order.
const (
	StageInputValidation    = "input_validation"
	StageInputAnalysis      = "input_analysis"
	StageContextRetrieval   = "context_retrieval"
	StageSafetyAssessment   = "safety_assessment"
	StageKnowledgeRetrieval = "knowledge_retrieval"
	StageImageSearch        = "image_search"
	StageReasoning          = "reasoning_generation"
	StageSafetyValidation   = "safety_validation"
	StageFormatting         = "response_formatting"
	StageContextUpdate      = "context_update"
)

// StageOrder is the canonical ten-stage sequence.
var StageOrder = []string{
	StageInputValidation,
	StageInputAnalysis,
	StageContextRetrieval,
	StageSafetyAssessment,
	StageKnowledgeRetrieval,
	StageImageSearch,
	StageReasoning,
	StageSafetyValidation,
	StageFormatting,
	StageContextUpdate,
}

// Run outcomes recorded on the requests_total metric.
const (
	outcomeCompleted = "completed"
	outcomeBlocked   = "blocked"
	outcomeAborted   = "aborted"
)

const (
	// knowledgeLimit is how many raw hits are requested from the
	// knowledge source before scoring.
	knowledgeLimit = 8

	// imageLimit bounds the additive image-search stage.
	imageLimit = 3

	// historyTurns is how many prior turns are loaded for prompt context.
	historyTurns = 5
)

// apologyMessage is the only text a user sees on a hard failure. Internal
// error strings never reach the response body.
const apologyMessage = "I'm sorry, but I wasn't able to process your request right now. " +
	"Please try again in a moment. If you need urgent support, contact a " +
	"healthcare professional or your local emergency services."

// =============================================================================
// Stage Timeouts
// =============================================================================

// StageTimeouts carries the independent per-stage deadlines. A zero value
// means no stage-level deadline beyond the request context.
type StageTimeouts struct {
	Context   time.Duration
	Knowledge time.Duration
	Image     time.Duration
	Reasoning time.Duration
	Persist   time.Duration
}

// DefaultStageTimeouts returns the production deadlines, with an optional
// MERIDIAN_REASONING_TIMEOUT override for slow local models.
func DefaultStageTimeouts() StageTimeouts {
	t := StageTimeouts{
		Context:   3 * time.Second,
		Knowledge: 5 * time.Second,
		Image:     3 * time.Second,
		Reasoning: 90 * time.Second,
		Persist:   3 * time.Second,
	}
	if raw := os.Getenv("MERIDIAN_REASONING_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			t.Reasoning = d
		} else {
			slog.Warn("Invalid MERIDIAN_REASONING_TIMEOUT, using default",
				"value", raw, "default", t.Reasoning)
		}
	}
	return t
}

// =============================================================================
// Orchestrator
// =============================================================================

// Options carries the orchestrator's optional capabilities. A nil
// capability disables the corresponding stage: the stage still appears in
// telemetry, marked skipped.
type Options struct {
	Knowledge retrieval.KnowledgeSource
	Contexts  ContextStore
	Images    ImageSource
	Timeouts  *StageTimeouts
}

// Orchestrator drives the ten-stage sequence for one request at a time.
//
// # Description
//
// Process never returns an error: every failure mode terminates in a
// well-formed AgentResponse. Within one request stages execute strictly
// in order; the orchestrator itself never retries a stage. The
// orchestrator is safe for concurrent use — all per-request state lives
// on the stack of Process.
type Orchestrator struct {
	cfg      policy.Config
	analyzer *analysis.Analyzer
	scorer   *retrieval.Scorer
	gate     *safety.Gate
	engine   *reasoning.Engine

	knowledge retrieval.KnowledgeSource
	contexts  ContextStore
	images    ImageSource
	timeouts  StageTimeouts
}

// NewOrchestrator wires the pipeline. The gate and engine are required;
// everything in opts is optional.
func NewOrchestrator(cfg policy.Config, gate *safety.Gate, engine *reasoning.Engine, opts Options) (*Orchestrator, error) {
	if gate == nil {
		return nil, fmt.Errorf("safety gate is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("reasoning engine is required")
	}
	timeouts := DefaultStageTimeouts()
	if opts.Timeouts != nil {
		timeouts = *opts.Timeouts
	}
	return &Orchestrator{
		cfg:       cfg,
		analyzer:  analysis.NewAnalyzer(),
		scorer:    retrieval.NewScorer(cfg),
		gate:      gate,
		engine:    engine,
		knowledge: opts.Knowledge,
		contexts:  opts.Contexts,
		images:    opts.Images,
		timeouts:  timeouts,
	}, nil
}

// Process runs one request through the pipeline.
//
// # Inputs
//
//   - ctx: request-scoped context; cancellation propagates into the
//     in-flight stage and marks its ProcessingStep failed.
//   - input: the raw user query. Defaults are filled in during validation.
//
// # Outputs
//
//   - *AgentResponse: always non-nil, always carries a non-empty medical
//     disclaimer.
//   - *ProcessingMetadata: per-stage telemetry for the run.
func (o *Orchestrator) Process(ctx context.Context, input *datatypes.UserInput) (*datatypes.AgentResponse, *datatypes.ProcessingMetadata) {
	ctx, span := tracer.Start(ctx, "Orchestrator.Process")
	defer span.End()

	start := time.Now()
	meta := &datatypes.ProcessingMetadata{TraceID: traceID(ctx)}
	defer func() { meta.TotalDuration = time.Since(start) }()

	// Stage 1: input validation. Hard failure.
	err := o.runStage(ctx, meta, StageInputValidation, 0, func(ctx context.Context, step *datatypes.ProcessingStep) error {
		if input == nil {
			return &ValidationError{Err: errors.New("no input")}
		}
		input.EnsureDefaults()
		if err := input.Validate(); err != nil {
			return &ValidationError{Err: err}
		}
		step.SetMeta("request_id", input.RequestID)
		return nil
	})
	if err != nil {
		return o.abort(meta, input, StageInputValidation, err), meta
	}

	span.SetAttributes(
		attribute.String("request.id", input.RequestID),
		attribute.String("session.id", input.SessionID),
	)

	// Stage 2: input analysis. Hard failure — the safety gate cannot run
	// without an urgency signal.
	var analyzed *datatypes.AnalyzedInput
	err = o.runStage(ctx, meta, StageInputAnalysis, 0, func(ctx context.Context, step *datatypes.ProcessingStep) error {
		analyzed = o.analyzer.Analyze(ctx, input)
		if err := ctx.Err(); err != nil {
			return &AnalysisError{Err: err}
		}
		if analyzed == nil {
			return &AnalysisError{Err: errors.New("analyzer produced no result")}
		}
		step.SetMeta("intent", analyzed.Intent)
		step.SetMeta("urgency", analyzed.UrgencyLevel)
		step.SetMeta("entities", len(analyzed.MedicalEntities))
		return nil
	})
	if err != nil {
		return o.abort(meta, input, StageInputAnalysis, err), meta
	}

	// Stage 3: context retrieval. Best-effort.
	var history []datatypes.ConversationTurn
	_ = o.runStage(ctx, meta, StageContextRetrieval, o.timeouts.Context, func(ctx context.Context, step *datatypes.ProcessingStep) error {
		if o.contexts == nil {
			step.SetMeta("skipped", true)
			return nil
		}
		turns, err := o.contexts.History(ctx, input.SessionID, historyTurns)
		if err != nil {
			slog.Warn("Context retrieval degraded, continuing without history",
				"error", err, "sessionID", input.SessionID)
			return fmt.Errorf("context retrieval degraded: %w", err)
		}
		history = turns
		step.SetMeta("turns", len(turns))
		return nil
	})

	// Stage 4: safety assessment. A blocked verdict short-circuits the run.
	var verdict datatypes.SafetyVerdict
	_ = o.runStage(ctx, meta, StageSafetyAssessment, 0, func(ctx context.Context, step *datatypes.ProcessingStep) error {
		verdict = o.gate.AssessInput(input, analyzed)
		step.SetMeta("verdict", verdict.Level.String())
		observability.RecordVerdict(verdict.Level.String())
		return nil
	})
	meta.SafetyLevel = verdict.Level
	if verdict.Level == datatypes.SafetyBlocked {
		slog.Info("Request blocked by safety gate",
			"requestID", input.RequestID, "concerns", verdict.Concerns)
		observability.RecordRequest(outcomeBlocked)
		meta.Aborted = true
		meta.AbortStage = StageSafetyAssessment
		return o.crisisResponse(input), meta
	}

	// Stage 5: knowledge retrieval. Best-effort; scoring failures degrade
	// to an empty retrieval set, never an abort.
	var retrieved datatypes.RetrievalSet
	_ = o.runStage(ctx, meta, StageKnowledgeRetrieval, o.timeouts.Knowledge, func(ctx context.Context, step *datatypes.ProcessingStep) error {
		if o.knowledge == nil {
			step.SetMeta("skipped", true)
			return nil
		}
		hits, err := o.knowledge.Search(ctx, input.Content, knowledgeLimit)
		if err != nil {
			slog.Warn("Knowledge retrieval degraded, continuing with empty results",
				"error", err, "requestID", input.RequestID)
			return fmt.Errorf("knowledge retrieval degraded: %w", err)
		}
		retrieved = o.scorer.ScoreAll(input.Content, hits, false)
		step.SetMeta("hits", len(hits))
		step.SetMeta("kept", len(retrieved.Documents))
		return nil
	})

	// Stage 6: image search. Purely additive.
	var imageResults []ImageResult
	_ = o.runStage(ctx, meta, StageImageSearch, o.timeouts.Image, func(ctx context.Context, step *datatypes.ProcessingStep) error {
		if o.images == nil {
			step.SetMeta("skipped", true)
			return nil
		}
		imgs, err := o.images.Search(ctx, input.Content, imageLimit)
		if err != nil {
			return fmt.Errorf("image search failed: %w", err)
		}
		imageResults = imgs
		step.SetMeta("images", len(imgs))
		return nil
	})

	// Stage 7: reasoning generation. Hard failure.
	var resp *datatypes.AgentResponse
	err = o.runStage(ctx, meta, StageReasoning, o.timeouts.Reasoning, func(ctx context.Context, step *datatypes.ProcessingStep) error {
		generated, err := o.engine.Generate(ctx, reasoning.GenerationContext{
			Input:     input,
			Analyzed:  analyzed,
			Verdict:   verdict,
			Retrieval: &retrieved,
			History:   history,
		})
		if err != nil {
			return &ReasoningFailure{Err: err}
		}
		resp = generated
		step.SetMeta("steps", len(generated.ReasoningSteps))
		step.SetMeta("confidence", generated.ConfidenceLevel)
		return nil
	})
	if err != nil {
		return o.abort(meta, input, StageReasoning, err), meta
	}

	if fellBack, ok := resp.Metadata["provider_fallback"].(bool); ok && fellBack {
		if provider, ok := resp.Metadata["provider"].(string); ok {
			observability.RecordProviderFallback(provider)
		}
	}

	// Stage 8: post-flight safety validation. Failures are logged and
	// trigger enhancement, never an abort.
	var overallSafe bool
	_ = o.runStage(ctx, meta, StageSafetyValidation, 0, func(ctx context.Context, step *datatypes.ProcessingStep) error {
		checks := o.gate.ValidateResponse(resp, verdict)
		overallSafe = safety.OverallSafe(checks)
		for _, c := range checks {
			if !c.Passed {
				slog.Warn("Compliance check failed",
					"check", c.Name, "requestID", input.RequestID,
					"recommendations", c.Recommendations)
				observability.RecordComplianceFailure(c.Name)
			}
		}
		resp = o.gate.Enhance(resp, verdict)
		step.SetMeta("overall_safe", overallSafe)
		return nil
	})

	// Stage 9: response formatting. Cannot fail.
	_ = o.runStage(ctx, meta, StageFormatting, 0, func(ctx context.Context, step *datatypes.ProcessingStep) error {
		resp.SetMeta("trace_id", meta.TraceID)
		resp.SetMeta("total_duration_ms", time.Since(start).Milliseconds())
		resp.SetMeta("safety_level", verdict.Level.String())
		resp.SetMeta("compliance_safe", overallSafe)
		if len(imageResults) > 0 {
			resp.SetMeta("images", imageResults)
		}
		observability.ObserveResponseConfidence(resp.ConfidenceLevel)
		return nil
	})

	// Stage 10: context update. Best-effort persistence.
	_ = o.runStage(ctx, meta, StageContextUpdate, o.timeouts.Persist, func(ctx context.Context, step *datatypes.ProcessingStep) error {
		if o.contexts == nil {
			step.SetMeta("skipped", true)
			return nil
		}
		turn := datatypes.ConversationTurn{
			SessionID:  input.SessionID,
			UserID:     input.UserID,
			Question:   input.Content,
			Answer:     resp.Content,
			Timestamp:  time.Now().UnixMilli(),
			TurnNumber: len(history) + 1,
		}
		if err := o.contexts.SaveTurn(ctx, turn); err != nil {
			slog.Warn("Failed to persist conversation turn",
				"error", err, "sessionID", input.SessionID)
			return fmt.Errorf("context update failed: %w", err)
		}
		return nil
	})

	observability.RecordRequest(outcomeCompleted)
	return resp, meta
}

// runStage wraps one stage with telemetry and an optional independent
// deadline. The returned error is whatever fn returned; soft-failure
// callers discard it after it is recorded on the step.
func (o *Orchestrator) runStage(ctx context.Context, meta *datatypes.ProcessingMetadata, name string, timeout time.Duration, fn func(context.Context, *datatypes.ProcessingStep) error) error {
	step := datatypes.StartStep(name)
	meta.Steps = append(meta.Steps, step)

	cancel := func() {}
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}
	err := fn(ctx, step)
	cancel()

	step.Complete(err)
	observability.ObserveStage(name, step.Duration(), step.Success)
	return err
}

// abort converts a hard failure into the terminal apology response. The
// user never sees the internal error text.
func (o *Orchestrator) abort(meta *datatypes.ProcessingMetadata, input *datatypes.UserInput, stage string, err error) *datatypes.AgentResponse {
	slog.Error("Pipeline aborted", "stage", stage, "error", err)
	observability.RecordRequest(outcomeAborted)
	meta.Aborted = true
	meta.AbortStage = stage

	requestID := ""
	if input != nil {
		requestID = input.RequestID
	}
	resp := datatypes.NewAgentResponse(requestID, apologyMessage)
	resp.ConfidenceLevel = 0
	resp.SafetyWarnings = []string{
		"The system could not safely process this request.",
	}
	resp.MedicalDisclaimer = o.cfg.MedicalDisclaimer
	resp.SetMeta("aborted_stage", stage)
	return resp
}

// crisisResponse is the fixed high-priority resource response returned on
// a blocked verdict, identical regardless of the underlying trigger.
func (o *Orchestrator) crisisResponse(input *datatypes.UserInput) *datatypes.AgentResponse {
	content := "It sounds like you may be going through a very difficult moment. " +
		"You don't have to face this alone, and support is available right now.\n\n" +
		o.gate.CrisisResourcesBlock()

	resp := datatypes.NewAgentResponse(input.RequestID, content)
	resp.ConfidenceLevel = o.cfg.CrisisConfidenceCap
	resp.SafetyWarnings = []string{
		"This request was routed directly to crisis resources based on its content.",
	}
	resp.MedicalDisclaimer = o.cfg.MedicalDisclaimer
	resp.SetMeta("safety_level", datatypes.SafetyBlocked.String())
	return resp
}

// traceID extracts the active trace id, if any, for response metadata.
func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
