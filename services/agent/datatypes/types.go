// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data structures shared across the agent
// pipeline.
//
// This file contains the request-side types: the raw user input, the
// analyzed form produced by input analysis, and the safety verdict levels.
// Response-side types live in response.go; per-stage telemetry types live
// in telemetry.go.
package datatypes

import (
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxInputChars is the maximum length of a single user query, counted
	// in runes. Longer inputs are rejected during input validation.
	MaxInputChars = 10_000

	// MinUrgency and MaxUrgency bound the urgency scale produced by input
	// analysis. 1 is routine, 10 is an active emergency.
	MinUrgency = 1
	MaxUrgency = 10
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// agentValidate is the validator instance for agent datatypes.
var agentValidate *validator.Validate

func init() {
	agentValidate = validator.New()
	_ = agentValidate.RegisterValidation("maxchars", validateMaxChars)
}

// validateMaxChars enforces MaxInputChars on a string field. Rune count,
// not byte count, so multibyte input is not penalized.
func validateMaxChars(fl validator.FieldLevel) bool {
	return utf8.RuneCountInString(fl.Field().String()) <= MaxInputChars
}

// =============================================================================
// User Input
// =============================================================================

// InputType identifies how the user's content reached the system.
type InputType string

const (
	InputTypeText            InputType = "text"
	InputTypeVoiceTranscript InputType = "voice_transcript"
)

// UserInput is the raw query handed to the pipeline by the transport layer.
//
// # Description
//
// UserInput is immutable once created: the pipeline reads it exactly once
// per run and never writes it back. RequestID and Timestamp are populated
// by EnsureDefaults when the transport does not supply them.
//
// # Validation
//
//   - UserID, SessionID: required
//   - Content: required, at most MaxInputChars runes
//   - InputType: defaults to "text"
type UserInput struct {
	RequestID string    `json:"request_id"`
	UserID    string    `json:"user_id" validate:"required"`
	SessionID string    `json:"session_id" validate:"required"`
	Content   string    `json:"content" validate:"required,maxchars"`
	InputType InputType `json:"input_type"`
	Timestamp int64     `json:"timestamp"`
}

// Validate validates the UserInput fields.
func (u *UserInput) Validate() error {
	return agentValidate.Struct(u)
}

// EnsureDefaults populates RequestID, Timestamp and InputType if the
// transport layer did not set them.
func (u *UserInput) EnsureDefaults() {
	if u.RequestID == "" {
		u.RequestID = uuid.NewString()
	}
	if u.Timestamp == 0 {
		u.Timestamp = time.Now().UnixMilli()
	}
	if u.InputType == "" {
		u.InputType = InputTypeText
	}
}

// =============================================================================
// Analyzed Input
// =============================================================================

// AnalyzedInput is the one-time derivation of a UserInput produced by the
// input-analysis stage. Read-only after creation.
//
// # Fields
//
//   - Text: the original query text, unmodified.
//   - Intent: classified intent ("information", "support", "crisis", ...).
//   - MedicalEntities: surface forms of recognized medical terms.
//   - UrgencyLevel: 1-10, where >= 9 forces a critical safety signal.
//   - Confidence: analyzer confidence in [0, 1].
//   - EmotionalContext: optional coarse emotional tone ("anxious", "calm").
type AnalyzedInput struct {
	Text             string   `json:"text"`
	Intent           string   `json:"intent"`
	MedicalEntities  []string `json:"medical_entities"`
	UrgencyLevel     int      `json:"urgency_level"`
	Confidence       float64  `json:"confidence"`
	EmotionalContext string   `json:"emotional_context,omitempty"`
}

// Known intents produced by the analyzer.
const (
	IntentInformation = "information"
	IntentSupport     = "support"
	IntentMedication  = "medication"
	IntentCrisis      = "crisis"
	IntentGeneral     = "general"
)

// =============================================================================
// Safety Verdict
// =============================================================================

// SafetyLevel is the five-level severity classification governing
// short-circuit and response-enhancement behavior. Ordering matters:
// higher values are strictly more severe.
type SafetyLevel int

const (
	SafetySafe SafetyLevel = iota
	SafetyCaution
	SafetyWarning
	SafetyCritical
	SafetyBlocked
)

// String returns the wire name of the level.
func (l SafetyLevel) String() string {
	switch l {
	case SafetySafe:
		return "safe"
	case SafetyCaution:
		return "caution"
	case SafetyWarning:
		return "warning"
	case SafetyCritical:
		return "critical"
	case SafetyBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// MarshalJSON emits the string form so verdicts are readable in telemetry.
func (l SafetyLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// SafetyVerdict is the outcome of one safety evaluation. The pipeline
// computes two independent verdicts per request (pre- and post-reasoning);
// a verdict is never mutated after it is returned.
type SafetyVerdict struct {
	Level    SafetyLevel `json:"level"`
	Concerns []string    `json:"concerns,omitempty"`
}

// MaxLevel returns the more severe of two levels.
func MaxLevel(a, b SafetyLevel) SafetyLevel {
	if b > a {
		return b
	}
	return a
}
