// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Retrieval Types
// =============================================================================

// RawHit is one unscored result from the vector knowledge store, exactly
// as the search collaborator returns it. The retrieval scorer turns a set
// of raw hits into a RetrievalSet.
type RawHit struct {
	Content     string    `json:"content"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	SourceClass string    `json:"source_class"` // "peer_reviewed", "health_authority", ...
	DocType     string    `json:"doc_type"`     // "clinical_guideline", "research_paper", ...
	Specialty   string    `json:"specialty"`
	Keywords    []string  `json:"keywords"`
	URL         string    `json:"url"`
	DOI         string    `json:"doi"`
	Authors     []string  `json:"authors"`
	PublishedAt time.Time `json:"published_at"`
	Similarity  float64   `json:"similarity"` // vector certainty in [0, 1]
}

// ScoredDocument is one retrieved document after confidence scoring.
type ScoredDocument struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`

	// Reliability and Recency are retained for deterministic tie-breaking
	// when two documents score identically.
	Reliability float64 `json:"-"`
	Recency     float64 `json:"-"`
}

// Citation is the user-facing provenance record paired with a scored
// document.
type Citation struct {
	Title          string   `json:"title"`
	Source         string   `json:"source"`
	URL            string   `json:"url,omitempty"`
	Authors        []string `json:"authors,omitempty"`
	RelevanceScore float64  `json:"relevance_score"`
}

// RetrievalSet is the ordered output of retrieval scoring.
//
// Invariant: Documents is sorted non-increasing by Confidence, and
// Citations[i] describes Documents[i]. Unless low-confidence inclusion was
// explicitly requested, every entry meets the configured threshold.
type RetrievalSet struct {
	Documents []ScoredDocument `json:"documents"`
	Citations []Citation       `json:"citations"`
}

// Empty reports whether no documents survived scoring.
func (r *RetrievalSet) Empty() bool {
	return r == nil || len(r.Documents) == 0
}

// AverageConfidence returns the mean document confidence, or the neutral
// default 0.5 when the set is empty. The neutral default keeps the
// response-confidence aggregation well defined under retrieval degradation.
func (r *RetrievalSet) AverageConfidence() float64 {
	if r.Empty() {
		return 0.5
	}
	var sum float64
	for _, d := range r.Documents {
		sum += d.Confidence
	}
	return sum / float64(len(r.Documents))
}

// =============================================================================
// Reasoning Types
// =============================================================================

// ReasoningStep is one parsed unit of the model's rationale. Steps form an
// append-only sequence while a response is being parsed and are never
// mutated after the response is finalized.
type ReasoningStep struct {
	StepNumber    int      `json:"step_number"`
	Description   string   `json:"description"`
	ReasoningText string   `json:"reasoning_text"`
	Confidence    float64  `json:"confidence"`
	Evidence      []string `json:"evidence,omitempty"`
}

// =============================================================================
// Agent Response
// =============================================================================

// AgentResponse is the terminal artifact of one pipeline run. Immutable
// once returned to the transport layer.
//
// # Fields
//
//   - Content: the user-facing answer text.
//   - Citations: provenance for the documents that informed the answer.
//   - ReasoningSteps: the structured rationale; never empty for a
//     successfully reasoned response.
//   - ConfidenceLevel: aggregate confidence in [0, 1].
//   - SafetyWarnings: user-facing safety notes appended by the gate.
//   - MedicalDisclaimer: always non-empty, regardless of pipeline path.
//   - Metadata: free-form response annotations (trace id, duration, ...).
type AgentResponse struct {
	ResponseID        string          `json:"response_id"`
	RequestID         string          `json:"request_id"`
	Content           string          `json:"content"`
	Citations         []Citation      `json:"citations,omitempty"`
	ReasoningSteps    []ReasoningStep `json:"reasoning_steps,omitempty"`
	ConfidenceLevel   float64         `json:"confidence_level"`
	SafetyWarnings    []string        `json:"safety_warnings,omitempty"`
	MedicalDisclaimer string          `json:"medical_disclaimer"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	Timestamp         int64           `json:"timestamp"`
}

// NewAgentResponse creates an AgentResponse with generated identifiers.
func NewAgentResponse(requestID, content string) *AgentResponse {
	return &AgentResponse{
		ResponseID: uuid.NewString(),
		RequestID:  requestID,
		Content:    content,
		Metadata:   make(map[string]any),
		Timestamp:  time.Now().UnixMilli(),
	}
}

// SetMeta records a metadata key, allocating the map if needed.
func (r *AgentResponse) SetMeta(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
}
