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
)

// =============================================================================
// Per-Stage Telemetry
// =============================================================================

// ProcessingStep records the wall-clock execution of one pipeline stage.
// A step is owned exclusively by the orchestrator for the duration of one
// request and is discarded after the run's metadata is emitted.
type ProcessingStep struct {
	Name      string         `json:"name"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StartStep opens a new ProcessingStep for the named stage.
func StartStep(name string) *ProcessingStep {
	return &ProcessingStep{
		Name:      name,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
	}
}

// Complete closes the step. A nil err marks success; otherwise the error
// text is recorded and the step is marked failed. A step is never left
// open: the orchestrator calls Complete on every path, including
// cancellation.
func (s *ProcessingStep) Complete(err error) {
	s.EndTime = time.Now()
	if err != nil {
		s.Success = false
		s.Error = err.Error()
		return
	}
	s.Success = true
}

// Duration returns the stage's elapsed wall-clock time.
func (s *ProcessingStep) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// SetMeta records a free-form metadata key on the step.
func (s *ProcessingStep) SetMeta(key string, value any) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	s.Metadata[key] = value
}

// =============================================================================
// Run Metadata
// =============================================================================

// ProcessingMetadata aggregates the telemetry of one full pipeline run.
// It is handed to the telemetry sink fire-and-forget; the pipeline never
// blocks on its delivery.
type ProcessingMetadata struct {
	TraceID       string            `json:"trace_id"`
	Steps         []*ProcessingStep `json:"steps"`
	TotalDuration time.Duration     `json:"total_duration"`
	SafetyLevel   SafetyLevel       `json:"safety_level"`
	Aborted       bool              `json:"aborted"`
	AbortStage    string            `json:"abort_stage,omitempty"`
}

// StageNames returns the ordered names of the recorded steps. Used by the
// ordering-invariant tests and by the compliance summary.
func (m *ProcessingMetadata) StageNames() []string {
	names := make([]string, 0, len(m.Steps))
	for _, s := range m.Steps {
		names = append(names, s.Name)
	}
	return names
}
