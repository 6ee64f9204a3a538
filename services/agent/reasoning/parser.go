// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reasoning builds prompts, invokes the routed model, and parses
// the raw completion into structured reasoning steps with an aggregate
// confidence.
package reasoning

import (
	"regexp"
	"strings"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
)

// ResponseParser extracts reasoning steps from raw model output. The
// line-marker heuristic is the default; a structured-output-capable
// provider could supply steps directly through another implementation.
type ResponseParser interface {
	Parse(text string) []datatypes.ReasoningStep
}

// Per-step confidence heuristic: steps start at stepConfidenceBase and
// drop to stepConfidenceHedged when the step text hedges.
const (
	stepConfidenceBase   = 0.8
	stepConfidenceHedged = 0.6

	// synthesizedStepConfidence is the fixed confidence of the single step
	// synthesized when the model returned unstructured prose.
	synthesizedStepConfidence = 0.7
)

// markerWords start a new step when they appear in a line.
var markerWords = []string{"step", "analysis", "reasoning", "consideration"}

// hedgeWords lower a step's confidence when present in its text.
var hedgeWords = []string{
	"might", "may ", "possibly", "unclear", "uncertain", "not sure",
	"could be", "hard to say",
}

var (
	// numericPrefix matches "1.", "2)", "3:" style step openers.
	numericPrefix = regexp.MustCompile(`^\d+[.):]`)
	// evidenceRef matches bracketed citation references like [1] or [2,3].
	evidenceRef = regexp.MustCompile(`\[(\d+(?:\s*,\s*\d+)*)\]`)
)

// MarkerParser is the default line-heuristic ResponseParser.
type MarkerParser struct{}

func NewMarkerParser() *MarkerParser {
	return &MarkerParser{}
}

// Parse scans text line by line and groups it into reasoning steps.
//
// # Description
//
// A line opens a new step when it carries a marker word or a
// numeric/bullet prefix; following non-marker lines are appended to the
// open step's reasoning text. Text before the first marker line is
// ignored as preamble. When no marker line exists at all, exactly one
// step is synthesized from the whole text so the reasoning trail is never
// empty.
func (p *MarkerParser) Parse(text string) []datatypes.ReasoningStep {
	var steps []datatypes.ReasoningStep
	var current *datatypes.ReasoningStep

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if isMarkerLine(trimmed) {
			if current != nil {
				finalizeStep(current)
				steps = append(steps, *current)
			}
			current = &datatypes.ReasoningStep{
				StepNumber:  len(steps) + 1,
				Description: stripPrefix(trimmed),
			}
			continue
		}

		if current != nil {
			if current.ReasoningText != "" {
				current.ReasoningText += "\n"
			}
			current.ReasoningText += trimmed
		}
	}
	if current != nil {
		finalizeStep(current)
		steps = append(steps, *current)
	}

	if len(steps) == 0 {
		condensed := strings.TrimSpace(text)
		steps = append(steps, datatypes.ReasoningStep{
			StepNumber:    1,
			Description:   "Synthesized reasoning",
			ReasoningText: condensed,
			Confidence:    synthesizedStepConfidence,
			Evidence:      extractEvidence(condensed),
		})
	}

	return steps
}

func isMarkerLine(line string) bool {
	lower := strings.ToLower(line)
	if numericPrefix.MatchString(lower) {
		return true
	}
	if strings.HasPrefix(lower, "- ") || strings.HasPrefix(lower, "* ") || strings.HasPrefix(lower, "• ") {
		return true
	}
	for _, marker := range markerWords {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// stripPrefix removes the numeric/bullet opener from a marker line so the
// description reads cleanly.
func stripPrefix(line string) string {
	line = numericPrefix.ReplaceAllString(line, "")
	line = strings.TrimPrefix(line, "- ")
	line = strings.TrimPrefix(line, "* ")
	line = strings.TrimPrefix(line, "• ")
	return strings.TrimSpace(line)
}

// finalizeStep fills the derived fields once a step's text is complete.
func finalizeStep(step *datatypes.ReasoningStep) {
	full := step.Description + " " + step.ReasoningText
	step.Confidence = stepConfidence(full)
	step.Evidence = extractEvidence(full)
}

func stepConfidence(text string) float64 {
	lower := strings.ToLower(text)
	for _, hedge := range hedgeWords {
		if strings.Contains(lower, hedge) {
			return stepConfidenceHedged
		}
	}
	return stepConfidenceBase
}

func extractEvidence(text string) []string {
	matches := evidenceRef.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	var evidence []string
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			evidence = append(evidence, m)
		}
	}
	return evidence
}
