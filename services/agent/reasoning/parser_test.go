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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumberedSteps(t *testing.T) {
	text := `Step 1: Identify the concern
The user is asking about sleep difficulties.
Step 2: Review the evidence
Consistent sleep schedules improve sleep onset [1].
Step 3: Formulate guidance
Recommend sleep hygiene practices and professional follow-up.`

	steps := NewMarkerParser().Parse(text)
	require.Len(t, steps, 3)

	assert.Equal(t, 1, steps[0].StepNumber)
	assert.Equal(t, "Step 1: Identify the concern", steps[0].Description)
	assert.Equal(t, "The user is asking about sleep difficulties.", steps[0].ReasoningText)

	assert.Equal(t, 2, steps[1].StepNumber)
	assert.Equal(t, []string{"[1]"}, steps[1].Evidence)

	assert.Equal(t, 3, steps[2].StepNumber)
}

func TestParseBulletSteps(t *testing.T) {
	text := `- first look at the question
it concerns medication timing
- then check interactions
none are documented here`

	steps := NewMarkerParser().Parse(text)
	require.Len(t, steps, 2)
	assert.Equal(t, "first look at the question", steps[0].Description)
	assert.Equal(t, "it concerns medication timing", steps[0].ReasoningText)
}

func TestParseNumericPrefixSteps(t *testing.T) {
	text := `1. Gather the facts
2) Weigh the evidence
3: Conclude`

	steps := NewMarkerParser().Parse(text)
	require.Len(t, steps, 3)
	assert.Equal(t, "Gather the facts", steps[0].Description)
	assert.Equal(t, "Weigh the evidence", steps[1].Description)
	assert.Equal(t, "Conclude", steps[2].Description)
}

func TestParseSynthesizesSingleStepForProse(t *testing.T) {
	text := `Good rest matters a great deal for mood regulation and most adults
do better with seven to nine hours per night.`

	steps := NewMarkerParser().Parse(text)
	require.Len(t, steps, 1)
	assert.Equal(t, 1, steps[0].StepNumber)
	assert.Equal(t, 0.7, steps[0].Confidence)
	assert.NotEmpty(t, steps[0].ReasoningText)
}

func TestParseHedgedStepLowersConfidence(t *testing.T) {
	text := `Step 1: Assess the interaction
This combination might possibly cause drowsiness, but the evidence is unclear.
Step 2: Recommend action
Consult the prescribing clinician before changing anything.`

	steps := NewMarkerParser().Parse(text)
	require.Len(t, steps, 2)
	assert.Equal(t, stepConfidenceHedged, steps[0].Confidence)
	assert.Equal(t, stepConfidenceBase, steps[1].Confidence)
}

func TestParseIgnoresPreamble(t *testing.T) {
	text := `Here is my answer to your question.

Step 1: The main point
Sleep and mood are linked.`

	steps := NewMarkerParser().Parse(text)
	require.Len(t, steps, 1)
	assert.Equal(t, "Step 1: The main point", steps[0].Description)
}

func TestParseEvidenceDeduplicated(t *testing.T) {
	text := `Step 1: Cite things
Both guidelines agree [1]. The first also notes timing [1] and dosing [2].`

	steps := NewMarkerParser().Parse(text)
	require.Len(t, steps, 1)
	assert.Equal(t, []string{"[1]", "[2]"}, steps[0].Evidence)
}
