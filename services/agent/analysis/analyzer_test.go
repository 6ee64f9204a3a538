// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
)

func analyze(t *testing.T, content string) *datatypes.AnalyzedInput {
	t.Helper()
	analyzer := NewAnalyzer()
	out := analyzer.Analyze(context.Background(), &datatypes.UserInput{
		RequestID: "req_1",
		Content:   content,
		InputType: datatypes.InputTypeText,
	})
	require.NotNil(t, out)
	return out
}

func TestAnalyzeIntent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"information question", "What are the symptoms of seasonal affective disorder?", datatypes.IntentInformation},
		{"medication question", "Is it safe to change my sertraline dosage?", datatypes.IntentMedication},
		{"support statement", "I have been feeling overwhelmed and completely alone lately", datatypes.IntentSupport},
		{"crisis statement", "I keep thinking I want to die", datatypes.IntentCrisis},
		{"obfuscated crisis statement", "i want to k1ll myself", datatypes.IntentCrisis},
		{"no signals", "hello there", datatypes.IntentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, analyze(t, tt.content).Intent)
		})
	}
}

func TestAnalyzeCrisisBeatsOtherIntents(t *testing.T) {
	// Medication vocabulary is present, but the crisis phrase must win.
	out := analyze(t, "I stopped my medication and now I want to end my life")
	assert.Equal(t, datatypes.IntentCrisis, out.Intent)
	assert.Equal(t, 9, out.UrgencyLevel)
}

func TestAnalyzeEntities(t *testing.T) {
	out := analyze(t, "My doctor mentioned CBT for my anxiety and possibly sertraline")
	assert.Contains(t, out.MedicalEntities, "cbt")
	assert.Contains(t, out.MedicalEntities, "anxiety")
	assert.Contains(t, out.MedicalEntities, "sertraline")
}

func TestAnalyzeEntityWholeWordMatching(t *testing.T) {
	// "adhd" must not match inside an unrelated token.
	out := analyze(t, "the radhdx protocol")
	assert.NotContains(t, out.MedicalEntities, "adhd")
}

func TestAnalyzeUrgency(t *testing.T) {
	calm := analyze(t, "What is cognitive behavioral therapy?")
	assert.Equal(t, 3, calm.UrgencyLevel)

	pressed := analyze(t, "I need an answer right now, this is urgent and getting worse")
	assert.Greater(t, pressed.UrgencyLevel, calm.UrgencyLevel)
	assert.LessOrEqual(t, pressed.UrgencyLevel, datatypes.MaxUrgency)
}

func TestAnalyzeEmotionalContext(t *testing.T) {
	assert.Equal(t, "anxious", analyze(t, "I am so worried about my health").EmotionalContext)
	assert.Equal(t, "distressed", analyze(t, "everything feels hopeless").EmotionalContext)
	assert.Empty(t, analyze(t, "what is melatonin").EmotionalContext)
}

func TestAnalyzeConfidence(t *testing.T) {
	weak := analyze(t, "hm okay")
	rich := analyze(t, "What are the side effects of sertraline? I am worried about my anxiety")

	assert.Greater(t, rich.Confidence, weak.Confidence)
	assert.GreaterOrEqual(t, weak.Confidence, 0.0)
	assert.LessOrEqual(t, rich.Confidence, 1.0)
}
