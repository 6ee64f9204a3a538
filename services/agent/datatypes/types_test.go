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
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   UserInput
		wantErr bool
	}{
		{
			name: "valid input",
			input: UserInput{
				UserID:    "user_1",
				SessionID: "sess_1",
				Content:   "I have trouble sleeping lately",
			},
			wantErr: false,
		},
		{
			name: "missing user id",
			input: UserInput{
				SessionID: "sess_1",
				Content:   "hello",
			},
			wantErr: true,
		},
		{
			name: "missing session id",
			input: UserInput{
				UserID:  "user_1",
				Content: "hello",
			},
			wantErr: true,
		},
		{
			name: "empty content",
			input: UserInput{
				UserID:    "user_1",
				SessionID: "sess_1",
			},
			wantErr: true,
		},
		{
			name: "content over limit",
			input: UserInput{
				UserID:    "user_1",
				SessionID: "sess_1",
				Content:   strings.Repeat("a", MaxInputChars+1),
			},
			wantErr: true,
		},
		{
			name: "content exactly at limit",
			input: UserInput{
				UserID:    "user_1",
				SessionID: "sess_1",
				Content:   strings.Repeat("a", MaxInputChars),
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUserInputEnsureDefaults(t *testing.T) {
	in := UserInput{UserID: "u", SessionID: "s", Content: "hi"}
	in.EnsureDefaults()

	assert.NotEmpty(t, in.RequestID)
	assert.NotZero(t, in.Timestamp)
	assert.Equal(t, InputTypeText, in.InputType)

	// Defaults must not overwrite supplied values.
	fixed := UserInput{RequestID: "req_1", Timestamp: 42, InputType: InputTypeVoiceTranscript}
	fixed.EnsureDefaults()
	assert.Equal(t, "req_1", fixed.RequestID)
	assert.Equal(t, int64(42), fixed.Timestamp)
	assert.Equal(t, InputTypeVoiceTranscript, fixed.InputType)
}

func TestSafetyLevelOrdering(t *testing.T) {
	// The short-circuit logic depends on this strict ordering.
	require.True(t, SafetySafe < SafetyCaution)
	require.True(t, SafetyCaution < SafetyWarning)
	require.True(t, SafetyWarning < SafetyCritical)
	require.True(t, SafetyCritical < SafetyBlocked)

	assert.Equal(t, SafetyBlocked, MaxLevel(SafetyCaution, SafetyBlocked))
	assert.Equal(t, SafetyCritical, MaxLevel(SafetyCritical, SafetyWarning))
	assert.Equal(t, SafetySafe, MaxLevel(SafetySafe, SafetySafe))
}

func TestSafetyLevelString(t *testing.T) {
	assert.Equal(t, "safe", SafetySafe.String())
	assert.Equal(t, "blocked", SafetyBlocked.String())
	assert.Equal(t, "unknown", SafetyLevel(99).String())

	b, err := SafetyCritical.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"critical"`, string(b))
}

func TestRetrievalSetAverageConfidence(t *testing.T) {
	var nilSet *RetrievalSet
	assert.Equal(t, 0.5, nilSet.AverageConfidence(), "nil set uses the neutral default")

	empty := &RetrievalSet{}
	assert.True(t, empty.Empty())
	assert.Equal(t, 0.5, empty.AverageConfidence())

	set := &RetrievalSet{Documents: []ScoredDocument{
		{Confidence: 0.9},
		{Confidence: 0.7},
	}}
	assert.InDelta(t, 0.8, set.AverageConfidence(), 1e-9)
}

func TestProcessingStepComplete(t *testing.T) {
	step := StartStep("knowledge_retrieval")
	step.SetMeta("documents", 3)
	step.Complete(nil)

	assert.True(t, step.Success)
	assert.Empty(t, step.Error)
	assert.False(t, step.EndTime.IsZero())
	assert.GreaterOrEqual(t, step.Duration(), time.Duration(0))

	failed := StartStep("reasoning_generation")
	failed.Complete(errors.New("provider unavailable"))
	assert.False(t, failed.Success)
	assert.Equal(t, "provider unavailable", failed.Error)
}

func TestProcessingMetadataStageNames(t *testing.T) {
	meta := &ProcessingMetadata{Steps: []*ProcessingStep{
		{Name: "input_validation"},
		{Name: "input_analysis"},
	}}
	assert.Equal(t, []string{"input_validation", "input_analysis"}, meta.StageNames())
}
