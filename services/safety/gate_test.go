// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
	"github.com/MeridianCare/MeridianAgent/services/agent/policy"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	gate, err := NewGate(policy.Default())
	require.NoError(t, err)
	return gate
}

func TestAssessInput(t *testing.T) {
	gate := newTestGate(t)

	tests := []struct {
		name      string
		content   string
		analyzed  *datatypes.AnalyzedInput
		wantLevel datatypes.SafetyLevel
	}{
		{
			name:      "benign sleep question",
			content:   "How can I improve my sleep hygiene?",
			analyzed:  &datatypes.AnalyzedInput{Intent: datatypes.IntentInformation, UrgencyLevel: 2},
			wantLevel: datatypes.SafetySafe,
		},
		{
			name:      "explicit suicidal intent blocks",
			content:   "I want to kill myself tonight",
			analyzed:  &datatypes.AnalyzedInput{Intent: datatypes.IntentCrisis, UrgencyLevel: 10},
			wantLevel: datatypes.SafetyBlocked,
		},
		{
			name:      "leetspeak obfuscation still blocks",
			content:   "i want to k1ll my$elf",
			analyzed:  nil,
			wantLevel: datatypes.SafetyBlocked,
		},
		{
			name:      "dotted obfuscation still blocks",
			content:   "I want to k.i.l.l myself",
			analyzed:  nil,
			wantLevel: datatypes.SafetyBlocked,
		},
		{
			name:      "informational crisis topic is critical",
			content:   "What are the warning signs of suicide in teenagers?",
			analyzed:  &datatypes.AnalyzedInput{Intent: datatypes.IntentInformation, UrgencyLevel: 4},
			wantLevel: datatypes.SafetyCritical,
		},
		{
			name:      "self harm pattern is critical",
			content:   "I have been cutting my arms when things get bad",
			analyzed:  nil,
			wantLevel: datatypes.SafetyCritical,
		},
		{
			name:      "urgency alone forces critical",
			content:   "I need help right now, everything is urgent",
			analyzed:  &datatypes.AnalyzedInput{Intent: datatypes.IntentSupport, UrgencyLevel: 9},
			wantLevel: datatypes.SafetyCritical,
		},
		{
			name:      "declared crisis intent forces critical",
			content:   "please talk to me",
			analyzed:  &datatypes.AnalyzedInput{Intent: datatypes.IntentCrisis, UrgencyLevel: 5},
			wantLevel: datatypes.SafetyCritical,
		},
		{
			name:      "substance risk is warning",
			content:   "I have been mixing pills with alcohol most weekends",
			analyzed:  &datatypes.AnalyzedInput{Intent: datatypes.IntentSupport, UrgencyLevel: 4},
			wantLevel: datatypes.SafetyWarning,
		},
		{
			name:      "acute distress is caution",
			content:   "I had a panic attack at work yesterday",
			analyzed:  &datatypes.AnalyzedInput{Intent: datatypes.IntentSupport, UrgencyLevel: 3},
			wantLevel: datatypes.SafetyCaution,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := &datatypes.UserInput{
				UserID:    "u",
				SessionID: "s",
				Content:   tt.content,
			}
			verdict := gate.AssessInput(input, tt.analyzed)
			assert.Equal(t, tt.wantLevel, verdict.Level,
				"content %q: got %s, concerns %v", tt.content, verdict.Level, verdict.Concerns)
			if tt.wantLevel > datatypes.SafetySafe {
				assert.NotEmpty(t, verdict.Concerns)
			}
		})
	}
}

func TestAssessInputIndependentEvaluations(t *testing.T) {
	gate := newTestGate(t)
	input := &datatypes.UserInput{UserID: "u", SessionID: "s", Content: "suicide statistics"}

	first := gate.AssessInput(input, nil)
	second := gate.AssessInput(input, nil)

	// Two evaluations of the same input are independent and identical.
	assert.Equal(t, first.Level, second.Level)
	assert.Equal(t, first.Concerns, second.Concerns)
}

func TestVerdictIsMaxAcrossFamilies(t *testing.T) {
	gate := newTestGate(t)

	// Contains both a caution-level signal (hopeless) and a blocked-level
	// signal; the verdict must be the maximum.
	input := &datatypes.UserInput{
		UserID:    "u",
		SessionID: "s",
		Content:   "Everything feels hopeless and I want to die",
	}
	verdict := gate.AssessInput(input, nil)
	assert.Equal(t, datatypes.SafetyBlocked, verdict.Level)
	assert.GreaterOrEqual(t, len(verdict.Concerns), 2)
}
