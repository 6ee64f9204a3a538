// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package router

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
	"github.com/MeridianCare/MeridianAgent/services/agent/policy"
	"github.com/MeridianCare/MeridianAgent/services/llm"
)

type stubClient struct{ name string }

func (s *stubClient) Complete(_ context.Context, _, _ string, params llm.GenerationParams) (llm.Completion, error) {
	return llm.Completion{Text: "stub", Model: params.Model}, nil
}

func TestClassify(t *testing.T) {
	r := NewModelRouter(policy.Default(), nil)

	tests := []struct {
		name     string
		analyzed datatypes.AnalyzedInput
		docCount int
		want     policy.Complexity
	}{
		{
			name:     "benign short query is simple",
			analyzed: datatypes.AnalyzedInput{Text: "how much sleep do adults need", UrgencyLevel: 2},
			want:     policy.ComplexitySimple,
		},
		{
			name:     "high urgency is critical",
			analyzed: datatypes.AnalyzedInput{Text: "I need help", UrgencyLevel: 8},
			want:     policy.ComplexityCritical,
		},
		{
			name:     "crisis intent is critical",
			analyzed: datatypes.AnalyzedInput{Text: "please talk to me", Intent: datatypes.IntentCrisis, UrgencyLevel: 3},
			want:     policy.ComplexityCritical,
		},
		{
			name:     "crisis term in text is critical",
			analyzed: datatypes.AnalyzedInput{Text: "thinking about suicide a lot", UrgencyLevel: 4},
			want:     policy.ComplexityCritical,
		},
		{
			name: "many entities is complex",
			analyzed: datatypes.AnalyzedInput{
				Text:            "interactions between these medications",
				MedicalEntities: []string{"sertraline", "lithium", "ibuprofen", "melatonin"},
				UrgencyLevel:    3,
			},
			want: policy.ComplexityComplex,
		},
		{
			name:     "large evidence set is complex",
			analyzed: datatypes.AnalyzedInput{Text: "compare treatment options", UrgencyLevel: 3},
			docCount: 6,
			want:     policy.ComplexityComplex,
		},
		{
			name: "urgency beats entity count",
			analyzed: datatypes.AnalyzedInput{
				Text:            "everything at once",
				MedicalEntities: []string{"a", "b", "c", "d"},
				UrgencyLevel:    9,
			},
			want: policy.ComplexityCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Classify(&tt.analyzed, tt.docCount))
		})
	}
}

func TestSelectPrefersConfiguredProvider(t *testing.T) {
	cfg := policy.Default()
	cfg.PreferredProvider = policy.ProviderAnthropic
	r := NewModelRouter(cfg, map[policy.Provider]llm.Client{
		policy.ProviderOpenAI:    &stubClient{name: "openai"},
		policy.ProviderAnthropic: &stubClient{name: "anthropic"},
	})

	sel, client, err := r.Select(policy.ComplexityComplex)
	require.NoError(t, err)
	assert.Equal(t, policy.ProviderAnthropic, sel.Provider)
	assert.Equal(t, "claude-3-5-sonnet-20240620", sel.Model)
	assert.False(t, sel.FellBack)
	assert.Equal(t, "anthropic", client.(*stubClient).name)
}

func TestSelectFallsBackWhenPreferredMissing(t *testing.T) {
	cfg := policy.Default()
	cfg.PreferredProvider = policy.ProviderOpenAI
	r := NewModelRouter(cfg, map[policy.Provider]llm.Client{
		policy.ProviderAnthropic: &stubClient{name: "anthropic"},
	})

	sel, _, err := r.Select(policy.ComplexitySimple)
	require.NoError(t, err)
	assert.Equal(t, policy.ProviderAnthropic, sel.Provider)
	assert.Equal(t, "claude-3-5-haiku-20241022", sel.Model)
	assert.True(t, sel.FellBack)
}

func TestSelectIsDeterministic(t *testing.T) {
	r := NewModelRouter(policy.Default(), map[policy.Provider]llm.Client{
		policy.ProviderOpenAI:    &stubClient{name: "openai"},
		policy.ProviderAnthropic: &stubClient{name: "anthropic"},
	})

	first, _, err := r.Select(policy.ComplexityCritical)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		sel, _, err := r.Select(policy.ComplexityCritical)
		require.NoError(t, err)
		assert.Equal(t, first, sel)
	}
}

func TestSelectNoProviders(t *testing.T) {
	r := NewModelRouter(policy.Default(), nil)

	_, _, err := r.Select(policy.ComplexitySimple)
	require.Error(t, err)

	var nme *NoModelAvailableError
	require.True(t, errors.As(err, &nme))
	assert.Equal(t, policy.ComplexitySimple, nme.Complexity)
	assert.Len(t, nme.Tried, 2)
}
