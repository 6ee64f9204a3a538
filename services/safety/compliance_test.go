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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
	"github.com/MeridianCare/MeridianAgent/services/agent/policy"
)

func compliantResponse() *datatypes.AgentResponse {
	resp := datatypes.NewAgentResponse("req_1",
		"Sleep difficulties are common and often improve with consistent routines. "+
			"If symptoms persist, consider speaking with a mental health professional.")
	resp.MedicalDisclaimer = policy.Default().MedicalDisclaimer
	resp.ConfidenceLevel = 0.75
	return resp
}

func findCheck(t *testing.T, checks []ComplianceCheck, name string) ComplianceCheck {
	t.Helper()
	for _, c := range checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found", name)
	return ComplianceCheck{}
}

func TestValidateResponseAllPass(t *testing.T) {
	gate := newTestGate(t)
	resp := compliantResponse()

	checks := gate.ValidateResponse(resp, datatypes.SafetyVerdict{Level: datatypes.SafetySafe})

	require.Len(t, checks, 6)
	assert.True(t, OverallSafe(checks), "checks: %+v", checks)
}

func TestValidateResponseFailures(t *testing.T) {
	gate := newTestGate(t)

	t.Run("missing disclaimer", func(t *testing.T) {
		resp := compliantResponse()
		resp.MedicalDisclaimer = ""
		checks := gate.ValidateResponse(resp, datatypes.SafetyVerdict{Level: datatypes.SafetySafe})
		check := findCheck(t, checks, CheckDisclaimer)
		assert.False(t, check.Passed)
		assert.NotEmpty(t, check.Recommendations)
	})

	t.Run("crisis verdict without resources", func(t *testing.T) {
		resp := compliantResponse()
		checks := gate.ValidateResponse(resp, datatypes.SafetyVerdict{Level: datatypes.SafetyCritical})
		assert.False(t, findCheck(t, checks, CheckCrisisResources).Passed)
	})

	t.Run("crisis resources not required when safe", func(t *testing.T) {
		resp := compliantResponse()
		checks := gate.ValidateResponse(resp, datatypes.SafetyVerdict{Level: datatypes.SafetySafe})
		assert.True(t, findCheck(t, checks, CheckCrisisResources).Passed)
	})

	t.Run("diagnostic language", func(t *testing.T) {
		resp := compliantResponse()
		resp.Content = "Based on what you describe, you have depression and should accept that."
		checks := gate.ValidateResponse(resp, datatypes.SafetyVerdict{Level: datatypes.SafetySafe})
		assert.False(t, findCheck(t, checks, CheckNoDiagnosis).Passed)
	})

	t.Run("harmful phrasing", func(t *testing.T) {
		resp := compliantResponse()
		resp.Content = "Honestly, just snap out of it and things will be fine."
		checks := gate.ValidateResponse(resp, datatypes.SafetyVerdict{Level: datatypes.SafetySafe})
		assert.False(t, findCheck(t, checks, CheckNoHarmfulPhrases).Passed)
	})

	t.Run("missing referral", func(t *testing.T) {
		resp := compliantResponse()
		resp.Content = "Try to keep a consistent bedtime."
		checks := gate.ValidateResponse(resp, datatypes.SafetyVerdict{Level: datatypes.SafetySafe})
		assert.False(t, findCheck(t, checks, CheckReferral).Passed)
	})

	t.Run("confidence out of band", func(t *testing.T) {
		resp := compliantResponse()
		resp.ConfidenceLevel = 0.97
		checks := gate.ValidateResponse(resp, datatypes.SafetyVerdict{Level: datatypes.SafetySafe})
		assert.False(t, findCheck(t, checks, CheckConfidenceBand).Passed)

		resp.ConfidenceLevel = 0.1
		checks = gate.ValidateResponse(resp, datatypes.SafetyVerdict{Level: datatypes.SafetySafe})
		assert.False(t, findCheck(t, checks, CheckConfidenceBand).Passed)
	})
}

func TestEnhanceCrisisResponse(t *testing.T) {
	gate := newTestGate(t)
	verdict := datatypes.SafetyVerdict{Level: datatypes.SafetyCritical}

	resp := compliantResponse()
	resp.ConfidenceLevel = 0.95
	resp.MedicalDisclaimer = ""

	enhanced := gate.Enhance(resp, verdict)

	assert.Contains(t, enhanced.Content, "988")
	assert.NotEmpty(t, enhanced.SafetyWarnings)
	assert.LessOrEqual(t, enhanced.ConfidenceLevel, 0.8,
		"confidence must be capped for crisis verdicts")
	assert.NotEmpty(t, enhanced.MedicalDisclaimer)
}

func TestEnhanceIsIdempotent(t *testing.T) {
	gate := newTestGate(t)
	verdict := datatypes.SafetyVerdict{Level: datatypes.SafetyWarning}

	resp := compliantResponse()
	once := gate.Enhance(resp, verdict)
	contentAfterOnce := once.Content
	warningsAfterOnce := len(once.SafetyWarnings)

	twice := gate.Enhance(once, verdict)
	assert.Equal(t, contentAfterOnce, twice.Content)
	assert.Len(t, twice.SafetyWarnings, warningsAfterOnce)
	assert.Equal(t, 1, strings.Count(twice.Content, "988 Suicide"),
		"resource block must not be duplicated")
}

func TestEnhanceSafeVerdictOnlyEnsuresDisclaimer(t *testing.T) {
	gate := newTestGate(t)
	resp := datatypes.NewAgentResponse("req_1", "General wellness advice.")
	resp.ConfidenceLevel = 0.9

	enhanced := gate.Enhance(resp, datatypes.SafetyVerdict{Level: datatypes.SafetySafe})

	assert.NotContains(t, enhanced.Content, "988")
	assert.Empty(t, enhanced.SafetyWarnings)
	assert.Equal(t, 0.9, enhanced.ConfidenceLevel)
	assert.NotEmpty(t, enhanced.MedicalDisclaimer)
}
