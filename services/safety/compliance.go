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
	"fmt"
	"strings"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
)

// Check names, in the order ValidateResponse emits them.
const (
	CheckDisclaimer       = "disclaimer_present"
	CheckCrisisResources  = "crisis_resources_present"
	CheckNoHarmfulPhrases = "no_harmful_phrasing"
	CheckNoDiagnosis      = "no_diagnostic_language"
	CheckReferral         = "professional_referral_present"
	CheckConfidenceBand   = "confidence_in_range"
)

// ValidateResponse runs the six post-flight compliance checks against a
// generated response.
//
// # Description
//
// Each check is independent and returns a ComplianceCheck with pass/fail,
// a confidence in the judgment, and remediation recommendations on
// failure. Failures never abort the pipeline; the orchestrator logs them
// and triggers Enhance.
//
// The crisis-resource check is only demanding when the pre-flight verdict
// warranted resources (warning or above); otherwise it passes vacuously.
func (g *Gate) ValidateResponse(resp *datatypes.AgentResponse, verdict datatypes.SafetyVerdict) []ComplianceCheck {
	lower := strings.ToLower(resp.Content)

	checks := make([]ComplianceCheck, 0, 6)
	checks = append(checks,
		g.checkDisclaimer(resp, lower),
		g.checkCrisisResources(resp, lower, verdict),
		g.checkPatternAbsence(CheckNoHarmfulPhrases, g.compliance.HarmfulPhrasings, lower,
			"rephrase to remove dismissive or harmful language"),
		g.checkPatternAbsence(CheckNoDiagnosis, g.compliance.DiagnosticLanguage, lower,
			"replace diagnostic claims with descriptive, non-clinical language"),
		g.checkReferral(lower),
		g.checkConfidenceBand(resp),
	)
	return checks
}

func (g *Gate) checkDisclaimer(resp *datatypes.AgentResponse, lower string) ComplianceCheck {
	if resp.MedicalDisclaimer != "" {
		return ComplianceCheck{Name: CheckDisclaimer, Passed: true, Confidence: 1.0}
	}
	for _, marker := range g.compliance.DisclaimerMarkers {
		if strings.Contains(lower, marker) {
			return ComplianceCheck{Name: CheckDisclaimer, Passed: true, Confidence: 0.9}
		}
	}
	return ComplianceCheck{
		Name:            CheckDisclaimer,
		Passed:          false,
		Confidence:      1.0,
		Recommendations: []string{"attach the standard medical disclaimer"},
	}
}

func (g *Gate) checkCrisisResources(resp *datatypes.AgentResponse, lower string, verdict datatypes.SafetyVerdict) ComplianceCheck {
	if verdict.Level < datatypes.SafetyWarning {
		return ComplianceCheck{Name: CheckCrisisResources, Passed: true, Confidence: 1.0}
	}
	for _, res := range g.cfg.CrisisResources {
		if strings.Contains(lower, strings.ToLower(res.Contact)) ||
			strings.Contains(lower, strings.ToLower(res.Name)) {
			return ComplianceCheck{Name: CheckCrisisResources, Passed: true, Confidence: 0.9}
		}
	}
	for _, w := range resp.SafetyWarnings {
		if strings.Contains(strings.ToLower(w), "988") {
			return ComplianceCheck{Name: CheckCrisisResources, Passed: true, Confidence: 0.8}
		}
	}
	return ComplianceCheck{
		Name:            CheckCrisisResources,
		Passed:          false,
		Confidence:      0.9,
		Recommendations: []string{"append the crisis-resources block (hotline, emergency, professional help)"},
	}
}

func (g *Gate) checkPatternAbsence(name string, patterns []RegexPattern, lower, remedy string) ComplianceCheck {
	for i := range patterns {
		if patterns[i].compiled.MatchString(lower) {
			return ComplianceCheck{
				Name:       name,
				Passed:     false,
				Confidence: 0.95,
				Recommendations: []string{
					fmt.Sprintf("matched %s; %s", patterns[i].Id, remedy),
				},
			}
		}
	}
	return ComplianceCheck{Name: name, Passed: true, Confidence: 0.95}
}

func (g *Gate) checkReferral(lower string) ComplianceCheck {
	for _, phrase := range g.compliance.ReferralPhrases {
		if strings.Contains(lower, phrase) {
			return ComplianceCheck{Name: CheckReferral, Passed: true, Confidence: 0.9}
		}
	}
	return ComplianceCheck{
		Name:            CheckReferral,
		Passed:          false,
		Confidence:      0.8,
		Recommendations: []string{"add a professional-referral suggestion"},
	}
}

func (g *Gate) checkConfidenceBand(resp *datatypes.AgentResponse) ComplianceCheck {
	if resp.ConfidenceLevel >= g.cfg.ComplianceConfidenceMin &&
		resp.ConfidenceLevel <= g.cfg.ComplianceConfidenceMax {
		return ComplianceCheck{Name: CheckConfidenceBand, Passed: true, Confidence: 1.0}
	}
	return ComplianceCheck{
		Name:       CheckConfidenceBand,
		Passed:     false,
		Confidence: 1.0,
		Recommendations: []string{fmt.Sprintf(
			"confidence %.2f outside [%.1f, %.1f]; recalibrate before display",
			resp.ConfidenceLevel, g.cfg.ComplianceConfidenceMin, g.cfg.ComplianceConfidenceMax)},
	}
}
