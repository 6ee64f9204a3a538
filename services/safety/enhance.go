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

// Enhance applies safety augmentation to a generated response in place
// and returns it.
//
// # Description
//
// For critical and warning verdicts: appends the crisis-resources block
// when the response lacks one, adds an explanatory safety warning, and
// caps the confidence at the configured crisis cap — a response must never
// claim high confidence about a crisis situation. For every verdict the
// medical disclaimer is guaranteed non-empty.
//
// Enhance is idempotent: running it twice produces the same response.
func (g *Gate) Enhance(resp *datatypes.AgentResponse, verdict datatypes.SafetyVerdict) *datatypes.AgentResponse {
	if verdict.Level == datatypes.SafetyCritical || verdict.Level == datatypes.SafetyWarning {
		if !g.hasCrisisResources(resp) {
			resp.Content = strings.TrimRight(resp.Content, "\n") + "\n\n" + g.CrisisResourcesBlock()
		}
		warning := fmt.Sprintf(
			"This conversation raised %s-level safety concerns. If you are in immediate danger, use the resources listed below.",
			verdict.Level.String())
		if !containsWarning(resp.SafetyWarnings, warning) {
			resp.SafetyWarnings = append(resp.SafetyWarnings, warning)
		}
		if resp.ConfidenceLevel > g.cfg.CrisisConfidenceCap {
			resp.ConfidenceLevel = g.cfg.CrisisConfidenceCap
		}
	}

	if resp.MedicalDisclaimer == "" {
		resp.MedicalDisclaimer = g.cfg.MedicalDisclaimer
	}

	return resp
}

// CrisisResourcesBlock renders the configured resource list as a
// user-facing text block, grouped by category.
func (g *Gate) CrisisResourcesBlock() string {
	var b strings.Builder
	b.WriteString("If you are in crisis, please reach out now:\n")
	for _, res := range g.cfg.CrisisResources {
		b.WriteString(fmt.Sprintf("- %s: %s\n", res.Name, res.Contact))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (g *Gate) hasCrisisResources(resp *datatypes.AgentResponse) bool {
	lower := strings.ToLower(resp.Content)
	for _, res := range g.cfg.CrisisResources {
		if strings.Contains(lower, strings.ToLower(res.Contact)) {
			return true
		}
	}
	return false
}

func containsWarning(warnings []string, w string) bool {
	for _, existing := range warnings {
		if existing == w {
			return true
		}
	}
	return false
}
