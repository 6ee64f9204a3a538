// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety implements the safety assessment and compliance gate.
//
// The gate is consulted twice per request: AssessInput runs before any
// model call and can veto the whole pipeline; ValidateResponse and Enhance
// run after reasoning and can only annotate or constrain the response,
// never un-block it. The two evaluations are independent — the gate holds
// no per-request state.
package safety

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
	"github.com/MeridianCare/MeridianAgent/services/agent/policy"
	"github.com/MeridianCare/MeridianAgent/services/safety/enforcement"
)

// urgencyCriticalFloor is the analyzer urgency at which the verdict is
// forced to critical even without a keyword match.
const urgencyCriticalFloor = 9

// Gate evaluates inputs and responses against the embedded crisis and
// compliance policies.
//
// # Thread Safety
//
// Gate is immutable after construction and safe for concurrent use.
type Gate struct {
	cfg        policy.Config
	families   []SignalFamily
	compliance *compliancePolicyFile
}

// NewGate compiles the embedded policies and returns a ready gate.
//
// Returns an error only if the embedded YAML is malformed or contains an
// invalid regex — both are build defects, so callers treat this as fatal.
func NewGate(cfg policy.Config) (*Gate, error) {
	families, err := loadCrisisPolicy(enforcement.CrisisPatterns)
	if err != nil {
		return nil, fmt.Errorf("loading crisis policy: %w", err)
	}
	compliance, err := loadCompliancePolicy(enforcement.CompliancePatterns)
	if err != nil {
		return nil, fmt.Errorf("loading compliance policy: %w", err)
	}

	slog.Info("Safety gate initialized",
		"signal_families", len(families),
		"harmful_patterns", len(compliance.HarmfulPhrasings),
		"diagnostic_patterns", len(compliance.DiagnosticLanguage),
	)

	return &Gate{cfg: cfg, families: families, compliance: compliance}, nil
}

// AssessInput computes the pre-flight safety verdict for a request.
//
// # Description
//
// Five independent signal families are evaluated and the verdict is the
// maximum severity across them:
//
//  1. keyword/regex families from the embedded crisis policy (matched
//     against normalized text, see Normalize/FoldKey),
//  2. analyzer urgency >= 9,
//  3. declared intent "crisis",
//  4. self-harm regex patterns (a crisis-policy family),
//  5. substance-risk keywords (a crisis-policy family).
//
// Any crisis or self-harm family match forces at least critical; the
// imminent_crisis family escalates to blocked, which short-circuits the
// pipeline entirely.
//
// # Inputs
//
//   - input: the raw user input (only Content is read).
//   - analyzed: the derived analysis; may be the zero value when input
//     analysis was skipped, in which case only text signals contribute.
//
// # Outputs
//
//   - datatypes.SafetyVerdict: maximum severity plus one concern string
//     per triggered signal.
func (g *Gate) AssessInput(input *datatypes.UserInput, analyzed *datatypes.AnalyzedInput) datatypes.SafetyVerdict {
	verdict := datatypes.SafetyVerdict{Level: datatypes.SafetySafe}

	normalized := Normalize(input.Content)
	folded := FoldKey(input.Content)

	for _, fam := range g.families {
		if signal, hit := fam.match(normalized, folded); hit {
			verdict.Level = datatypes.MaxLevel(verdict.Level, fam.Severity.level())
			verdict.Concerns = append(verdict.Concerns,
				fmt.Sprintf("%s: %s", fam.Name, signal))
		}
	}

	if analyzed != nil {
		if analyzed.UrgencyLevel >= urgencyCriticalFloor {
			verdict.Level = datatypes.MaxLevel(verdict.Level, datatypes.SafetyCritical)
			verdict.Concerns = append(verdict.Concerns,
				fmt.Sprintf("urgency: level %d", analyzed.UrgencyLevel))
		}
		if analyzed.Intent == datatypes.IntentCrisis {
			verdict.Level = datatypes.MaxLevel(verdict.Level, datatypes.SafetyCritical)
			verdict.Concerns = append(verdict.Concerns, "intent: crisis")
		}
	}

	if verdict.Level >= datatypes.SafetyCritical {
		slog.Warn("Crisis signals detected in input",
			"level", verdict.Level.String(),
			"concerns", len(verdict.Concerns),
			"request_id", input.RequestID,
		)
	}

	return verdict
}

// match reports the first triggered signal in the family. Keywords are
// checked against the key-folded text, regexes against the normalized
// text.
func (f *SignalFamily) match(normalized, folded string) (string, bool) {
	for i, kw := range f.foldedKeywords {
		if kw != "" && strings.Contains(folded, kw) {
			return fmt.Sprintf("keyword %q", f.Keywords[i]), true
		}
	}
	for i := range f.Regexes {
		if f.Regexes[i].compiled.MatchString(normalized) {
			return fmt.Sprintf("pattern %s", f.Regexes[i].Id), true
		}
	}
	return "", false
}
