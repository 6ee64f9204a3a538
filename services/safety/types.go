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
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
)

// crisisPolicyFile is the root of the embedded crisis_patterns.yaml.
type crisisPolicyFile struct {
	Families []SignalFamily `yaml:"families"`
}

// SignalFamily is one independent group of crisis signals. A family
// contributes its severity to the verdict when any of its keywords or
// regexes match the normalized input.
type SignalFamily struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Severity    severityName   `yaml:"severity"`
	Keywords    []string       `yaml:"keywords"`
	Regexes     []RegexPattern `yaml:"regexes"`

	// foldedKeywords holds the keywords after the same normalization
	// applied to input text, computed at load time.
	foldedKeywords []string
}

// RegexPattern is one compiled regex signal within a family.
type RegexPattern struct {
	Id          string `yaml:"id"`
	Description string `yaml:"description"`
	Regex       string `yaml:"regex"`

	compiled *regexp.Regexp
}

// severityName is the YAML-facing severity value.
type severityName string

func (s *severityName) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch severityName(raw) {
	case "caution", "warning", "critical", "blocked":
		*s = severityName(raw)
		return nil
	default:
		return fmt.Errorf("invalid value for severity: %q", raw)
	}
}

// level converts the YAML severity into the pipeline's SafetyLevel.
func (s severityName) level() datatypes.SafetyLevel {
	switch s {
	case "blocked":
		return datatypes.SafetyBlocked
	case "critical":
		return datatypes.SafetyCritical
	case "warning":
		return datatypes.SafetyWarning
	case "caution":
		return datatypes.SafetyCaution
	default:
		return datatypes.SafetySafe
	}
}

// loadCrisisPolicy parses and compiles the embedded signal families,
// sorted by descending severity so the most serious families are evaluated
// (and reported) first.
func loadCrisisPolicy(raw []byte) ([]SignalFamily, error) {
	var file crisisPolicyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded crisis policy: %w", err)
	}

	for i := range file.Families {
		fam := &file.Families[i]
		fam.foldedKeywords = make([]string, len(fam.Keywords))
		for j, kw := range fam.Keywords {
			fam.foldedKeywords[j] = FoldKey(kw)
		}
		for j := range fam.Regexes {
			re, err := regexp.Compile(fam.Regexes[j].Regex)
			if err != nil {
				return nil, fmt.Errorf("failed to compile the regex %s: %w", fam.Regexes[j].Id, err)
			}
			fam.Regexes[j].compiled = re
		}
	}

	sort.SliceStable(file.Families, func(i, j int) bool {
		return file.Families[i].Severity.level() > file.Families[j].Severity.level()
	})

	return file.Families, nil
}

// compliancePolicyFile is the root of the embedded compliance_patterns.yaml.
type compliancePolicyFile struct {
	HarmfulPhrasings   []RegexPattern `yaml:"harmful_phrasings"`
	DiagnosticLanguage []RegexPattern `yaml:"diagnostic_language"`
	ReferralPhrases    []string       `yaml:"referral_phrases"`
	DisclaimerMarkers  []string       `yaml:"disclaimer_markers"`
}

func loadCompliancePolicy(raw []byte) (*compliancePolicyFile, error) {
	var file compliancePolicyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal the embedded compliance policy: %w", err)
	}
	for _, group := range [][]RegexPattern{file.HarmfulPhrasings, file.DiagnosticLanguage} {
		for i := range group {
			re, err := regexp.Compile(group[i].Regex)
			if err != nil {
				return nil, fmt.Errorf("failed to compile the regex %s: %w", group[i].Id, err)
			}
			group[i].compiled = re
		}
	}
	return &file, nil
}

// ComplianceCheck is the outcome of one post-flight response check.
type ComplianceCheck struct {
	Name            string   `json:"name"`
	Passed          bool     `json:"passed"`
	Confidence      float64  `json:"confidence"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// OverallSafe reports whether every check in the set passed.
func OverallSafe(checks []ComplianceCheck) bool {
	for _, c := range checks {
		if !c.Passed {
			return false
		}
	}
	return true
}
