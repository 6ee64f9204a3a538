// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy holds the routing, retrieval and compliance configuration
// shared by the safety gate, the model router and the retrieval scorer.
//
// Config is built once at startup and injected by value; components never
// mutate it. Tests construct alternate configs directly instead of patching
// globals.
package policy

import (
	"log/slog"
	"os"
	"strconv"
)

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"

	// ProviderOllama serves offline development and air-gapped deployments.
	// It participates in routing only when explicitly preferred.
	ProviderOllama Provider = "ollama"
)

// Complexity is the three-tier classification used to select a model.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityComplex  Complexity = "complex"
	ComplexityCritical Complexity = "critical"
)

// TierModels maps each complexity tier to a model identifier for one
// provider.
type TierModels struct {
	Simple   string
	Complex  string
	Critical string
}

// ForTier returns the model for the given tier, falling back to the
// simple-tier model for unknown values.
func (t TierModels) ForTier(c Complexity) string {
	switch c {
	case ComplexityCritical:
		return t.Critical
	case ComplexityComplex:
		return t.Complex
	default:
		return t.Simple
	}
}

// CrisisResource is one entry of the crisis-resources block appended to
// responses under warning or critical verdicts.
type CrisisResource struct {
	Category string `json:"category"` // "hotline", "emergency", "professional_help"
	Name     string `json:"name"`
	Contact  string `json:"contact"`
}

// Config is the immutable policy bundle.
type Config struct {
	// ConfidenceThreshold is the minimum retrieval confidence a document
	// needs to be included in a RetrievalSet (unless the caller requests
	// low-confidence inclusion).
	ConfidenceThreshold float64

	// SourceReliability maps a source class to its reliability weight in
	// [0.3, 1.0]. Unknown classes use ReliabilityUnknown.
	SourceReliability map[string]float64

	// DocTypeWeights maps a document type to its scoring weight.
	DocTypeWeights map[string]float64

	// PreferredProvider is tried first for every tier; the other provider
	// is the deterministic fallback.
	PreferredProvider Provider

	// Models holds the tier-to-model table per provider.
	Models map[Provider]TierModels

	// MedicalDisclaimer is appended to every response that lacks one.
	MedicalDisclaimer string

	// CrisisResources is the fixed high-priority resource list returned on
	// blocked requests and appended under critical/warning verdicts.
	CrisisResources []CrisisResource

	// CrisisConfidenceCap is the maximum confidence a response may claim
	// when the safety verdict is warning or critical.
	CrisisConfidenceCap float64

	// ComplianceConfidenceMin and ComplianceConfidenceMax bound the
	// acceptable response confidence band checked during post-flight
	// validation.
	ComplianceConfidenceMin float64
	ComplianceConfidenceMax float64
}

// Source classes recognized by the reliability table.
const (
	SourcePeerReviewed    = "peer_reviewed"
	SourceHealthAuthority = "health_authority"
	SourceClinicalOrg     = "clinical_org"
	SourceGeneralHealth   = "general_health_site"
	SourceUnknown         = "unknown"

	// ReliabilityUnknown is the floor weight applied to unclassified
	// sources.
	ReliabilityUnknown = 0.3
)

// Default returns the production policy configuration. Environment
// overrides use logged defaults: a bad value is warned about and
// ignored, never fatal.
func Default() Config {
	cfg := Config{
		ConfidenceThreshold: 0.7,
		SourceReliability: map[string]float64{
			SourcePeerReviewed:    1.0,
			SourceHealthAuthority: 0.9,
			SourceClinicalOrg:     0.8,
			SourceGeneralHealth:   0.6,
			SourceUnknown:         ReliabilityUnknown,
		},
		DocTypeWeights: map[string]float64{
			"clinical_guideline": 1.0,
			"research_paper":     0.9,
			"review_article":     0.85,
			"patient_education":  0.7,
			"faq":                0.5,
		},
		PreferredProvider: ProviderOpenAI,
		Models: map[Provider]TierModels{
			ProviderOpenAI: {
				Simple:   "gpt-4o-mini",
				Complex:  "gpt-4o",
				Critical: "gpt-4o",
			},
			ProviderAnthropic: {
				Simple:   "claude-3-5-haiku-20241022",
				Complex:  "claude-3-5-sonnet-20240620",
				Critical: "claude-3-5-sonnet-20240620",
			},
			ProviderOllama: {
				Simple:   "llama3.1:8b",
				Complex:  "llama3.1:70b",
				Critical: "llama3.1:70b",
			},
		},
		MedicalDisclaimer: "This response is for educational purposes only and is not a " +
			"substitute for professional medical advice, diagnosis, or treatment. " +
			"Always seek the advice of a qualified health provider with any " +
			"questions you may have regarding a medical condition.",
		CrisisResources: []CrisisResource{
			{Category: "hotline", Name: "988 Suicide & Crisis Lifeline", Contact: "Call or text 988"},
			{Category: "hotline", Name: "Crisis Text Line", Contact: "Text HOME to 741741"},
			{Category: "emergency", Name: "Emergency Services", Contact: "Call 911"},
			{Category: "professional_help", Name: "SAMHSA National Helpline", Contact: "1-800-662-4357"},
		},
		CrisisConfidenceCap:     0.8,
		ComplianceConfidenceMin: 0.3,
		ComplianceConfidenceMax: 0.9,
	}

	if raw := os.Getenv("MERIDIAN_CONFIDENCE_THRESHOLD"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= 0 && v <= 1 {
			cfg.ConfidenceThreshold = v
		} else {
			slog.Warn("Invalid MERIDIAN_CONFIDENCE_THRESHOLD, using default",
				"value", raw, "default", cfg.ConfidenceThreshold)
		}
	}
	if raw := os.Getenv("MERIDIAN_PREFERRED_PROVIDER"); raw != "" {
		switch Provider(raw) {
		case ProviderOpenAI, ProviderAnthropic, ProviderOllama:
			cfg.PreferredProvider = Provider(raw)
		default:
			slog.Warn("Invalid MERIDIAN_PREFERRED_PROVIDER, using default",
				"value", raw, "default", string(cfg.PreferredProvider))
		}
	}

	return cfg
}

// ReliabilityFor returns the reliability weight for a source class.
func (c Config) ReliabilityFor(sourceClass string) float64 {
	if w, ok := c.SourceReliability[sourceClass]; ok {
		return w
	}
	return ReliabilityUnknown
}

// DocTypeWeightFor returns the scoring weight for a document type,
// defaulting to 0.5 for types outside the table.
func (c Config) DocTypeWeightFor(docType string) float64 {
	if w, ok := c.DocTypeWeights[docType]; ok {
		return w
	}
	return 0.5
}

// AlternateProvider returns the fallback provider for the configured
// preference.
func (c Config) AlternateProvider() Provider {
	if c.PreferredProvider == ProviderAnthropic {
		return ProviderOpenAI
	}
	return ProviderAnthropic
}
