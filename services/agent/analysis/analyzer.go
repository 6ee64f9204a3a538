// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis derives structured signals from raw user input: intent,
// medical entities, urgency, and emotional tone. The analyzer is a pure
// lexicon-based classifier so the pipeline never depends on a model call
// before the safety gate has run.
package analysis

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
	"github.com/MeridianCare/MeridianAgent/services/safety"
)

var tracer = otel.Tracer("meridian.agent.analysis")

// Urgency bounds and adjustments. The scale runs 1 (routine) to 10
// (immediate danger).
const (
	urgencyBaseline = 3
	urgencyCrisis   = 9
)

// intentSignals maps each non-default intent to the phrases that vote for
// it. Crisis phrases take absolute precedence; the remaining intents are
// resolved by vote count with ties broken in declaration order.
var intentSignals = []struct {
	intent  string
	phrases []string
}{
	{datatypes.IntentCrisis, []string{
		"kill myself", "want to die", "end my life", "suicide", "suicidal",
		"self harm", "hurt myself", "no reason to live", "better off dead",
	}},
	{datatypes.IntentMedication, []string{
		"medication", "medicine", "prescription", "dose", "dosage", "pill",
		"side effect", "side effects", "refill", "antidepressant", "ssri",
	}},
	{datatypes.IntentSupport, []string{
		"i feel", "i am feeling", "i have been feeling", "struggling",
		"overwhelmed", "lonely", "alone", "cant cope", "need someone",
		"listen to me", "having a hard time",
	}},
	{datatypes.IntentInformation, []string{
		"what is", "what are", "how do", "how does", "how can", "why do",
		"why does", "tell me about", "explain", "symptoms of", "signs of",
		"treatment for", "difference between",
	}},
}

// medicalLexicon is the flat entity vocabulary. Entries are matched as
// whole phrases against the folded text; the surface form recorded is the
// lexicon entry, not the user's spelling.
var medicalLexicon = []string{
	// conditions
	"depression", "anxiety", "panic disorder", "bipolar", "ptsd", "ocd",
	"adhd", "insomnia", "schizophrenia", "eating disorder", "burnout",
	"postpartum depression", "seasonal affective disorder",
	// symptoms
	"panic attack", "intrusive thoughts", "mood swings", "fatigue",
	"nightmares", "flashbacks", "dissociation", "appetite loss",
	// treatments and medications
	"therapy", "cbt", "cognitive behavioral therapy", "counseling",
	"meditation", "ssri", "sertraline", "fluoxetine", "escitalopram",
	"lithium", "melatonin", "benzodiazepine", "antidepressant",
}

// urgentPhrases raise urgency above the baseline without implying crisis.
var urgentPhrases = []string{
	"right now", "immediately", "urgent", "emergency", "tonight",
	"cant wait", "getting worse", "every day", "all the time",
}

// emotionSignals resolves the coarse emotional tone; first match wins so
// stronger states are listed first.
var emotionSignals = []struct {
	tone    string
	phrases []string
}{
	{"distressed", []string{"hopeless", "worthless", "desperate", "unbearable", "falling apart"}},
	{"anxious", []string{"anxious", "anxiety", "worried", "panic", "scared", "afraid", "nervous"}},
	{"sad", []string{"sad", "depressed", "crying", "grief", "miserable", "empty"}},
	{"frustrated", []string{"frustrated", "angry", "fed up", "furious", "irritated"}},
}

// Analyzer classifies user input. The zero value is not usable; construct
// with NewAnalyzer.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze derives an AnalyzedInput from validated input.
//
// # Description
//
// Classification runs entirely on folded text (the same folding the
// safety gate uses) so obfuscated phrasing cannot produce a different
// intent than the gate will see. Analysis never fails: an input with no
// recognized signals yields the general intent at baseline urgency with
// low confidence.
func (a *Analyzer) Analyze(ctx context.Context, input *datatypes.UserInput) *datatypes.AnalyzedInput {
	_, span := tracer.Start(ctx, "Analyzer.Analyze")
	defer span.End()

	folded := safety.FoldKey(input.Content)
	normalized := safety.Normalize(input.Content)

	intent, intentHits := classifyIntent(folded)
	entities := extractEntities(normalized)
	urgency := scoreUrgency(normalized, intent)
	tone := classifyEmotion(normalized)

	confidence := analyzerConfidence(intentHits, len(entities), tone)

	span.SetAttributes(
		attribute.String("analysis.intent", intent),
		attribute.Int("analysis.urgency", urgency),
		attribute.Int("analysis.entity_count", len(entities)),
	)

	return &datatypes.AnalyzedInput{
		Text:             input.Content,
		Intent:           intent,
		MedicalEntities:  entities,
		UrgencyLevel:     urgency,
		Confidence:       confidence,
		EmotionalContext: tone,
	}
}

func classifyIntent(folded string) (string, int) {
	bestIntent := datatypes.IntentGeneral
	bestHits := 0
	for _, sig := range intentSignals {
		hits := 0
		for _, phrase := range sig.phrases {
			if strings.Contains(folded, safety.FoldKey(phrase)) {
				hits++
			}
		}
		if sig.intent == datatypes.IntentCrisis && hits > 0 {
			return datatypes.IntentCrisis, hits
		}
		if hits > bestHits {
			bestIntent, bestHits = sig.intent, hits
		}
	}
	return bestIntent, bestHits
}

func extractEntities(normalized string) []string {
	var entities []string
	seen := make(map[string]bool)
	for _, term := range medicalLexicon {
		if seen[term] {
			continue
		}
		if containsPhrase(normalized, term) {
			entities = append(entities, term)
			seen[term] = true
		}
	}
	return entities
}

// containsPhrase matches term as whole words inside text.
func containsPhrase(text, term string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		beforeOK := start == 0 || text[start-1] == ' '
		afterOK := end == len(text) || text[end] == ' ' || text[end] == ',' || text[end] == '?'
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func scoreUrgency(normalized string, intent string) int {
	if intent == datatypes.IntentCrisis {
		return urgencyCrisis
	}
	urgency := urgencyBaseline
	for _, phrase := range urgentPhrases {
		if strings.Contains(normalized, phrase) {
			urgency++
		}
	}
	if urgency > datatypes.MaxUrgency {
		urgency = datatypes.MaxUrgency
	}
	return urgency
}

func classifyEmotion(normalized string) string {
	for _, sig := range emotionSignals {
		for _, phrase := range sig.phrases {
			if strings.Contains(normalized, phrase) {
				return sig.tone
			}
		}
	}
	return ""
}

// analyzerConfidence is a coarse self-assessment: each independent signal
// class that fired adds confidence on top of a floor.
func analyzerConfidence(intentHits, entityCount int, tone string) float64 {
	confidence := 0.4
	if intentHits > 0 {
		confidence += 0.25
	}
	if entityCount > 0 {
		confidence += 0.2
	}
	if tone != "" {
		confidence += 0.1
	}
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}
