// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reasoning

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
)

// Prompt assembly bounds.
const (
	maxPromptDocuments = 3
	maxHistoryChars    = 1200
	urgencyDirectives  = 7 // urgency at or above this adds the urgency directive
)

const baseSystemPrompt = `You are a supportive mental-health information assistant.
You provide evidence-based educational information, never diagnoses or prescriptions.
Ground every claim in the provided reference documents when they exist, and say so when they do not cover the question.
Structure your answer as numbered reasoning steps ("Step 1:", "Step 2:", ...) followed by a clear final answer.
Always encourage consulting a qualified mental health professional for personal medical decisions.`

const urgencyDirective = `The user's situation appears time-sensitive. Acknowledge the urgency directly, lead with the most immediately actionable guidance, and keep the answer focused.`

const crisisDirective = `Safety signals were detected in this conversation. Respond with warmth and without judgment, take any mention of self-harm seriously, and remind the user that the 988 Suicide & Crisis Lifeline (call or text 988) is available at any time.`

// GenerationContext carries everything the engine needs to produce one
// response. All fields except Retrieval and History are required.
type GenerationContext struct {
	Input     *datatypes.UserInput
	Analyzed  *datatypes.AnalyzedInput
	Verdict   datatypes.SafetyVerdict
	Retrieval *datatypes.RetrievalSet
	History   []datatypes.ConversationTurn
}

// BuildSystemPrompt returns the fixed role prompt, augmented with urgency
// and crisis directives when the analysis warrants them.
func BuildSystemPrompt(gc GenerationContext) string {
	var b strings.Builder
	b.WriteString(baseSystemPrompt)

	if gc.Analyzed != nil && gc.Analyzed.UrgencyLevel >= urgencyDirectives {
		b.WriteString("\n\n")
		b.WriteString(urgencyDirective)
	}
	if gc.Verdict.Level >= datatypes.SafetyWarning ||
		(gc.Analyzed != nil && gc.Analyzed.Intent == datatypes.IntentCrisis) {
		b.WriteString("\n\n")
		b.WriteString(crisisDirective)
	}
	return b.String()
}

// BuildUserPrompt assembles the user prompt from the query, the analysis
// summary, the top retrieved documents, and compressed history.
func BuildUserPrompt(gc GenerationContext) string {
	var b strings.Builder

	if history := compressHistory(gc.History); history != "" {
		b.WriteString("Recent conversation:\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}

	if gc.Analyzed != nil {
		b.WriteString(fmt.Sprintf("Query analysis: intent=%s, urgency=%d/10",
			gc.Analyzed.Intent, gc.Analyzed.UrgencyLevel))
		if len(gc.Analyzed.MedicalEntities) > 0 {
			b.WriteString(", topics: ")
			b.WriteString(strings.Join(gc.Analyzed.MedicalEntities, ", "))
		}
		if gc.Analyzed.EmotionalContext != "" {
			b.WriteString(", emotional tone: ")
			b.WriteString(gc.Analyzed.EmotionalContext)
		}
		b.WriteString("\n\n")
	}

	if gc.Retrieval != nil && !gc.Retrieval.Empty() {
		b.WriteString("Reference documents:\n")
		limit := len(gc.Retrieval.Documents)
		if limit > maxPromptDocuments {
			limit = maxPromptDocuments
		}
		for i := 0; i < limit; i++ {
			doc := gc.Retrieval.Documents[i]
			b.WriteString(fmt.Sprintf("[%d] (%s, confidence %.2f) %s\n",
				i+1, doc.Source, doc.Confidence, doc.Content))
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No reference documents were retrieved; answer from general clinical consensus and say so.\n\n")
	}

	b.WriteString("User question: ")
	b.WriteString(gc.Input.Content)
	return b.String()
}

// compressHistory renders prior turns and, when they exceed the budget,
// keeps the most recent chunk after splitting on turn boundaries.
func compressHistory(history []datatypes.ConversationTurn) string {
	if len(history) == 0 {
		return ""
	}

	var b strings.Builder
	for _, turn := range history {
		b.WriteString("User: ")
		b.WriteString(turn.Question)
		b.WriteString("\nAssistant: ")
		b.WriteString(turn.Answer)
		b.WriteString("\n\n")
	}
	rendered := strings.TrimSpace(b.String())
	if len(rendered) <= maxHistoryChars {
		return rendered
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(maxHistoryChars),
		textsplitter.WithChunkOverlap(0),
	)
	chunks, err := splitter.SplitText(rendered)
	if err != nil || len(chunks) == 0 {
		slog.Warn("History compression failed, truncating instead", "error", err)
		return rendered[len(rendered)-maxHistoryChars:]
	}
	// The last chunk holds the most recent exchanges.
	return chunks[len(chunks)-1]
}
