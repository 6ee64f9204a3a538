// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package router classifies analyzed input into a complexity tier and
// selects a provider and model for it, with a deterministic fallback
// chain when the preferred provider is unavailable.
package router

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
	"github.com/MeridianCare/MeridianAgent/services/agent/policy"
	"github.com/MeridianCare/MeridianAgent/services/llm"
)

// Classification thresholds. Urgency at or above the critical floor, or
// any crisis signal, forces the critical tier regardless of the other
// signals.
const (
	urgencyCriticalFloor = 8
	entityComplexFloor   = 3
	docComplexFloor      = 5
)

// crisisTerms are checked against the analyzed text as a second net
// behind the intent classifier.
var crisisTerms = []string{
	"suicide", "suicidal", "kill myself", "self harm", "self-harm",
	"end my life", "want to die", "hurt myself",
}

// Selection is the routing outcome for one request.
type Selection struct {
	Provider   policy.Provider
	Model      string
	Complexity policy.Complexity
	// FellBack is true when the preferred provider was unavailable and
	// the alternate was chosen.
	FellBack bool
}

// NoModelAvailableError is returned when no registered provider can serve
// the request.
type NoModelAvailableError struct {
	Complexity policy.Complexity
	Tried      []policy.Provider
}

func (e *NoModelAvailableError) Error() string {
	names := make([]string, len(e.Tried))
	for i, p := range e.Tried {
		names[i] = string(p)
	}
	return fmt.Sprintf("no model available for %s tier (tried: %s)",
		e.Complexity, strings.Join(names, ", "))
}

// ModelRouter owns the tier classification rules and the registry of
// reachable backends.
type ModelRouter struct {
	cfg     policy.Config
	clients map[policy.Provider]llm.Client
}

// NewModelRouter builds a router over the given backend registry. A nil
// or empty registry is allowed; Select will then always fail, which the
// orchestrator reports as provider unavailability.
func NewModelRouter(cfg policy.Config, clients map[policy.Provider]llm.Client) *ModelRouter {
	if clients == nil {
		clients = map[policy.Provider]llm.Client{}
	}
	return &ModelRouter{cfg: cfg, clients: clients}
}

// Classify maps analysis signals to a complexity tier.
//
// # Description
//
// The rules are ordered by precedence: crisis signals and high urgency
// always win, then breadth of medical context, then the simple default.
// docCount is the number of knowledge documents already retrieved for
// the request; a large evidence set implies a synthesis-heavy answer.
func (r *ModelRouter) Classify(analyzed *datatypes.AnalyzedInput, docCount int) policy.Complexity {
	if analyzed.UrgencyLevel >= urgencyCriticalFloor || analyzed.Intent == datatypes.IntentCrisis {
		return policy.ComplexityCritical
	}
	lower := strings.ToLower(analyzed.Text)
	for _, term := range crisisTerms {
		if strings.Contains(lower, term) {
			return policy.ComplexityCritical
		}
	}
	if len(analyzed.MedicalEntities) > entityComplexFloor || docCount > docComplexFloor {
		return policy.ComplexityComplex
	}
	return policy.ComplexitySimple
}

// Select resolves a complexity tier to a concrete provider, model, and
// client. The preferred provider is always tried first, then the
// alternate; the order never depends on call history, so identical
// conditions yield identical selections.
func (r *ModelRouter) Select(complexity policy.Complexity) (Selection, llm.Client, error) {
	order := []policy.Provider{r.cfg.PreferredProvider, r.cfg.AlternateProvider()}

	for i, provider := range order {
		client, ok := r.clients[provider]
		if !ok {
			continue
		}
		tiers, ok := r.cfg.Models[provider]
		if !ok {
			slog.Warn("Provider registered but has no model table", "provider", string(provider))
			continue
		}
		sel := Selection{
			Provider:   provider,
			Model:      tiers.ForTier(complexity),
			Complexity: complexity,
			FellBack:   i > 0,
		}
		if sel.FellBack {
			slog.Info("Preferred provider unavailable, falling back",
				"preferred", string(order[0]), "selected", string(provider))
		}
		return sel, client, nil
	}

	return Selection{}, nil, &NoModelAvailableError{Complexity: complexity, Tried: order}
}

// Route classifies and selects in one step.
func (r *ModelRouter) Route(analyzed *datatypes.AnalyzedInput, docCount int) (Selection, llm.Client, error) {
	return r.Select(r.Classify(analyzed, docCount))
}
