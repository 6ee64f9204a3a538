// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
)

// =============================================================================
// Optional Capabilities
// =============================================================================

// The orchestrator's knowledge, context and image collaborators are
// optional capabilities: a nil capability means the corresponding stage
// records itself as skipped and the pipeline continues. The knowledge
// capability reuses retrieval.KnowledgeSource; the two below are defined
// here because the pipeline is their only consumer.

// ContextStore loads and persists per-session conversation history.
// Both operations are best-effort from the pipeline's perspective.
type ContextStore interface {
	History(ctx context.Context, sessionID string, n int) ([]datatypes.ConversationTurn, error)
	SaveTurn(ctx context.Context, turn datatypes.ConversationTurn) error
}

// ImageResult is one illustrative image returned by an ImageSource.
type ImageResult struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

// ImageSource finds illustrative images for a query. Purely additive:
// results are attached to response metadata and failures are swallowed.
type ImageSource interface {
	Search(ctx context.Context, query string, limit int) ([]ImageResult, error)
}
