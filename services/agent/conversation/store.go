// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package conversation persists and retrieves per-session dialogue turns
// in Weaviate. The pipeline treats it as an optional capability: a nil
// store degrades to single-shot answering.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
)

var tracer = otel.Tracer("meridian.agent.conversation")

// turnClass is the Weaviate class holding dialogue history.
const turnClass = "ConversationTurn"

// DefaultHistoryTurns bounds how much history the pipeline loads per
// request.
const DefaultHistoryTurns = 5

// WeaviateContextStore reads and writes ConversationTurn objects.
//
// # Thread Safety
//
// Safe for concurrent use; the Weaviate client pools connections.
type WeaviateContextStore struct {
	client *weaviate.Client
}

func NewWeaviateContextStore(client *weaviate.Client) *WeaviateContextStore {
	return &WeaviateContextStore{client: client}
}

// History returns up to n prior turns for a session in chronological
// order (oldest first), ready for prompt assembly.
func (s *WeaviateContextStore) History(ctx context.Context, sessionID string, n int) ([]datatypes.ConversationTurn, error) {
	ctx, span := tracer.Start(ctx, "WeaviateContextStore.History")
	defer span.End()

	if n < 1 {
		n = DefaultHistoryTurns
	}

	whereFilter := filters.Where().
		WithPath([]string{"session_id"}).
		WithOperator(filters.Equal).
		WithValueString(sessionID)

	sortBy := graphql.Sort{
		Path:  []string{"timestamp"},
		Order: graphql.Desc,
	}

	fields := []graphql.Field{
		{Name: "session_id"},
		{Name: "user_id"},
		{Name: "question"},
		{Name: "answer"},
		{Name: "timestamp"},
		{Name: "turn_number"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(turnClass).
		WithFields(fields...).
		WithWhere(whereFilter).
		WithSort(sortBy).
		WithLimit(n).
		Do(ctx)
	if err != nil {
		slog.Error("Failed to retrieve conversation history", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("weaviate query failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.TurnQueryResponse](result)
	if err != nil {
		slog.Error("Failed to parse conversation history", "error", err)
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	results := parsed.Get.ConversationTurn
	turns := make([]datatypes.ConversationTurn, 0, len(results))
	// Results arrive newest first; reverse into chronological order.
	for i := len(results) - 1; i >= 0; i-- {
		r := results[i]
		turnNum := 0
		if r.TurnNumber != nil {
			turnNum = *r.TurnNumber
		}
		turns = append(turns, datatypes.ConversationTurn{
			SessionID:  r.SessionID,
			UserID:     r.UserID,
			Question:   r.Question,
			Answer:     r.Answer,
			Timestamp:  r.Timestamp,
			TurnNumber: turnNum,
		})
	}

	slog.Debug("Retrieved conversation history", "sessionID", sessionID, "turns", len(turns))
	return turns, nil
}

// SaveTurn persists one completed exchange. A zero timestamp is filled
// with the current time.
func (s *WeaviateContextStore) SaveTurn(ctx context.Context, turn datatypes.ConversationTurn) error {
	ctx, span := tracer.Start(ctx, "WeaviateContextStore.SaveTurn")
	defer span.End()

	if turn.SessionID == "" {
		return fmt.Errorf("turn is missing a session id")
	}
	if turn.Timestamp == 0 {
		turn.Timestamp = time.Now().UnixMilli()
	}

	props := datatypes.TurnProperties{
		SessionID:  turn.SessionID,
		UserID:     turn.UserID,
		Question:   turn.Question,
		Answer:     turn.Answer,
		Timestamp:  turn.Timestamp,
		TurnNumber: turn.TurnNumber,
	}

	_, err := s.client.Data().Creator().
		WithClassName(turnClass).
		WithProperties(props.ToMap()).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to save conversation turn to Weaviate: %w", err)
	}

	slog.Debug("Saved conversation turn", "sessionID", turn.SessionID, "turn", turn.TurnNumber)
	return nil
}
