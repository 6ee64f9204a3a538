// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *WeaviateContextStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)

	client, err := weaviate.NewClient(weaviate.Config{Host: parsed.Host, Scheme: parsed.Scheme})
	require.NoError(t, err)
	return NewWeaviateContextStore(client)
}

func TestHistoryReturnsChronologicalOrder(t *testing.T) {
	// Weaviate returns newest first; the store must reverse.
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.True(t, strings.HasSuffix(r.URL.Path, "/graphql"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"Get": map[string]any{
					"ConversationTurn": []map[string]any{
						{
							"session_id": "session_1", "user_id": "user_1",
							"question": "second question", "answer": "second answer",
							"timestamp": 2000, "turn_number": 2,
						},
						{
							"session_id": "session_1", "user_id": "user_1",
							"question": "first question", "answer": "first answer",
							"timestamp": 1000, "turn_number": 1,
						},
					},
				},
			},
		})
	})

	turns, err := store.History(context.Background(), "session_1", 5)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "first question", turns[0].Question)
	require.Equal(t, 1, turns[0].TurnNumber)
	require.Equal(t, "second question", turns[1].Question)
	require.Equal(t, int64(2000), turns[1].Timestamp)
}

func TestHistoryEmptySession(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"Get": map[string]any{"ConversationTurn": []any{}},
			},
		})
	})

	turns, err := store.History(context.Background(), "fresh", 5)
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestHistoryServerError(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := store.History(context.Background(), "session_1", 5)
	require.Error(t, err)
}

func TestSaveTurn(t *testing.T) {
	var captured map[string]any
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.True(t, strings.HasSuffix(r.URL.Path, "/objects"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"class": turnClass, "id": "00000000-0000-0000-0000-000000000001",
		})
	})

	err := store.SaveTurn(context.Background(), datatypes.ConversationTurn{
		SessionID:  "session_1",
		UserID:     "user_1",
		Question:   "how do I sleep better",
		Answer:     "keep a consistent schedule",
		Timestamp:  1234,
		TurnNumber: 3,
	})
	require.NoError(t, err)

	require.Equal(t, turnClass, captured["class"])
	props, ok := captured["properties"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "session_1", props["session_id"])
	require.Equal(t, "how do I sleep better", props["question"])
	require.EqualValues(t, 3, props["turn_number"])
}

func TestSaveTurnRequiresSessionID(t *testing.T) {
	called := false
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	err := store.SaveTurn(context.Background(), datatypes.ConversationTurn{UserID: "u"})
	require.Error(t, err)
	require.False(t, called)
}
