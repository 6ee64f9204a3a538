// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target
// type.
//
// # Description
//
// Encapsulates the marshal/unmarshal round trip needed to convert
// Weaviate's dynamic response (map[string]models.JSONObject) into a
// strongly-typed struct. The target type T must have json tags matching
// the response shape.
//
// # Example
//
//	resp, err := client.GraphQL().Get().WithClassName("MedicalDocument").Do(ctx)
//	if err != nil { ... }
//	parsed, err := ParseGraphQLResponse[KnowledgeQueryResponse](resp)
//
// # Limitations
//
//   - Type mismatches produce zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Knowledge Base Query Types
// =============================================================================

// KnowledgeQueryResponse is the response shape for MedicalDocument class
// queries.
type KnowledgeQueryResponse struct {
	Get struct {
		MedicalDocument []MedicalDocumentResult `json:"MedicalDocument"`
	} `json:"Get"`
}

// MedicalDocumentResult is a single knowledge-base document from a query.
type MedicalDocumentResult struct {
	Content     string   `json:"content"`
	Title       string   `json:"title"`
	Source      string   `json:"source"`
	SourceClass string   `json:"source_class"`
	DocType     string   `json:"doc_type"`
	Specialty   string   `json:"specialty"`
	Keywords    []string `json:"keywords"`
	URL         string   `json:"url"`
	DOI         string   `json:"doi"`
	Authors     []string `json:"authors"`
	PublishedAt int64    `json:"published_at"` // unix seconds, 0 when unknown
	Additional  struct {
		ID        string   `json:"id"`
		Certainty *float32 `json:"certainty"`
	} `json:"_additional"`
}

// =============================================================================
// Conversation Query Types
// =============================================================================

// TurnQueryResponse is the response shape for ConversationTurn class
// queries.
type TurnQueryResponse struct {
	Get struct {
		ConversationTurn []TurnResult `json:"ConversationTurn"`
	} `json:"Get"`
}

// TurnResult is a single conversation turn from a query.
type TurnResult struct {
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Timestamp  int64  `json:"timestamp"`
	TurnNumber *int   `json:"turn_number"`
}

// TurnProperties are the properties written when persisting a turn.
type TurnProperties struct {
	SessionID  string
	UserID     string
	Question   string
	Answer     string
	Timestamp  int64
	TurnNumber int
}

// ToMap converts TurnProperties to the map format Weaviate's
// WithProperties() method requires.
func (p *TurnProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"session_id":  p.SessionID,
		"user_id":     p.UserID,
		"question":    p.Question,
		"answer":      p.Answer,
		"timestamp":   p.Timestamp,
		"turn_number": p.TurnNumber,
	}
}
