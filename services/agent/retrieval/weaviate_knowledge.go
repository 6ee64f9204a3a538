// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

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

var tracer = otel.Tracer("meridian.agent.retrieval")

// knowledgeClass is the Weaviate class holding the curated medical corpus.
const knowledgeClass = "MedicalDocument"

// EmbeddingProvider computes vector embeddings for query text.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// KnowledgeConfig bounds a knowledge search.
type KnowledgeConfig struct {
	// TopK is the maximum number of hits per search.
	TopK int
	// MaxEmbedLength truncates queries before embedding.
	MaxEmbedLength int
	// Specialty optionally restricts results to one medical specialty.
	Specialty string
}

// DefaultKnowledgeConfig returns production search bounds.
func DefaultKnowledgeConfig() KnowledgeConfig {
	return KnowledgeConfig{
		TopK:           8,
		MaxEmbedLength: 2000,
	}
}

// WeaviateKnowledgeSource retrieves medical documents from the
// MedicalDocument class by vector similarity.
//
// # Description
//
// The source embeds the query, runs a NearVector search, and maps the
// typed results into RawHits with certainty as the similarity signal.
// Scoring and threshold filtering happen downstream; the source returns
// everything Weaviate found.
//
// # Thread Safety
//
// WeaviateKnowledgeSource is safe for concurrent use. The underlying
// Weaviate client handles connection pooling.
type WeaviateKnowledgeSource struct {
	client   *weaviate.Client
	embedder EmbeddingProvider
	config   KnowledgeConfig
}

// NewWeaviateKnowledgeSource creates a knowledge source. Config values
// outside sane bounds are corrected with a logged warning rather than
// rejected.
func NewWeaviateKnowledgeSource(client *weaviate.Client, embedder EmbeddingProvider, config KnowledgeConfig) *WeaviateKnowledgeSource {
	defaults := DefaultKnowledgeConfig()
	if config.TopK < 1 {
		slog.Warn("Invalid TopK config, using default", "provided", config.TopK, "default", defaults.TopK)
		config.TopK = defaults.TopK
	}
	if config.MaxEmbedLength < 1 {
		slog.Warn("Invalid MaxEmbedLength config, using default",
			"provided", config.MaxEmbedLength, "default", defaults.MaxEmbedLength)
		config.MaxEmbedLength = defaults.MaxEmbedLength
	}
	return &WeaviateKnowledgeSource{client: client, embedder: embedder, config: config}
}

// Search retrieves up to limit raw hits for a query.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - query: The user query to search for.
//   - limit: Maximum hits to return; 0 uses the configured TopK.
//
// # Outputs
//
//   - []datatypes.RawHit: Unscored hits, in Weaviate's similarity order.
//   - error: Non-nil if embedding or the search fails.
//
// # Limitations
//
//   - Returns an empty slice, not an error, when nothing matches.
func (s *WeaviateKnowledgeSource) Search(ctx context.Context, query string, limit int) ([]datatypes.RawHit, error) {
	ctx, span := tracer.Start(ctx, "WeaviateKnowledgeSource.Search")
	defer span.End()

	if limit < 1 {
		limit = s.config.TopK
	}

	truncated := query
	if len(query) > s.config.MaxEmbedLength {
		truncated = query[:s.config.MaxEmbedLength]
		slog.Debug("Truncated query for embedding", "originalLen", len(query), "truncatedLen", len(truncated))
	}

	vector, err := s.embedder.Embed(ctx, truncated)
	if err != nil {
		slog.Error("Failed to embed query for knowledge search", "error", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector)

	// certainty is requested instead of distance because it is always [0,1]
	// regardless of the distance metric.
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "title"},
		{Name: "source"},
		{Name: "source_class"},
		{Name: "doc_type"},
		{Name: "specialty"},
		{Name: "keywords"},
		{Name: "url"},
		{Name: "doi"},
		{Name: "authors"},
		{Name: "published_at"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	builder := s.client.GraphQL().Get().
		WithClassName(knowledgeClass).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit)

	if s.config.Specialty != "" {
		builder = builder.WithWhere(filters.Where().
			WithPath([]string{"specialty"}).
			WithOperator(filters.Equal).
			WithValueString(s.config.Specialty))
	}

	result, err := builder.Do(ctx)
	if err != nil {
		slog.Error("Failed to search knowledge base", "error", err)
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[datatypes.KnowledgeQueryResponse](result)
	if err != nil {
		slog.Error("Failed to parse knowledge search results", "error", err)
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	hits := make([]datatypes.RawHit, 0, len(parsed.Get.MedicalDocument))
	for _, doc := range parsed.Get.MedicalDocument {
		var similarity float64
		if doc.Additional.Certainty != nil {
			similarity = float64(*doc.Additional.Certainty)
		}
		var publishedAt time.Time
		if doc.PublishedAt > 0 {
			publishedAt = time.Unix(doc.PublishedAt, 0)
		}
		hits = append(hits, datatypes.RawHit{
			Content:     doc.Content,
			Title:       doc.Title,
			Source:      doc.Source,
			SourceClass: doc.SourceClass,
			DocType:     doc.DocType,
			Specialty:   doc.Specialty,
			Keywords:    doc.Keywords,
			URL:         doc.URL,
			DOI:         doc.DOI,
			Authors:     doc.Authors,
			PublishedAt: publishedAt,
			Similarity:  similarity,
		})
	}

	slog.Debug("Knowledge search completed", "query_len", len(query), "hits", len(hits))
	return hits, nil
}
