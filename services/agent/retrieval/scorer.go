// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval turns raw vector-store hits into confidence-scored,
// threshold-filtered document sets, and provides the Weaviate-backed
// knowledge source and a short-lived result cache in front of it.
package retrieval

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/MeridianCare/MeridianAgent/services/agent/datatypes"
	"github.com/MeridianCare/MeridianAgent/services/agent/policy"
)

// Component weights of the confidence formula. They sum to 1.0 so a
// perfect hit scores exactly 1.0.
const (
	weightSimilarity  = 0.40
	weightReliability = 0.20
	weightDocType     = 0.15
	weightRecency     = 0.10
	weightRelevance   = 0.10
	weightCitation    = 0.05
)

// Recency decays stepwise with publication age rather than continuously;
// medical guidance does not lose value smoothly, it gets superseded.
const (
	recencyFresh   = 1.0  // published within a year
	recencyRecent  = 0.9  // within three years
	recencyAging   = 0.75 // within five years
	recencyOld     = 0.6  // within ten years
	recencyStale   = 0.4  // older than ten years
	recencyUnknown = 0.5  // no publication date
)

// Scorer computes retrieval confidence for raw hits against a query.
type Scorer struct {
	cfg policy.Config
	now func() time.Time
}

func NewScorer(cfg policy.Config) *Scorer {
	return &Scorer{cfg: cfg, now: time.Now}
}

// Score computes the confidence of a single hit for a query.
//
// # Description
//
// The score is a fixed-weight linear blend of six components: vector
// similarity, source reliability, document-type weight, recency, lexical
// query relevance, and citation completeness. Every component lives in
// [0, 1], so the blend does too.
func (s *Scorer) Score(query string, hit datatypes.RawHit) float64 {
	raw := weightSimilarity*clamp01(hit.Similarity) +
		weightReliability*s.cfg.ReliabilityFor(hit.SourceClass) +
		weightDocType*s.cfg.DocTypeWeightFor(hit.DocType) +
		weightRecency*s.recency(hit.PublishedAt) +
		weightRelevance*queryRelevance(query, hit) +
		weightCitation*citationQuality(hit)
	// Quantized to six decimals so equal-scoring documents compare equal
	// and the reliability/recency tie-breaks are actually reachable.
	return math.Round(raw*1e6) / 1e6
}

// ScoreAll scores, filters and orders a batch of hits into a RetrievalSet.
//
// # Description
//
// Hits below the configured confidence threshold are dropped unless
// includeLowConfidence is set (used when the caller would rather present
// weak evidence than none). Documents are ordered by confidence
// descending; ties break on reliability, then recency, so the ordering is
// stable across runs regardless of input order.
func (s *Scorer) ScoreAll(query string, hits []datatypes.RawHit, includeLowConfidence bool) datatypes.RetrievalSet {
	type scoredHit struct {
		hit        datatypes.RawHit
		confidence float64
		recency    float64
	}

	scored := make([]scoredHit, 0, len(hits))
	for _, hit := range hits {
		confidence := s.Score(query, hit)
		if confidence < s.cfg.ConfidenceThreshold && !includeLowConfidence {
			continue
		}
		scored = append(scored, scoredHit{hit: hit, confidence: confidence, recency: s.recency(hit.PublishedAt)})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].confidence != scored[j].confidence {
			return scored[i].confidence > scored[j].confidence
		}
		ri := s.cfg.ReliabilityFor(scored[i].hit.SourceClass)
		rj := s.cfg.ReliabilityFor(scored[j].hit.SourceClass)
		if ri != rj {
			return ri > rj
		}
		return scored[i].recency > scored[j].recency
	})

	set := datatypes.RetrievalSet{
		Documents: make([]datatypes.ScoredDocument, 0, len(scored)),
		Citations: make([]datatypes.Citation, 0, len(scored)),
	}
	for _, sh := range scored {
		set.Documents = append(set.Documents, datatypes.ScoredDocument{
			Content:     sh.hit.Content,
			Source:      sh.hit.Source,
			Confidence:  sh.confidence,
			Reliability: s.cfg.ReliabilityFor(sh.hit.SourceClass),
			Recency:     sh.recency,
		})
		set.Citations = append(set.Citations, datatypes.Citation{
			Title:          sh.hit.Title,
			Source:         sh.hit.Source,
			URL:            sh.hit.URL,
			Authors:        sh.hit.Authors,
			RelevanceScore: sh.confidence,
		})
	}
	return set
}

func (s *Scorer) recency(publishedAt time.Time) float64 {
	if publishedAt.IsZero() {
		return recencyUnknown
	}
	age := s.now().Sub(publishedAt)
	switch {
	case age <= 365*24*time.Hour:
		return recencyFresh
	case age <= 3*365*24*time.Hour:
		return recencyRecent
	case age <= 5*365*24*time.Hour:
		return recencyAging
	case age <= 10*365*24*time.Hour:
		return recencyOld
	default:
		return recencyStale
	}
}

// queryRelevance measures lexical overlap between the query tokens and the
// hit's title, specialty and keywords. It complements vector similarity
// with an exact-term signal that embeddings sometimes smear.
func queryRelevance(query string, hit datatypes.RawHit) float64 {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return 0
	}

	haystack := strings.ToLower(hit.Title + " " + hit.Specialty + " " + strings.Join(hit.Keywords, " "))
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

// citationQuality rewards hits that carry full provenance. A DOI counts
// double since it pins the exact publication.
func citationQuality(hit datatypes.RawHit) float64 {
	quality := 0.0
	if hit.DOI != "" {
		quality += 0.5
	}
	if len(hit.Authors) > 0 {
		quality += 0.25
	}
	if !hit.PublishedAt.IsZero() {
		quality += 0.25
	}
	return quality
}

// stopwords excluded from relevance tokenization.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "on": true,
	"for": true, "to": true, "and": true, "or": true, "is": true, "are": true,
	"what": true, "how": true, "why": true, "my": true, "i": true, "me": true,
	"do": true, "does": true, "can": true, "about": true, "with": true,
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "?!.,;:\"'")
		if len(f) < 3 || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
