//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package search ranks candidate documents against a query vector by cosine
// similarity.
package search

import (
	"math"
	"sort"

	"trpc.group/trpc-go/hybridrag/document"
)

// defaultLimit is the maximum number of results when the caller does not
// specify a positive limit.
const defaultLimit = 10

// ScoredDocument pairs a document with its similarity to the query vector.
type ScoredDocument struct {
	// Document is the matched document.
	Document *document.Document

	// Similarity is the cosine similarity (0.0 to 1.0, higher is more similar).
	Similarity float64
}

// Cosine calculates the cosine similarity between two vectors.
// Similarity is defined as 0 when the vectors differ in dimension or when
// either vector has zero magnitude; both are policy, not errors.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := 0; i < len(a); i++ {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores the candidates against the query vector and returns the ranked
// results.
//
// Candidates without an embedding, or whose embedding dimension differs from
// the query vector, are silently excluded (treated as non-comparable). Results
// below threshold are dropped. Ordering is deterministic: similarity
// descending, then timestamp descending, then ID ascending. The output never
// exceeds limit and is always a subsequence of the thresholded candidates.
func Rank(queryVector []float64, candidates []*document.Document, threshold float64, limit int) []*ScoredDocument {
	if limit <= 0 {
		limit = defaultLimit
	}

	results := make([]*ScoredDocument, 0, len(candidates))
	for _, doc := range candidates {
		if len(doc.Embedding) == 0 || len(doc.Embedding) != len(queryVector) {
			continue
		}
		similarity := Cosine(queryVector, doc.Embedding)
		if similarity >= threshold {
			results = append(results, &ScoredDocument{
				Document:   doc,
				Similarity: similarity,
			})
		}
	}

	sortRanked(results)

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// sortRanked orders results by similarity descending, breaking ties by
// document recency and then by ID for determinism.
func sortRanked(results []*ScoredDocument) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		ti := results[i].Document.Metadata.Timestamp
		tj := results[j].Document.Metadata.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return results[i].Document.ID < results[j].Document.ID
	})
}
