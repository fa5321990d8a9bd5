//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package embedder provides interfaces and implementations for text embedding.
package embedder

import (
	"context"
)

// Embedder is the capability interface for embedding providers. The engine is
// provider-agnostic; the implementation is selected at construction time.
//
// Switching providers makes previously stored embeddings unsearchable against
// queries embedded by the new provider (dimension and semantic mismatch); this
// migration is a caller concern and is not handled here.
type Embedder interface {
	// GetEmbedding generates an embedding vector for the given text.
	//
	// Returns:
	// - A slice of float64 values representing the embedding
	// - An error for system-level failures (cannot communicate with the provider)
	//
	// The embedding slice may be empty for API-level errors.
	GetEmbedding(ctx context.Context, text string) ([]float64, error)

	// GetDimensions returns the dimensionality of the embeddings produced by
	// this embedder. Returns 0 if dimensions are not known or configurable.
	GetDimensions() int
}
