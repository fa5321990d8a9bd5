//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package sink defines best-effort durable replication for the document store.
//
// Sinks receive fire-and-forget copies of newly added documents. A sink being
// unavailable must never block or fail an add; failures are logged and
// otherwise absorbed.
package sink

import (
	"context"

	"trpc.group/trpc-go/hybridrag/document"
	"trpc.group/trpc-go/hybridrag/log"
)

// DurableSink replicates documents to a durable backend.
type DurableSink interface {
	// Name identifies the sink in logs.
	Name() string

	// Save persists one document. Implementations should be idempotent on
	// document ID; documents are immutable once created.
	Save(ctx context.Context, doc *document.Document) error

	// Load returns every document previously saved to this sink. Write-only
	// sinks return (nil, nil).
	Load(ctx context.Context) ([]*document.Document, error)

	// Close releases sink resources.
	Close() error
}

// FanOut composes zero or more sinks behind a single writer. Failures from
// any one sink are logged but never propagated.
type FanOut struct {
	sinks []DurableSink
}

// NewFanOut creates a fan-out writer over the given sinks.
func NewFanOut(sinks ...DurableSink) *FanOut {
	return &FanOut{sinks: sinks}
}

// Save replicates the document to every sink, best effort.
func (f *FanOut) Save(ctx context.Context, doc *document.Document) {
	for _, s := range f.sinks {
		if err := s.Save(ctx, doc); err != nil {
			log.Warnf("durable sink %s failed to save document %s: %v", s.Name(), doc.ID, err)
		}
	}
}

// Load merges the documents of every sink, deduplicated by ID. Sink load
// failures are logged and skipped.
func (f *FanOut) Load(ctx context.Context) []*document.Document {
	seen := make(map[string]struct{})
	var docs []*document.Document
	for _, s := range f.sinks {
		loaded, err := s.Load(ctx)
		if err != nil {
			log.Warnf("durable sink %s failed to load: %v", s.Name(), err)
			continue
		}
		for _, doc := range loaded {
			if _, ok := seen[doc.ID]; ok {
				continue
			}
			seen[doc.ID] = struct{}{}
			docs = append(docs, doc)
		}
	}
	return docs
}

// Close closes every sink, returning the first error encountered.
func (f *FanOut) Close() error {
	var firstErr error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
