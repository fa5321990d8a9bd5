//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package store holds the in-memory, append-only document corpus.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trpc.group/trpc-go/hybridrag/document"
	"trpc.group/trpc-go/hybridrag/embedder"
	"trpc.group/trpc-go/hybridrag/log"
	"trpc.group/trpc-go/hybridrag/store/sink"
)

var (
	// ErrEmbedderNotConfigured is returned by Add when no embedder is set.
	ErrEmbedderNotConfigured = errors.New("embedder not configured")
	// ErrEmptyContent is returned by Add for empty content.
	ErrEmptyContent = errors.New("content cannot be empty")
	// ErrEmbeddingFailure is returned by Add when the provider cannot
	// vectorize the content. The document is not added; there are no
	// partial writes.
	ErrEmbeddingFailure = errors.New("embedding generation failed")
)

// Predicate selects documents by structural metadata. Zero-valued fields
// match everything.
type Predicate struct {
	// Namespaces restricts results to documents in any of the given
	// namespaces. Empty means all namespaces.
	Namespaces []document.Namespace

	// UserID restricts results to documents owned by the given user.
	UserID string

	// Department restricts results to documents scoped to the given
	// department.
	Department string
}

// matches reports whether the document satisfies the predicate.
func (p Predicate) matches(doc *document.Document) bool {
	if len(p.Namespaces) > 0 {
		found := false
		for _, ns := range p.Namespaces {
			if doc.Metadata.Namespace == ns {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if p.UserID != "" && doc.Metadata.UserID != p.UserID {
		return false
	}
	if p.Department != "" && doc.Metadata.Department != p.Department {
		return false
	}
	return true
}

// Stats aggregates corpus counts for observability.
type Stats struct {
	// Total is the number of documents in the corpus.
	Total int `json:"total"`

	// ByNamespace counts documents per namespace.
	ByNamespace map[document.Namespace]int `json:"byNamespace"`

	// ByType counts documents per content type.
	ByType map[document.Type]int `json:"byType"`

	// ByAccessLevel counts documents per access level; documents without a
	// level count as public.
	ByAccessLevel map[document.AccessLevel]int `json:"byAccessLevel"`
}

// Store is the append-only document collection. Writers only append, so
// concurrent readers never observe a torn document; candidate sets handed
// out by Query are point-in-time snapshots.
type Store struct {
	mu   sync.RWMutex
	docs []*document.Document
	byID map[string]*document.Document

	embedder embedder.Embedder
	sinks    *sink.FanOut
}

// Option represents a functional option for configuring the Store.
type Option func(*Store)

// WithEmbedder sets the embedding provider used by Add.
func WithEmbedder(e embedder.Embedder) Option {
	return func(s *Store) {
		s.embedder = e
	}
}

// WithSinks sets the durable sinks receiving fire-and-forget replication.
func WithSinks(sinks *sink.FanOut) Option {
	return func(s *Store) {
		s.sinks = sinks
	}
}

// New creates an empty store with the given options.
func New(opts ...Option) *Store {
	s := &Store{
		byID:  make(map[string]*document.Document),
		sinks: sink.NewFanOut(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads previously replicated documents from the durable sinks into
// the corpus. Documents already present are kept; sink copies with duplicate
// IDs are skipped.
func (s *Store) Restore(ctx context.Context) int {
	loaded := s.sinks.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for _, doc := range loaded {
		if doc.ID == "" {
			continue
		}
		if _, ok := s.byID[doc.ID]; ok {
			continue
		}
		if err := doc.Metadata.Validate(); err != nil {
			log.Warnf("skipping restored document %s: %v", doc.ID, err)
			continue
		}
		s.docs = append(s.docs, doc)
		s.byID[doc.ID] = doc
		restored++
	}
	if restored > 0 {
		log.Infof("restored %d document(s) from durable storage", restored)
	}
	return restored
}

// Add embeds the content, assigns ID and timestamp, and appends the document.
// The embedding is generated synchronously before the document becomes
// visible to search; on provider failure nothing is stored and the error
// wraps ErrEmbeddingFailure.
func (s *Store) Add(ctx context.Context, content string, meta document.Metadata) (string, error) {
	if content == "" {
		return "", ErrEmptyContent
	}
	if s.embedder == nil {
		return "", ErrEmbedderNotConfigured
	}
	if err := meta.Validate(); err != nil {
		return "", err
	}

	embedding, err := s.embedder.GetEmbedding(ctx, content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	if len(embedding) == 0 {
		return "", fmt.Errorf("%w: provider returned empty vector", ErrEmbeddingFailure)
	}

	meta.Timestamp = time.Now().UTC()
	doc := &document.Document{
		ID:        document.NewID(meta.Namespace),
		Content:   content,
		Embedding: embedding,
		Metadata:  meta,
	}

	s.mu.Lock()
	s.docs = append(s.docs, doc)
	s.byID[doc.ID] = doc
	s.mu.Unlock()

	// Best-effort replication; sink unavailability must not block the add.
	go s.sinks.Save(context.WithoutCancel(ctx), doc)

	log.Debugf("document added to %s: %s", meta.Namespace, doc.ID)
	return doc.ID, nil
}

// Query returns all documents matching the predicate in insertion order.
// The returned documents are shared with the store and must be treated as
// immutable.
func (s *Store) Query(pred Predicate) []*document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*document.Document
	for _, doc := range s.docs {
		if pred.matches(doc) {
			matched = append(matched, doc)
		}
	}
	return matched
}

// QueryNamespaces returns all documents in any of the given namespaces in
// insertion order. It is shorthand for Query with a namespace-only predicate.
func (s *Store) QueryNamespaces(namespaces []document.Namespace) []*document.Document {
	return s.Query(Predicate{Namespaces: namespaces})
}

// Get returns the document with the given ID, or nil if absent.
func (s *Store) Get(id string) *document.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// Count returns the number of documents in the corpus.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Stats aggregates corpus counts by namespace, type and access level.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Total:         len(s.docs),
		ByNamespace:   make(map[document.Namespace]int),
		ByType:        make(map[document.Type]int),
		ByAccessLevel: make(map[document.AccessLevel]int),
	}
	for _, doc := range s.docs {
		stats.ByNamespace[doc.Metadata.Namespace]++
		stats.ByType[doc.Metadata.Type]++
		level := doc.Metadata.AccessLevel
		if level == "" {
			level = document.AccessPublic
		}
		stats.ByAccessLevel[level]++
	}
	return stats
}

// Cleanup removes documents older than maxAge and returns the removed count.
// This is the only deletion path; individual documents are never removed.
func (s *Store) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.docs[:0]
	removed := 0
	for _, doc := range s.docs {
		if doc.Metadata.Timestamp.After(cutoff) {
			kept = append(kept, doc)
			continue
		}
		delete(s.byID, doc.ID)
		removed++
	}
	s.docs = kept

	if removed > 0 {
		log.Infof("retention sweep removed %d document(s) older than %s", removed, maxAge)
	}
	return removed
}

// Close releases sink resources.
func (s *Store) Close() error {
	return s.sinks.Close()
}
