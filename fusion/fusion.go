//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package fusion merges similarity results from several namespace groups into
// one weighted ranking.
//
// Each group is searched independently with its own threshold, limit and
// weight; a group's relevance contribution is similarity multiplied by the
// group weight. Groups fail independently: a failing group contributes zero
// results and is recorded in the outcome, it never aborts the fused search.
package fusion

import (
	"context"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/hybridrag/access"
	"trpc.group/trpc-go/hybridrag/document"
	"trpc.group/trpc-go/hybridrag/log"
	"trpc.group/trpc-go/hybridrag/search"
)

const (
	// defaultParallelism bounds concurrent group searches.
	defaultParallelism = 4
	// defaultLimit is the fused result cap when the caller passes limit <= 0.
	defaultLimit = 10
)

// GroupSpec describes one namespace group participating in a fused search.
type GroupSpec struct {
	// Name identifies the group in stats and failure records.
	Name string

	// Namespaces are the store namespaces searched for this group.
	Namespaces []document.Namespace

	// Weight scales the group's similarities into relevance scores. A zero
	// weight still fetches the group's documents but ranks them at the
	// bottom.
	Weight float64

	// Threshold is the minimum similarity within the group.
	Threshold float64

	// Limit caps the results the group contributes before fusion.
	Limit int

	// MediaTypes, when set, restricts candidates to documents whose media
	// type is in the set. Documents without a media type always pass.
	MediaTypes []document.MediaType
}

// allowsMedia reports whether the document passes the group's media-type
// restriction.
func (g GroupSpec) allowsMedia(doc *document.Document) bool {
	if len(g.MediaTypes) == 0 || doc.Metadata.MediaType == "" {
		return true
	}
	for _, mt := range g.MediaTypes {
		if doc.Metadata.MediaType == mt {
			return true
		}
	}
	return false
}

// Result is one fused search hit.
type Result struct {
	// Document is the matched document.
	Document *document.Document `json:"document"`

	// Similarity is the raw cosine similarity within the group.
	Similarity float64 `json:"similarity"`

	// Relevance is Similarity scaled by the group weight; fused ordering is
	// by Relevance.
	Relevance float64 `json:"relevanceScore"`

	// Group names the group that contributed the hit.
	Group string `json:"group"`
}

// GroupFailure records a group whose search failed.
type GroupFailure struct {
	// Group is the failed group's name.
	Group string

	// Err is the failure cause.
	Err error
}

// Outcome is the merged product of a fused search.
type Outcome struct {
	// Results are the fused hits, relevance descending, capped at the overall
	// limit.
	Results []*Result

	// GroupCounts maps each searched group to the number of hits it
	// contributed before fusion truncation.
	GroupCounts map[string]int

	// Failures lists groups whose searches failed.
	Failures []GroupFailure
}

// Searcher produces the ranked hits of a single group.
type Searcher interface {
	Search(ctx context.Context, queryVector []float64, spec GroupSpec,
		requester access.Requester) ([]*search.ScoredDocument, error)
}

// CandidateSource yields the raw candidate documents of a namespace set.
// *store.Store satisfies it.
type CandidateSource interface {
	QueryNamespaces(namespaces []document.Namespace) []*document.Document
}

// storeSearcher runs the access filter and similarity ranking over a
// candidate source.
type storeSearcher struct {
	source CandidateSource
}

// NewStoreSearcher creates a Searcher over the given candidate source.
func NewStoreSearcher(source CandidateSource) Searcher {
	return &storeSearcher{source: source}
}

// Search implements Searcher. Access filtering runs before scoring so the
// threshold and limit operate on the visible pool only.
func (s *storeSearcher) Search(ctx context.Context, queryVector []float64,
	spec GroupSpec, requester access.Requester) ([]*search.ScoredDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	candidates := s.source.QueryNamespaces(spec.Namespaces)
	if len(spec.MediaTypes) > 0 {
		kept := make([]*document.Document, 0, len(candidates))
		for _, doc := range candidates {
			if spec.allowsMedia(doc) {
				kept = append(kept, doc)
			}
		}
		candidates = kept
	}
	visible := access.Filter(candidates, requester)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return search.Rank(queryVector, visible, spec.Threshold, spec.Limit), nil
}

// Fuser fans group searches out over a bounded worker pool and merges the
// weighted results.
type Fuser struct {
	searcher    Searcher
	parallelism int
}

// Option represents a functional option for configuring the Fuser.
type Option func(*Fuser)

// WithParallelism bounds the number of concurrently searched groups.
func WithParallelism(n int) Option {
	return func(f *Fuser) {
		if n > 0 {
			f.parallelism = n
		}
	}
}

// New creates a Fuser over the given group searcher.
func New(searcher Searcher, opts ...Option) *Fuser {
	f := &Fuser{
		searcher:    searcher,
		parallelism: defaultParallelism,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fuse searches every group concurrently and merges the results into one
// relevance-ordered list capped at limit. Per-group failures are recorded in
// the outcome; Fuse itself only fails when the worker pool cannot be built.
func (f *Fuser) Fuse(ctx context.Context, queryVector []float64, groups []GroupSpec,
	requester access.Requester, limit int) (*Outcome, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	outcome := &Outcome{
		GroupCounts: make(map[string]int, len(groups)),
	}
	if len(groups) == 0 {
		return outcome, nil
	}

	pool, err := ants.NewPool(f.parallelism)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var wg sync.WaitGroup
	var mu sync.Mutex
	pending := make(map[string]bool, len(groups))
	for _, g := range groups {
		pending[g.Name] = true
	}
	for _, g := range groups {
		wg.Add(1)
		spec := g
		submitErr := pool.Submit(func() {
			defer wg.Done()
			hits, err := f.searcher.Search(ctx, queryVector, spec, requester)
			mu.Lock()
			defer mu.Unlock()
			delete(pending, spec.Name)
			if err != nil {
				log.Warnf("group %s search failed: %v", spec.Name, err)
				outcome.Failures = append(outcome.Failures, GroupFailure{Group: spec.Name, Err: err})
				outcome.GroupCounts[spec.Name] = 0
				return
			}
			outcome.GroupCounts[spec.Name] = len(hits)
			for _, hit := range hits {
				outcome.Results = append(outcome.Results, &Result{
					Document:   hit.Document,
					Similarity: hit.Similarity,
					Relevance:  hit.Similarity * spec.Weight,
					Group:      spec.Name,
				})
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			delete(pending, spec.Name)
			outcome.Failures = append(outcome.Failures, GroupFailure{Group: spec.Name, Err: submitErr})
			outcome.GroupCounts[spec.Name] = 0
			mu.Unlock()
		}
	}

	// The wait races the context so one slow group cannot hold the whole
	// search past its deadline. Abandoned groups count as failures and their
	// goroutines write into the original outcome, so the merge works on a
	// snapshot taken under the lock.
	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
	}

	mu.Lock()
	for name := range pending {
		log.Warnf("group %s search abandoned: %v", name, ctx.Err())
		outcome.Failures = append(outcome.Failures, GroupFailure{Group: name, Err: ctx.Err()})
		outcome.GroupCounts[name] = 0
	}
	merged := &Outcome{
		Results:     append([]*Result(nil), outcome.Results...),
		GroupCounts: make(map[string]int, len(outcome.GroupCounts)),
		Failures:    append([]GroupFailure(nil), outcome.Failures...),
	}
	for name, count := range outcome.GroupCounts {
		merged.GroupCounts[name] = count
	}
	mu.Unlock()

	sortFused(merged.Results)
	if len(merged.Results) > limit {
		merged.Results = merged.Results[:limit]
	}
	return merged, nil
}

// sortFused orders fused results by relevance descending, breaking ties by
// document recency and then by ID for determinism.
func sortFused(results []*Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Relevance != results[j].Relevance {
			return results[i].Relevance > results[j].Relevance
		}
		ti := results[i].Document.Metadata.Timestamp
		tj := results[j].Document.Metadata.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return results[i].Document.ID < results[j].Document.ID
	})
}
