//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

package fusion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/hybridrag/access"
	"trpc.group/trpc-go/hybridrag/document"
	"trpc.group/trpc-go/hybridrag/search"
)

// fakeSearcher serves canned hits per group and can fail selected groups.
type fakeSearcher struct {
	hits    map[string][]*search.ScoredDocument
	failing map[string]error
}

func (f *fakeSearcher) Search(ctx context.Context, queryVector []float64,
	spec GroupSpec, requester access.Requester) ([]*search.ScoredDocument, error) {
	if err, ok := f.failing[spec.Name]; ok {
		return nil, err
	}
	return f.hits[spec.Name], nil
}

func scored(id string, ns document.Namespace, similarity float64) *search.ScoredDocument {
	return &search.ScoredDocument{
		Document: &document.Document{
			ID: id,
			Metadata: document.Metadata{
				Namespace: ns,
				Timestamp: time.Unix(0, 0).UTC(),
			},
		},
		Similarity: similarity,
	}
}

func TestFuseAppliesWeights(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]*search.ScoredDocument{
		"logs":      {scored("logs_1", document.NamespaceLogs, 0.5)},
		"knowledge": {scored("kn_1", document.NamespaceKnowledge, 0.4)},
	}}
	f := New(searcher)

	outcome, err := f.Fuse(context.Background(), []float64{1}, []GroupSpec{
		{Name: "logs", Weight: 0.6},
		{Name: "knowledge", Weight: 1.1},
	}, access.Requester{}, 10)
	require.NoError(t, err)

	require.Len(t, outcome.Results, 2)
	// 0.4*1.1 = 0.44 outranks 0.5*0.6 = 0.30.
	assert.Equal(t, "kn_1", outcome.Results[0].Document.ID)
	assert.InDelta(t, 0.44, outcome.Results[0].Relevance, 1e-9)
	assert.Equal(t, 0.4, outcome.Results[0].Similarity)
	assert.Equal(t, "knowledge", outcome.Results[0].Group)
	assert.InDelta(t, 0.30, outcome.Results[1].Relevance, 1e-9)

	assert.Equal(t, 1, outcome.GroupCounts["logs"])
	assert.Equal(t, 1, outcome.GroupCounts["knowledge"])
	assert.Empty(t, outcome.Failures)
}

func TestFuseZeroWeightRanksBottom(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]*search.ScoredDocument{
		"logs":      {scored("logs_1", document.NamespaceLogs, 0.9)},
		"knowledge": {scored("kn_1", document.NamespaceKnowledge, 0.4)},
	}}
	f := New(searcher)

	outcome, err := f.Fuse(context.Background(), []float64{1}, []GroupSpec{
		{Name: "logs", Weight: 0},
		{Name: "knowledge", Weight: 1.0},
	}, access.Requester{}, 10)
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)
	// The zero-weight group is still fetched but scores zero.
	assert.Equal(t, "kn_1", outcome.Results[0].Document.ID)
	assert.Equal(t, "logs_1", outcome.Results[1].Document.ID)
	assert.Equal(t, 0.0, outcome.Results[1].Relevance)
	assert.Equal(t, 0.9, outcome.Results[1].Similarity)
}

func TestFuseIsolatesGroupFailures(t *testing.T) {
	searcher := &fakeSearcher{
		hits: map[string][]*search.ScoredDocument{
			"logs": {scored("logs_1", document.NamespaceLogs, 0.9)},
		},
		failing: map[string]error{
			"knowledge": errors.New("backend down"),
		},
	}
	f := New(searcher)

	outcome, err := f.Fuse(context.Background(), []float64{1}, []GroupSpec{
		{Name: "logs", Weight: 1.0},
		{Name: "knowledge", Weight: 1.0},
	}, access.Requester{}, 10)
	require.NoError(t, err)

	require.Len(t, outcome.Results, 1)
	assert.Equal(t, "logs_1", outcome.Results[0].Document.ID)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, "knowledge", outcome.Failures[0].Group)
	assert.Equal(t, 0, outcome.GroupCounts["knowledge"])
}

func TestFuseTruncatesToLimit(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]*search.ScoredDocument{
		"logs": {
			scored("logs_1", document.NamespaceLogs, 0.9),
			scored("logs_2", document.NamespaceLogs, 0.8),
			scored("logs_3", document.NamespaceLogs, 0.7),
		},
	}}
	f := New(searcher)

	outcome, err := f.Fuse(context.Background(), []float64{1},
		[]GroupSpec{{Name: "logs", Weight: 1.0}}, access.Requester{}, 2)
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)
	assert.Equal(t, "logs_1", outcome.Results[0].Document.ID)
	assert.Equal(t, "logs_2", outcome.Results[1].Document.ID)
	// The pre-truncation contribution is still visible in the counts.
	assert.Equal(t, 3, outcome.GroupCounts["logs"])
}

func TestFuseDeterministicTieBreak(t *testing.T) {
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	a := scored("logs_a", document.NamespaceLogs, 0.5)
	b := scored("logs_b", document.NamespaceLogs, 0.5)
	a.Document.Metadata.Timestamp = ts
	b.Document.Metadata.Timestamp = ts
	searcher := &fakeSearcher{hits: map[string][]*search.ScoredDocument{
		"logs": {b, a},
	}}
	f := New(searcher)

	outcome, err := f.Fuse(context.Background(), []float64{1},
		[]GroupSpec{{Name: "logs", Weight: 1.0}}, access.Requester{}, 10)
	require.NoError(t, err)
	require.Len(t, outcome.Results, 2)
	assert.Equal(t, "logs_a", outcome.Results[0].Document.ID)
	assert.Equal(t, "logs_b", outcome.Results[1].Document.ID)
}

func TestFuseEmptyGroups(t *testing.T) {
	f := New(&fakeSearcher{})
	outcome, err := f.Fuse(context.Background(), []float64{1}, nil, access.Requester{}, 10)
	require.NoError(t, err)
	assert.Empty(t, outcome.Results)
	assert.Empty(t, outcome.Failures)
}

func TestStoreSearcherFiltersBeforeRanking(t *testing.T) {
	docs := []*document.Document{
		{
			ID:        "sec_1",
			Embedding: []float64{1, 0},
			Metadata: document.Metadata{
				Namespace:   document.NamespaceSecurity,
				AccessLevel: document.AccessRestricted,
			},
		},
		{
			ID:        "sec_2",
			Embedding: []float64{1, 0},
			Metadata: document.Metadata{
				Namespace: document.NamespaceSecurity,
			},
		},
	}
	searcher := NewStoreSearcher(staticSource(docs))

	hits, err := searcher.Search(context.Background(), []float64{1, 0},
		GroupSpec{Name: "security", Namespaces: []document.Namespace{document.NamespaceSecurity}},
		access.Requester{Level: document.AccessPublic})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "sec_2", hits[0].Document.ID)
}

// slowGroupSearcher blocks the named group until the context expires.
type slowGroupSearcher struct {
	fakeSearcher
	slow string
}

func (s *slowGroupSearcher) Search(ctx context.Context, queryVector []float64,
	spec GroupSpec, requester access.Requester) ([]*search.ScoredDocument, error) {
	if spec.Name == s.slow {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.fakeSearcher.Search(ctx, queryVector, spec, requester)
}

func TestFuseAbandonsSlowGroupOnTimeout(t *testing.T) {
	searcher := &slowGroupSearcher{
		fakeSearcher: fakeSearcher{hits: map[string][]*search.ScoredDocument{
			"logs": {scored("logs_1", document.NamespaceLogs, 0.9)},
		}},
		slow: "knowledge",
	}
	f := New(searcher)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	outcome, err := f.Fuse(ctx, []float64{1}, []GroupSpec{
		{Name: "logs", Weight: 1.0},
		{Name: "knowledge", Weight: 1.0},
	}, access.Requester{}, 10)
	require.NoError(t, err)
	// The fast group's hits survive and the slow group is reported as a
	// failure without holding the call past the deadline.
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, outcome.Results, 1)
	assert.Equal(t, "logs_1", outcome.Results[0].Document.ID)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, "knowledge", outcome.Failures[0].Group)
	assert.ErrorIs(t, outcome.Failures[0].Err, context.DeadlineExceeded)
	assert.Equal(t, 0, outcome.GroupCounts["knowledge"])
}

func TestStoreSearcherHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	searcher := NewStoreSearcher(staticSource(nil))
	_, err := searcher.Search(ctx, []float64{1}, GroupSpec{Name: "logs"}, access.Requester{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStoreSearcherStopsWhenCancelledMidSearch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &cancellingSource{cancel: cancel, docs: []*document.Document{
		{
			ID:        "logs_1",
			Embedding: []float64{1, 0},
			Metadata:  document.Metadata{Namespace: document.NamespaceLogs},
		},
	}}

	searcher := NewStoreSearcher(src)
	_, err := searcher.Search(ctx, []float64{1, 0},
		GroupSpec{Name: "logs", Namespaces: []document.Namespace{document.NamespaceLogs}},
		access.Requester{})
	require.ErrorIs(t, err, context.Canceled)
}

// staticSource is a CandidateSource over a fixed slice.
type staticSource []*document.Document

func (s staticSource) QueryNamespaces(namespaces []document.Namespace) []*document.Document {
	return s
}

// cancellingSource cancels its context while producing candidates, so ranking
// must not run.
type cancellingSource struct {
	cancel context.CancelFunc
	docs   []*document.Document
}

func (s *cancellingSource) QueryNamespaces(namespaces []document.Namespace) []*document.Document {
	s.cancel()
	return s.docs
}
