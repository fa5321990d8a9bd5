//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

package hybrid

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/hybridrag/access"
	"trpc.group/trpc-go/hybridrag/document"
	"trpc.group/trpc-go/hybridrag/fusion"
)

// mockEmbedder returns a fixed query vector, or fails when broken.
type mockEmbedder struct {
	vector []float64
	broken bool
}

func (m *mockEmbedder) GetEmbedding(ctx context.Context, text string) ([]float64, error) {
	if m.broken {
		return nil, errors.New("provider unavailable")
	}
	return m.vector, nil
}

func (m *mockEmbedder) GetDimensions() int {
	return len(m.vector)
}

// corpus is a namespace-aware CandidateSource over a fixed document set.
type corpus []*document.Document

func (c corpus) QueryNamespaces(namespaces []document.Namespace) []*document.Document {
	var matched []*document.Document
	for _, doc := range c {
		for _, ns := range namespaces {
			if doc.Metadata.Namespace == ns {
				matched = append(matched, doc)
				break
			}
		}
	}
	return matched
}

func doc(id string, ns document.Namespace, embedding []float64) *document.Document {
	return &document.Document{
		ID:        id,
		Content:   "content of " + id,
		Embedding: embedding,
		Metadata: document.Metadata{
			Namespace: ns,
			Type:      document.TypeLog,
			Timestamp: time.Unix(0, 0).UTC(),
		},
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, m)

	m, err = ParseMode("logs")
	require.NoError(t, err)
	assert.Equal(t, ModeLogs, m)

	_, err = ParseMode("archive")
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestSearchEmptyQuery(t *testing.T) {
	e := New(&mockEmbedder{vector: []float64{1}}, corpus{})
	_, err := e.Search(context.Background(), "")
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchQueryEmbeddingFailure(t *testing.T) {
	e := New(&mockEmbedder{broken: true}, corpus{})
	_, err := e.Search(context.Background(), "pump failure")
	require.ErrorIs(t, err, ErrQueryEmbedding)
}

func TestSearchUnknownMode(t *testing.T) {
	e := New(&mockEmbedder{vector: []float64{1}}, corpus{})
	_, err := e.Search(context.Background(), "pump failure", WithMode("archive"))
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestSearchLogsModeScopesNamespaces(t *testing.T) {
	docs := corpus{
		doc("logs_1", document.NamespaceLogs, []float64{1, 0}),
		doc("kn_1", document.NamespaceKnowledge, []float64{1, 0}),
	}
	e := New(&mockEmbedder{vector: []float64{1, 0}}, docs)

	resp, err := e.Search(context.Background(), "pump failure", WithMode(ModeLogs))
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "logs_1", resp.Results[0].Document.ID)
	assert.Equal(t, ModeLogs, resp.Stats.Mode)
	assert.Equal(t, 1, resp.Stats.GroupResults["logs"])
}

func TestSearchHybridWeighting(t *testing.T) {
	// Identical embeddings: similarity 1.0 everywhere, so ordering is decided
	// purely by the group weights.
	docs := corpus{
		doc("logs_1", document.NamespaceLogs, []float64{1, 0}),
		doc("logs_2", document.NamespaceLogs, []float64{1, 0}),
		doc("kn_1", document.NamespaceKnowledge, []float64{1, 0}),
	}
	e := New(&mockEmbedder{vector: []float64{1, 0}}, docs)

	resp, err := e.Search(context.Background(), "pump failure",
		WithMode(ModeHybrid),
		WithWeights(1.0, 0.3, 1.1),
		WithIncludeInternal(false),
	)
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, document.NamespaceLogs, resp.Results[0].Document.Metadata.Namespace)
	assert.Equal(t, document.NamespaceLogs, resp.Results[1].Document.Metadata.Namespace)
	assert.Equal(t, "kn_1", resp.Results[2].Document.ID)
	assert.InDelta(t, 1.0, resp.Results[0].Relevance, 1e-9)
	assert.InDelta(t, 0.3, resp.Results[2].Relevance, 1e-9)
}

func TestSearchUserScoping(t *testing.T) {
	private := doc("logs_private", document.NamespaceLogs, []float64{1, 0})
	private.Metadata.UserID = "alice"
	e := New(&mockEmbedder{vector: []float64{1, 0}}, corpus{private})

	resp, err := e.Search(context.Background(), "pump failure",
		WithMode(ModeLogs),
		WithRequester(access.Requester{UserID: "bob"}),
	)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.Stats.HasResults)
}

func TestSearchAccessLevelGate(t *testing.T) {
	restricted := doc("sec_1", document.NamespaceSecurity, []float64{1, 0})
	restricted.Metadata.AccessLevel = document.AccessRestricted
	e := New(&mockEmbedder{vector: []float64{1, 0}}, corpus{restricted})

	resp, err := e.Search(context.Background(), "incident report",
		WithMode(ModeSecurity),
		WithRequester(access.Requester{Level: document.AccessInternal}),
	)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	resp, err = e.Search(context.Background(), "incident report",
		WithMode(ModeSecurity),
		WithRequester(access.Requester{Level: document.AccessRestricted}),
	)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "sec_1", resp.Results[0].Document.ID)
}

func TestSearchHighThresholdYieldsEmptyNotError(t *testing.T) {
	// Orthogonal embedding scores 0 against the query.
	docs := corpus{doc("logs_1", document.NamespaceLogs, []float64{0, 1})}
	e := New(&mockEmbedder{vector: []float64{1, 0}}, docs)

	resp, err := e.Search(context.Background(), "pump failure",
		WithMode(ModeLogs), WithThreshold(0.95))
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.False(t, resp.Stats.HasResults)
	assert.Equal(t, 0, resp.Stats.TotalResults)
}

func TestSearchInternalMediaTypeFilter(t *testing.T) {
	video := doc("int_video", document.NamespaceInternal, []float64{1, 0})
	video.Metadata.MediaType = document.MediaVideo
	text := doc("int_text", document.NamespaceInternal, []float64{1, 0})
	text.Metadata.MediaType = document.MediaText
	e := New(&mockEmbedder{vector: []float64{1, 0}}, corpus{video, text})

	resp, err := e.Search(context.Background(), "repair procedure",
		WithMode(ModeInternal),
		WithMediaTypes(document.MediaText),
	)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "int_text", resp.Results[0].Document.ID)
}

func TestSearchSummaryFallback(t *testing.T) {
	docs := corpus{doc("logs_1", document.NamespaceLogs, []float64{1, 0})}
	e := New(&mockEmbedder{vector: []float64{1, 0}}, docs)

	resp, err := e.Search(context.Background(), "pump failure",
		WithMode(ModeLogs), WithSummary())
	require.NoError(t, err)
	assert.Contains(t, resp.Summary, "1 result(s)")
	assert.Contains(t, resp.Summary, "logs")
}

// failingGenerator always errors.
type failingGenerator struct{}

func (failingGenerator) Summarize(ctx context.Context, query string, results []*fusion.Result) (string, error) {
	return "", errors.New("model unavailable")
}

func TestSearchSummaryGeneratorFailureDegrades(t *testing.T) {
	docs := corpus{doc("logs_1", document.NamespaceLogs, []float64{1, 0})}
	e := New(&mockEmbedder{vector: []float64{1, 0}}, docs,
		WithSummaryGenerator(failingGenerator{}))

	resp, err := e.Search(context.Background(), "pump failure",
		WithMode(ModeLogs), WithSummary())
	require.NoError(t, err)
	assert.Contains(t, resp.Summary, "1 result(s)")
}

func TestSearchUsesEngineDefaults(t *testing.T) {
	// Orthogonal-ish embedding scores ~0.7 against the query; the configured
	// threshold of 0.95 must apply without any per-call option.
	docs := corpus{doc("logs_1", document.NamespaceLogs, []float64{1, 1})}
	e := New(&mockEmbedder{vector: []float64{1, 0}}, docs,
		WithDefaults(Defaults{Threshold: 0.95}))

	resp, err := e.Search(context.Background(), "pump failure", WithMode(ModeLogs))
	require.NoError(t, err)
	assert.Empty(t, resp.Results)

	// A per-call threshold still overrides the configured default.
	resp, err = e.Search(context.Background(), "pump failure",
		WithMode(ModeLogs), WithThreshold(0.1))
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
}

func TestSearchDefaultLimitFromEngine(t *testing.T) {
	docs := corpus{
		doc("logs_1", document.NamespaceLogs, []float64{1, 0}),
		doc("logs_2", document.NamespaceLogs, []float64{1, 0}),
		doc("logs_3", document.NamespaceLogs, []float64{1, 0}),
	}
	e := New(&mockEmbedder{vector: []float64{1, 0}}, docs,
		WithDefaults(Defaults{Limit: 2}))

	resp, err := e.Search(context.Background(), "pump failure", WithMode(ModeLogs))
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestSearchDefaultWeightsFromEngine(t *testing.T) {
	docs := corpus{
		doc("logs_1", document.NamespaceLogs, []float64{1, 0}),
		doc("kn_1", document.NamespaceKnowledge, []float64{1, 0}),
	}
	// Inverted weights relative to the built-in defaults: knowledge must
	// outrank logs without any per-call weight option.
	e := New(&mockEmbedder{vector: []float64{1, 0}}, docs,
		WithDefaults(Defaults{LogWeight: 0.2, KnowledgeWeight: 0.9}))

	resp, err := e.Search(context.Background(), "pump failure",
		WithMode(ModeHybrid), WithIncludeInternal(false))
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "kn_1", resp.Results[0].Document.ID)
	assert.InDelta(t, 0.9, resp.Results[0].Relevance, 1e-9)
	assert.InDelta(t, 0.2, resp.Results[1].Relevance, 1e-9)
}

func TestSearchDefaultsBackfillZeroFields(t *testing.T) {
	docs := corpus{doc("int_1", document.NamespaceInternal, []float64{1, 0})}
	// Only the limit is configured; the internal threshold keeps its built-in
	// value and similarity 1.0 passes it.
	e := New(&mockEmbedder{vector: []float64{1, 0}}, docs,
		WithDefaults(Defaults{Limit: 5}))

	resp, err := e.Search(context.Background(), "repair procedure", WithMode(ModeInternal))
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "int_1", resp.Results[0].Document.ID)
}

func TestSearchStatsReportTiming(t *testing.T) {
	docs := corpus{doc("logs_1", document.NamespaceLogs, []float64{1, 0})}
	e := New(&mockEmbedder{vector: []float64{1, 0}}, docs)

	resp, err := e.Search(context.Background(), "pump failure", WithMode(ModeLogs))
	require.NoError(t, err)
	assert.True(t, resp.Stats.HasResults)
	assert.GreaterOrEqual(t, resp.Stats.SearchTime, time.Duration(0))
}
