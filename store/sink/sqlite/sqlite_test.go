//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"trpc.group/trpc-go/hybridrag/document"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testDoc(id string, ts time.Time) *document.Document {
	return &document.Document{
		ID:        id,
		Content:   "pump pressure anomaly",
		Embedding: []float64{0.1, 0.2},
		Metadata: document.Metadata{
			Namespace: document.NamespaceLogs,
			Type:      document.TypeLog,
			Timestamp: ts,
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(openDB(t))
	require.NoError(t, err)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(ctx, testDoc("logs_2", base.Add(time.Hour))))
	require.NoError(t, s.Save(ctx, testDoc("logs_1", base)))

	docs, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	// Load returns documents in timestamp order.
	assert.Equal(t, "logs_1", docs[0].ID)
	assert.Equal(t, "logs_2", docs[1].ID)
	assert.Equal(t, []float64{0.1, 0.2}, docs[0].Embedding)
}

func TestSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := New(openDB(t))
	require.NoError(t, err)

	doc := testDoc("logs_1", time.Now().UTC())
	require.NoError(t, s.Save(ctx, doc))
	require.NoError(t, s.Save(ctx, doc))

	docs, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestNewRejectsNilDB(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}
