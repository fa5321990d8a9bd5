//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides a SQLite-backed durable sink.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"trpc.group/trpc-go/hybridrag/document"
	"trpc.group/trpc-go/hybridrag/store/sink"
)

// Verify that Sink implements the sink.DurableSink interface.
var _ sink.DurableSink = (*Sink)(nil)

const (
	sqliteCreateDocuments = "CREATE TABLE IF NOT EXISTS documents (" +
		"id TEXT NOT NULL, " +
		"namespace TEXT NOT NULL, " +
		"ts INTEGER NOT NULL, " +
		"document_json BLOB NOT NULL, " +
		"PRIMARY KEY (id)" +
		")"

	// Documents are immutable; replaying a save is a no-op.
	sqliteInsertDocument = "INSERT OR IGNORE INTO documents (" +
		"id, namespace, ts, document_json) VALUES (?, ?, ?, ?)"

	sqliteSelectDocuments = "SELECT document_json FROM documents ORDER BY ts ASC"
)

// Sink stores whole documents as JSON blobs in a SQLite table.
// It expects an initialized *sql.DB using a SQLite driver and creates the
// required schema on construction.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite sink using the provided DB.
func New(db *sql.DB) (*Sink, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateDocuments); err != nil {
		return nil, fmt.Errorf("create documents table: %w", err)
	}
	return &Sink{db: db}, nil
}

// Name implements sink.DurableSink.
func (s *Sink) Name() string {
	return "sqlite"
}

// Save implements sink.DurableSink.
func (s *Sink) Save(ctx context.Context, doc *document.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", doc.ID, err)
	}
	_, err = s.db.ExecContext(ctx, sqliteInsertDocument,
		doc.ID, string(doc.Metadata.Namespace), doc.Metadata.Timestamp.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.ID, err)
	}
	return nil
}

// Load implements sink.DurableSink.
func (s *Sink) Load(ctx context.Context) ([]*document.Document, error) {
	rows, err := s.db.QueryContext(ctx, sqliteSelectDocuments)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	var docs []*document.Document
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return docs, fmt.Errorf("scan document row: %w", err)
		}
		var doc document.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			continue
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return docs, fmt.Errorf("iterate document rows: %w", err)
	}
	return docs, nil
}

// Close implements sink.DurableSink. The DB is owned by the caller and is
// not closed here.
func (s *Sink) Close() error {
	return nil
}
