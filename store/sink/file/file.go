//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package file provides a local JSON-lines durable sink.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"trpc.group/trpc-go/hybridrag/document"
	"trpc.group/trpc-go/hybridrag/store/sink"
)

// Verify that Sink implements the sink.DurableSink interface.
var _ sink.DurableSink = (*Sink)(nil)

// Sink appends documents as JSON lines to a local file.
type Sink struct {
	path string
	mu   sync.Mutex
}

// New creates a file sink writing to path. The parent directory is created
// if missing.
func New(path string) (*Sink, error) {
	if path == "" {
		return nil, fmt.Errorf("file sink path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sink directory: %w", err)
	}
	return &Sink{path: path}, nil
}

// Name implements sink.DurableSink.
func (s *Sink) Name() string {
	return "file"
}

// Save implements sink.DurableSink. Each document becomes one JSON line;
// documents are immutable so appending is sufficient for idempotency on
// replay (Load deduplication happens at the fan-out level by ID).
func (s *Sink) Save(ctx context.Context, doc *document.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", doc.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open sink file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append document %s: %w", doc.ID, err)
	}
	return nil
}

// Load implements sink.DurableSink. Unparseable lines are skipped so a
// partially written trailing line cannot poison a restore.
func (s *Sink) Load(ctx context.Context) ([]*document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open sink file: %w", err)
	}
	defer f.Close()

	var docs []*document.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var doc document.Document
		if err := json.Unmarshal(line, &doc); err != nil {
			continue
		}
		docs = append(docs, &doc)
	}
	if err := scanner.Err(); err != nil {
		return docs, fmt.Errorf("scan sink file: %w", err)
	}
	return docs, nil
}

// Close implements sink.DurableSink.
func (s *Sink) Close() error {
	return nil
}
