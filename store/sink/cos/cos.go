//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package cos provides a Tencent Cloud Object Storage durable sink.
//
// The sink is write-only: each document is replicated as one JSON object
// under the configured prefix. Restoring from COS is not supported; the
// local sinks are the restore path.
package cos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	cossdk "github.com/tencentyun/cos-go-sdk-v5"

	"trpc.group/trpc-go/hybridrag/document"
	"trpc.group/trpc-go/hybridrag/store/sink"
)

// Verify that Sink implements the sink.DurableSink interface.
var _ sink.DurableSink = (*Sink)(nil)

const (
	// defaultPrefix is the object key prefix for replicated documents.
	defaultPrefix = "documents"
	// defaultTimeout bounds a single object put.
	defaultTimeout = 30 * time.Second

	// Environment variables holding COS credentials.
	secretIDEnv  = "COS_SECRETID"
	secretKeyEnv = "COS_SECRETKEY"
)

// Sink replicates documents to a COS bucket.
type Sink struct {
	client    *cossdk.Client
	prefix    string
	secretID  string
	secretKey string
	timeout   time.Duration
}

// Option represents a functional option for configuring the Sink.
type Option func(*Sink)

// WithPrefix sets the object key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Sink) {
		s.prefix = prefix
	}
}

// WithSecretID sets the COS secret ID. Defaults to the COS_SECRETID
// environment variable.
func WithSecretID(id string) Option {
	return func(s *Sink) {
		s.secretID = id
	}
}

// WithSecretKey sets the COS secret key. Defaults to the COS_SECRETKEY
// environment variable.
func WithSecretKey(key string) Option {
	return func(s *Sink) {
		s.secretKey = key
	}
}

// WithTimeout sets the per-put timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Sink) {
		s.timeout = timeout
	}
}

// New creates a COS sink for the given bucket URL, e.g.
// "https://bucket.cos.ap-guangzhou.myqcloud.com".
func New(bucketURL string, opts ...Option) (*Sink, error) {
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("parse bucket URL: %w", err)
	}

	s := &Sink{
		prefix:    defaultPrefix,
		secretID:  os.Getenv(secretIDEnv),
		secretKey: os.Getenv(secretKeyEnv),
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.secretID == "" || s.secretKey == "" {
		return nil, fmt.Errorf("COS credentials are not provided")
	}

	s.client = cossdk.NewClient(&cossdk.BaseURL{BucketURL: u}, &http.Client{
		Timeout: s.timeout,
		Transport: &cossdk.AuthorizationTransport{
			SecretID:  s.secretID,
			SecretKey: s.secretKey,
		},
	})
	return s, nil
}

// Name implements sink.DurableSink.
func (s *Sink) Name() string {
	return "cos"
}

// Save implements sink.DurableSink.
func (s *Sink) Save(ctx context.Context, doc *document.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document %s: %w", doc.ID, err)
	}

	objectName := fmt.Sprintf("%s/%s/%s.json", s.prefix, doc.Metadata.Namespace, doc.ID)
	opt := &cossdk.ObjectPutOptions{
		ObjectPutHeaderOptions: &cossdk.ObjectPutHeaderOptions{
			ContentType: "application/json",
		},
	}
	if _, err := s.client.Object.Put(ctx, objectName, bytes.NewReader(data), opt); err != nil {
		return fmt.Errorf("put object %s: %w", objectName, err)
	}
	return nil
}

// Load implements sink.DurableSink. The COS sink is write-only.
func (s *Sink) Load(ctx context.Context) ([]*document.Document, error) {
	return nil, nil
}

// Close implements sink.DurableSink.
func (s *Sink) Close() error {
	return nil
}
