//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package document defines the document model shared by the retrieval engine.
package document

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Namespace partitions the corpus for grouped search.
type Namespace string

// Known namespaces.
const (
	NamespaceLogs      Namespace = "logs"
	NamespaceKnowledge Namespace = "knowledge"
	NamespaceProjects  Namespace = "projects"
	NamespaceSecurity  Namespace = "security"
	NamespaceInternal  Namespace = "internal"
)

// Namespaces returns all known namespaces.
func Namespaces() []Namespace {
	return []Namespace{
		NamespaceLogs,
		NamespaceKnowledge,
		NamespaceProjects,
		NamespaceSecurity,
		NamespaceInternal,
	}
}

// Valid reports whether the namespace is one of the known partitions.
func (n Namespace) Valid() bool {
	switch n {
	case NamespaceLogs, NamespaceKnowledge, NamespaceProjects,
		NamespaceSecurity, NamespaceInternal:
		return true
	default:
		return false
	}
}

// AccessLevel is an ordered permission tier attached to a document.
// A requester may see a document iff the requester level ranks at or above
// the document level.
type AccessLevel string

// Access levels, least to most restrictive.
const (
	AccessPublic       AccessLevel = "public"
	AccessInternal     AccessLevel = "internal"
	AccessConfidential AccessLevel = "confidential"
	AccessRestricted   AccessLevel = "restricted"
)

// accessRanks fixes the total ordering of access levels.
var accessRanks = map[AccessLevel]int{
	AccessPublic:       0,
	AccessInternal:     1,
	AccessConfidential: 2,
	AccessRestricted:   3,
}

// Rank returns the position of the level in the ordering, or -1 for an
// unknown level.
func (l AccessLevel) Rank() int {
	if r, ok := accessRanks[l]; ok {
		return r
	}
	return -1
}

// Valid reports whether the access level is one of the known tiers.
func (l AccessLevel) Valid() bool {
	_, ok := accessRanks[l]
	return ok
}

// Covers reports whether a requester holding level l may see a document
// carrying level doc. An unset document level is treated as public.
func (l AccessLevel) Covers(doc AccessLevel) bool {
	docRank := 0
	if doc != "" {
		docRank = doc.Rank()
	}
	return l.Rank() >= docRank
}

// MediaType classifies internal-knowledge content.
type MediaType string

// Known media types.
const (
	MediaText  MediaType = "text"
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Valid reports whether the media type is known.
func (m MediaType) Valid() bool {
	switch m {
	case MediaText, MediaImage, MediaVideo:
		return true
	default:
		return false
	}
}

// Type classifies document content. Informational only; the engine never
// filters by it.
type Type string

// Common content types.
const (
	TypeLog           Type = "log"
	TypeAnalysis      Type = "analysis"
	TypeReport        Type = "report"
	TypeManual        Type = "manual"
	TypePolicy        Type = "policy"
	TypeKnowledge     Type = "knowledge"
	TypeQuery         Type = "query"
	TypeInternalText  Type = "internal_text"
	TypeInternalImage Type = "internal_image"
	TypeInternalVideo Type = "internal_video"
)

// Validation errors surfaced at the store boundary.
var (
	// ErrUnknownNamespace is returned when metadata carries a namespace
	// outside the known partitions.
	ErrUnknownNamespace = errors.New("unknown namespace")
	// ErrUnknownAccessLevel is returned when metadata carries an access level
	// outside the known ordering.
	ErrUnknownAccessLevel = errors.New("unknown access level")
	// ErrUnknownMediaType is returned when metadata carries an unknown media type.
	ErrUnknownMediaType = errors.New("unknown media type")
)

// Metadata is the closed set of document metadata fields.
type Metadata struct {
	// Namespace partitions the corpus. Required.
	Namespace Namespace `json:"namespace" yaml:"namespace"`

	// Type classifies the content. Informational.
	Type Type `json:"type" yaml:"type"`

	// Source is a free-text provenance label.
	Source string `json:"source" yaml:"source"`

	// Timestamp is the creation time, assigned by the store. Never mutated.
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	// UserID restricts visibility to the owner in user-scoped searches.
	// Empty means no owner.
	UserID string `json:"userId,omitempty" yaml:"userId,omitempty"`

	// Department scopes internal knowledge to an organizational unit.
	Department string `json:"department,omitempty" yaml:"department,omitempty"`

	// AccessLevel gates visibility independent of namespace. Empty means public.
	AccessLevel AccessLevel `json:"accessLevel,omitempty" yaml:"accessLevel,omitempty"`

	// MediaType classifies internal-knowledge content for media filtering.
	MediaType MediaType `json:"mediaType,omitempty" yaml:"mediaType,omitempty"`
}

// Validate rejects unknown namespace, access-level and media-type values.
// Optional fields are only checked when set.
func (m *Metadata) Validate() error {
	if !m.Namespace.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownNamespace, m.Namespace)
	}
	if m.AccessLevel != "" && !m.AccessLevel.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAccessLevel, m.AccessLevel)
	}
	if m.MediaType != "" && !m.MediaType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownMediaType, m.MediaType)
	}
	return nil
}

// Document is the unit of retrieval. Immutable once appended to the store.
type Document struct {
	// ID is the unique identifier, assigned at creation.
	ID string `json:"id"`

	// Content is the UTF-8 text of the document.
	Content string `json:"content"`

	// Embedding is the vector produced for Content. Its length is fixed by
	// the provider that produced it.
	Embedding []float64 `json:"embedding,omitempty"`

	// Metadata carries the closed metadata fields.
	Metadata Metadata `json:"metadata"`
}

// Clone creates a deep copy of the document.
func (d *Document) Clone() *Document {
	clone := &Document{
		ID:       d.ID,
		Content:  d.Content,
		Metadata: d.Metadata,
	}
	if d.Embedding != nil {
		clone.Embedding = make([]float64, len(d.Embedding))
		copy(clone.Embedding, d.Embedding)
	}
	return clone
}

// IsEmpty checks if the document has no content.
func (d *Document) IsEmpty() bool {
	return d == nil || d.Content == ""
}

// idSuffixLen bounds the random suffix appended to generated IDs.
const idSuffixLen = 9

// NewID generates a unique document ID of the form
// <namespace>_<unix-nano>_<random suffix>.
func NewID(ns Namespace) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:idSuffixLen]
	return fmt.Sprintf("%s_%d_%s", ns, time.Now().UnixNano(), suffix)
}
