//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package access narrows candidate sets to documents a requester may see.
//
// The filter runs before similarity scoring so that thresholds and result
// limits always operate on a pool the requester is permitted to see. A
// document removed here is invisible by design and is never reported as an
// error; doing so would leak the existence of restricted documents.
package access

import (
	"trpc.group/trpc-go/hybridrag/document"
)

// Requester carries the identity and permission level of a search caller.
type Requester struct {
	// UserID identifies the caller for user-scoped visibility. When set,
	// documents owned by a different user are excluded.
	UserID string

	// Level is the highest access level the requester holds. The ordering is
	// total, so holding a level implies every level below it. Empty is
	// treated as public.
	Level document.AccessLevel

	// Department scopes internal knowledge. Empty means no department
	// restriction on the requester side.
	Department string
}

// level returns the effective access level of the requester.
func (r Requester) level() document.AccessLevel {
	if r.Level == "" {
		return document.AccessPublic
	}
	return r.Level
}

// Allowed reports whether the requester may see a single document.
//
// Policy, applied in order:
//  1. The document's access level must be covered by the requester's level.
//  2. A document with a department set is excluded when the requester's
//     department is set and differs. Documents without a department are
//     visible regardless of the requester's department.
//  3. A document with an owner is excluded when the requester's user ID is
//     set and differs. Unowned documents are visible to everyone.
func (r Requester) Allowed(doc *document.Document) bool {
	if !r.level().Covers(doc.Metadata.AccessLevel) {
		return false
	}
	if doc.Metadata.Department != "" && r.Department != "" &&
		doc.Metadata.Department != r.Department {
		return false
	}
	if doc.Metadata.UserID != "" && r.UserID != "" &&
		doc.Metadata.UserID != r.UserID {
		return false
	}
	return true
}

// Filter returns the subset of documents the requester may see, preserving
// input order. It is a pure function; the input slice is not modified.
func Filter(docs []*document.Document, r Requester) []*document.Document {
	filtered := make([]*document.Document, 0, len(docs))
	for _, doc := range docs {
		if r.Allowed(doc) {
			filtered = append(filtered, doc)
		}
	}
	return filtered
}
