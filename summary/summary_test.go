//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trpc.group/trpc-go/hybridrag/document"
	"trpc.group/trpc-go/hybridrag/fusion"
)

func result(ns document.Namespace) *fusion.Result {
	return &fusion.Result{
		Document: &document.Document{
			Metadata: document.Metadata{Namespace: ns},
		},
	}
}

func TestFallbackNoResults(t *testing.T) {
	text := Fallback("pump failure", nil)
	assert.Equal(t, `No information related to "pump failure" was found.`, text)
}

func TestFallbackListsNamespacesOnce(t *testing.T) {
	text := Fallback("pump failure", []*fusion.Result{
		result(document.NamespaceLogs),
		result(document.NamespaceKnowledge),
		result(document.NamespaceLogs),
	})
	assert.Equal(t, `3 result(s) found for "pump failure" across namespaces: logs, knowledge.`, text)
}
