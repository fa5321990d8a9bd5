//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package summary turns ranked search results into a short natural-language
// synopsis.
//
// Summarization runs strictly after ranking and never influences it. A
// generator failure degrades to the templated Fallback text; it never aborts
// a search.
package summary

import (
	"context"
	"fmt"
	"strings"

	"trpc.group/trpc-go/hybridrag/fusion"
)

// Generator produces a synopsis of the top search results.
type Generator interface {
	// Summarize answers the query based on the ranked results. Results are
	// ordered by relevance; implementations typically only read the top few.
	Summarize(ctx context.Context, query string, results []*fusion.Result) (string, error)
}

// Fallback builds a templated summary used when no generator is configured
// or the configured one fails.
func Fallback(query string, results []*fusion.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No information related to %q was found.", query)
	}

	seen := make(map[string]struct{})
	var namespaces []string
	for _, r := range results {
		ns := string(r.Document.Metadata.Namespace)
		if _, ok := seen[ns]; ok {
			continue
		}
		seen[ns] = struct{}{}
		namespaces = append(namespaces, ns)
	}

	return fmt.Sprintf("%d result(s) found for %q across namespaces: %s.",
		len(results), query, strings.Join(namespaces, ", "))
}
