//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package hybrid is the public entry point of the retrieval engine.
//
// The engine resolves a search mode into namespace group specifications,
// embeds the query, drives the weighted fusion and attaches search statistics
// plus an optional natural-language summary.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"trpc.group/trpc-go/hybridrag/access"
	"trpc.group/trpc-go/hybridrag/document"
	"trpc.group/trpc-go/hybridrag/embedder"
	"trpc.group/trpc-go/hybridrag/fusion"
	"trpc.group/trpc-go/hybridrag/log"
	"trpc.group/trpc-go/hybridrag/summary"
)

var (
	// ErrEmptyQuery is returned when the search query is empty.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrUnknownMode is returned for an unrecognized search mode.
	ErrUnknownMode = errors.New("unknown search mode")
	// ErrQueryEmbedding is returned when the provider cannot vectorize the
	// query. No ranking is possible without a query vector, so the whole
	// search fails; there are no partial results.
	ErrQueryEmbedding = errors.New("query embedding failed")
)

// Mode selects which namespace groups a search spans.
type Mode string

// Supported search modes.
const (
	ModeLogs      Mode = "logs"
	ModeKnowledge Mode = "knowledge"
	ModeInternal  Mode = "internal"
	ModeSecurity  Mode = "security"
	ModeHybrid    Mode = "hybrid"
)

// ParseMode validates a mode string. Empty resolves to ModeHybrid.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModeHybrid, nil
	case ModeLogs, ModeKnowledge, ModeInternal, ModeSecurity, ModeHybrid:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Group names used in stats and group specifications.
const (
	groupLogs      = "logs"
	groupKnowledge = "knowledge"
	groupSecurity  = "security"
	groupInternal  = "internal"
)

// Defaults applied when the caller does not override them.
const (
	defaultTimeout           = 30 * time.Second
	defaultLogWeight         = 0.6
	defaultKnowledgeWeight   = 0.4
	defaultInternalWeight    = 1.1
	defaultThreshold         = 0.25
	defaultInternalThreshold = 0.3
	defaultLimit             = 8
)

// Defaults carries the engine-level retrieval defaults applied when a search
// call does not override them. Zero-valued fields keep the built-in defaults.
type Defaults struct {
	// LogWeight scales the logs group in hybrid and security searches.
	LogWeight float64

	// KnowledgeWeight scales the knowledge group in hybrid and security
	// searches.
	KnowledgeWeight float64

	// InternalWeight scales the internal-knowledge group in hybrid searches.
	InternalWeight float64

	// Threshold is the minimum similarity for all modes except internal.
	Threshold float64

	// InternalThreshold is the minimum similarity for internal-knowledge
	// searches.
	InternalThreshold float64

	// Limit caps the merged result count.
	Limit int
}

// withFallbacks fills zero-valued fields with the built-in defaults.
func (d Defaults) withFallbacks() Defaults {
	if d.LogWeight <= 0 {
		d.LogWeight = defaultLogWeight
	}
	if d.KnowledgeWeight <= 0 {
		d.KnowledgeWeight = defaultKnowledgeWeight
	}
	if d.InternalWeight <= 0 {
		d.InternalWeight = defaultInternalWeight
	}
	if d.Threshold <= 0 {
		d.Threshold = defaultThreshold
	}
	if d.InternalThreshold <= 0 {
		d.InternalThreshold = defaultInternalThreshold
	}
	if d.Limit <= 0 {
		d.Limit = defaultLimit
	}
	return d
}

// Stats reports what a single search did.
type Stats struct {
	// TotalResults is the merged result count.
	TotalResults int `json:"totalResults"`

	// GroupResults maps each searched group to its pre-merge hit count.
	GroupResults map[string]int `json:"groupResults"`

	// FailedGroups lists groups whose searches failed and contributed
	// nothing.
	FailedGroups []string `json:"failedGroups,omitempty"`

	// SearchTime is the elapsed wall-clock time.
	SearchTime time.Duration `json:"searchTime"`

	// Mode is the resolved search mode.
	Mode Mode `json:"mode"`

	// HasResults reports whether anything was found.
	HasResults bool `json:"hasResults"`
}

// Response is the product of one search call.
type Response struct {
	// Query echoes the search query.
	Query string `json:"query"`

	// Results are the fused hits, relevance descending.
	Results []*fusion.Result `json:"results"`

	// Summary is the optional natural-language synopsis; empty when
	// summarization was not requested.
	Summary string `json:"summary,omitempty"`

	// Stats reports counts, failures and timing.
	Stats Stats `json:"stats"`
}

// Engine orchestrates mode dispatch, query embedding, fusion and summary.
type Engine struct {
	embedder  embedder.Embedder
	fuser     *fusion.Fuser
	generator summary.Generator
	timeout   time.Duration
	defaults  Defaults
}

// Option represents a functional option for configuring the Engine.
type Option func(*Engine)

// WithSummaryGenerator sets the generator used when a summary is requested.
// Without one, requested summaries use the templated fallback.
func WithSummaryGenerator(g summary.Generator) Option {
	return func(e *Engine) {
		e.generator = g
	}
}

// WithTimeout bounds a single search call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithFuser replaces the fusion ranker, e.g. to tune its parallelism.
func WithFuser(f *fusion.Fuser) Option {
	return func(e *Engine) {
		e.fuser = f
	}
}

// WithDefaults overrides the engine-level retrieval defaults, typically from
// configuration. Zero-valued fields keep the built-in defaults; per-call
// search options still take precedence.
func WithDefaults(d Defaults) Option {
	return func(e *Engine) {
		e.defaults = d.withFallbacks()
	}
}

// New creates an engine searching the given candidate source with the given
// query embedder.
func New(emb embedder.Embedder, source fusion.CandidateSource, opts ...Option) *Engine {
	e := &Engine{
		embedder: emb,
		fuser:    fusion.New(fusion.NewStoreSearcher(source)),
		timeout:  defaultTimeout,
		defaults: Defaults{}.withFallbacks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// searchConfig carries per-call settings resolved from the engine defaults and
// the search options.
type searchConfig struct {
	mode              Mode
	requester         access.Requester
	logWeight         float64
	knowledgeWeight   float64
	internalWeight    float64
	includeInternal   bool
	threshold         float64 // negative means mode default
	modeThreshold     float64
	internalThreshold float64
	limit             int
	mediaTypes        []document.MediaType
	withSummary       bool
}

// SearchOption represents a per-call option for Search.
type SearchOption func(*searchConfig)

// WithMode sets the search mode. Defaults to ModeHybrid.
func WithMode(m Mode) SearchOption {
	return func(c *searchConfig) {
		c.mode = m
	}
}

// WithRequester sets the caller identity used for access filtering.
func WithRequester(r access.Requester) SearchOption {
	return func(c *searchConfig) {
		c.requester = r
	}
}

// WithWeights overrides the log, knowledge and internal group weights.
// Non-positive values keep the defaults.
func WithWeights(logW, knowledgeW, internalW float64) SearchOption {
	return func(c *searchConfig) {
		if logW > 0 {
			c.logWeight = logW
		}
		if knowledgeW > 0 {
			c.knowledgeWeight = knowledgeW
		}
		if internalW > 0 {
			c.internalWeight = internalW
		}
	}
}

// WithThreshold overrides the minimum similarity.
func WithThreshold(t float64) SearchOption {
	return func(c *searchConfig) {
		if t >= 0 {
			c.threshold = t
		}
	}
}

// WithLimit overrides the merged result cap.
func WithLimit(n int) SearchOption {
	return func(c *searchConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithIncludeInternal toggles the internal-knowledge group in hybrid mode.
func WithIncludeInternal(include bool) SearchOption {
	return func(c *searchConfig) {
		c.includeInternal = include
	}
}

// WithMediaTypes restricts internal-knowledge hits to the given media types.
func WithMediaTypes(types ...document.MediaType) SearchOption {
	return func(c *searchConfig) {
		c.mediaTypes = types
	}
}

// WithSummary requests a natural-language synopsis of the results.
func WithSummary() SearchOption {
	return func(c *searchConfig) {
		c.withSummary = true
	}
}

// effectiveThreshold resolves the similarity threshold for a mode.
func (c *searchConfig) effectiveThreshold(mode Mode) float64 {
	if c.threshold >= 0 {
		return c.threshold
	}
	if mode == ModeInternal {
		return c.internalThreshold
	}
	return c.modeThreshold
}

// groups resolves the mode dispatch table into concrete group
// specifications. Group membership strictly partitions the namespaces, so a
// document can contribute to at most one group per call.
func (c *searchConfig) groups() ([]fusion.GroupSpec, error) {
	threshold := c.effectiveThreshold(c.mode)
	internalGroup := fusion.GroupSpec{
		Name:       groupInternal,
		Namespaces: []document.Namespace{document.NamespaceInternal},
		Weight:     c.internalWeight,
		Threshold:  threshold,
		Limit:      c.limit,
		MediaTypes: c.mediaTypes,
	}

	switch c.mode {
	case ModeLogs:
		return []fusion.GroupSpec{{
			Name:       groupLogs,
			Namespaces: []document.Namespace{document.NamespaceLogs},
			Weight:     1.0,
			Threshold:  threshold,
			Limit:      c.limit,
		}}, nil
	case ModeKnowledge:
		return []fusion.GroupSpec{{
			Name: groupKnowledge,
			Namespaces: []document.Namespace{
				document.NamespaceKnowledge, document.NamespaceProjects,
			},
			Weight:    1.0,
			Threshold: threshold,
			Limit:     c.limit,
		}}, nil
	case ModeInternal:
		internalGroup.Weight = 1.0
		return []fusion.GroupSpec{internalGroup}, nil
	case ModeSecurity:
		return []fusion.GroupSpec{
			{
				Name:       groupSecurity,
				Namespaces: []document.Namespace{document.NamespaceSecurity},
				Weight:     c.knowledgeWeight,
				Threshold:  threshold,
				Limit:      c.limit,
			},
			{
				Name:       groupLogs,
				Namespaces: []document.Namespace{document.NamespaceLogs},
				Weight:     c.logWeight,
				Threshold:  threshold,
				Limit:      c.limit,
			},
		}, nil
	case ModeHybrid:
		specs := []fusion.GroupSpec{
			{
				Name:       groupLogs,
				Namespaces: []document.Namespace{document.NamespaceLogs},
				Weight:     c.logWeight,
				Threshold:  threshold,
				Limit:      c.limit,
			},
			{
				Name: groupKnowledge,
				Namespaces: []document.Namespace{
					document.NamespaceKnowledge, document.NamespaceSecurity,
					document.NamespaceProjects,
				},
				Weight:    c.knowledgeWeight,
				Threshold: threshold,
				Limit:     c.limit,
			},
		}
		if c.includeInternal {
			specs = append(specs, internalGroup)
		}
		return specs, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, c.mode)
	}
}

// Search runs one retrieval call end to end.
//
// The query is embedded first; a provider failure there fails the whole call
// with ErrQueryEmbedding. Group searches then fan out concurrently; a failing
// group contributes nothing and is reported in Stats.FailedGroups while the
// call still succeeds with the remaining groups' results.
func (e *Engine) Search(ctx context.Context, query string, opts ...SearchOption) (*Response, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}

	cfg := &searchConfig{
		mode:              ModeHybrid,
		logWeight:         e.defaults.LogWeight,
		knowledgeWeight:   e.defaults.KnowledgeWeight,
		internalWeight:    e.defaults.InternalWeight,
		includeInternal:   true,
		threshold:         -1,
		modeThreshold:     e.defaults.Threshold,
		internalThreshold: e.defaults.InternalThreshold,
		limit:             e.defaults.Limit,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	groups, err := cfg.groups()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	queryVector, err := e.embedder.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryEmbedding, err)
	}
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("%w: provider returned empty vector", ErrQueryEmbedding)
	}

	outcome, err := e.fuser.Fuse(ctx, queryVector, groups, cfg.requester, cfg.limit)
	if err != nil {
		return nil, fmt.Errorf("fused search: %w", err)
	}

	resp := &Response{
		Query:   query,
		Results: outcome.Results,
		Stats: Stats{
			TotalResults: len(outcome.Results),
			GroupResults: outcome.GroupCounts,
			FailedGroups: failedGroupNames(outcome.Failures),
			SearchTime:   time.Since(start),
			Mode:         cfg.mode,
			HasResults:   len(outcome.Results) > 0,
		},
	}

	if cfg.withSummary {
		resp.Summary = e.summarize(ctx, query, outcome.Results)
	}

	log.Debugf("search %q (mode %s): %d result(s) in %s",
		query, cfg.mode, resp.Stats.TotalResults, resp.Stats.SearchTime)
	return resp, nil
}

// summarize produces the synopsis, degrading to the templated fallback when
// no generator is configured or the configured one fails.
func (e *Engine) summarize(ctx context.Context, query string, results []*fusion.Result) string {
	if e.generator == nil {
		return summary.Fallback(query, results)
	}
	text, err := e.generator.Summarize(ctx, query, results)
	if err != nil {
		log.Warnf("summary generation failed, using fallback: %v", err)
		return summary.Fallback(query, results)
	}
	return text
}

// failedGroupNames extracts sorted group names from failure records.
func failedGroupNames(failures []fusion.GroupFailure) []string {
	if len(failures) == 0 {
		return nil
	}
	names := make([]string, 0, len(failures))
	for _, f := range failures {
		names = append(names, f.Group)
	}
	sort.Strings(names)
	return names
}
