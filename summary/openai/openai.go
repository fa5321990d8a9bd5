//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package openai provides an OpenAI-backed summary generator.
package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"trpc.group/trpc-go/hybridrag/fusion"
	"trpc.group/trpc-go/hybridrag/summary"
)

// Verify that Generator implements the summary.Generator interface.
var _ summary.Generator = (*Generator)(nil)

const (
	defaultModel       = "gpt-4"
	defaultMaxTokens   = 300
	defaultTemperature = 0.3

	// topResults bounds how many ranked hits feed the prompt.
	topResults = 3
	// snippetLen bounds the content excerpt per hit.
	snippetLen = 200

	systemPrompt = "You summarize search results. Produce a concise, useful summary."
)

// Generator summarizes search results through the OpenAI chat completion API.
type Generator struct {
	client      openai.Client
	model       string
	apiKey      string
	baseURL     string
	maxTokens   int64
	temperature float64
}

// Option represents a functional option for configuring the Generator.
type Option func(*Generator)

// WithModel sets the chat model. Defaults to gpt-4.
func WithModel(model string) Option {
	return func(g *Generator) {
		g.model = model
	}
}

// WithAPIKey sets the API key. Defaults to the OPENAI_API_KEY environment
// variable.
func WithAPIKey(key string) Option {
	return func(g *Generator) {
		g.apiKey = key
	}
}

// WithBaseURL sets a custom API endpoint.
func WithBaseURL(url string) Option {
	return func(g *Generator) {
		g.baseURL = url
	}
}

// WithMaxTokens bounds the summary length.
func WithMaxTokens(n int64) Option {
	return func(g *Generator) {
		g.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Generator) {
		g.temperature = t
	}
}

// New creates an OpenAI summary generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		model:       defaultModel,
		apiKey:      os.Getenv("OPENAI_API_KEY"),
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(g)
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(g.apiKey)}
	if g.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(g.baseURL))
	}
	g.client = openai.NewClient(clientOpts...)
	return g
}

// Summarize implements summary.Generator. Only the top results feed the
// prompt; each contributes its type and a short content excerpt.
func (g *Generator) Summarize(ctx context.Context, query string, results []*fusion.Result) (string, error) {
	if len(results) == 0 {
		return summary.Fallback(query, nil), nil
	}

	var sb strings.Builder
	for i, r := range results {
		if i >= topResults {
			break
		}
		fmt.Fprintf(&sb, "[%d] %s: %s\n\n", i+1, r.Document.Metadata.Type,
			snippet(r.Document.Content, snippetLen))
	}

	userPrompt := fmt.Sprintf(
		"Question: %s\n\nSearch results:\n%s\nBased on the results above, write a concise summary answering the question.",
		query, sb.String())

	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature:         openai.Float(g.temperature),
		MaxCompletionTokens: openai.Int(g.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// snippet truncates content to at most maxRunes runes, never splitting a
// multibyte character.
func snippet(content string, maxRunes int) string {
	runes := []rune(content)
	if len(runes) <= maxRunes {
		return content
	}
	return string(runes[:maxRunes]) + "..."
}
