//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Package server exposes the retrieval engine over HTTP.
//
// The engine is the product; this layer is a thin veneer translating three
// routes into engine calls: POST /search, POST /documents and GET /stats.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"trpc.group/trpc-go/hybridrag/access"
	"trpc.group/trpc-go/hybridrag/document"
	"trpc.group/trpc-go/hybridrag/hybrid"
	"trpc.group/trpc-go/hybridrag/log"
	"trpc.group/trpc-go/hybridrag/store"
	"trpc.group/trpc-go/hybridrag/telemetry/metric"
)

// Server wires the engine and store into HTTP routes.
type Server struct {
	engine *hybrid.Engine
	store  *store.Store
	router *mux.Router

	allowedOrigins []string
}

// Option configures the Server instance.
type Option func(*Server)

// WithAllowedOrigins sets the CORS allow-list. Defaults to all origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.allowedOrigins = origins
		}
	}
}

// New creates an HTTP server over the given engine and store.
func New(engine *hybrid.Engine, st *store.Store, opts ...Option) *Server {
	s := &Server{
		engine:         engine,
		store:          st,
		router:         mux.NewRouter(),
		allowedOrigins: []string{"*"},
	}
	for _, opt := range opts {
		opt(s)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: s.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	s.router.Use(c.Handler)
	s.registerRoutes()
	return s
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	s.router.HandleFunc("/documents", s.handleAddDocument).Methods(http.MethodPost)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

// searchRequest is the POST /search body.
type searchRequest struct {
	Query       string               `json:"query"`
	Mode        string               `json:"mode"`
	UserID      string               `json:"userId"`
	AccessLevel document.AccessLevel `json:"accessLevel"`
	Department  string               `json:"department"`
	Config      searchRequestConfig  `json:"config"`
	MediaTypes  []document.MediaType `json:"mediaTypes"`
	WithSummary bool                 `json:"withSummary"`
}

// searchRequestConfig carries the optional retrieval overrides.
type searchRequestConfig struct {
	LogWeight       float64 `json:"logWeight"`
	KnowledgeWeight float64 `json:"knowledgeWeight"`
	InternalWeight  float64 `json:"internalWeight"`
	IncludeInternal *bool   `json:"includeInternal"`
	Threshold       float64 `json:"threshold"`
	Limit           int     `json:"limit"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	mode, err := hybrid.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := []hybrid.SearchOption{
		hybrid.WithMode(mode),
		hybrid.WithRequester(access.Requester{
			UserID:     req.UserID,
			Level:      req.AccessLevel,
			Department: req.Department,
		}),
		hybrid.WithWeights(req.Config.LogWeight, req.Config.KnowledgeWeight, req.Config.InternalWeight),
	}
	if req.Config.Threshold > 0 {
		opts = append(opts, hybrid.WithThreshold(req.Config.Threshold))
	}
	if req.Config.Limit > 0 {
		opts = append(opts, hybrid.WithLimit(req.Config.Limit))
	}
	if req.Config.IncludeInternal != nil {
		opts = append(opts, hybrid.WithIncludeInternal(*req.Config.IncludeInternal))
	}
	if len(req.MediaTypes) > 0 {
		opts = append(opts, hybrid.WithMediaTypes(req.MediaTypes...))
	}
	if req.WithSummary {
		opts = append(opts, hybrid.WithSummary())
	}

	start := time.Now()
	resp, err := s.engine.Search(r.Context(), req.Query, opts...)
	if err != nil {
		switch {
		case errors.Is(err, hybrid.ErrEmptyQuery), errors.Is(err, hybrid.ErrUnknownMode):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, hybrid.ErrQueryEmbedding):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			log.Errorf("search failed: %v", err)
			writeError(w, http.StatusInternalServerError, "search failed")
		}
		return
	}
	metric.RecordSearch(r.Context(), string(resp.Stats.Mode), resp.Stats.TotalResults, time.Since(start))

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    resp,
	})
}

// addDocumentRequest is the POST /documents body.
type addDocumentRequest struct {
	Content  string            `json:"content"`
	Metadata document.Metadata `json:"metadata"`
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.store.Add(r.Context(), req.Content, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmbeddingFailure):
			writeError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, store.ErrEmbedderNotConfigured):
			log.Errorf("add document failed: %v", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	metric.RecordAdd(r.Context(), string(req.Metadata.Namespace))

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"id":      id,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    s.store.Stats(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}
