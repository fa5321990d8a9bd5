//
// Tencent is pleased to support the open source community by making hybridrag available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// hybridrag is licensed under the Apache License Version 2.0.
//
//

// Command hybridragd runs the hybrid retrieval engine behind its HTTP API.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"trpc.group/trpc-go/hybridrag/config"
	"trpc.group/trpc-go/hybridrag/embedder"
	embeddergemini "trpc.group/trpc-go/hybridrag/embedder/gemini"
	embedderopenai "trpc.group/trpc-go/hybridrag/embedder/openai"
	"trpc.group/trpc-go/hybridrag/fusion"
	"trpc.group/trpc-go/hybridrag/hybrid"
	"trpc.group/trpc-go/hybridrag/log"
	"trpc.group/trpc-go/hybridrag/server"
	"trpc.group/trpc-go/hybridrag/store"
	"trpc.group/trpc-go/hybridrag/store/sink"
	cossink "trpc.group/trpc-go/hybridrag/store/sink/cos"
	filesink "trpc.group/trpc-go/hybridrag/store/sink/file"
	sqlitesink "trpc.group/trpc-go/hybridrag/store/sink/sqlite"
	summaryopenai "trpc.group/trpc-go/hybridrag/summary/openai"
	"trpc.group/trpc-go/hybridrag/telemetry/metric"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Missing .env is fine; environment variables may come from elsewhere.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		clean, err := metric.Start(ctx, metric.WithEndpoint(cfg.Metrics.Endpoint))
		if err != nil {
			log.Warnf("metrics disabled: %v", err)
		} else {
			defer func() {
				if err := clean(); err != nil {
					log.Warnf("metrics shutdown: %v", err)
				}
			}()
		}
	}

	emb, err := buildEmbedder(ctx, cfg)
	if err != nil {
		log.Fatalf("build embedder: %v", err)
	}

	sinks, closeDB, err := buildSinks(cfg)
	if err != nil {
		log.Fatalf("build sinks: %v", err)
	}
	defer closeDB()

	st := store.New(store.WithEmbedder(emb), store.WithSinks(sinks))
	defer st.Close()
	st.Restore(ctx)

	engineOpts := []hybrid.Option{
		hybrid.WithTimeout(time.Duration(cfg.Search.TimeoutSecs) * time.Second),
		hybrid.WithDefaults(hybrid.Defaults{
			LogWeight:         cfg.Search.LogWeight,
			KnowledgeWeight:   cfg.Search.KnowledgeWeight,
			InternalWeight:    cfg.Search.InternalWeight,
			Threshold:         cfg.Search.Threshold,
			InternalThreshold: cfg.Search.InternalThreshold,
			Limit:             cfg.Search.Limit,
		}),
		hybrid.WithFuser(fusion.New(
			fusion.NewStoreSearcher(st),
			fusion.WithParallelism(cfg.Search.Parallelism),
		)),
	}
	if cfg.Summary.Enabled {
		engineOpts = append(engineOpts, hybrid.WithSummaryGenerator(summaryopenai.New(
			summaryopenai.WithModel(cfg.Summary.Model),
			summaryopenai.WithMaxTokens(cfg.Summary.MaxTokens),
		)))
	}
	engine := hybrid.New(emb, st, engineOpts...)

	if cfg.Retention.MaxAgeHours > 0 {
		go retentionLoop(ctx, st, cfg.Retention)
	}

	srv := server.New(engine, st, server.WithAllowedOrigins(cfg.Server.AllowedOrigins))
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warnf("http shutdown: %v", err)
		}
	}()

	log.Infof("hybridragd listening on %s", cfg.Server.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("http server: %v", err)
	}
}

// buildEmbedder selects the embedding provider at construction time.
func buildEmbedder(ctx context.Context, cfg *config.AppConfig) (embedder.Embedder, error) {
	apiKey := os.Getenv(cfg.Embedder.APIKeyEnv)
	switch cfg.Embedder.Type {
	case "gemini":
		var opts []embeddergemini.Option
		if apiKey != "" {
			opts = append(opts, embeddergemini.WithAPIKey(apiKey))
		}
		if cfg.Embedder.Model != "" {
			opts = append(opts, embeddergemini.WithModel(cfg.Embedder.Model))
		}
		return embeddergemini.New(ctx, opts...)
	default:
		opts := []embedderopenai.Option{embedderopenai.WithAPIKey(apiKey)}
		if cfg.Embedder.Model != "" {
			opts = append(opts, embedderopenai.WithModel(cfg.Embedder.Model))
		}
		if cfg.Embedder.BaseURL != "" {
			opts = append(opts, embedderopenai.WithBaseURL(cfg.Embedder.BaseURL))
		}
		if cfg.Embedder.Dimensions > 0 {
			opts = append(opts, embedderopenai.WithDimensions(cfg.Embedder.Dimensions))
		}
		return embedderopenai.New(opts...), nil
	}
}

// buildSinks composes the configured durable sinks into one fan-out writer.
func buildSinks(cfg *config.AppConfig) (*sink.FanOut, func(), error) {
	var sinks []sink.DurableSink
	closeDB := func() {}

	if fc := cfg.Sinks.File; fc != nil {
		fs, err := filesink.New(fc.Path)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, fs)
	}
	if sc := cfg.Sinks.SQLite; sc != nil {
		db, err := sql.Open("sqlite", sc.Path)
		if err != nil {
			return nil, nil, err
		}
		ss, err := sqlitesink.New(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		sinks = append(sinks, ss)
		closeDB = func() { db.Close() }
	}
	if cc := cfg.Sinks.COS; cc != nil {
		var opts []cossink.Option
		if cc.Prefix != "" {
			opts = append(opts, cossink.WithPrefix(cc.Prefix))
		}
		cs, err := cossink.New(cc.BucketURL, opts...)
		if err != nil {
			closeDB()
			return nil, nil, err
		}
		sinks = append(sinks, cs)
	}
	return sink.NewFanOut(sinks...), closeDB, nil
}

// retentionLoop sweeps documents older than the configured age.
func retentionLoop(ctx context.Context, st *store.Store, cfg config.RetentionConfig) {
	interval := time.Duration(cfg.SweepIntervalHours) * time.Hour
	if interval <= 0 {
		interval = time.Hour
	}
	maxAge := time.Duration(cfg.MaxAgeHours) * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Cleanup(maxAge)
		}
	}
}
