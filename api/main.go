/*
 * Copyright (c) 2025 Ishaan Nene
 *
 * This source code is licensed under the MIT license found in the
 * LICENSE file in the root directory of this source tree.
 */
/*
This file starts the law QA API. It loads the vector store written by the ingest command, picks an answer generator and serves /ask, /health, /memory and /metrics.
With OPENAI_API_KEY set answers come from the model, guarded by a circuit breaker with an extractive fallback. Without it the extractive generator answers directly.
REDIS_ADDR turns on the answer cache.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"lawqa/pkg/cache"
	"lawqa/pkg/circuitbreaker"
	"lawqa/pkg/config"
	"lawqa/pkg/logging"
	"lawqa/pkg/metrics"
	"lawqa/pkg/qa"
	"lawqa/pkg/server"
	"lawqa/pkg/sysmem"
	"lawqa/pkg/vectorstore"
)

func main() {
	cfg := config.LoadServer()
	logger := logging.NewLoggerWithOutput("api", os.Stderr, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped", err)
		color.Red("API failed: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.ServerConfig, logger logging.Logger) error {
	mc := metrics.NewMetricsCollector("api")

	color.Cyan("Initializing systems...")

	store := vectorstore.New(vectorstore.NewHashEmbedder(vectorstore.DefaultDim))
	if err := store.Load(cfg.VectorStoreDir); err != nil {
		logger.WithField("dir", cfg.VectorStoreDir).Error("Vector store not loaded; /ask will fail until ingest has run", err)
	} else {
		logger.WithField("chunks", store.Len()).Info("Vector store loaded")
	}
	mc.SetIndexedChunks(store.Len())

	generator := newGenerator(cfg, logger, mc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	answers := newCache(ctx, cfg, logger)
	defer answers.Close()

	srv := server.New(server.Config{
		TopK:            cfg.TopK,
		MaxContextChars: cfg.MaxContextChars,
		RequestTimeout:  cfg.RequestTimeout,
		CORSAllowOrigin: cfg.CORSAllowOrigin,
	}, server.Deps{
		Retriever: store,
		Generator: generator,
		Cache:     answers,
		Metrics:   mc,
		Logger:    logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if snap, err := sysmem.Read(); err == nil {
		color.Blue("Device: %s, RAM available: %s", sysmem.Device, sysmem.FormatGB(snap.AvailableGB()))
	}
	color.Green("API listening on %s (generator=%s)", httpServer.Addr, generator.Name())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}

func newGenerator(cfg *config.ServerConfig, logger logging.Logger, mc *metrics.MetricsCollector) qa.Generator {
	extractive := qa.NewExtractiveGenerator()
	if cfg.OpenAIAPIKey == "" {
		logger.Info("OPENAI_API_KEY not set, answering extractively")
		return extractive
	}

	model, err := qa.NewOpenAIGenerator(qa.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	})
	if err != nil {
		logger.Error("OpenAI generator unavailable, answering extractively", err)
		return extractive
	}

	breaker := circuitbreaker.New("generator", circuitbreaker.GeneratorConfig(),
		circuitbreaker.WithMetrics(mc, "generator", "api"),
		circuitbreaker.WithIgnoredErrors(func(err error) bool { return errors.Is(err, context.Canceled) }),
		circuitbreaker.WithStateListener(func(from, to circuitbreaker.State) {
			logger.WithFields(map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			}).Warn(fmt.Sprintf("Generator circuit breaker %s", to))
		}),
	)
	return qa.NewGuardedGenerator(model, extractive, breaker, logger, mc)
}

func newCache(ctx context.Context, cfg *config.ServerConfig, logger logging.Logger) cache.AnswerCache {
	if cfg.RedisAddr == "" {
		return cache.NopCache{}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c, err := cache.NewRedisCache(pingCtx, cache.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.CacheTTL,
	})
	if err != nil {
		logger.Error("Warning: Redis connection failed, answer cache disabled", err)
		return cache.NopCache{}
	}
	logger.WithField("addr", cfg.RedisAddr).Info("Connected to Redis")
	return c
}
