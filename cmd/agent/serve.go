// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/MeridianCare/MeridianAgent/pkg/logging"
	"github.com/MeridianCare/MeridianAgent/services/agent/conversation"
	"github.com/MeridianCare/MeridianAgent/services/agent/middleware"
	"github.com/MeridianCare/MeridianAgent/services/agent/pipeline"
	"github.com/MeridianCare/MeridianAgent/services/agent/policy"
	"github.com/MeridianCare/MeridianAgent/services/agent/reasoning"
	"github.com/MeridianCare/MeridianAgent/services/agent/retrieval"
	"github.com/MeridianCare/MeridianAgent/services/agent/router"
	"github.com/MeridianCare/MeridianAgent/services/agent/routes"
	"github.com/MeridianCare/MeridianAgent/services/llm"
	"github.com/MeridianCare/MeridianAgent/services/safety"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the agent HTTP server",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "meridian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("agent-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newWeaviateClient returns nil when WEAVIATE_SERVICE_URL is unset or
// unusable; the server then runs without retrieval and history.
func newWeaviateClient() *weaviate.Client {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running without retrieval and history.")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running without retrieval and history.",
			"url", weaviateURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	return client
}

// buildProviderRegistry constructs every LLM backend whose configuration
// is present. The router picks among them per request.
func buildProviderRegistry() map[policy.Provider]llm.Client {
	registry := make(map[policy.Provider]llm.Client)

	if client, err := llm.NewOpenAIClient(); err == nil {
		registry[policy.ProviderOpenAI] = client
		slog.Info("OpenAI backend configured")
	} else {
		slog.Info("OpenAI backend not configured", "reason", err)
	}
	if client, err := llm.NewAnthropicClient(); err == nil {
		registry[policy.ProviderAnthropic] = client
		slog.Info("Anthropic backend configured")
	} else {
		slog.Info("Anthropic backend not configured", "reason", err)
	}
	if client, err := llm.NewOllamaClient(); err == nil {
		registry[policy.ProviderOllama] = client
		slog.Info("Ollama backend configured")
	} else {
		slog.Info("Ollama backend not configured", "reason", err)
	}

	return registry
}

func buildOrchestrator(cfg policy.Config, weaviateClient *weaviate.Client, cacheDB *badger.DB) (*pipeline.Orchestrator, error) {
	gate, err := safety.NewGate(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build the safety gate: %w", err)
	}

	registry := buildProviderRegistry()
	if len(registry) == 0 {
		return nil, fmt.Errorf("no LLM backend is configured; set OPENAI_API_KEY, ANTHROPIC_API_KEY or OLLAMA_BASE_URL")
	}
	engine := reasoning.NewEngine(router.NewModelRouter(cfg, registry), nil)

	opts := pipeline.Options{}
	if weaviateClient != nil {
		opts.Contexts = conversation.NewWeaviateContextStore(weaviateClient)

		embedder, err := retrieval.NewHTTPEmbedder()
		if err != nil {
			slog.Warn("Embedding service not configured, knowledge retrieval disabled", "reason", err)
		} else {
			source := retrieval.NewWeaviateKnowledgeSource(weaviateClient, embedder, retrieval.DefaultKnowledgeConfig())
			cached, err := retrieval.NewCachedKnowledgeSource(source, cacheDB, retrieval.DefaultCacheTTL)
			if err != nil {
				return nil, fmt.Errorf("failed to build the retrieval cache: %w", err)
			}
			opts.Knowledge = cached
		}
	}

	return pipeline.NewOrchestrator(cfg, gate, engine, opts)
}

func runServe(cmd *cobra.Command, args []string) {
	closeLogs, err := logging.Setup(logging.FromEnv("agent"))
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer func() { _ = closeLogs() }()

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	cfg := policy.Default()

	cacheDB, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		log.Fatalf("failed to open the retrieval cache: %v", err)
	}
	defer func() { _ = cacheDB.Close() }()

	orch, err := buildOrchestrator(cfg, newWeaviateClient(), cacheDB)
	if err != nil {
		log.Fatalf("failed to build the pipeline: %v", err)
	}

	port := os.Getenv("AGENT_PORT")
	if port == "" {
		port = "12310"
	}

	engine := gin.Default()
	engine.Use(otelgin.Middleware("agent-service"))

	limiter := middleware.NewRateLimiter(5, 10)
	routes.SetupRoutes(engine, orch, limiter)

	slog.Info("Starting the agent server", "port", port)
	if err := engine.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
