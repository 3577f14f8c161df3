package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nutriagent"
	"nutriagent/coordinator/bedrock"
	"nutriagent/nutrients"
	"nutriagent/slack"
	"nutriagent/storage"
	"nutriagent/tools"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("SETUP: Failed to load .env", "error", err)
	}

	var modelConfig nutriagent.ModelConfig
	if err := envdecode.Decode(&modelConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	var agentConfig nutriagent.AgentConfig
	if err := envdecode.Decode(&agentConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	var offConfig nutriagent.OpenFoodFactsConfig
	if err := envdecode.Decode(&offConfig); err != nil {
		log.Fatalf("Failed to decode: %s", err)
	}

	instructions, err := storage.LoadInstructions(ctx, storage.NewFileInstructionState(agentConfig.InstructionsPath))
	if err != nil {
		slog.Error("SETUP: Failed to load instructions", "error", err)
		return
	}

	tracerProvider, _, otelShutdown, err := nutriagent.InitOtel(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
		return
	}
	defer func() {
		if err := otelShutdown(ctx); err != nil {
			slog.Error("SETUP: Failed to shutdown OpenTelemetry", "error", err)
		}
	}()

	fetcherOpts := offConfig.FetcherOpts()
	fetcherOpts.HTTPClient = nutriagent.NewTracedHTTPClient(offConfig.Timeout)
	registry, err := tools.NewRegistry(nutrients.NewService(nutrients.NewFetcher(fetcherOpts)))
	if err != nil {
		slog.Error("SETUP: Failed to create tool registry", "error", err)
		return
	}

	task := argOr(1, "How much fat and sugar is in a serving of potato chips?")

	logger, cleanup, err := newCoordinationLogger(modelConfig.ModelID)
	if err != nil {
		slog.Error("Failed to create coordination logger", "error", err)
		return
	}
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("Failed to flush coordination log", "error", err)
		}
	}()

	brc, err := newBedrockRuntimeClient(ctx)
	if err != nil {
		slog.Error("SETUP: Failed to create Bedrock client", "error", err)
		return
	}

	llm := bedrock.NewLLMClient(brc, bedrock.LLMOptions{
		ModelID:     modelConfig.ModelID,
		MaxTokens:   modelConfig.MaxTokens,
		Temperature: modelConfig.Temperature,
		TopP:        modelConfig.TopP,
	})

	tracer := tracerProvider.Tracer(nutriagent.TracerNameBedrock)
	ctx, span := tracer.Start(ctx, nutriagent.TracerNameBedrock, trace.WithAttributes(
		attribute.String("model.id", modelConfig.ModelID),
		attribute.Int("model.max_tokens", int(modelConfig.MaxTokens)),
		attribute.Float64("model.temperature", float64(modelConfig.Temperature)),
		attribute.Float64("model.top_p", float64(modelConfig.TopP)),
	))
	defer span.End()

	output, err := bedrock.NewCoordinator(llm, registry, bedrock.CoordinatorOpts{
		Instructions:  instructions,
		MaxIterations: agentConfig.MaxIterations,
		Logger:        logger,
		Tracer:        tracer,
	}).Run(ctx, task)
	if err != nil {
		slog.Error("RESULT: Error handling task", "error", err)
		return
	}

	webhook := agentConfig.SlackWebhookURL
	if webhook == "" {
		testServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := new(bytes.Buffer)
			body.ReadFrom(r.Body) // nolint: errcheck
			slog.Info("FINAL: Received request",
				"method", r.Method,
				"path", r.URL.Path,
				"body", body.String(),
			)
			w.WriteHeader(http.StatusOK)
		}))
		defer testServer.Close()
		webhook = testServer.URL
	}

	slackClient := slack.NewClient(webhook, http.DefaultClient)
	if err := slackClient.PostMessage(ctx, agentConfig.SlackChannel, output); err != nil {
		slog.Error("Failed to post result to Slack", "error", err)
	}
}

func newBedrockRuntimeClient(ctx context.Context) (*bedrockruntime.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
	if err != nil {
		return nil, err
	}
	return bedrockruntime.NewFromConfig(awsCfg), nil
}

func argOr(i int, def string) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return def
}

func newCoordinationLogger(modelID string) (nutriagent.CoordinationLogger, func() error, error) {
	logFilePath := nutriagent.NewCoordinationLogFilePath(modelID)
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0o755); err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to create log dir: %w", err)
	}
	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, func() error { return err }, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := nutriagent.NewFileCoordinationLogger(logFile)
	cleanup := func() error {
		return errors.Join(logger.Flush(), logFile.Close())
	}
	return logger, cleanup, nil
}
