package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joeshaw/envdecode"

	"nutriagent"
	"nutriagent/coordinator/bedrock"
	"nutriagent/nutrients"
	"nutriagent/storage"
	"nutriagent/tools"
)

type Params struct {
	Task string `json:"task"`
}

type Results struct {
	Output any `json:"output"`
}

func main() {
	fn := func(ctx context.Context, params Params) (Results, error) {
		var modelConfig nutriagent.ModelConfig
		if err := envdecode.Decode(&modelConfig); err != nil {
			return Results{}, fmt.Errorf("failed to decode model config: %w", err)
		}

		var agentConfig nutriagent.AgentConfig
		if err := envdecode.Decode(&agentConfig); err != nil {
			return Results{}, fmt.Errorf("failed to decode agent config: %w", err)
		}

		var offConfig nutriagent.OpenFoodFactsConfig
		if err := envdecode.Decode(&offConfig); err != nil {
			return Results{}, fmt.Errorf("failed to decode Open Food Facts config: %w", err)
		}

		if agentConfig.InstructionsBucket == "" {
			return Results{}, fmt.Errorf("missing S3 config: INSTRUCTIONS_BUCKET must be set")
		}

		awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRetryMaxAttempts(5))
		if err != nil {
			return Results{}, fmt.Errorf("failed to load AWS config: %w", err)
		}

		state := storage.NewS3InstructionState(s3.NewFromConfig(awsCfg), agentConfig.InstructionsBucket, agentConfig.InstructionsKey)
		instructions, err := storage.LoadInstructions(ctx, state)
		if err != nil {
			slog.Error("SETUP: Failed to load instructions from S3", "error", err)
			return Results{}, err
		}
		slog.Info("SETUP: Instructions loaded from S3", "bucket", agentConfig.InstructionsBucket, "key", agentConfig.InstructionsKey)

		_, _, otelShutdown, err := nutriagent.InitOtel(ctx)
		if err != nil {
			slog.Error("SETUP: Failed to initialize OpenTelemetry", "error", err)
			return Results{}, err
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
			return Results{}, err
		}

		llm := bedrock.NewLLMClient(bedrockruntime.NewFromConfig(awsCfg), bedrock.LLMOptions{
			ModelID:     modelConfig.ModelID,
			MaxTokens:   modelConfig.MaxTokens,
			Temperature: modelConfig.Temperature,
			TopP:        modelConfig.TopP,
		})

		output, err := bedrock.NewCoordinator(llm, registry, bedrock.CoordinatorOpts{
			Instructions:  instructions,
			MaxIterations: agentConfig.MaxIterations,
			Logger:        nutriagent.NewStdoutCoordinationLogger(),
		}).Run(ctx, params.Task)
		if err != nil {
			slog.Error("RESULT: Error handling task", "error", err)
			return Results{}, err
		}

		return Results{Output: output}, nil
	}

	lambda.Start(fn)
}
