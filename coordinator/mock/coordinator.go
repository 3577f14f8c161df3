package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"nutriagent"
)

type llmClient interface {
	Invoke(ctx context.Context, prompt Prompt) (Response, error)
}

// Coordinator drives a model that writes its tool calls as JSON inside plain text.
type Coordinator struct {
	llm           llmClient
	toolProvider  nutriagent.ToolProvider
	instructions  string
	maxIterations int
	logger        nutriagent.CoordinationLogger
	tracer        trace.Tracer
}

func NewCoordinator(llm llmClient, tp nutriagent.ToolProvider, instructions string, maxIter int, log nutriagent.CoordinationLogger) *Coordinator {
	if log == nil {
		log = nutriagent.NewNoOpCoordinationLogger()
	}
	return &Coordinator{
		llm:           llm,
		toolProvider:  tp,
		instructions:  instructions,
		maxIterations: maxIter,
		logger:        log,
		tracer:        otel.Tracer(nutriagent.TracerNameMock),
	}
}

func (c *Coordinator) Run(ctx context.Context, task string) (string, error) {
	runID := nutriagent.NewRunID()
	ctx, span := c.tracer.Start(ctx, "Coordinator.Run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()

	slog.Info("COORDINATOR: Starting run", "run_id", runID, "task", task)

	prompt, err := NewPrompt(c.instructions, task, c.toolProvider)
	if err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}

	for iter := 1; iter <= c.maxIterations; iter++ {
		iterLog := nutriagent.IterationLog{RunID: runID, Iteration: iter, Timestamp: time.Now()}
		out, done, err := c.step(ctx, &prompt, &iterLog)
		if err != nil {
			iterLog.Error = err.Error()
		}
		c.logIteration(iterLog)

		if err != nil {
			return "", err
		}
		if done {
			slog.Info("COORDINATOR: Content is final output, ending run", "iteration", iter, "content_length", len(out))
			return out, nil
		}
	}
	return "", nutriagent.ErrMaxIterations
}

func (c *Coordinator) step(ctx context.Context, prompt *Prompt, iterLog *nutriagent.IterationLog) (string, bool, error) {
	promptJSON, err := json.Marshal(prompt)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal prompt: %w", err)
	}
	iterLog.LLMInput = string(promptJSON)

	slog.Info("COORDINATOR: Sending prompt to LLM",
		"iteration", iterLog.Iteration,
		"messages_count", len(prompt.Messages),
		"prompt_size_bytes", len(promptJSON),
	)

	res, err := c.llm.Invoke(ctx, *prompt)
	if err != nil {
		return "", false, fmt.Errorf("failed to invoke LLM: %w", err)
	}
	iterLog.LLMOutput = res

	if err := res.ParseModelOutput(); err != nil {
		return "", false, fmt.Errorf("failed to parse model output: %w", err)
	}

	slog.Info("COORDINATOR: LLM response received",
		"iteration", iterLog.Iteration,
		"content_length", len(res.Content),
		"tool_calls", len(res.ToolCalls),
	)

	if len(res.ToolCalls) == 0 {
		if res.Content == "" {
			return "", false, fmt.Errorf("no tool_calls and no final in response")
		}
		var missing []string
		for _, name := range nutriagent.RequiredTools {
			if !prompt.HasToolResultInContent(name) {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			slog.Info("COORDINATOR: Final output before required tools; nudging", "missing", missing)
			prompt.Messages = append(prompt.Messages,
				textMessage("assistant", res.Content),
				textMessage("user", fmt.Sprintf(`Do not answer yet. Call %v first using {"tool_calls":[...]}.`, missing)),
			)
			return "", false, nil
		}
		return res.Content, true, nil
	}

	for _, call := range res.ToolCalls {
		slog.Info("COORDINATOR: Handling tool call", "name", call.Name, "iteration", iterLog.Iteration)
		toolLog := nutriagent.ToolCallLog{Name: call.Name, Input: call.Input}

		tool, err := c.toolProvider.GetTool(call.Name)
		if err != nil {
			toolLog.Error = err.Error()
			iterLog.ToolCalls = append(iterLog.ToolCalls, toolLog)
			return "", false, fmt.Errorf("failed to get tool %q: %w", call.Name, err)
		}

		result, err := tool.Run(ctx, call.Input)
		if err != nil {
			toolLog.Error = err.Error()
			iterLog.ToolCalls = append(iterLog.ToolCalls, toolLog)
			return "", false, fmt.Errorf("failed to run tool %q: %w", call.Name, err)
		}
		toolLog.Output = result
		iterLog.ToolCalls = append(iterLog.ToolCalls, toolLog)

		msg, err := newToolResultMessage(tool.Name(), result)
		if err != nil {
			return "", false, fmt.Errorf("failed to marshal tool result: %w", err)
		}
		prompt.Messages = append(prompt.Messages, msg)
	}
	return "", false, nil
}

func (c *Coordinator) logIteration(iteration nutriagent.IterationLog) {
	if err := c.logger.LogIteration(iteration); err != nil {
		slog.Error("COORDINATOR: Failed to log coordination iteration", "error", err, "iteration", iteration.Iteration)
	}
}
