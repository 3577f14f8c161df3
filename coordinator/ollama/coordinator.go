package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"nutriagent"
)

type llmClient interface {
	Invoke(ctx context.Context, prompt Prompt) (Response, error)
}

type CoordinatorOpts struct {
	Instructions  string
	MaxIterations int
	Logger        nutriagent.CoordinationLogger
	// RequiredTools defaults to nutriagent.RequiredTools.
	RequiredTools []string
}

// Coordinator runs the tool-calling loop between an Ollama model and the registered tools.
type Coordinator struct {
	llm           llmClient
	toolProvider  nutriagent.ToolProvider
	instructions  string
	maxIterations int
	required      []string
	logger        nutriagent.CoordinationLogger
	tracer        trace.Tracer
	metrics       *instruments
}

func NewCoordinator(llm llmClient, tp nutriagent.ToolProvider, opts CoordinatorOpts) *Coordinator {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 10
	}
	if opts.RequiredTools == nil {
		opts.RequiredTools = nutriagent.RequiredTools
	}
	if opts.Logger == nil {
		opts.Logger = nutriagent.NewNoOpCoordinationLogger()
	}
	return &Coordinator{
		llm:           llm,
		toolProvider:  tp,
		instructions:  opts.Instructions,
		maxIterations: opts.MaxIterations,
		required:      opts.RequiredTools,
		logger:        opts.Logger,
		tracer:        otel.Tracer(nutriagent.TracerNameOllama),
	}
}

// NewInstrumentedCoordinator is NewCoordinator with run, iteration, LLM and tool metrics
// recorded on meter.
func NewInstrumentedCoordinator(llm llmClient, tp nutriagent.ToolProvider, opts CoordinatorOpts, tracer trace.Tracer, meter metric.Meter) (*Coordinator, error) {
	m, err := newInstruments(meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator instruments: %w", err)
	}
	c := NewCoordinator(llm, tp, opts)
	c.tracer = tracer
	c.metrics = m
	return c, nil
}

// Run executes the coordination process for a given task.
func (c *Coordinator) Run(ctx context.Context, task string) (string, error) {
	runID := nutriagent.NewRunID()
	ctx, span := c.tracer.Start(ctx, "Coordinator.Run", trace.WithAttributes(
		attribute.String("run_id", runID),
	))
	defer span.End()

	slog.Info("COORDINATOR: Starting run", "run_id", runID, "task", task)

	start := time.Now()
	c.metrics.runStarted(ctx, len(c.toolProvider.GetTools()))

	out, err := c.run(ctx, runID, task)

	c.metrics.runFinished(ctx, time.Since(start), err)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		slog.Error("COORDINATOR: Run failed", "run_id", runID, "error", err)
		return out, err
	}
	slog.Info("COORDINATOR: Run finished", "run_id", runID, "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

func (c *Coordinator) run(ctx context.Context, runID, task string) (string, error) {
	prompt, err := NewPrompt(c.instructions, task, c.toolProvider)
	if err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}

	for iter := 1; iter <= c.maxIterations; iter++ {
		out, done, err := c.iterate(ctx, runID, iter, &prompt)
		if err != nil {
			return "", err
		}
		if done {
			return out, nil
		}
	}
	return "", nutriagent.ErrMaxIterations
}

// iterate performs one LLM round trip. It reports done once a final answer was accepted.
func (c *Coordinator) iterate(ctx context.Context, runID string, iter int, prompt *Prompt) (string, bool, error) {
	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("Coordinator.Run.Iteration.%d", iter))
	defer span.End()

	started := time.Now()
	iterLog := nutriagent.IterationLog{RunID: runID, Iteration: iter, Timestamp: started}
	defer func() {
		c.metrics.iterationFinished(ctx, time.Since(started))
		c.logIteration(iterLog)
	}()

	if b, err := json.Marshal(prompt); err == nil {
		iterLog.LLMInput = string(b)
		c.metrics.promptSent(ctx, len(b), len(prompt.Messages))
		slog.Info("COORDINATOR: Sending prompt to LLM",
			"iteration", iter,
			"messages_count", len(prompt.Messages),
			"tools_count", len(prompt.Tools),
			"prompt_size_bytes", len(b),
			"last_message_preview", lastMessagePreview(prompt),
		)
	}

	llmStart := time.Now()
	res, err := c.llm.Invoke(ctx, *prompt)
	c.metrics.llmResponded(ctx, time.Since(llmStart))
	if err != nil {
		iterLog.Error = err.Error()
		return "", false, fmt.Errorf("failed to invoke LLM: %w", err)
	}
	iterLog.LLMOutput = res

	slog.Info("COORDINATOR: LLM response received",
		"iteration", iter,
		"content_length", len(res.Content),
		"tool_calls", len(res.ToolCalls),
		"llm_response_time_ms", time.Since(llmStart).Milliseconds(),
	)

	if len(res.ToolCalls) == 0 {
		if strings.TrimSpace(res.Content) == "" {
			c.metrics.emptyResponse(ctx)
			err := fmt.Errorf("no tool_calls and no final content")
			iterLog.Error = err.Error()
			return "", false, err
		}

		if missing := prompt.MissingToolResults(c.required); len(missing) > 0 {
			c.metrics.missingResults(ctx, len(missing))
			slog.Info("COORDINATOR: Missing required tool results; nudging model to call tools", "iteration", iter, "missing", missing)
			prompt.Messages = append(prompt.Messages, nudge(missing))
			return "", false, nil
		}

		slog.Info("COORDINATOR: Content looks final; ending run", "iteration", iter)
		span.AddEvent("Final response accepted")
		return res.Content, true, nil
	}

	calls := dedupeToolCalls(res.ToolCalls)
	if dropped := len(res.ToolCalls) - len(calls); dropped > 0 {
		c.metrics.deduplicated(ctx, dropped)
		slog.Info("COORDINATOR: Deduped tool calls", "requested", len(res.ToolCalls), "kept", len(calls))
	}

	for _, call := range calls {
		toolLog, msg, err := c.execute(ctx, iter, call)
		iterLog.ToolCalls = append(iterLog.ToolCalls, toolLog)
		if err != nil {
			return "", false, err
		}
		prompt.Messages = append(prompt.Messages, msg)
	}
	return "", false, nil
}

// execute runs one tool call and returns the tool message to append to the conversation.
func (c *Coordinator) execute(ctx context.Context, iter int, call ToolCall) (nutriagent.ToolCallLog, Message, error) {
	slog.Info("COORDINATOR: Handling tool call", "name", call.Name, "iteration", iter)
	toolLog := nutriagent.ToolCallLog{Name: call.Name, Input: call.Args}

	tool, err := c.toolProvider.GetTool(call.Name)
	if err != nil {
		c.metrics.toolExecuted(ctx, call.Name, 0, "tool_not_found")
		toolLog.Error = err.Error()
		return toolLog, Message{}, fmt.Errorf("failed to get tool %q: %w", call.Name, err)
	}

	start := time.Now()
	result, err := tool.Run(ctx, call.Args)
	if err != nil {
		c.metrics.toolExecuted(ctx, call.Name, time.Since(start), "tool_execution_failed")
		toolLog.Error = err.Error()
		return toolLog, Message{}, fmt.Errorf("failed to run tool %q: %w", call.Name, err)
	}
	c.metrics.toolExecuted(ctx, call.Name, time.Since(start), "")
	toolLog.Output = result

	payload, err := json.Marshal(result)
	if err != nil {
		toolLog.Error = err.Error()
		return toolLog, Message{}, fmt.Errorf("failed to marshal tool result: %w", err)
	}

	slog.Info("COORDINATOR: Tool executed, appended message", "name", call.Name, "iteration", iter)
	return toolLog, Message{Role: "tool", Name: tool.Name(), Content: string(payload)}, nil
}

func lastMessagePreview(prompt *Prompt) string {
	if len(prompt.Messages) == 0 {
		return "no_content"
	}
	last := prompt.Messages[len(prompt.Messages)-1].Content
	if len(last) > 100 {
		return last[:97] + "..."
	}
	return last
}

// dedupeToolCalls drops repeated calls with the same name and arguments. Models sometimes
// emit the same lookup several times in one response.
func dedupeToolCalls(calls []ToolCall) []ToolCall {
	seen := map[string]bool{}
	out := make([]ToolCall, 0, len(calls))
	for _, c := range calls {
		b, _ := json.Marshal(c.Args)
		key := c.Name + ":" + string(b)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func (c *Coordinator) logIteration(iteration nutriagent.IterationLog) {
	if err := c.logger.LogIteration(iteration); err != nil {
		slog.Error("COORDINATOR: Failed to log coordination iteration", "error", err, "iteration", iteration.Iteration)
	}
}
