package bedrock

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
	"go.opentelemetry.io/otel/trace"

	"nutriagent"
	"nutriagent/tools"
)

// maxRepeatedCalls is how many times the same tool may be called with the same input in a run.
const maxRepeatedCalls = 2

type llmClient interface {
	Invoke(ctx context.Context, prompt Prompt) (Response, error)
}

type CoordinatorOpts struct {
	Instructions  string
	MaxIterations int
	Logger        nutriagent.CoordinationLogger
	// RequiredTools defaults to nutriagent.RequiredTools.
	RequiredTools []string
	// Tracer defaults to the global provider's bedrock tracer.
	Tracer trace.Tracer
}

// Coordinator manages the interaction between a Bedrock model and the registered tools.
type Coordinator struct {
	llm           llmClient
	toolProvider  nutriagent.ToolProvider
	instructions  string
	maxIterations int
	required      []string
	logger        nutriagent.CoordinationLogger
	tracer        trace.Tracer
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
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(nutriagent.TracerNameBedrock)
	}
	return &Coordinator{
		llm:           llm,
		toolProvider:  tp,
		instructions:  opts.Instructions,
		maxIterations: opts.MaxIterations,
		required:      opts.RequiredTools,
		logger:        opts.Logger,
		tracer:        opts.Tracer,
	}
}

// Run executes the coordination process for a given task.
func (c *Coordinator) Run(ctx context.Context, task string) (string, error) {
	runID := nutriagent.NewRunID()
	ctx, span := c.tracer.Start(ctx, "Coordinator.Run", trace.WithAttributes(
		attribute.String("run_id", runID),
	))
	defer span.End()

	slog.Info("COORDINATOR: Starting run", "run_id", runID, "task", task)

	prompt, err := NewPrompt(c.instructions, task, c.toolProvider)
	if err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}

	calls := map[string]int{}
	for iter := 1; iter <= c.maxIterations; iter++ {
		out, done, err := c.iterate(ctx, runID, iter, &prompt, calls)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
			return "", err
		}
		if done {
			return out, nil
		}
	}

	span.SetStatus(codes.Error, nutriagent.ErrMaxIterations.Error())
	return "", nutriagent.ErrMaxIterations
}

func (c *Coordinator) iterate(ctx context.Context, runID string, iter int, prompt *Prompt, calls map[string]int) (string, bool, error) {
	ctx, span := c.tracer.Start(ctx, fmt.Sprintf("Coordinator.Run.Iteration.%d", iter))
	defer span.End()

	iterLog := nutriagent.IterationLog{RunID: runID, Iteration: iter, Timestamp: time.Now()}
	defer c.logIteration(&iterLog)

	if b, err := json.Marshal(prompt); err == nil {
		iterLog.LLMInput = string(b)
		slog.Info("COORDINATOR: Sending prompt to LLM",
			"iteration", iter,
			"messages_count", len(prompt.Messages),
			"tools_count", len(prompt.Tools),
			"prompt_size_bytes", len(b),
			"last_message_preview", lastMessagePreview(prompt),
		)
	}

	res, err := c.llm.Invoke(ctx, *prompt)
	if err != nil {
		iterLog.Error = err.Error()
		return "", false, fmt.Errorf("invoke failed: %w", err)
	}
	iterLog.LLMOutput = res

	slog.Info("COORDINATOR: LLM response received",
		"iteration", iter,
		"content_length", len(res.Content),
		"tool_calls", len(res.ToolCalls),
	)

	if len(res.ToolCalls) == 0 {
		final := strings.TrimSpace(res.Content)
		if final == "" {
			slog.Info("COORDINATOR: Empty response; asking for an answer", "iteration", iter)
			prompt.appendUserText(hintText("empty_response",
				"Reply with either a tool call or your final answer."))
			iterLog.Error = "empty response"
			return "", false, nil
		}

		if missing := prompt.MissingToolResults(c.required); len(missing) > 0 {
			slog.Info("COORDINATOR: Missing required tool results; nudging model to call tools", "iteration", iter, "missing", missing)
			prompt.Messages = append(prompt.Messages, textMessage("assistant", final))
			prompt.appendUserText(hintText("missing_tool_results",
				fmt.Sprintf("Call %s before answering. Answers must be based on tool results.", strings.Join(missing, ", "))))
			return "", false, nil
		}

		slog.Info("COORDINATOR: Content looks final; ending run", "iteration", iter)
		span.AddEvent("Final response accepted")
		return final, true, nil
	}

	prompt.Messages = append(prompt.Messages, toolUseMessage(res))

	for _, call := range res.ToolCalls {
		if n := calls[callKey(call)]; n >= maxRepeatedCalls {
			slog.Warn("COORDINATOR: Excessive tool repetition detected", "tool", call.Name, "count", n+1, "iteration", iter)
			prompt.Messages = append(prompt.Messages, repetitionResults(res.ToolCalls))
			iterLog.Error = "excessive tool repetition"
			return "", false, nil
		}
	}
	for _, call := range res.ToolCalls {
		calls[callKey(call)]++
	}

	results := make([]ToolResult, 0, len(res.ToolCalls))
	for _, call := range res.ToolCalls {
		toolLog, result := c.execute(ctx, iter, call)
		iterLog.ToolCalls = append(iterLog.ToolCalls, toolLog)
		results = append(results, result)
	}
	prompt.Messages = append(prompt.Messages, NewToolResultMessage(results))
	return "", false, nil
}

// execute runs one tool call. Failures are reported back to the model as error results.
func (c *Coordinator) execute(ctx context.Context, iter int, call tools.Call) (nutriagent.ToolCallLog, ToolResult) {
	slog.Info("COORDINATOR: Handling tool call", "name", call.Name, "iteration", iter)
	toolLog := nutriagent.ToolCallLog{Name: call.Name, Input: call.Input}

	tool, err := c.toolProvider.GetTool(call.Name)
	if err != nil {
		toolLog.Error = err.Error()
		return toolLog, ToolResult{
			ToolUseID: call.ToolUseID,
			ToolName:  call.Name,
			Data:      map[string]any{"error": fmt.Sprintf("tool %q not found: %v", call.Name, err)},
			IsError:   true,
		}
	}

	result, err := tool.Run(ctx, call.Input)
	if err != nil {
		toolLog.Error = err.Error()
		return toolLog, ToolResult{
			ToolUseID: call.ToolUseID,
			ToolName:  tool.Name(),
			Data:      map[string]any{"error": fmt.Sprintf("tool %q failed: %v", call.Name, err)},
			IsError:   true,
		}
	}

	toolLog.Output = result
	return toolLog, ToolResult{ToolUseID: call.ToolUseID, ToolName: tool.Name(), Data: result}
}

func hintText(kind, hint string) string {
	b, _ := json.Marshal(map[string]string{"error": kind, "hint": hint})
	return string(b)
}

// toolUseMessage records the assistant turn that requested calls.
func toolUseMessage(res Response) Message {
	msg := Message{Role: "assistant", Content: MessageParts{}}
	if strings.TrimSpace(res.Content) != "" {
		msg.Content = append(msg.Content, MessagePart{Type: "text", Text: res.Content})
	}
	for _, call := range res.ToolCalls {
		msg.Content = append(msg.Content, MessagePart{
			Type:      "tool_use",
			ToolUseID: call.ToolUseID,
			ToolName:  call.Name,
			Data:      call.Input,
		})
	}
	return msg
}

// repetitionResults answers every requested call with an error result instead of running it.
// Each tool_use must be answered before the conversation can continue.
func repetitionResults(calls []tools.Call) Message {
	results := make([]ToolResult, 0, len(calls))
	for _, call := range calls {
		results = append(results, ToolResult{
			ToolUseID: call.ToolUseID,
			ToolName:  call.Name,
			Data: map[string]any{
				"error": "excessive_tool_repetition",
				"hint":  "You already have the result of this lookup. Use the existing tool results to answer.",
			},
			IsError: true,
		})
	}
	return NewToolResultMessage(results)
}

// callKey identifies a call by name and input. encoding/json sorts map keys, so equal inputs
// produce equal keys.
func callKey(call tools.Call) string {
	b, _ := json.Marshal(call.Input)
	return call.Name + ":" + string(b)
}

func lastMessagePreview(prompt *Prompt) string {
	if len(prompt.Messages) == 0 {
		return "no content"
	}
	text := prompt.Messages[len(prompt.Messages)-1].Content.Join()
	if text == "" {
		return "no content"
	}
	if len(text) > 100 {
		return text[:97] + "..."
	}
	return text
}

func (c *Coordinator) logIteration(iter *nutriagent.IterationLog) {
	if err := c.logger.LogIteration(*iter); err != nil {
		slog.Error("COORDINATOR: Failed to log coordination iteration", "error", err, "iteration", iter.Iteration)
	}
}
