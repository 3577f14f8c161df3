package ollama

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instruments holds the coordinator metrics. A nil *instruments records nothing.
type instruments struct {
	runs               metric.Int64Counter
	runsCompleted      metric.Int64Counter
	runsFailed         metric.Int64Counter
	iterations         metric.Int64Counter
	toolCalls          metric.Int64Counter
	toolCallsFailed    metric.Int64Counter
	toolDeduplications metric.Int64Counter
	missingToolResults metric.Int64Counter
	emptyResponses     metric.Int64Counter

	promptSize     metric.Int64Gauge
	messagesInConv metric.Int64Gauge
	toolsAvailable metric.Int64Gauge

	runDuration       metric.Float64Histogram
	iterationDuration metric.Float64Histogram
	llmResponseTime   metric.Float64Histogram
	toolExecutionTime metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	var (
		m    instruments
		errs []error
	)
	counter := func(dst *metric.Int64Counter, name, desc string) {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		errs = append(errs, err)
		*dst = c
	}
	gauge := func(dst *metric.Int64Gauge, name, desc string) {
		g, err := meter.Int64Gauge(name, metric.WithDescription(desc))
		errs = append(errs, err)
		*dst = g
	}
	histogram := func(dst *metric.Float64Histogram, name, desc string) {
		h, err := meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		errs = append(errs, err)
		*dst = h
	}

	counter(&m.runs, "coordinator_runs_total", "Coordination runs started")
	counter(&m.runsCompleted, "coordinator_runs_completed_total", "Coordination runs that produced a final answer")
	counter(&m.runsFailed, "coordinator_runs_failed_total", "Coordination runs that failed")
	counter(&m.iterations, "coordinator_iterations_total", "Coordination iterations")
	counter(&m.toolCalls, "tool_calls_total", "Tool calls executed")
	counter(&m.toolCallsFailed, "tool_calls_failed_total", "Tool calls that failed")
	counter(&m.toolDeduplications, "tool_deduplications_total", "Duplicate tool calls dropped")
	counter(&m.missingToolResults, "missing_tool_results_total", "Final answers rejected for missing tool results")
	counter(&m.emptyResponses, "empty_responses_total", "Empty responses received from the LLM")

	gauge(&m.promptSize, "prompt_size_bytes", "Size of the prompt sent to the LLM")
	gauge(&m.messagesInConv, "messages_in_conversation", "Messages in the current conversation")
	gauge(&m.toolsAvailable, "tools_available_count", "Tools offered to the LLM")

	histogram(&m.runDuration, "coordination_duration_seconds", "Duration of a coordination run")
	histogram(&m.iterationDuration, "iteration_duration_seconds", "Duration of a coordination iteration")
	histogram(&m.llmResponseTime, "llm_response_time_seconds", "Time to receive an LLM response")
	histogram(&m.toolExecutionTime, "tool_execution_time_seconds", "Time to execute a tool")

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *instruments) runStarted(ctx context.Context, tools int) {
	if m == nil {
		return
	}
	m.runs.Add(ctx, 1)
	m.toolsAvailable.Record(ctx, int64(tools))
}

func (m *instruments) runFinished(ctx context.Context, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.runDuration.Record(ctx, elapsed.Seconds())
	if err != nil {
		m.runsFailed.Add(ctx, 1)
		return
	}
	m.runsCompleted.Add(ctx, 1)
}

func (m *instruments) iterationFinished(ctx context.Context, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.iterations.Add(ctx, 1)
	m.iterationDuration.Record(ctx, elapsed.Seconds())
}

func (m *instruments) promptSent(ctx context.Context, size, messages int) {
	if m == nil {
		return
	}
	m.promptSize.Record(ctx, int64(size))
	m.messagesInConv.Record(ctx, int64(messages))
}

func (m *instruments) llmResponded(ctx context.Context, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.llmResponseTime.Record(ctx, elapsed.Seconds())
}

func (m *instruments) emptyResponse(ctx context.Context) {
	if m == nil {
		return
	}
	m.emptyResponses.Add(ctx, 1)
}

func (m *instruments) missingResults(ctx context.Context, missing int) {
	if m == nil {
		return
	}
	m.missingToolResults.Add(ctx, int64(missing))
}

func (m *instruments) deduplicated(ctx context.Context, dropped int) {
	if m == nil || dropped == 0 {
		return
	}
	m.toolDeduplications.Add(ctx, int64(dropped))
}

func (m *instruments) toolExecuted(ctx context.Context, name string, elapsed time.Duration, errorType string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool_name", name))
	m.toolCalls.Add(ctx, 1, attrs)
	m.toolExecutionTime.Record(ctx, elapsed.Seconds(), attrs)
	if errorType != "" {
		m.toolCallsFailed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool_name", name),
			attribute.String("error_type", errorType),
		))
	}
}
