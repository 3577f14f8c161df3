package mock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutriagent"
	"nutriagent/nutrients"
	"nutriagent/tools"
)

const testInstructions = "Report nutrients using nutrients_get."

type stubLookup struct {
	grouped *nutrients.Grouped
	terms   []string
}

func (s *stubLookup) Lookup(ctx context.Context, term string) *nutrients.Grouped {
	s.terms = append(s.terms, term)
	return s.grouped
}

type recordingLogger struct {
	iterations []nutriagent.IterationLog
}

func (r *recordingLogger) LogIteration(iteration nutriagent.IterationLog) error {
	r.iterations = append(r.iterations, iteration)
	return nil
}

type scriptedLLM struct {
	outputs []string
	calls   int
	err     error
}

func (s *scriptedLLM) Invoke(ctx context.Context, prompt Prompt) (Response, error) {
	if s.err != nil {
		return Response{}, s.err
	}
	out := s.outputs[s.calls%len(s.outputs)]
	s.calls++
	return Response{Content: out}, nil
}

func newRegistry(t *testing.T, lookup tools.NutrientLookup) *tools.Registry {
	t.Helper()
	registry, err := tools.NewRegistry(lookup)
	require.NoError(t, err)
	return registry
}

func TestCoordinator_Run_WithMockLLM(t *testing.T) {
	lookup := &stubLookup{grouped: nutrients.Group(nutrients.FlatFromPairs(
		nutrients.Pair{Key: "sugars_value", Value: 10.6},
		nutrients.Pair{Key: "sugars_unit", Value: "g"},
		nutrients.Pair{Key: "energy-kcal_value", Value: 42.0},
	))}
	logger := &recordingLogger{}

	coord := NewCoordinator(NewLLMClient(), newRegistry(t, lookup), testInstructions, 5, logger)

	result, err := coord.Run(context.Background(), "coca cola")
	require.NoError(t, err)

	assert.Equal(t, `Found 2 nutrients for "coca cola": energy-kcal, sugars.`, result)
	assert.Equal(t, []string{"coca cola"}, lookup.terms)

	require.Len(t, logger.iterations, 2)
	require.Len(t, logger.iterations[0].ToolCalls, 1)
	assert.Equal(t, "nutrients_get", logger.iterations[0].ToolCalls[0].Name)
	assert.Equal(t, logger.iterations[0].RunID, logger.iterations[1].RunID)
}

func TestCoordinator_Run_NoData(t *testing.T) {
	coord := NewCoordinator(NewLLMClient(), newRegistry(t, &stubLookup{}), testInstructions, 5, nil)

	result, err := coord.Run(context.Background(), "unobtainium")
	require.NoError(t, err)
	assert.Equal(t, `No nutrient data found for "unobtainium".`, result)
}

func TestCoordinator_Run_Errors(t *testing.T) {
	tests := []struct {
		name        string
		llm         llmClient
		maxIter     int
		expectedErr error
	}{
		{
			name:        "never calls the tool",
			llm:         &scriptedLLM{outputs: []string{"It has sugar."}},
			maxIter:     3,
			expectedErr: nutriagent.ErrMaxIterations,
		},
		{
			name:    "unknown tool",
			llm:     &scriptedLLM{outputs: []string{`{"tool_calls":[{"name":"unknown_tool","input":{}}]}`}},
			maxIter: 3,
		},
		{
			name:    "empty output",
			llm:     &scriptedLLM{outputs: []string{"   "}},
			maxIter: 3,
		},
		{
			name:    "llm error",
			llm:     &scriptedLLM{err: errors.New("offline")},
			maxIter: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coord := NewCoordinator(tt.llm, newRegistry(t, &stubLookup{}), testInstructions, tt.maxIter, nil)

			_, err := coord.Run(context.Background(), "cola")
			require.Error(t, err)
			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
			}
		})
	}
}

func TestNewPrompt(t *testing.T) {
	prompt, err := NewPrompt(testInstructions, "cola", newRegistry(t, &stubLookup{}))
	require.NoError(t, err)

	assert.Contains(t, prompt.System, testInstructions)
	assert.Contains(t, prompt.System, `{"tool_calls":`)
	require.Len(t, prompt.Tools, 1)
	assert.Equal(t, "nutrients_get", prompt.Tools[0].Name)
	require.Len(t, prompt.Messages, 1)
	assert.Equal(t, "cola", prompt.Messages[0].Content.Join())

	_, err = NewPrompt("", "cola", newRegistry(t, &stubLookup{}))
	assert.Error(t, err)
}
