package bedrock

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutriagent"
	"nutriagent/tools"
)

const testInstructions = "Answer nutrition questions using nutrients_get."

type mockLLM struct {
	responses []Response
	prompts   []Prompt
	err       error
}

func (m *mockLLM) Invoke(ctx context.Context, prompt Prompt) (Response, error) {
	if m.err != nil {
		return Response{}, m.err
	}
	msgs := make([]Message, len(prompt.Messages))
	copy(msgs, prompt.Messages)
	prompt.Messages = msgs
	m.prompts = append(m.prompts, prompt)
	if len(m.prompts) > len(m.responses) {
		return Response{}, errors.New("no more responses available")
	}
	return m.responses[len(m.prompts)-1], nil
}

type mockToolProvider struct {
	tools []tools.Tool
}

func (m *mockToolProvider) GetTools() []tools.Tool { return m.tools }

func (m *mockToolProvider) GetTool(name string) (tools.Tool, error) {
	for _, tool := range m.tools {
		if tool.Name() == name {
			return tool, nil
		}
	}
	return nil, fmt.Errorf("tool not found: %s", name)
}

type mockTool struct {
	name   string
	err    error
	inputs []map[string]any
}

func (m *mockTool) Name() string        { return m.name }
func (m *mockTool) Title() string       { return m.name }
func (m *mockTool) Description() string { return "Mock tool for testing" }

func (m *mockTool) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}

func (m *mockTool) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "object"}
}

func (m *mockTool) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	m.inputs = append(m.inputs, input)
	if m.err != nil {
		return nil, m.err
	}
	return map[string]any{"search_term": input["search_term"], "nutrients": map[string]any{}}, nil
}

type recordingLogger struct {
	iterations []nutriagent.IterationLog
}

func (l *recordingLogger) LogIteration(iteration nutriagent.IterationLog) error {
	l.iterations = append(l.iterations, iteration)
	return nil
}

func lookupCall(id, term string) tools.Call {
	return tools.Call{Name: tools.NutrientsGetToolName, ToolUseID: id, Input: map[string]any{"search_term": term}}
}

func newTestCoordinator(llm llmClient, tool *mockTool, maxIter int) (*Coordinator, *recordingLogger) {
	logger := &recordingLogger{}
	c := NewCoordinator(llm, &mockToolProvider{tools: []tools.Tool{tool}}, CoordinatorOpts{
		Instructions:  testInstructions,
		MaxIterations: maxIter,
		Logger:        logger,
	})
	return c, logger
}

func TestNewCoordinator_Defaults(t *testing.T) {
	c := NewCoordinator(&mockLLM{}, &mockToolProvider{}, CoordinatorOpts{})

	assert.Equal(t, 10, c.maxIterations)
	assert.Equal(t, nutriagent.RequiredTools, c.required)
	assert.NotNil(t, c.logger)
	assert.NotNil(t, c.tracer)
}

func TestCoordinator_Run(t *testing.T) {
	tool := &mockTool{name: tools.NutrientsGetToolName}
	llm := &mockLLM{responses: []Response{
		{ToolCalls: []tools.Call{lookupCall("tu-1", "chips")}},
		{Content: "Chips have 34 g of fat."},
	}}
	c, logger := newTestCoordinator(llm, tool, 5)

	out, err := c.Run(context.Background(), "fat in chips?")

	require.NoError(t, err)
	assert.Equal(t, "Chips have 34 g of fat.", out)
	assert.Equal(t, []map[string]any{{"search_term": "chips"}}, tool.inputs)

	require.Len(t, llm.prompts, 2)
	msgs := llm.prompts[1].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[2].Role)
	assert.Equal(t, "tool_use", msgs[2].Content[0].Type)
	assert.Equal(t, "user", msgs[3].Role)
	assert.Equal(t, "tool_result", msgs[3].Content[0].Type)
	assert.Equal(t, "tu-1", msgs[3].Content[0].ToolUseID)

	require.Len(t, logger.iterations, 2)
	assert.NotEmpty(t, logger.iterations[0].RunID)
	assert.Equal(t, logger.iterations[0].RunID, logger.iterations[1].RunID)
	assert.Len(t, logger.iterations[0].ToolCalls, 1)
}

func TestCoordinator_NudgesUntilLookupHappens(t *testing.T) {
	tool := &mockTool{name: tools.NutrientsGetToolName}
	llm := &mockLLM{responses: []Response{
		{Content: "Chips are fatty."},
		{ToolCalls: []tools.Call{lookupCall("tu-1", "chips")}},
		{Content: "Chips have 34 g of fat."},
	}}
	c, _ := newTestCoordinator(llm, tool, 5)

	out, err := c.Run(context.Background(), "fat in chips?")

	require.NoError(t, err)
	assert.Equal(t, "Chips have 34 g of fat.", out)

	last := llm.prompts[1].Messages[len(llm.prompts[1].Messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Contains(t, last.Content.Join(), "missing_tool_results")
}

func TestCoordinator_ToolErrorIsFedBack(t *testing.T) {
	tool := &mockTool{name: tools.NutrientsGetToolName, err: errors.New("boom")}
	llm := &mockLLM{responses: []Response{
		{ToolCalls: []tools.Call{lookupCall("tu-1", "chips"), {Name: "unknown", ToolUseID: "tu-2"}}},
		{Content: "Sorry."},
		{Content: "Still sorry."},
	}}
	c, _ := newTestCoordinator(llm, tool, 3)

	_, err := c.Run(context.Background(), "fat in chips?")

	assert.ErrorIs(t, err, nutriagent.ErrMaxIterations)

	results := llm.prompts[1].Messages[3].Content
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.IsError)
		assert.Contains(t, r.Data, "error")
	}
}

func TestCoordinator_RepetitionGuard(t *testing.T) {
	tool := &mockTool{name: tools.NutrientsGetToolName}
	same := Response{ToolCalls: []tools.Call{lookupCall("tu", "chips")}}
	llm := &mockLLM{responses: []Response{same, same, same, {Content: "Chips have 34 g of fat."}}}
	c, logger := newTestCoordinator(llm, tool, 5)

	out, err := c.Run(context.Background(), "fat in chips?")

	require.NoError(t, err)
	assert.Equal(t, "Chips have 34 g of fat.", out)
	assert.Len(t, tool.inputs, maxRepeatedCalls)
	assert.Equal(t, "excessive tool repetition", logger.iterations[2].Error)

	last := llm.prompts[3].Messages[len(llm.prompts[3].Messages)-1]
	assert.Equal(t, "user", last.Role)
	require.Len(t, last.Content, 1)
	assert.Equal(t, "tool_result", last.Content[0].Type)
	assert.Equal(t, "tu", last.Content[0].ToolUseID)
	assert.True(t, last.Content[0].IsError)
	assert.Equal(t, "excessive_tool_repetition", last.Content[0].Data["error"])
}

func TestCoordinator_RepetitionGuardCountsOnlyExecutedCalls(t *testing.T) {
	tool := &mockTool{name: tools.NutrientsGetToolName}
	chips := lookupCall("tu-chips", "chips")
	nuts := lookupCall("tu-nuts", "nuts")
	llm := &mockLLM{responses: []Response{
		{ToolCalls: []tools.Call{chips}},
		{ToolCalls: []tools.Call{chips}},
		{ToolCalls: []tools.Call{nuts, chips}},
		{ToolCalls: []tools.Call{nuts}},
		{ToolCalls: []tools.Call{nuts}},
		{Content: "Done."},
	}}
	c, logger := newTestCoordinator(llm, tool, 6)

	out, err := c.Run(context.Background(), "fat in chips and nuts?")

	require.NoError(t, err)
	assert.Equal(t, "Done.", out)
	assert.Equal(t, []map[string]any{
		{"search_term": "chips"},
		{"search_term": "chips"},
		{"search_term": "nuts"},
		{"search_term": "nuts"},
	}, tool.inputs)
	assert.Equal(t, "excessive tool repetition", logger.iterations[2].Error)
	assert.Empty(t, logger.iterations[4].Error)
}

func TestCoordinator_RolesAlternate(t *testing.T) {
	same := Response{ToolCalls: []tools.Call{lookupCall("tu", "chips")}}
	tests := []struct {
		name      string
		responses []Response
	}{
		{
			name:      "empty response first",
			responses: []Response{{}, same, {Content: "Done."}},
		},
		{
			name:      "empty response after tool results",
			responses: []Response{same, {Content: "  "}, {Content: "Done."}},
		},
		{
			name:      "answer before lookup",
			responses: []Response{{Content: "Guessing."}, same, {Content: "Done."}},
		},
		{
			name:      "repeated lookup",
			responses: []Response{same, same, same, {Content: "Done."}},
		},
		{
			name: "tool failure",
			responses: []Response{
				{ToolCalls: []tools.Call{{Name: "unknown", ToolUseID: "tu-x"}}},
				same,
				{Content: "Done."},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockLLM{responses: tt.responses}
			c, _ := newTestCoordinator(llm, &mockTool{name: tools.NutrientsGetToolName}, len(tt.responses))

			out, err := c.Run(context.Background(), "fat in chips?")

			require.NoError(t, err)
			assert.Equal(t, "Done.", out)
			for i, p := range llm.prompts {
				turns := p.Messages[1:]
				require.NotEmpty(t, turns)
				assert.Equal(t, "user", turns[0].Role, "prompt %d", i)
				for j := 1; j < len(turns); j++ {
					assert.NotEqual(t, turns[j-1].Role, turns[j].Role, "prompt %d: messages %d and %d", i, j, j+1)
				}
			}
		})
	}
}

func TestCoordinator_Errors(t *testing.T) {
	t.Run("llm error", func(t *testing.T) {
		c, logger := newTestCoordinator(&mockLLM{err: errors.New("throttled")}, &mockTool{name: tools.NutrientsGetToolName}, 3)

		_, err := c.Run(context.Background(), "fat in chips?")

		assert.ErrorContains(t, err, "throttled")
		require.Len(t, logger.iterations, 1)
		assert.Equal(t, "throttled", logger.iterations[0].Error)
	})

	t.Run("missing instructions", func(t *testing.T) {
		c := NewCoordinator(&mockLLM{}, &mockToolProvider{}, CoordinatorOpts{})

		_, err := c.Run(context.Background(), "fat in chips?")

		assert.ErrorContains(t, err, "instructions are required")
	})

	t.Run("max iterations", func(t *testing.T) {
		llm := &mockLLM{responses: []Response{{}, {}}}
		c, _ := newTestCoordinator(llm, &mockTool{name: tools.NutrientsGetToolName}, 2)

		out, err := c.Run(context.Background(), "fat in chips?")

		assert.Empty(t, out)
		assert.ErrorIs(t, err, nutriagent.ErrMaxIterations)
	})
}

func TestPrompt_MissingToolResults(t *testing.T) {
	p := Prompt{Messages: []Message{
		NewToolResultMessage([]ToolResult{{ToolUseID: "1", ToolName: "a", IsError: true}}),
		NewToolResultMessage([]ToolResult{{ToolUseID: "2", ToolName: "b"}}),
	}}

	assert.Equal(t, []string{"a", "c"}, p.MissingToolResults([]string{"a", "b", "c"}))
	assert.True(t, p.HasToolResult("b"))
}
