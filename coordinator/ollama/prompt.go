package ollama

import (
	"errors"
	"fmt"
	"strings"

	"nutriagent"
)

// NewPrompt starts a conversation from the agent instructions and the user's task, offering
// every tool of tp in Ollama's function format.
func NewPrompt(instructions, task string, tp nutriagent.ToolProvider) (Prompt, error) {
	if strings.TrimSpace(instructions) == "" {
		return Prompt{}, errors.New("instructions are required")
	}

	available := tp.GetTools()
	ollamaTools := make([]Tool, 0, len(available))
	for _, tool := range available {
		schema := tool.InputSchema()
		parameters := map[string]any{
			"type":       "object",
			"properties": schema.Properties,
		}
		if len(schema.Required) > 0 {
			parameters["required"] = schema.Required
		}

		ollamaTools = append(ollamaTools, Tool{
			Type: "function",
			Function: ToolSchema{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  parameters,
			},
		})
	}

	return Prompt{
		Messages: []Message{
			{Role: "system", Content: instructions},
			{Role: "user", Content: task},
		},
		Tools: ollamaTools,
	}, nil
}

// nudge asks the model to call the tools it skipped before answering.
func nudge(missing []string) Message {
	return Message{
		Role: "user",
		Content: fmt.Sprintf(
			"Before finalizing, call %s natively for every product mentioned in the task. "+
				"Base your answer only on the returned nutrients.",
			strings.Join(missing, " and "),
		),
	}
}
