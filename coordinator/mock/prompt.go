package mock

import (
	"errors"
	"strings"

	"nutriagent"
)

const toolCallFormat = `To call tools, reply with a single JSON object and nothing else:
{"tool_calls":[{"name":"<tool>","input":{...}}]}
Tool results come back as {"tool_result":"<tool>","data":{...}}.`

// NewPrompt builds a text-only prompt for models that cannot call tools natively.
func NewPrompt(instructions, task string, tp nutriagent.ToolProvider) (Prompt, error) {
	if strings.TrimSpace(instructions) == "" {
		return Prompt{}, errors.New("instructions are required")
	}

	var specs []ToolSpec
	for _, tool := range tp.GetTools() {
		specs = append(specs, ToolSpec{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}

	return Prompt{
		System:   instructions + "\n\n" + toolCallFormat,
		Messages: []Message{textMessage("user", task)},
		Tools:    specs,
	}, nil
}
