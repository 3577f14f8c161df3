package bedrock

import (
	"errors"
	"strings"

	"nutriagent"
)

type Prompt struct {
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
}

func NewPrompt(instructions, task string, tp nutriagent.ToolProvider) (Prompt, error) {
	if strings.TrimSpace(instructions) == "" {
		return Prompt{}, errors.New("instructions are required")
	}

	available := tp.GetTools()
	bedrockTools := make([]Tool, 0, len(available))
	for _, tool := range available {
		bedrockTools = append(bedrockTools, Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: tool.InputSchema(),
		})
	}

	return Prompt{
		Messages: []Message{
			textMessage("system", instructions),
			textMessage("user", task),
		},
		Tools: bedrockTools,
	}, nil
}

// HasToolResult reports whether a successful tool_result block for tool is in the history.
func (p *Prompt) HasToolResult(tool string) bool {
	for _, msg := range p.Messages {
		for _, part := range msg.Content {
			if part.Type == "tool_result" && part.ToolName == tool && !part.IsError {
				return true
			}
		}
	}
	return false
}

func (p *Prompt) MissingToolResults(required []string) []string {
	var missing []string
	for _, name := range required {
		if !p.HasToolResult(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// appendUserText adds text to the conversation from the user side. Converse requires turns to
// alternate, so the text joins the last message when that is already a user turn.
func (p *Prompt) appendUserText(text string) {
	if n := len(p.Messages); n > 0 && p.Messages[n-1].Role == "user" {
		p.Messages[n-1].Content = append(p.Messages[n-1].Content, MessagePart{Type: "text", Text: text})
		return
	}
	p.Messages = append(p.Messages, textMessage("user", text))
}
