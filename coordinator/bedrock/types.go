package bedrock

import (
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"nutriagent/tools"
)

// Tool is a tool as offered through the Converse tool configuration.
type Tool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}

// MessagePart is one content block. Type is "text", "tool_use" or "tool_result".
type MessagePart struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

type MessageParts []MessagePart

func (mp MessageParts) Join() string {
	var b strings.Builder
	for _, part := range mp {
		if part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

type Message struct {
	Role    string       `json:"role"`
	Content MessageParts `json:"content"`
}

func textMessage(role, text string) Message {
	return Message{Role: role, Content: MessageParts{{Type: "text", Text: text}}}
}

type ToolResult struct {
	ToolUseID string
	ToolName  string
	Data      map[string]any
	IsError   bool
}

// NewToolResultMessage answers the tool uses of the previous assistant turn in one user message.
func NewToolResultMessage(results []ToolResult) Message {
	parts := make(MessageParts, 0, len(results))
	for _, r := range results {
		parts = append(parts, MessagePart{
			Type:      "tool_result",
			ToolUseID: r.ToolUseID,
			ToolName:  r.ToolName,
			Data:      r.Data,
			IsError:   r.IsError,
		})
	}
	return Message{Role: "user", Content: parts}
}

type Response struct {
	Content   string       `json:"content,omitempty"`
	ToolCalls []tools.Call `json:"tool_calls,omitempty"`
}
