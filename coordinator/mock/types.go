package mock

import (
	"encoding/json"
	"strings"

	"nutriagent/tools"
)

type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type MessageParts []MessagePart

// Join concatenates the text parts.
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

// ToolSpec describes a tool to a model without native tool calling.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}

type Prompt struct {
	System   string     `json:"system"`
	Messages []Message  `json:"messages"`
	Tools    []ToolSpec `json:"tools"`
}

// toolResult is how tool output is fed back as text.
type toolResult struct {
	Tool string         `json:"tool_result"`
	Data map[string]any `json:"data"`
}

func newToolResultMessage(name string, data map[string]any) (Message, error) {
	b, err := json.Marshal(toolResult{Tool: name, Data: data})
	if err != nil {
		return Message{}, err
	}
	return textMessage("user", string(b)), nil
}

// ToolResults returns the data of every fed-back result of tool, oldest first.
func (p *Prompt) ToolResults(tool string) []map[string]any {
	var out []map[string]any
	for _, msg := range p.Messages {
		if msg.Role != "user" {
			continue
		}
		var tr toolResult
		if err := json.Unmarshal([]byte(msg.Content.Join()), &tr); err != nil || tr.Tool != tool {
			continue
		}
		out = append(out, tr.Data)
	}
	return out
}

// HasToolResultInContent reports whether a result of tool was fed back.
func (p *Prompt) HasToolResultInContent(tool string) bool {
	return len(p.ToolResults(tool)) > 0
}

// Response is the model output. ToolCalls are filled by ParseModelOutput.
type Response struct {
	Content   string       `json:"content,omitempty"`
	ToolCalls []tools.Call `json:"tool_calls,omitempty"`
}

// ParseModelOutput moves {"tool_calls":[...]} objects embedded in Content into ToolCalls and
// keeps the remaining text as Content. Other JSON objects stay in Content untouched.
func (r *Response) ParseModelOutput() error {
	s := strings.TrimSpace(r.Content)
	r.ToolCalls = nil
	if s == "" {
		r.Content = ""
		return nil
	}

	var content strings.Builder
	for i := 0; i < len(s); {
		start := strings.IndexByte(s[i:], '{')
		if start < 0 {
			content.WriteString(s[i:])
			break
		}
		start += i
		content.WriteString(s[i:start])

		end := matchingBrace(s, start)
		if end < 0 {
			content.WriteString(s[start:])
			break
		}

		obj := s[start : end+1]
		var probe struct {
			ToolCalls []tools.Call `json:"tool_calls"`
		}
		if err := json.Unmarshal([]byte(obj), &probe); err == nil && len(probe.ToolCalls) > 0 {
			r.ToolCalls = append(r.ToolCalls, probe.ToolCalls...)
		} else {
			content.WriteString(obj)
		}
		i = end + 1
	}

	r.Content = strings.TrimSpace(content.String())
	return nil
}

// matchingBrace returns the index of the brace closing the object opened at start, or -1.
// Braces inside JSON strings are ignored.
func matchingBrace(s string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
