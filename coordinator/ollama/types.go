package ollama

// Message is one entry of an Ollama chat. Tool results carry the tool name.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

// Prompt is the conversation so far plus the tools offered to the model.
type Prompt struct {
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
}

// HasToolResult reports whether a role "tool" message named tool is in the history.
func (p *Prompt) HasToolResult(tool string) bool {
	for _, msg := range p.Messages {
		if msg.Role == "tool" && msg.Name == tool {
			return true
		}
	}
	return false
}

// MissingToolResults returns the entries of required with no tool result in the history yet.
func (p *Prompt) MissingToolResults(required []string) []string {
	var missing []string
	for _, name := range required {
		if !p.HasToolResult(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

type Tool struct {
	Type     string     `json:"type"`
	Function ToolSchema `json:"function"`
}

type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Response struct {
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}
