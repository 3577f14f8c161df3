package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"nutriagent"
)

type options struct {
	Temperature   float64 `json:"temperature,omitempty"`
	TopP          float64 `json:"top_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty"`
	NumCtx        int     `json:"num_ctx,omitempty"`
}

// Client talks to Ollama's native /api/chat endpoint without streaming.
type Client struct {
	endpoint     string
	model        string
	systemPrompt string
	httpClient   nutriagent.HTTPClient
	options      options
}

type ClientOpts struct {
	BaseEndpoint string
	ModelID      string
	// Prompt supplies the system message used for every request.
	Prompt      Prompt
	HTTPClient  nutriagent.HTTPClient
	Temperature float32
	TopP        float32
}

func NewClient(opts ClientOpts) (*Client, error) {
	if len(opts.Prompt.Messages) == 0 || opts.Prompt.Messages[0].Role != "system" {
		return nil, errors.New("invalid system prompt")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	o := options{Temperature: 0.2, TopP: 0.9, RepeatPenalty: 1.05, NumCtx: 16384}
	if opts.Temperature > 0 {
		o.Temperature = float64(opts.Temperature)
	}
	if opts.TopP > 0 {
		o.TopP = float64(opts.TopP)
	}

	return &Client{
		model:        opts.ModelID,
		systemPrompt: opts.Prompt.Messages[0].Content,
		httpClient:   opts.HTTPClient,
		endpoint:     strings.TrimRight(opts.BaseEndpoint, "/") + "/api/chat",
		options:      o,
	}, nil
}

type wireToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Name      string         `json:"name,omitempty"`
	ToolCalls []wireToolCall `json:"tool_calls,omitempty"`
}

type wireRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Tools    []Tool    `json:"tools,omitempty"`
	Stream   bool      `json:"stream"`
	Options  options   `json:"options,omitempty"`
}

type wireResponse struct {
	Message wireMessage `json:"message"`
}

// Invoke sends the conversation and returns either the model's content or its tool calls.
// Deciding whether content is final is left to the Coordinator.
func (c *Client) Invoke(ctx context.Context, prompt Prompt) (Response, error) {
	slog.Info("LLM_CLIENT: Invoked", "model", c.model, "messages_len", len(prompt.Messages))

	reqBytes, err := json.Marshal(wireRequest{
		Model:    c.model,
		Messages: c.buildMessages(prompt),
		Tools:    prompt.Tools,
		Options:  c.options,
	})
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("LLM_CLIENT: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, fmt.Errorf("LLM_CLIENT: %s: %s", resp.Status, string(body))
	}

	return decodeResponse(body), nil
}

// decodeResponse falls back to the raw body as content when it is not a chat response.
func decodeResponse(body []byte) Response {
	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		slog.Warn("LLM_CLIENT: decode failed, returning raw", "err", err, "body", string(body))
		return Response{Content: string(body)}
	}

	res := Response{Content: wr.Message.Content}
	for _, call := range wr.Message.ToolCalls {
		res.ToolCalls = append(res.ToolCalls, ToolCall{
			Name: call.Function.Name,
			Args: call.Function.Arguments,
		})
	}
	return res
}

// buildMessages puts the client's system prompt first and keeps user, assistant and named
// tool messages. System messages in the history are replaced by the client's.
func (c *Client) buildMessages(prompt Prompt) []Message {
	messages := make([]Message, 0, len(prompt.Messages)+1)
	if sp := strings.TrimSpace(c.systemPrompt); sp != "" {
		messages = append(messages, Message{Role: "system", Content: sp})
	}

	for _, m := range prompt.Messages {
		switch m.Role {
		case "system":
			continue
		case "user", "assistant":
			messages = append(messages, Message{Role: m.Role, Content: m.Content})
		case "tool":
			if strings.TrimSpace(m.Name) == "" {
				slog.Warn("LLM_CLIENT: dropping tool message without name")
				continue
			}
			messages = append(messages, m)
		default:
			slog.Warn("LLM_CLIENT: unknown role, coercing to user", "role", m.Role)
			messages = append(messages, Message{Role: "user", Content: m.Content})
		}
	}
	return messages
}
