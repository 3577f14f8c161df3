package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithydocument "github.com/aws/smithy-go/document"

	"nutriagent/tools"
)

const (
	// An inference profile ID, not a foundation model ID.
	defaultModelID = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"

	defaultMaxTokens   = 1024
	defaultTemperature = 0.2
	defaultTopP        = 0.9
)

var (
	ErrMaxTokens = errors.New("model hit MaxTokens limit")
	ErrBlocked   = errors.New("model response blocked by Bedrock safety filters")
)

type bedrockRuntimeClient interface {
	Converse(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type LLMOptions struct {
	ModelID     string
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type LLMClient struct {
	brc  bedrockRuntimeClient
	opts LLMOptions
}

func NewLLMClient(brc bedrockRuntimeClient, opts LLMOptions) *LLMClient {
	if opts.ModelID == "" {
		opts.ModelID = defaultModelID
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Temperature == 0 {
		opts.Temperature = defaultTemperature
	}
	if opts.TopP == 0 {
		opts.TopP = defaultTopP
	}
	return &LLMClient{brc: brc, opts: opts}
}

func (c *LLMClient) Invoke(ctx context.Context, prompt Prompt) (Response, error) {
	slog.Info("LLM_CLIENT: Invoked", "model", c.opts.ModelID, "messages_len", len(prompt.Messages))

	in, err := c.converseInput(prompt)
	if err != nil {
		return Response{}, err
	}

	out, err := c.brc.Converse(ctx, in)
	if err != nil {
		slog.Error("LLM_CLIENT: Bedrock converse failed", "error", err)
		return Response{}, err
	}

	attrs := []any{"stop_reason", out.StopReason}
	if out.Metrics != nil {
		attrs = append(attrs, "latency_ms", aws.ToInt64(out.Metrics.LatencyMs))
	}
	if out.Usage != nil {
		attrs = append(attrs,
			"input_tokens", aws.ToInt32(out.Usage.InputTokens),
			"output_tokens", aws.ToInt32(out.Usage.OutputTokens),
		)
	}
	slog.Info("LLM_CLIENT: Bedrock converse succeeded", attrs...)

	switch out.StopReason {
	case types.StopReasonToolUse:
		calls := toolCallsFromOutput(out)
		slog.Info("LLM_CLIENT: Extracted tool calls", "calls_len", len(calls))
		return Response{Content: textFromOutput(out), ToolCalls: calls}, nil

	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return Response{Content: textFromOutput(out)}, nil

	case types.StopReasonMaxTokens:
		slog.Warn("LLM_CLIENT: Model hit MaxTokens limit", "max_tokens", c.opts.MaxTokens)
		return Response{}, ErrMaxTokens

	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		slog.Warn("LLM_CLIENT: Model response blocked", "stop_reason", out.StopReason)
		return Response{}, ErrBlocked

	default:
		return Response{Content: textFromOutput(out), ToolCalls: toolCallsFromOutput(out)}, nil
	}
}

func (c *LLMClient) converseInput(prompt Prompt) (*bedrockruntime.ConverseInput, error) {
	var sys []types.SystemContentBlock
	var msgs []types.Message

	for _, m := range prompt.Messages {
		if m.Role == "system" {
			sys = append(sys, &types.SystemContentBlockMemberText{Value: m.Content.Join()})
			continue
		}

		msg := types.Message{Role: types.ConversationRole(m.Role)}
		for _, part := range m.Content {
			block, err := contentBlock(part)
			if err != nil {
				return nil, err
			}
			if block != nil {
				msg.Content = append(msg.Content, block)
			}
		}
		msgs = append(msgs, msg)
	}

	var specs []types.Tool
	for _, t := range prompt.Tools {
		spec, err := buildToolSpec(t)
		if err != nil {
			slog.Error("LLM_CLIENT: Failed to build tool spec", "error", err)
			continue
		}
		specs = append(specs, &types.ToolMemberToolSpec{Value: spec})
	}

	in := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(c.opts.ModelID),
		System:   sys,
		Messages: msgs,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens:   aws.Int32(c.opts.MaxTokens),
			Temperature: aws.Float32(c.opts.Temperature),
			TopP:        aws.Float32(c.opts.TopP),
		},
	}
	if len(specs) > 0 {
		in.ToolConfig = &types.ToolConfiguration{Tools: specs, ToolChoice: &types.ToolChoiceMemberAuto{}}
	}
	return in, nil
}

// contentBlock converts a part to a Converse block. Tool results are sent as JSON text so
// nutrient order survives; documents would reorder object keys.
func contentBlock(part MessagePart) (types.ContentBlock, error) {
	switch part.Type {
	case "text":
		if part.Text == "" {
			return nil, nil
		}
		return &types.ContentBlockMemberText{Value: part.Text}, nil

	case "tool_use":
		input, err := plainMap(part.Data)
		if err != nil {
			return nil, fmt.Errorf("tool_use %s input: %w", part.ToolUseID, err)
		}
		return &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: aws.String(part.ToolUseID),
			Name:      aws.String(part.ToolName),
			Input:     document.NewLazyDocument(input),
		}}, nil

	case "tool_result":
		payload, err := json.Marshal(part.Data)
		if err != nil {
			return nil, fmt.Errorf("tool_result %s: %w", part.ToolUseID, err)
		}
		status := types.ToolResultStatusSuccess
		if part.IsError {
			status = types.ToolResultStatusError
		}
		return &types.ContentBlockMemberToolResult{Value: types.ToolResultBlock{
			ToolUseId: aws.String(part.ToolUseID),
			Status:    status,
			Content: []types.ToolResultContentBlock{
				&types.ToolResultContentBlockMemberText{Value: string(payload)},
			},
		}}, nil

	default:
		slog.Warn("LLM_CLIENT: Skipping unknown content part", "type", part.Type)
		return nil, nil
	}
}

// plainMap round-trips v through JSON so the document encoder only sees maps, slices and
// scalars.
func plainMap(v map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if v == nil {
		return out, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return out, json.Unmarshal(b, &out)
}

func buildToolSpec(t Tool) (types.ToolSpecification, error) {
	// The schema has its own MarshalJSON, which the document encoder does not use.
	schemaJSON, err := json.Marshal(t.InputSchema)
	if err != nil {
		return types.ToolSpecification{}, fmt.Errorf("failed to marshal tool schema for %s: %w", t.Name, err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return types.ToolSpecification{}, fmt.Errorf("failed to unmarshal tool schema for %s: %w", t.Name, err)
	}

	return types.ToolSpecification{
		Name:        aws.String(t.Name),
		Description: aws.String(t.Description),
		InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schemaMap)},
	}, nil
}

// textFromOutput joins the assistant's non-empty text blocks with newlines.
func textFromOutput(out *bedrockruntime.ConverseOutput) string {
	msg, ok := outputMessage(out)
	if !ok {
		return ""
	}
	var texts []string
	for _, cb := range msg.Content {
		if t, ok := cb.(*types.ContentBlockMemberText); ok && strings.TrimSpace(t.Value) != "" {
			texts = append(texts, t.Value)
		}
	}
	return strings.Join(texts, "\n")
}

func toolCallsFromOutput(out *bedrockruntime.ConverseOutput) []tools.Call {
	msg, ok := outputMessage(out)
	if !ok {
		return nil
	}

	var calls []tools.Call
	for _, cb := range msg.Content {
		tu, ok := cb.(*types.ContentBlockMemberToolUse)
		if !ok {
			continue
		}

		input := map[string]any{}
		if tu.Value.Input != nil {
			if err := tu.Value.Input.UnmarshalSmithyDocument(&input); err != nil {
				slog.Warn("LLM_CLIENT: Unreadable tool input", "tool", aws.ToString(tu.Value.Name), "error", err)
				input = map[string]any{}
			}
		}

		calls = append(calls, tools.Call{
			Name:      aws.ToString(tu.Value.Name),
			Input:     normalizeInput(input).(map[string]any),
			ToolUseID: aws.ToString(tu.Value.ToolUseId),
		})
	}
	return calls
}

func outputMessage(out *bedrockruntime.ConverseOutput) (types.Message, bool) {
	if out == nil || out.Output == nil {
		return types.Message{}, false
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return types.Message{}, false
	}
	return msg.Value, true
}

// normalizeInput turns document numbers into plain Go numbers and decodes JSON arrays or
// objects that the model sent as strings. Other strings, numeric-looking ones included,
// are kept as-is since search terms like "100" are legitimate.
func normalizeInput(val any) any {
	switch v := val.(type) {
	case smithydocument.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
		f, _ := v.Float64()
		return f

	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
		return v

	case string:
		s := strings.TrimSpace(v)
		if len(s) > 1 && (s[0] == '[' || s[0] == '{') {
			var decoded any
			if json.Unmarshal([]byte(s), &decoded) == nil {
				return normalizeInput(decoded)
			}
		}
		return v

	case []any:
		for i := range v {
			v[i] = normalizeInput(v[i])
		}
		return v

	case map[string]any:
		for key, item := range v {
			v[key] = normalizeInput(item)
		}
		return v

	default:
		return v
	}
}
