package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"nutriagent/tools"
)

// LLMClient is a deterministic stand-in for a model. It looks up the task text with
// nutrients_get and then summarizes what came back. It never calls the network.
type LLMClient struct{}

func NewLLMClient() *LLMClient {
	return &LLMClient{}
}

func (m *LLMClient) Invoke(ctx context.Context, prompt Prompt) (Response, error) {
	slog.Info("LLM_CLIENT: Invoked", "messages_len", len(prompt.Messages))

	results := prompt.ToolResults(tools.NutrientsGetToolName)
	if len(results) == 0 {
		term := ""
		if len(prompt.Messages) > 0 {
			term = strings.TrimSpace(prompt.Messages[0].Content.Join())
		}
		b, err := json.Marshal(map[string]any{
			"tool_calls": []tools.Call{{
				Name:  tools.NutrientsGetToolName,
				Input: map[string]any{"search_term": term},
			}},
		})
		if err != nil {
			return Response{}, err
		}
		slog.Info("LLM_CLIENT: Returning plan for nutrients_get", "search_term", term)
		return Response{Content: string(b)}, nil
	}

	slog.Info("LLM_CLIENT: Returning final summary")
	return Response{Content: summarize(results[len(results)-1])}, nil
}

func summarize(data map[string]any) string {
	term, _ := data["search_term"].(string)
	groups, _ := data["nutrients"].(map[string]any)
	if len(groups) == 0 {
		return fmt.Sprintf("No nutrient data found for %q.", term)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("Found %d nutrients for %q: %s.", len(names), term, strings.Join(names, ", "))
}
