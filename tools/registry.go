package tools

import (
	"errors"
	"fmt"
	"sort"
)

// Registry maps tool names to implementations
type Registry map[string]Tool

// NewRegistry creates a registry holding the nutrient lookup tool.
func NewRegistry(lookup NutrientLookup) (*Registry, error) {
	if lookup == nil {
		return nil, errors.New("nutrient lookup is required")
	}

	tools := map[string]Tool{
		NutrientsGetToolName: NewNutrientsGet(lookup),
	}

	registry := Registry(tools)
	return &registry, nil
}

// GetTools returns all tools sorted by name so prompts built from them are stable.
func (r *Registry) GetTools() []Tool {
	tools := make([]Tool, 0, len(*r))
	for _, tool := range *r {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

func (r Registry) GetTool(name string) (Tool, error) {
	tool, exists := r[name]
	if !exists {
		return nil, fmt.Errorf("tool %q not found in registry", name)
	}
	return tool, nil
}
