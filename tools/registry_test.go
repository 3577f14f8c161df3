package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	t.Run("requires a lookup", func(t *testing.T) {
		_, err := NewRegistry(nil)
		assert.Error(t, err)
	})

	t.Run("holds nutrients_get", func(t *testing.T) {
		registry, err := NewRegistry(&stubLookup{})
		require.NoError(t, err)

		tool, err := registry.GetTool(NutrientsGetToolName)
		require.NoError(t, err)
		assert.Equal(t, NutrientsGetToolName, tool.Name())

		all := registry.GetTools()
		require.Len(t, all, 1)
		assert.Equal(t, NutrientsGetToolName, all[0].Name())
	})

	t.Run("unknown tool", func(t *testing.T) {
		registry, err := NewRegistry(&stubLookup{})
		require.NoError(t, err)

		_, err = registry.GetTool("unknown_tool")
		assert.ErrorContains(t, err, `"unknown_tool" not found`)
	})
}

func TestRegistry_GetToolsSorted(t *testing.T) {
	base := NewNutrientsGet(&stubLookup{})
	registry := Registry{
		"zeta":               namedTool{Tool: base, name: "zeta"},
		NutrientsGetToolName: base,
		"alpha":              namedTool{Tool: base, name: "alpha"},
	}

	names := []string{}
	for _, tool := range registry.GetTools() {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"alpha", NutrientsGetToolName, "zeta"}, names)
}

type namedTool struct {
	Tool
	name string
}

func (n namedTool) Name() string { return n.name }
