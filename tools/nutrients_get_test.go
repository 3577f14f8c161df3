package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nutriagent/nutrients"
)

type stubLookup struct {
	result *nutrients.Grouped
	terms  []string
}

func (s *stubLookup) Lookup(ctx context.Context, term string) *nutrients.Grouped {
	s.terms = append(s.terms, term)
	return s.result
}

func chipsNutrients() *nutrients.Grouped {
	return nutrients.Group(nutrients.FlatFromPairs(
		nutrients.Pair{Key: "fat_value", Value: 34.0},
		nutrients.Pair{Key: "fat_unit", Value: "g"},
		nutrients.Pair{Key: "energy-kcal_value", Value: 536.0},
		nutrients.Pair{Key: "energy-kcal_unit", Value: "kcal"},
	))
}

func TestNutrientsGet_Run(t *testing.T) {
	tests := []struct {
		name          string
		input         map[string]any
		result        *nutrients.Grouped
		expectedJSON  string
		expectedTerms []string
	}{
		{
			name:          "grouped nutrients for a product",
			input:         map[string]any{"search_term": "potato chips"},
			result:        chipsNutrients(),
			expectedJSON:  `{"search_term":"potato chips","nutrients":{"fat":{"value":34,"unit":"g"},"energy-kcal":{"value":536,"unit":"kcal"}}}`,
			expectedTerms: []string{"potato chips"},
		},
		{
			name:          "term is trimmed",
			input:         map[string]any{"search_term": "  oat milk "},
			result:        nutrients.NewGrouped(),
			expectedJSON:  `{"search_term":"oat milk","nutrients":{}}`,
			expectedTerms: []string{"oat milk"},
		},
		{
			name:          "nil lookup result",
			input:         map[string]any{"search_term": "unknown"},
			result:        nil,
			expectedJSON:  `{"search_term":"unknown","nutrients":{}}`,
			expectedTerms: []string{"unknown"},
		},
		{
			name:          "missing search term",
			input:         map[string]any{},
			expectedJSON:  `{"search_term":"","nutrients":{}}`,
			expectedTerms: nil,
		},
		{
			name:          "blank search term",
			input:         map[string]any{"search_term": "   "},
			expectedJSON:  `{"search_term":"","nutrients":{}}`,
			expectedTerms: nil,
		},
		{
			name:          "wrong type",
			input:         map[string]any{"search_term": 42.0},
			expectedJSON:  `{"search_term":"","nutrients":{}}`,
			expectedTerms: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := &stubLookup{result: tt.result}
			tool := NewNutrientsGet(lookup)

			out, err := tool.Run(context.Background(), tt.input)
			require.NoError(t, err)

			b, err := json.Marshal(out)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expectedJSON, string(b))
			assert.Equal(t, tt.expectedTerms, lookup.terms)
		})
	}
}

func TestNutrientsGet_KeepsNutrientOrder(t *testing.T) {
	tool := NewNutrientsGet(&stubLookup{result: chipsNutrients()})

	out, err := tool.Run(context.Background(), map[string]any{"search_term": "chips"})
	require.NoError(t, err)

	b, err := json.Marshal(out["nutrients"])
	require.NoError(t, err)
	assert.Equal(t, `{"fat":{"value":34,"unit":"g"},"energy-kcal":{"value":536,"unit":"kcal"}}`, string(b))
}

func TestNutrientsGet_TooLongTerm(t *testing.T) {
	lookup := &stubLookup{}
	tool := NewNutrientsGet(lookup)

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}
	_, err := tool.Run(context.Background(), map[string]any{"search_term": string(long)})

	require.NoError(t, err)
	assert.Empty(t, lookup.terms)
}

func TestNutrientsGet_Schemas(t *testing.T) {
	tool := NewNutrientsGet(&stubLookup{})

	assert.Equal(t, NutrientsGetToolName, tool.Name())
	assert.NotEmpty(t, tool.Title())
	assert.NotEmpty(t, tool.Description())
	assert.Equal(t, []string{"search_term"}, tool.InputSchema().Required)
	assert.Contains(t, tool.InputSchema().Properties, "search_term")
	assert.ElementsMatch(t, []string{"search_term", "nutrients"}, tool.OutputSchema().Required)
}
