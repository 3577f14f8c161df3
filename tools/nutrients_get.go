package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"nutriagent/nutrients"
)

const NutrientsGetToolName = "nutrients_get"

// NutrientLookup resolves a product search term to grouped nutrients.
type NutrientLookup interface {
	Lookup(ctx context.Context, term string) *nutrients.Grouped
}

type nutrientsGetInput struct {
	SearchTerm string `json:"search_term" validate:"required,max=200"`
}

type NutrientsGet struct {
	lookup   NutrientLookup
	validate *validator.Validate
}

func NewNutrientsGet(lookup NutrientLookup) *NutrientsGet {
	return &NutrientsGet{lookup: lookup, validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (t *NutrientsGet) Name() string  { return NutrientsGetToolName }
func (t *NutrientsGet) Title() string { return "Get Product Nutrients" }
func (t *NutrientsGet) Description() string {
	return "Searches Open Food Facts for a product and returns the nutrients of the best match, " +
		"grouped by nutrient with value, unit and serving entries. " +
		"An empty nutrients object means nothing usable was found."
}

func (t *NutrientsGet) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"search_term": {
				Type:        "string",
				Description: "Free-text product name, e.g. \"greek yogurt\"",
			},
		},
		Required: []string{"search_term"},
	}
}

func (t *NutrientsGet) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"search_term": {Type: "string"},
			"nutrients": {
				Type: "object",
				AdditionalProperties: &jsonschema.Schema{
					Type:                 "object",
					AdditionalProperties: &jsonschema.Schema{},
				},
			},
		},
		Required: []string{"search_term", "nutrients"},
	}
}

// Run never returns an error: bad input and failed lookups both produce an empty nutrients
// object, so the model can carry on.
func (t *NutrientsGet) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	in, err := t.decode(input)
	if err != nil {
		slog.Warn("TOOL: Invalid nutrients_get input", "input", input, "error", err)
		return map[string]any{
			"search_term": in.SearchTerm,
			"nutrients":   nutrients.NewGrouped(),
		}, nil
	}

	grouped := t.lookup.Lookup(ctx, in.SearchTerm)
	if grouped == nil {
		grouped = nutrients.NewGrouped()
	}
	slog.Info("TOOL: nutrients_get", "search_term", in.SearchTerm, "groups", grouped.Len())

	return map[string]any{
		"search_term": in.SearchTerm,
		"nutrients":   grouped,
	}, nil
}

func (t *NutrientsGet) decode(input map[string]any) (nutrientsGetInput, error) {
	var in nutrientsGetInput
	b, err := json.Marshal(input)
	if err != nil {
		return in, err
	}
	if err := json.Unmarshal(b, &in); err != nil {
		return in, err
	}
	in.SearchTerm = strings.TrimSpace(in.SearchTerm)
	return in, t.validate.Struct(in)
}
