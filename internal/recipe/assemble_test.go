package recipe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validRecipeJSON = `{
  "title": "Tomato Omelette",
  "ingredients": ["2 eggs", "1 tomato"],
  "steps": [
    {"title": "Whisk", "description": "Whisk the eggs.", "tools": ["bowl", "whisk"], "duration": 2},
    {"title": "Cook", "description": "Cook in a pan."}
  ]
}`

func fieldPaths(t *testing.T, err error) []string {
	t.Helper()
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	paths := make([]string, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		paths = append(paths, f.Path)
	}
	return paths
}

func TestAssembleDefaults(t *testing.T) {
	r, err := Assemble([]byte(validRecipeJSON))
	require.NoError(t, err)

	assert.Equal(t, "Tomato Omelette", r.Title)
	assert.Equal(t, "", r.Description)
	assert.Equal(t, []string{"2 eggs", "1 tomato"}, r.Ingredients)
	require.Len(t, r.Steps, 2)
	assert.Equal(t, []string{"bowl", "whisk"}, r.Steps[0].Tools)
	assert.Equal(t, []string{}, r.Steps[1].Tools)
	assert.Equal(t, 0, r.Steps[1].Duration)
	assert.Nil(t, r.Nutrition)
}

func TestAssembleWithNutrition(t *testing.T) {
	raw := `{"title": "Soup", "description": "Warm", "ingredients": ["water"],
		"steps": [{"title": "Boil", "description": "Boil water", "tools": ["pot"], "duration": 10}],
		"nutrition": {"calories_per_serving": 120.5, "protein_g": 3, "carbs_g": 20, "fat_g": 1, "fiber_g": 2, "servings": 4}}`
	r, err := Assemble([]byte(raw))
	require.NoError(t, err)
	require.NotNil(t, r.Nutrition)
	assert.Equal(t, NutritionInfo{CaloriesPerServing: 120.5, ProteinG: 3, CarbsG: 20, FatG: 1, FiberG: 2, Servings: 4}, *r.Nutrition)
}

func TestAssembleReportsEveryField(t *testing.T) {
	raw := `{"description": "x", "ingredients": [],
		"steps": [{"title": "ok", "description": "ok"}, {"description": "no title", "duration": -1}],
		"nutrition": {"calories_per_serving": -5, "servings": 0}}`
	_, err := Assemble([]byte(raw))

	paths := fieldPaths(t, err)
	assert.ElementsMatch(t, []string{
		"title",
		"ingredients",
		"steps[1].title",
		"steps[1].duration",
		"nutrition.calories_per_serving",
		"nutrition.servings",
	}, paths)
}

func TestAssembleRejectsMissingSteps(t *testing.T) {
	_, err := Assemble([]byte(`{"title": "Toast", "ingredients": ["bread"]}`))
	assert.Equal(t, []string{"steps"}, fieldPaths(t, err))
}

func TestAssembleRejectsBlankIngredient(t *testing.T) {
	raw := `{"title": "Toast", "ingredients": ["bread", "  "], "steps": [{"title": "Toast", "description": "Toast it"}]}`
	_, err := Assemble([]byte(raw))
	assert.Equal(t, []string{"ingredients[1]"}, fieldPaths(t, err))
}

func TestAssembleWrongType(t *testing.T) {
	raw := `{"title": 42, "ingredients": ["bread"], "steps": [{"title": "Toast", "description": "Toast it"}]}`
	_, err := Assemble([]byte(raw))
	assert.Equal(t, []string{"title"}, fieldPaths(t, err))
}

func TestAssembleNotAnObject(t *testing.T) {
	_, err := Assemble([]byte(`{"title": `))
	assert.Equal(t, []string{"$"}, fieldPaths(t, err))
}

func TestAssembleReportsEveryTypeMismatch(t *testing.T) {
	raw := `{
		"title": "Toast",
		"ingredients": ["bread", 2],
		"steps": [
			{"title": 1, "description": "Slice the bread"},
			{"title": "Toast", "description": "Toast it", "duration": "ten"},
			"stir"
		],
		"nutrition": {"calories_per_serving": "lots", "servings": 1}
	}`
	_, err := Assemble([]byte(raw))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	paths := fieldPaths(t, err)
	assert.ElementsMatch(t, []string{
		"ingredients[1]",
		"steps[0].title",
		"steps[1].duration",
		"steps[2]",
		"nutrition.calories_per_serving",
	}, paths)

	problems := make(map[string]string, len(ve.Fields))
	for _, f := range ve.Fields {
		problems[f.Path] = f.Problem
	}
	assert.Equal(t, "must be a string, got number", problems["steps[0].title"])
	assert.Equal(t, "must be an integer, got string", problems["steps[1].duration"])
	assert.Equal(t, "must be an object, got string", problems["steps[2]"])
}

func TestAssembleRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`["Toast"]`, `null`, `"Toast"`} {
		_, err := Assemble([]byte(raw))
		assert.Equal(t, []string{"$"}, fieldPaths(t, err), raw)
	}
}

func TestValidateNutritionPaths(t *testing.T) {
	err := validateNutrition(&NutritionInfo{CaloriesPerServing: -1, Servings: 0})
	assert.ElementsMatch(t, []string{"nutrition.calories_per_serving", "nutrition.servings"}, fieldPaths(t, err))

	assert.NoError(t, validateNutrition(&NutritionInfo{Servings: 1}))
}
