package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pantrychef/internal/recipe"
)

type fakeModel struct {
	reply   string
	err     error
	prompts []string
}

func (m *fakeModel) GenerateText(ctx context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	return m.reply, m.err
}

func newTestService(m *fakeModel) *Service {
	return NewService(m, zap.NewNop())
}

func TestSuggest(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"exact", `["Shakshuka","Frittata","Omelette"]`, []string{"Shakshuka", "Frittata", "Omelette"}},
		{"with prose", "Sure! Here you go:\n```json\n[\"A\", \"B\", \"C\"]\n```", []string{"A", "B", "C"}},
		{"truncated", `["A","B","C","D","E"]`, []string{"A", "B", "C"}},
		{"fewer accepted", `["A","B"]`, []string{"A", "B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeModel{reply: tt.reply}
			got, err := newTestService(m).Suggest(context.Background(), []string{"eggs", "tomato"}, recipe.Preferences{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			require.Len(t, m.prompts, 1)
			assert.Contains(t, m.prompts[0], "eggs, tomato")
		})
	}
}

func TestSuggestFailures(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		reason string
	}{
		{"no brackets", "I cannot help with that.", "no JSON found in reply"},
		{"greedy span", `first [1] then [2]`, "reply is not a JSON array of strings"},
		{"not strings", `[1, 2, 3]`, "reply is not a JSON array of strings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestService(&fakeModel{reply: tt.reply}).Suggest(context.Background(), []string{"rice"}, recipe.Preferences{})
			var ge *recipe.GenerationError
			require.True(t, errors.As(err, &ge), "got %v", err)
			assert.Equal(t, tt.reason, ge.Reason)
		})
	}
}

func TestSuggestBlankIngredientsSkipsModel(t *testing.T) {
	m := &fakeModel{reply: `["A","B","C"]`}
	_, err := newTestService(m).Suggest(context.Background(), []string{" ", ""}, recipe.Preferences{})
	assert.ErrorIs(t, err, recipe.ErrNoIngredients)
	assert.Empty(t, m.prompts)
}

func TestMissingCredentialPassesThrough(t *testing.T) {
	svc := newTestService(&fakeModel{err: recipe.ErrMissingCredential})

	_, err := svc.Suggest(context.Background(), []string{"rice"}, recipe.Preferences{})
	assert.ErrorIs(t, err, recipe.ErrMissingCredential)
	var ge *recipe.GenerationError
	assert.False(t, errors.As(err, &ge))

	_, err = svc.Generate(context.Background(), "Fried rice", []string{"rice"}, recipe.Preferences{})
	assert.ErrorIs(t, err, recipe.ErrMissingCredential)
}

func TestModelErrorIsWrapped(t *testing.T) {
	svc := newTestService(&fakeModel{err: context.DeadlineExceeded})

	_, err := svc.Suggest(context.Background(), []string{"rice"}, recipe.Preferences{})
	var ge *recipe.GenerationError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "model call failed", ge.Reason)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

const recipeReply = "Here is your recipe:\n" + `{
  "title": "Fried Rice",
  "description": "Quick weeknight fried rice",
  "ingredients": ["2 cups rice", "2 eggs"],
  "steps": [
    {"title": "Scramble", "description": "Scramble the eggs", "tools": ["wok"], "duration": 3},
    {"title": "Fry", "description": "Fry the rice", "duration": 5}
  ],
  "nutrition": {"calories_per_serving": 420, "protein_g": 12, "carbs_g": 60, "fat_g": 14, "fiber_g": 2, "servings": 2}
}
Enjoy!`

func TestGenerate(t *testing.T) {
	m := &fakeModel{reply: recipeReply}
	got, err := newTestService(m).Generate(context.Background(), "Fried Rice", []string{"rice", "eggs"}, recipe.Preferences{Vegetarian: true})
	require.NoError(t, err)

	assert.Equal(t, "Fried Rice", got.Title)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, []string{"wok"}, got.Steps[0].Tools)
	assert.Equal(t, []string{}, got.Steps[1].Tools)
	require.NotNil(t, got.Nutrition)
	assert.Equal(t, 2, got.Nutrition.Servings)

	require.Len(t, m.prompts, 1)
	assert.Contains(t, m.prompts[0], `"Fried Rice"`)
	assert.Contains(t, m.prompts[0], "The recipe must be: vegetarian.")
}

func TestGenerateFailures(t *testing.T) {
	t.Run("no braces", func(t *testing.T) {
		_, err := newTestService(&fakeModel{reply: "no recipe today"}).Generate(context.Background(), "Soup", []string{"leek"}, recipe.Preferences{})
		var ge *recipe.GenerationError
		require.True(t, errors.As(err, &ge))
		assert.Equal(t, "no JSON found in reply", ge.Reason)
	})

	t.Run("broken JSON", func(t *testing.T) {
		_, err := newTestService(&fakeModel{reply: `{"title": "Soup",}`}).Generate(context.Background(), "Soup", []string{"leek"}, recipe.Preferences{})
		var ge *recipe.GenerationError
		require.True(t, errors.As(err, &ge))
		assert.Equal(t, "reply is not valid JSON", ge.Reason)
	})

	t.Run("invalid recipe", func(t *testing.T) {
		_, err := newTestService(&fakeModel{reply: `{"title": "Soup", "ingredients": ["leek"], "steps": []}`}).Generate(context.Background(), "Soup", []string{"leek"}, recipe.Preferences{})
		var ge *recipe.GenerationError
		require.True(t, errors.As(err, &ge))
		assert.Equal(t, "model returned an invalid recipe", ge.Reason)

		var ve *recipe.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "steps", ve.Fields[0].Path)
	})

	t.Run("no dish", func(t *testing.T) {
		m := &fakeModel{reply: recipeReply}
		_, err := newTestService(m).Generate(context.Background(), "  ", []string{"leek"}, recipe.Preferences{})
		assert.ErrorIs(t, err, recipe.ErrNoDishName)
		assert.Empty(t, m.prompts)
	})
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		open   byte
		close  byte
		want   string
		wantOK bool
	}{
		{"bare array", `["a"]`, '[', ']', `["a"]`, true},
		{"fenced", "```json\n{\"a\":1}\n```", '{', '}', `{"a":1}`, true},
		{"greedy", `x {"a":{"b":1}} y {"c":2} z`, '{', '}', `{"a":{"b":1}} y {"c":2}`, true},
		{"missing close", `["a"`, '[', ']', "", false},
		{"reversed", `] then [`, '[', ']', "", false},
		{"empty", "", '{', '}', "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.text, tt.open, tt.close)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
