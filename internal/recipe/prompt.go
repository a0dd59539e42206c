package recipe

import (
	"fmt"
	"strings"
)

// SuggestionCount is the number of dish names requested from the model.
const SuggestionCount = 3

const pantryStaples = "salt, pepper, oil, butter, garlic, onion"

const recipeShape = `{
  "title": "Recipe Name",
  "description": "Brief description",
  "ingredients": ["ingredient 1", "ingredient 2"],
  "steps": [
    {
      "title": "Step title",
      "description": "Detailed step description",
      "tools": ["tool 1", "tool 2"],
      "duration": 10
    }
  ],
  "nutrition": {
    "calories_per_serving": 350,
    "protein_g": 25,
    "carbs_g": 45,
    "fat_g": 12,
    "fiber_g": 5,
    "servings": 4
  }
}`

// CleanIngredients trims every entry and drops the blank ones.
func CleanIngredients(ingredients []string) []string {
	cleaned := make([]string, 0, len(ingredients))
	for _, ing := range ingredients {
		if ing = strings.TrimSpace(ing); ing != "" {
			cleaned = append(cleaned, ing)
		}
	}
	return cleaned
}

// PreferenceClause renders the active preferences, or "" when none is active.
func PreferenceClause(prefs Preferences) string {
	return strings.Join(prefs.Active(), ", ")
}

// SuggestionPrompt builds the prompt asking for three dish names.
func SuggestionPrompt(ingredients []string, prefs Preferences) (string, error) {
	ingredients = CleanIngredients(ingredients)
	if len(ingredients) == 0 {
		return "", ErrNoIngredients
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Based on these ingredients: %s.\n", strings.Join(ingredients, ", "))
	if clause := PreferenceClause(prefs); clause != "" {
		fmt.Fprintf(&b, "The recipes must be: %s.\n", clause)
	}
	fmt.Fprintf(&b, "\nSuggest exactly %d different dish names that can be made with these ingredients. ", SuggestionCount)
	fmt.Fprintf(&b, "Assume common kitchen items like %s are available.\n\n", pantryStaples)
	fmt.Fprintf(&b, "Return ONLY a JSON array of %d dish names, nothing else:\n", SuggestionCount)
	b.WriteString(`["Dish Name 1", "Dish Name 2", "Dish Name 3"]`)
	return b.String(), nil
}

// RecipePrompt builds the prompt asking for one full recipe of the named dish.
func RecipePrompt(dish string, ingredients []string, prefs Preferences) (string, error) {
	dish = strings.TrimSpace(dish)
	if dish == "" {
		return "", ErrNoDishName
	}
	ingredients = CleanIngredients(ingredients)
	if len(ingredients) == 0 {
		return "", ErrNoIngredients
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Generate a detailed recipe for %q using these ingredients: %s.\n", dish, strings.Join(ingredients, ", "))
	if clause := PreferenceClause(prefs); clause != "" {
		fmt.Fprintf(&b, "The recipe must be: %s.\n", clause)
	}
	fmt.Fprintf(&b, "Assume common kitchen items like %s are available.\n\n", pantryStaples)
	b.WriteString("Return ONLY the recipe as a single JSON object with this exact structure, nothing else:\n")
	b.WriteString(recipeShape)
	b.WriteString(`

Make sure:
- Each step has a clear title and detailed description
- Include tools/utensils needed for each step
- Include estimated time in minutes for each step as an integer
- Steps are logical and easy to follow
- The recipe is practical and uses the provided ingredients
- Nutrition estimates are realistic for the recipe servings provided`)
	return b.String(), nil
}
