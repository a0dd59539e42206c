package recipe

import (
	"strings"
	"time"
	"unicode"
)

// Recipe represents the structure of a generated or persisted recipe.
type Recipe struct {
	Title       string         `json:"title" validate:"required,notblank"`
	Description string         `json:"description"`
	Ingredients []string       `json:"ingredients" validate:"min=1,dive,notblank"`
	Steps       []Step         `json:"steps" validate:"min=1,dive"`
	Nutrition   *NutritionInfo `json:"nutrition,omitempty" validate:"omitempty"`
}

// Step is one instruction unit of a recipe.
type Step struct {
	Title       string   `json:"title" validate:"required,notblank"`
	Description string   `json:"description" validate:"required,notblank"`
	Tools       []string `json:"tools" validate:"dive,notblank"`
	Duration    int      `json:"duration" validate:"gte=0"`
}

// NutritionInfo holds per-serving nutrition estimates.
type NutritionInfo struct {
	CaloriesPerServing float64 `json:"calories_per_serving" db:"calories_per_serving" validate:"gte=0"`
	ProteinG           float64 `json:"protein_g" db:"protein_g" validate:"gte=0"`
	CarbsG             float64 `json:"carbs_g" db:"carbs_g" validate:"gte=0"`
	FatG               float64 `json:"fat_g" db:"fat_g" validate:"gte=0"`
	FiberG             float64 `json:"fiber_g" db:"fiber_g" validate:"gte=0"`
	Servings           int     `json:"servings" db:"servings" validate:"gte=1"`
}

// Preferences are the dietary constraints applied to generation.
type Preferences struct {
	Vegetarian bool `json:"vegetarian"`
	Vegan      bool `json:"vegan"`
	GlutenFree bool `json:"glutenFree"`
	DairyFree  bool `json:"dairyFree"`
	NutFree    bool `json:"nutFree"`
}

// flags returns the preferences in declaration order keyed by their wire names.
func (p Preferences) flags() []struct {
	name   string
	active bool
} {
	return []struct {
		name   string
		active bool
	}{
		{"vegetarian", p.Vegetarian},
		{"vegan", p.Vegan},
		{"glutenFree", p.GlutenFree},
		{"dairyFree", p.DairyFree},
		{"nutFree", p.NutFree},
	}
}

// Active returns the human readable names of the active flags, in declaration order.
func (p Preferences) Active() []string {
	var names []string
	for _, f := range p.flags() {
		if f.active {
			names = append(names, splitCamel(f.name))
		}
	}
	return names
}

// splitCamel turns "glutenFree" into "gluten free".
func splitCamel(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsUpper(r) {
			b.WriteRune(' ')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Summary is the card view of a persisted recipe.
type Summary struct {
	ID          string    `json:"id" db:"id"`
	OwnerID     string    `json:"user_id" db:"user_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Ingredients []string  `json:"ingredients" db:"-"`
	IsPublished bool      `json:"is_published" db:"is_published"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Rating is one user's score for a recipe.
type Rating struct {
	RecipeID  string    `json:"recipe_id" db:"recipe_id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Score     int       `json:"rating" db:"rating"`
	Review    string    `json:"review,omitempty" db:"review"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// RatingSummary aggregates the ratings of one recipe.
type RatingSummary struct {
	Average float64  `json:"average"`
	Count   int      `json:"count"`
	Ratings []Rating `json:"ratings"`
}

// normalize fills the defaults a decoded recipe may lack.
func (r *Recipe) normalize() {
	if r.Ingredients == nil {
		r.Ingredients = []string{}
	}
	if r.Steps == nil {
		r.Steps = []Step{}
	}
	for i := range r.Steps {
		if r.Steps[i].Tools == nil {
			r.Steps[i].Tools = []string{}
		}
	}
}
