package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pantrychef/internal/recipe"
)

const (
	generationTimeout = 45 * time.Second
	storageTimeout    = 5 * time.Second
)

// Generator defines the interface for the recipe generation pipeline.
type Generator interface {
	Suggest(ctx context.Context, ingredients []string, prefs recipe.Preferences) ([]string, error)
	Generate(ctx context.Context, dish string, ingredients []string, prefs recipe.Preferences) (*recipe.Recipe, error)
}

// RecipeService defines the interface for recipe persistence operations.
type RecipeService interface {
	Save(ctx context.Context, r *recipe.Recipe, publish bool) (string, error)
	Fetch(ctx context.Context, id string) (*recipe.Recipe, error)
	SetPublished(ctx context.Context, id string, published bool) error
	Delete(ctx context.Context, id string) error
	ListMine(ctx context.Context) ([]*recipe.Summary, error)
	ListPublished(ctx context.Context) ([]*recipe.Summary, error)
	Bookmark(ctx context.Context, id string) error
	ListBookmarks(ctx context.Context) ([]*recipe.Summary, error)
	SaveNutrition(ctx context.Context, id string, n *recipe.NutritionInfo) error
	GetNutrition(ctx context.Context, id string) (*recipe.NutritionInfo, error)
	Rate(ctx context.Context, id string, score int, review string) (*recipe.Rating, error)
	Ratings(ctx context.Context, id string) (*recipe.RatingSummary, error)
}

// Handler handles HTTP requests.
type Handler struct {
	Generator Generator
	Recipes   RecipeService
	log       *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(generator Generator, recipes RecipeService, log *zap.Logger) *Handler {
	return &Handler{Generator: generator, Recipes: recipes, log: log}
}

type suggestionRequest struct {
	Ingredients []string           `json:"ingredients" binding:"required"`
	Preferences recipe.Preferences `json:"preferences"`
}

type generateRequest struct {
	Ingredients []string           `json:"ingredients" binding:"required"`
	DishName    string             `json:"dish_name" binding:"required"`
	Preferences recipe.Preferences `json:"preferences"`
}

type saveRequest struct {
	Recipe  *recipe.Recipe `json:"recipe" binding:"required"`
	Publish bool           `json:"publish"`
}

type rateRequest struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// Suggest handles requests for three dish names.
func (h *Handler) Suggest(c *gin.Context) {
	var req suggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), generationTimeout)
	defer cancel()

	suggestions, err := h.Generator.Suggest(ctx, req.Ingredients, req.Preferences)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}

// Generate handles requests for a full recipe of a chosen dish.
func (h *Handler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), generationTimeout)
	defer cancel()

	r, err := h.Generator.Generate(ctx, req.DishName, req.Ingredients, req.Preferences)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// SaveRecipe persists a generated recipe for the caller.
func (h *Handler) SaveRecipe(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()

	id, err := h.Recipes.Save(ctx, req.Recipe, req.Publish)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "is_published": req.Publish})
}

// GetRecipe handles requests to retrieve a single recipe by id.
func (h *Handler) GetRecipe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()

	r, err := h.Recipes.Fetch(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if r == nil {
		c.String(http.StatusNotFound, "Recipe not found")
		return
	}
	c.JSON(http.StatusOK, r)
}

// DeleteRecipe deletes one of the caller's recipes.
func (h *Handler) DeleteRecipe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()

	if err := h.Recipes.Delete(ctx, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Publish returns a handler that sets the visibility of one of the caller's recipes.
func (h *Handler) Publish(published bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
		defer cancel()

		if err := h.Recipes.SetPublished(ctx, c.Param("id"), published); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "is_published": published})
	}
}

func (h *Handler) list(c *gin.Context, fn func(context.Context) ([]*recipe.Summary, error)) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()

	recipes, err := fn(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recipes)
}

// ListMine lists the caller's recipes.
func (h *Handler) ListMine(c *gin.Context) { h.list(c, h.Recipes.ListMine) }

// Discover lists the published recipes.
func (h *Handler) Discover(c *gin.Context) { h.list(c, h.Recipes.ListPublished) }

// ListBookmarks lists the caller's bookmarked recipes.
func (h *Handler) ListBookmarks(c *gin.Context) { h.list(c, h.Recipes.ListBookmarks) }

// Bookmark saves a recipe to the caller's bookmarks.
func (h *Handler) Bookmark(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()

	if err := h.Recipes.Bookmark(ctx, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SaveNutrition attaches nutrition information to one of the caller's recipes.
func (h *Handler) SaveNutrition(c *gin.Context) {
	var n recipe.NutritionInfo
	if err := c.ShouldBindJSON(&n); err != nil {
		c.String(http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()

	if err := h.Recipes.SaveNutrition(ctx, c.Param("id"), &n); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// GetNutrition returns the nutrition information of a recipe.
func (h *Handler) GetNutrition(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()

	n, err := h.Recipes.GetNutrition(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if n == nil {
		c.String(http.StatusNotFound, "Nutrition not found for this recipe")
		return
	}
	c.JSON(http.StatusOK, n)
}

// Rate records the caller's rating of a recipe.
func (h *Handler) Rate(c *gin.Context) {
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()

	r, err := h.Recipes.Rate(ctx, c.Param("id"), req.Rating, req.Review)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Ratings lists the ratings of a recipe with their average.
func (h *Handler) Ratings(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storageTimeout)
	defer cancel()

	summary, err := h.Recipes.Ratings(ctx, c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// fail maps domain errors to HTTP responses.
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		validationErr *recipe.ValidationError
		generationErr *recipe.GenerationError
	)
	switch {
	case errors.Is(err, recipe.ErrNoIngredients), errors.Is(err, recipe.ErrNoDishName):
		c.String(http.StatusBadRequest, err.Error())
	case errors.Is(err, recipe.ErrUnauthenticated):
		c.String(http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, recipe.ErrNotFound):
		c.String(http.StatusNotFound, "Recipe not found")
	case errors.Is(err, recipe.ErrMissingCredential):
		h.log.Error("generation credential missing")
		c.String(http.StatusServiceUnavailable, "Recipe generation is not configured")
	case errors.Is(err, context.DeadlineExceeded):
		c.String(http.StatusRequestTimeout, "Request timed out")
	case errors.As(err, &generationErr):
		// A model reply that fails validation keeps its field list.
		if errors.As(generationErr.Err, &validationErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": generationErr.Reason, "fields": validationErr.Fields})
			return
		}
		c.String(http.StatusBadGateway, err.Error())
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid recipe", "fields": validationErr.Fields})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.String(http.StatusInternalServerError, "internal error")
	}
}
